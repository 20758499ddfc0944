package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter answers from canned lines for local runs and the demo. The
// reply depends only on the request, so runs are reproducible.
type NoopAIAdapter struct {
	delay time.Duration
}

func NewNoopAIAdapter(delay time.Duration) *NoopAIAdapter {
	return &NoopAIAdapter{delay: delay}
}

func (a *NoopAIAdapter) Provider() string { return "noop" }

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-ai-model"}, nil
}

var (
	noopQuestions = []string{
		"What has been on your mind since we last spoke?",
		"How did that make you feel?",
		"What would you like to be different next week?",
		"Who else noticed the change?",
		"What stopped you from saying that out loud?",
	}
	noopAnswers = []string{
		"I am not sure it matters, but I keep thinking about it.",
		"Honestly, I felt ignored, and then angry at myself for caring.",
		"Maybe I could try talking first instead of waiting.",
		"I guess I never thought anyone would listen.",
		"It is hard to say, I would rather hear the others first.",
	}
)

func (a *NoopAIAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatReply, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return adapter.ChatReply{}, ctx.Err()
		}
	}

	h := fnv.New32a()
	for _, m := range req.Messages {
		_, _ = h.Write([]byte(m.Content))
	}
	_, _ = h.Write([]byte(req.System))
	pick := int(h.Sum32())

	var text string
	switch model.Role(req.Purpose) {
	case model.RoleEvaluator:
		score := 4 + pick%6
		text = fmt.Sprintf("The facilitator kept the conversation moving and invited every voice.\n"+
			`{"risk": "%s", "quality": "%s", "score": %d}`, noopRisk(score), noopQuality(score), score)
	case model.RoleFacilitator:
		text = noopQuestions[pick%len(noopQuestions)]
	default:
		text = noopAnswers[pick%len(noopAnswers)]
	}
	return adapter.ChatReply{
		Text:  text,
		Model: "noop-ai-model",
		Usage: adapter.Usage{
			PromptTokens:     approxTokens(req.System),
			CompletionTokens: approxTokens(text),
			TotalTokens:      approxTokens(req.System) + approxTokens(text),
		},
	}, nil
}

func noopRisk(score int) string {
	if score >= 7 {
		return "low"
	}
	return "medium"
}

func noopQuality(score int) string {
	if score >= 7 {
		return "good"
	}
	return "fair"
}
