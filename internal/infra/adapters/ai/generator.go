package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/domain/ports/adapter"
	"dialogue-orchestrator/internal/infra/metrics"
)

var _ adapter.UtteranceGenerator = (*Generator)(nil)

type GeneratorConfig struct {
	Model              string
	EvaluatorModel     string
	MaxOutputTokens    int
	HistoryTokenBudget int
}

// Generator turns a turn request into a chat completion. It owns the role
// prompts and trims the transcript to the token budget, newest first.
type Generator struct {
	ai     adapter.AIServiceAdapter
	tokens adapter.TokenCounter
	cfg    GeneratorConfig
	log    *zerolog.Logger
}

func NewGenerator(ai adapter.AIServiceAdapter, tokens adapter.TokenCounter, cfg GeneratorConfig, logger *zerolog.Logger) *Generator {
	if tokens == nil {
		tokens = HeuristicCounter{}
	}
	if cfg.EvaluatorModel == "" {
		cfg.EvaluatorModel = cfg.Model
	}
	l := logger.With().Str("component", "generator").Logger()
	return &Generator{ai: ai, tokens: tokens, cfg: cfg, log: &l}
}

func (g *Generator) Generate(ctx context.Context, req adapter.GenerateRequest) (string, error) {
	chat := g.buildRequest(req)

	start := time.Now()
	reply, err := g.ai.Chat(ctx, chat)
	elapsed := int(time.Since(start).Milliseconds())
	metrics.ObserveChatUsage(g.ai.Provider(), chat.Model,
		reply.Usage.PromptTokens, reply.Usage.CompletionTokens, reply.Usage.TotalTokens, elapsed, err == nil)
	if err != nil {
		return "", err
	}

	g.log.Debug().
		Str("session_id", req.SessionID).
		Str("speaker_id", req.Speaker.ID).
		Int("turn", req.Turn).
		Int("prompt_tokens", reply.Usage.PromptTokens).
		Msg("utterance generated")
	return stripSpeakerPrefix(reply.Text, req.Speaker.Name), nil
}

func (g *Generator) buildRequest(req adapter.GenerateRequest) adapter.ChatRequest {
	mdl := g.cfg.Model
	if req.Role == model.RoleEvaluator {
		mdl = g.cfg.EvaluatorModel
	}
	system := systemPrompt(req)
	cue := turnCue(req)

	var history []adapter.Message
	if budget := g.cfg.HistoryTokenBudget; budget <= 0 {
		history = g.trim(mdl, req.History, req.Speaker.ID, 0)
	} else if left := budget - g.tokens.Count(mdl, system) - g.tokens.Count(mdl, cue); left > 0 {
		history = g.trim(mdl, req.History, req.Speaker.ID, left)
	}

	msgs := make([]adapter.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, adapter.Message{Role: "user", Content: cue})
	return adapter.ChatRequest{
		Model:     mdl,
		System:    system,
		Messages:  mergeSameRole(msgs),
		MaxTokens: g.cfg.MaxOutputTokens,
		Purpose:   string(req.Role),
	}
}

// trim keeps the newest messages that fit in budget. budget <= 0 keeps all.
// The speaker's own lines are "assistant"; everyone else is "user".
func (g *Generator) trim(mdl string, hist []model.Message, self string, budget int) []adapter.Message {
	start := 0
	if budget > 0 {
		used := 0
		start = len(hist)
		for i := len(hist) - 1; i >= 0; i-- {
			n := g.tokens.Count(mdl, hist[i].SpeakerName+": "+hist[i].Text)
			if used+n > budget {
				break
			}
			used += n
			start = i
		}
	}
	out := make([]adapter.Message, 0, len(hist)-start)
	for _, m := range hist[start:] {
		if m.SpeakerID == self {
			out = append(out, adapter.Message{Role: "assistant", Content: m.Text})
			continue
		}
		out = append(out, adapter.Message{Role: "user", Content: m.SpeakerName + ": " + m.Text})
	}
	return out
}

// mergeSameRole joins consecutive messages of one role; some providers reject
// two user turns in a row.
func mergeSameRole(msgs []adapter.Message) []adapter.Message {
	out := make([]adapter.Message, 0, len(msgs))
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}

func systemPrompt(req adapter.GenerateRequest) string {
	var b strings.Builder
	names := make([]string, len(req.Roster))
	for i, p := range req.Roster {
		names[i] = p.Name
	}
	roster := strings.Join(names, ", ")

	switch req.Role {
	case model.RoleFacilitator:
		fmt.Fprintf(&b, "You are %s, the facilitator of a %s session with %s. ", req.Speaker.Name, req.Kind, roster)
		b.WriteString("Ask one focused question or make one short intervention. Do not answer for the participants.")
	case model.RoleRespondent:
		fmt.Fprintf(&b, "You are %s, a participant in a %s session. ", req.Speaker.Name, req.Kind)
		b.WriteString("Answer the facilitator in character, in a few sentences. React to what others said if it matters.")
	case model.RoleEvaluator:
		fmt.Fprintf(&b, "You are %s, an evaluator reviewing the transcript of a %s session with %s. ", req.Speaker.Name, req.Kind, roster)
		b.WriteString("Write a short assessment of the facilitator's work, then end with a single JSON object ")
		b.WriteString(`{"risk": "low|medium|high", "quality": "poor|fair|good|excellent", "score": 0-10}.`)
	}
	if req.Speaker.Persona != "" {
		b.WriteString("\n\nPersona:\n")
		b.WriteString(req.Speaker.Persona)
	}
	if req.Role != model.RoleEvaluator && req.Stage != "" {
		fmt.Fprintf(&b, "\n\nThe conversation is in the %s stage.", req.Stage)
	}
	for k, v := range req.Extra {
		fmt.Fprintf(&b, "\n%s: %s", k, v)
	}
	return b.String()
}

func turnCue(req adapter.GenerateRequest) string {
	if req.Role == model.RoleEvaluator {
		return "The session is over. Give your evaluation now."
	}
	return fmt.Sprintf("Turn %d. Reply as %s only.", req.Turn, req.Speaker.Name)
}

// stripSpeakerPrefix removes a leading "Name:" that models often echo back.
func stripSpeakerPrefix(text, name string) string {
	text = strings.TrimSpace(text)
	if name == "" {
		return text
	}
	if rest, ok := strings.CutPrefix(text, name+":"); ok {
		return strings.TrimSpace(rest)
	}
	return text
}
