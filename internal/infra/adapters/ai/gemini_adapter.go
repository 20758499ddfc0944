package ai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"dialogue-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) Provider() string { return "gemini" }

func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			break
		}
		if m != nil && m.Name != "" {
			out = append(out, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	if len(out) == 0 {
		out = []string{g.defaultModel}
	}
	return out, nil
}

// Chat replays everything but the last message as chat history and sends the
// last one, which Gemini requires to come from the user.
func (g *GeminiAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatReply, error) {
	if len(req.Messages) == 0 {
		return adapter.ChatReply{}, errors.New("gemini: no messages")
	}
	last := req.Messages[len(req.Messages)-1]
	if strings.ToLower(last.Role) != "user" {
		return adapter.ChatReply{}, errors.New("gemini: last message must be from user")
	}

	cfg := &genai.GenerateContentConfig{}
	if limit := firstPositive(req.MaxTokens, g.maxOut); limit > 0 {
		cfg.MaxOutputTokens = int32(limit)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	model := modelOrDefault(req.Model, g.defaultModel)
	chat, err := g.client.Chats.Create(ctx, model, cfg, toGenAIHistory(req.Messages[:len(req.Messages)-1]))
	if err != nil {
		return adapter.ChatReply{}, err
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: last.Content})
	if err != nil {
		return adapter.ChatReply{}, err
	}

	reply := adapter.ChatReply{Model: model, Text: resp.Text()}
	if resp.UsageMetadata != nil {
		reply.Usage = adapter.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if reply.Text == "" {
		return adapter.ChatReply{}, errors.New("gemini: empty candidate")
	}
	return reply, nil
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if r := strings.ToLower(m.Role); r == "assistant" || r == "model" {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
