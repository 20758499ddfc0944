package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"dialogue-orchestrator/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter talks to the Chat Completions API. A non-empty baseURL points
// it at any OpenAI-compatible gateway; provider names it for routing.
type OpenAIAdapter struct {
	client   openai.Client
	provider string
	model    string
	maxOut   int
}

func NewOpenAIAdapter(provider, apiKey, baseURL, model string, maxOut int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if provider == "" {
		provider = "openai"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &OpenAIAdapter{
		client:   openai.NewClient(opts...),
		provider: provider,
		model:    model,
		maxOut:   maxOut,
	}, nil
}

func (o *OpenAIAdapter) Provider() string { return o.provider }

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	iter := o.client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		out = append(out, iter.Current().ID)
	}
	if err := iter.Err(); err != nil || len(out) == 0 {
		// gateways often do not expose /models
		return []string{o.model}, nil
	}
	return out, nil
}

func (o *OpenAIAdapter) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatReply, error) {
	model := modelOrDefault(req.Model, o.model)
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if limit := firstPositive(req.MaxTokens, o.maxOut); limit > 0 {
		params.MaxCompletionTokens = openai.Int(int64(limit))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return adapter.ChatReply{}, fmt.Errorf("%s chat: %w", o.provider, err)
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return adapter.ChatReply{
				Text:  c.Message.Content,
				Model: resp.Model,
				Usage: adapter.Usage{
					PromptTokens:     int(resp.Usage.PromptTokens),
					CompletionTokens: int(resp.Usage.CompletionTokens),
					TotalTokens:      int(resp.Usage.TotalTokens),
				},
			}, nil
		}
	}
	return adapter.ChatReply{}, fmt.Errorf("%s chat: no choice content", o.provider)
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
