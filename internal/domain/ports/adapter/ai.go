package adapter

import "context"

// Message is one chat-completion message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatRequest is a provider-neutral completion request. System is kept apart
// from Messages because not every provider accepts a system role in history.
type ChatRequest struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
	Purpose   string // speaker role the reply is for; used for routing and labels
}

type ChatReply struct {
	Text  string
	Model string
	Usage Usage
}

// AIServiceAdapter is the port for LLM chat providers.
type AIServiceAdapter interface {
	Provider() string
	ListModels(ctx context.Context) ([]string, error)
	Chat(ctx context.Context, req ChatRequest) (ChatReply, error)
}

// TokenCounter estimates prompt tokens for a model.
type TokenCounter interface {
	Count(model, text string) int
}
