package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

// ChatSender posts to a chat-based presentation surface.
type ChatSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendButtons(ctx context.Context, chatID int64, text string, rows [][]InlineButton) error
}
