package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"dialogue-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.ChatSender = (*Bot)(nil)

// Bot long-polls Telegram and hands updates to a Router on a fixed set of
// workers.
type Bot struct {
	api     *tgbotapi.BotAPI
	workers int
	log     *zerolog.Logger
}

func NewBot(token string, workers int, logger *zerolog.Logger) (*Bot, error) {
	if workers <= 0 {
		workers = 4
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "telegram_bot").Str("bot", api.Self.UserName).Logger()
	return &Bot{api: api, workers: workers, log: &l}, nil
}

// Run polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, router *Router) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	var wg sync.WaitGroup
	queue := make(chan tgbotapi.Update, 100)
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range queue {
				if err := b.dispatch(ctx, router, up); err != nil {
					b.log.Warn().Err(err).Int("worker", id).Msg("update failed")
				}
			}
		}(i)
	}
	b.log.Info().Int("workers", b.workers).Msg("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return ctx.Err()
		case up := <-updates:
			queue <- up
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, router *Router, up tgbotapi.Update) error {
	if q := up.CallbackQuery; q != nil {
		defer func() { _, _ = b.api.Request(tgbotapi.NewCallback(q.ID, "")) }()
		if q.Message == nil || q.Message.Chat == nil {
			return nil
		}
		return router.HandleCallback(ctx, q.Message.Chat.ID, q.Data)
	}
	if m := up.Message; m != nil && m.Chat != nil {
		return router.HandleText(ctx, m.Chat.ID, m.Text)
	}
	return nil
}

func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendButtons attaches an inline keyboard. Buttons with a URL open a link;
// the rest send their Data (or label) back as callback data.
func (b *Bot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, r)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	_, err := b.api.Send(msg)
	return err
}
