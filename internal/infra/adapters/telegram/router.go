package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dialogue-orchestrator/internal/config"
	"dialogue-orchestrator/internal/domain"
	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/domain/ports/adapter"
	"dialogue-orchestrator/internal/infra/i18n"
	"dialogue-orchestrator/internal/infra/logging"
	red "dialogue-orchestrator/internal/infra/redis"
	"dialogue-orchestrator/internal/usecase"
)

// RateLimiter caps commands per chat.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Router maps chat commands and button presses onto the session controller.
// Every chat is one room.
type Router struct {
	uc      usecase.SessionUseCase
	send    adapter.ChatSender
	limiter RateLimiter
	tr      *i18n.Translator
	cast    config.CastConfig
	perMin  int
	log     *zerolog.Logger
}

func NewRouter(uc usecase.SessionUseCase, send adapter.ChatSender, limiter RateLimiter, tr *i18n.Translator, cast config.CastConfig, perMin int, logger *zerolog.Logger) *Router {
	if tr == nil {
		tr = i18n.Default()
	}
	l := logger.With().Str("component", "telegram_router").Logger()
	return &Router{
		uc:      uc,
		send:    send,
		limiter: limiter,
		tr:      tr,
		cast:    cast,
		perMin:  perMin,
		log:     &l,
	}
}

// RoomFor derives the room key of a chat.
func RoomFor(chatID int64) string { return fmt.Sprintf("tg:%d", chatID) }

type commandHandler func(ctx context.Context, chatID int64, args []string) error

func (r *Router) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":  r.handleHelp,
		"help":   r.handleHelp,
		"begin":  r.handleBegin,
		"next":   r.handleNext,
		"stage":  r.handleStage,
		"pause":  r.handlePause,
		"resume": r.handleResume,
		"retry":  r.handleRetry,
		"status": r.handleStatus,
		"end":    r.handleEnd,
	}
}

func (r *Router) callbackRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"act:next":  r.handleNext,
		"act:stage": r.handleStage,
		"act:retry": r.handleRetry,
		"act:end":   r.handleEnd,
	}
}

// HandleText routes a chat message. Plain text is ignored: the cast speaks,
// the chat only steers.
func (r *Router) HandleText(ctx context.Context, chatID int64, text string) error {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	h, ok := r.commandRoutes()[strings.ToLower(name)]
	if !ok {
		return r.send.SendMessage(ctx, chatID, r.tr.T("tg.unknown_command"))
	}
	return r.guarded(ctx, chatID, name, func(ctx context.Context) error { return h(ctx, chatID, fields[1:]) })
}

func (r *Router) HandleCallback(ctx context.Context, chatID int64, data string) error {
	h, ok := r.callbackRoutes()[strings.TrimSpace(data)]
	if !ok {
		return errors.New("unknown callback data")
	}
	return r.guarded(ctx, chatID, data, func(ctx context.Context) error { return h(ctx, chatID, nil) })
}

func (r *Router) guarded(ctx context.Context, chatID int64, action string, fn func(context.Context) error) error {
	room := RoomFor(chatID)
	ctx = logging.WithRoom(ctx, room)
	if r.limiter != nil && r.perMin > 0 {
		allowed, err := r.limiter.Allow(ctx, red.RoomActionKey(room, action), r.perMin, time.Minute)
		if err != nil {
			l := logging.With(ctx, r.log)
			l.Warn().Err(err).Msg("rate limit error")
		} else if !allowed {
			return r.send.SendMessage(ctx, chatID, r.tr.T("request.rate_limited"))
		}
	}
	if err := fn(ctx); err != nil {
		l := logging.With(ctx, r.log)
		l.Debug().Err(err).Str("action", action).Msg("command rejected")
		return r.send.SendMessage(ctx, chatID, r.tr.T(errorKey(err)))
	}
	return nil
}

// -----------------------------
// Commands
// -----------------------------

func (r *Router) handleHelp(ctx context.Context, chatID int64, _ []string) error {
	return r.send.SendMessage(ctx, chatID, r.tr.T("tg.help"))
}

func (r *Router) handleBegin(ctx context.Context, chatID int64, args []string) error {
	kind := model.KindGroup
	if len(args) > 0 {
		kind = model.SessionKind(strings.ToLower(args[0]))
	}
	p := usecase.StartParams{Kind: kind, Facilitator: persona(r.cast.Facilitator)}
	for _, c := range r.cast.Respondents {
		p.Participants = append(p.Participants, persona(c))
		if kind == model.KindIndividual {
			break
		}
	}
	room := RoomFor(chatID)
	sess, err := r.uc.Start(ctx, room, p)
	if err != nil {
		return err
	}
	r.startRelay(ctx, chatID, room)

	if err := r.send.SendMessage(ctx, chatID, r.tr.T("tg.started", sess.Kind, sess.Facilitator.Name)); err != nil {
		return err
	}
	for _, m := range sess.History {
		if err := r.send.SendMessage(ctx, chatID, formatMessage(m)); err != nil {
			return err
		}
	}
	return r.send.SendButtons(ctx, chatID, r.tr.T("tg.turn_done", sess.Clock.TurnCount), r.turnButtons())
}

func (r *Router) handleNext(ctx context.Context, chatID int64, _ []string) error {
	res, err := r.uc.Advance(ctx, RoomFor(chatID))
	if err != nil {
		if errors.Is(err, domain.ErrEvaluationFailed) {
			return r.send.SendButtons(ctx, chatID, r.tr.T("evaluation.failed"), r.retryButtons())
		}
		return err
	}
	return r.postTurn(ctx, chatID, res)
}

func (r *Router) handleRetry(ctx context.Context, chatID int64, _ []string) error {
	res, err := r.uc.RetryEvaluation(ctx, RoomFor(chatID))
	if err != nil {
		if errors.Is(err, domain.ErrEvaluationFailed) {
			return r.send.SendButtons(ctx, chatID, r.tr.T("evaluation.failed"), r.retryButtons())
		}
		return err
	}
	return r.postTurn(ctx, chatID, res)
}

func (r *Router) postTurn(ctx context.Context, chatID int64, res *model.TurnResult) error {
	for _, m := range res.Messages {
		if err := r.send.SendMessage(ctx, chatID, formatMessage(m)); err != nil {
			return err
		}
	}
	if len(res.Faults) > 0 {
		names := r.castNames()
		for _, f := range res.Faults {
			name := names[f.SpeakerID]
			if name == "" {
				name = f.SpeakerID
			}
			if err := r.send.SendMessage(ctx, chatID, r.tr.T("fault.speaker_skipped", name)); err != nil {
				return err
			}
		}
	}
	if res.Ruling != nil {
		v := res.Ruling.Verdict
		return r.send.SendMessage(ctx, chatID, r.tr.T("tg.ruling", v.Risk, v.Quality, v.Score))
	}
	return r.send.SendButtons(ctx, chatID, r.tr.T("tg.turn_done", res.Turn), r.turnButtons())
}

func (r *Router) handleStage(ctx context.Context, chatID int64, _ []string) error {
	st, err := r.uc.AdvanceStage(ctx, RoomFor(chatID))
	if err != nil {
		return err
	}
	text := r.tr.T("tg.stage", st)
	if st.Terminal() {
		text += "\n" + r.tr.T("tg.breakthrough")
	}
	return r.send.SendMessage(ctx, chatID, text)
}

func (r *Router) handlePause(ctx context.Context, chatID int64, _ []string) error {
	if _, err := r.uc.Pause(ctx, RoomFor(chatID)); err != nil {
		return err
	}
	return r.send.SendMessage(ctx, chatID, r.tr.T("tg.paused"))
}

func (r *Router) handleResume(ctx context.Context, chatID int64, _ []string) error {
	if _, err := r.uc.Resume(ctx, RoomFor(chatID)); err != nil {
		return err
	}
	return r.send.SendButtons(ctx, chatID, r.tr.T("tg.resumed"), r.turnButtons())
}

func (r *Router) handleStatus(ctx context.Context, chatID int64, _ []string) error {
	s, err := r.uc.Get(ctx, RoomFor(chatID))
	if err != nil {
		return err
	}
	return r.send.SendMessage(ctx, chatID, r.tr.T("tg.status", s.Kind, s.Clock.TurnCount, s.Clock.RoundCount, s.Stage, s.Status))
}

// handleEnd leaves the closing notice to the relay.
func (r *Router) handleEnd(ctx context.Context, chatID int64, _ []string) error {
	return r.uc.End(ctx, RoomFor(chatID))
}

// -----------------------------
// Relay
// -----------------------------

// startRelay tells the chat when its session closes for any reason other
// than a ruling, which postTurn already reported.
func (r *Router) startRelay(ctx context.Context, chatID int64, room string) {
	events, cancel, err := r.uc.Subscribe(ctx, room)
	if err != nil {
		r.log.Warn().Err(err).Str("room", room).Msg("relay subscribe failed")
		return
	}

	go func() {
		defer cancel()
		bg := context.WithoutCancel(ctx)
		ruled := false
		for ev := range events {
			switch {
			case ev.Type == model.EventRuling:
				ruled = true
				continue
			case ev.Type != model.EventClosed || ruled:
				continue
			}
			if err := r.send.SendMessage(bg, chatID, r.tr.T("tg.closed")); err != nil {
				r.log.Warn().Err(err).Int64("chat_id", chatID).Msg("relay send failed")
			}
		}
	}()
}

// -----------------------------
// Helpers
// -----------------------------

func (r *Router) turnButtons() [][]adapter.InlineButton {
	return [][]adapter.InlineButton{
		{{Text: r.tr.T("tg.button_next"), Data: "act:next"}, {Text: r.tr.T("tg.button_stage"), Data: "act:stage"}},
		{{Text: r.tr.T("tg.button_end"), Data: "act:end"}},
	}
}

func (r *Router) retryButtons() [][]adapter.InlineButton {
	return [][]adapter.InlineButton{
		{{Text: r.tr.T("tg.button_retry"), Data: "act:retry"}},
		{{Text: r.tr.T("tg.button_end"), Data: "act:end"}},
	}
}

func (r *Router) castNames() map[string]string {
	names := map[string]string{r.cast.Facilitator.ID: r.cast.Facilitator.Name}
	for _, c := range r.cast.Respondents {
		names[c.ID] = c.Name
	}
	return names
}

func persona(c config.PersonaConfig) model.Participant {
	return model.Participant{ID: c.ID, Name: c.Name, Persona: c.Persona}
}

func formatMessage(m model.Message) string {
	return m.SpeakerName + ": " + m.Text
}

func errorKey(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "session.not_found"
	case errors.Is(err, domain.ErrEvaluationFailed):
		return "evaluation.failed"
	case errors.Is(err, domain.ErrEvaluationDone):
		return "evaluation.done"
	case errors.Is(err, domain.ErrConflict):
		return "session.conflict"
	case errors.Is(err, domain.ErrInvalidState):
		return "session.invalid_state"
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrInvalidArgument):
		return "session.bad_config"
	default:
		return "session.generation"
	}
}
