package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"dialogue-orchestrator/internal/domain"
	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/domain/ports/adapter"
	"dialogue-orchestrator/internal/domain/ports/repository"
	"dialogue-orchestrator/internal/infra/logging"
	"dialogue-orchestrator/internal/infra/metrics"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

// SessionUseCase is the room-keyed controller every presentation layer talks
// to. All operations are safe for concurrent use.
type SessionUseCase interface {
	Start(ctx context.Context, room string, p StartParams) (*model.Session, error)
	Advance(ctx context.Context, room string) (*model.TurnResult, error)
	Pause(ctx context.Context, room string) (*model.Session, error)
	Resume(ctx context.Context, room string) (*model.Session, error)
	End(ctx context.Context, room string) error
	AdvanceStage(ctx context.Context, room string) (model.Stage, error)
	RetryEvaluation(ctx context.Context, room string) (*model.TurnResult, error)
	Get(ctx context.Context, room string) (*model.Session, error)
	Subscribe(ctx context.Context, room string) (<-chan model.Event, func(), error)
	EndIdle(ctx context.Context, idle time.Duration) int
	Shutdown(ctx context.Context)
}

type StartParams struct {
	Kind         model.SessionKind   `json:"kind"`
	Facilitator  model.Participant   `json:"facilitator"`
	Participants []model.Participant `json:"participants"`
	Evaluator    *model.Participant  `json:"evaluator,omitempty"`
	Stage        model.Stage         `json:"stage,omitempty"`
	Extra        map[string]string   `json:"extra,omitempty"`
}

type SessionOptions struct {
	Trigger          EvaluationTrigger
	DefaultEvaluator model.Participant
	LockTTL          time.Duration
	LockWait         time.Duration
	SubscriberBuffer int
	Dev              bool
}

func (o SessionOptions) normalized() SessionOptions {
	o.Trigger = o.Trigger.normalized()
	if o.LockTTL <= 0 {
		o.LockTTL = 2 * time.Minute
	}
	if o.LockWait <= 0 {
		o.LockWait = 3 * time.Second
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = 32
	}
	return o
}

type sessionUC struct {
	reg       *registry
	gen       adapter.UtteranceGenerator
	sink      adapter.OutcomeSink
	locker    repository.RoomLocker                // optional
	snapshots repository.SessionSnapshotRepository // optional
	opts      SessionOptions
	log       *zerolog.Logger
}

// NewSessionUseCase wires the controller. locker and snapshots may be nil for
// a single-process deployment; sink defaults to a no-op.
func NewSessionUseCase(
	gen adapter.UtteranceGenerator,
	sink adapter.OutcomeSink,
	locker repository.RoomLocker,
	snapshots repository.SessionSnapshotRepository,
	opts SessionOptions,
	logger *zerolog.Logger,
) *sessionUC {
	if sink == nil {
		sink = adapter.NoopOutcomeSink{}
	}
	l := logger.With().Str("component", "session_uc").Logger()
	return &sessionUC{
		reg:       newRegistry(),
		gen:       gen,
		sink:      sink,
		locker:    locker,
		snapshots: snapshots,
		opts:      opts.normalized(),
		log:       &l,
	}
}

// -----------------------------
// Lifecycle
// -----------------------------

func (u *sessionUC) Start(ctx context.Context, room string, p StartParams) (*model.Session, error) {
	defer logging.TraceDuration(u.log, "SessionUC.Start")()

	room = strings.TrimSpace(room)
	if room == "" {
		return nil, fmt.Errorf("%w: room is required", domain.ErrConfiguration)
	}
	s, err := model.NewSession(uuid.NewString(), room, p.Kind, p.Facilitator, p.Participants, p.Stage)
	if err != nil {
		return nil, err
	}
	if s.Evaluator, err = u.resolveEvaluator(s, p.Evaluator); err != nil {
		return nil, err
	}

	release := u.reg.gate(room)
	defer release()

	if prev, ok := u.reg.detach(room); ok {
		u.teardown(ctx, prev, "superseded")
	}
	token, err := u.acquireRoom(ctx, room)
	if err != nil {
		return nil, err
	}

	ls := &liveSession{s: s, events: newBroadcaster(u.opts.SubscriberBuffer), lockToken: token, extra: p.Extra}
	ls.stage = NewStageEngine(s.Stage, func() { u.onBreakthrough(ctx, ls) })
	ls.touch()
	u.reg.install(room, ls)
	metrics.IncSessionStarted(string(s.Kind))
	metrics.SetLiveSessions(u.reg.len())

	log := u.log.With().Str("room", room).Str("session_id", s.ID).Logger()
	log.Info().Str("kind", string(s.Kind)).Int("respondents", len(s.Participants)).Msg("session started")

	// Opening turn: the facilitator always speaks first.
	ls.mu.Lock()
	s.Clock, _ = s.Clock.Begin()
	turn := s.Clock.NextTurn()
	req := u.request(ls, s.Facilitator, turn)
	ls.mu.Unlock()

	text, genErr := u.generate(ctx, req)

	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		return nil, fmt.Errorf("%w: ended during opening", domain.ErrSessionEnded)
	}
	if genErr != nil {
		ls.mu.Unlock()
		u.reg.detachIf(room, ls)
		u.teardown(ctx, ls, "opening_failed")
		log.Error().Err(genErr).Msg("opening turn failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrOpeningFailed, genErr)
	}
	msg := u.appendMessage(ls, s.Facilitator, turn, text)
	s.Clock = s.Clock.Finish().Tick()
	snap := s.Clone()
	ls.mu.Unlock()

	log.Debug().Str("text", logging.Redact(msg.Text, u.opts.Dev)).Msg("opening appended")
	u.storeSnapshot(ctx, snap)
	return snap, nil
}

// End removes the room's session and tears it down. Ending an absent room is
// a no-op, so End may be called any number of times.
func (u *sessionUC) End(ctx context.Context, room string) error {
	defer logging.TraceDuration(u.log, "SessionUC.End")()
	ls, ok := u.reg.detach(room)
	if !ok {
		return nil
	}
	u.teardown(ctx, ls, "end")
	return nil
}

// EndIdle tears down every session untouched for longer than idle. Sessions
// with a batch in flight are left alone.
func (u *sessionUC) EndIdle(ctx context.Context, idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-idle)
	n := 0
	for room, ls := range u.reg.all() {
		ls.mu.Lock()
		stale := ls.lastTouch.Before(cutoff) && !ls.s.Clock.InFlight
		ls.mu.Unlock()
		if stale && u.reg.detachIf(room, ls) {
			u.teardown(ctx, ls, "idle")
			n++
		}
	}
	return n
}

// Shutdown ends every live session.
func (u *sessionUC) Shutdown(ctx context.Context) {
	for room, ls := range u.reg.all() {
		if u.reg.detachIf(room, ls) {
			u.teardown(ctx, ls, "shutdown")
		}
	}
}

// teardown runs once per live session: it marks it closed, flushes
// subscribers and releases the room lock and snapshot.
func (u *sessionUC) teardown(ctx context.Context, ls *liveSession, reason string) {
	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		return
	}
	ls.closed = true
	s := ls.s
	s.Clock = s.Clock.Finish()
	if s.Status != model.StatusEvaluationFailed {
		u.setStatus(ls, model.StatusEnded)
	}
	ls.events.Close(model.Event{Type: model.EventClosed, SessionID: s.ID, Room: s.Room})
	id, room, token := s.ID, s.Room, ls.lockToken
	ls.mu.Unlock()

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if u.locker != nil && token != "" {
		if err := u.locker.Unlock(bg, room, token); err != nil {
			u.log.Warn().Err(err).Str("room", room).Msg("room unlock failed")
		}
	}
	if u.snapshots != nil {
		if err := u.snapshots.Delete(bg, id); err != nil {
			u.log.Warn().Err(err).Str("session_id", id).Msg("snapshot delete failed")
		}
	}
	metrics.IncSessionEnded(reason)
	metrics.SetLiveSessions(u.reg.len())
	u.log.Info().Str("room", room).Str("session_id", id).Str("reason", reason).Msg("session ended")
}

// acquireRoom takes the cross-process room lock, retrying while a previous
// holder finishes its teardown.
func (u *sessionUC) acquireRoom(ctx context.Context, room string) (string, error) {
	if u.locker == nil {
		return "", nil
	}
	deadline := time.Now().Add(u.opts.LockWait)
	for {
		token, err := u.locker.TryLock(ctx, room, u.opts.LockTTL)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return "", fmt.Errorf("acquire room %s: %w", room, err)
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("room %s: %w", room, domain.ErrConflict)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (u *sessionUC) resolveEvaluator(s *model.Session, ev *model.Participant) (*model.Participant, error) {
	var out model.Participant
	if ev != nil && !ev.IsZero() {
		out = *ev
	} else {
		out = u.opts.DefaultEvaluator
	}
	if out.IsZero() || out.Name == "" {
		return nil, fmt.Errorf("%w: no evaluator configured", domain.ErrConfiguration)
	}
	if out.ID == s.Facilitator.ID {
		return nil, fmt.Errorf("%w: evaluator cannot be the facilitator", domain.ErrConfiguration)
	}
	for _, p := range s.Participants {
		if p.ID == out.ID {
			return nil, fmt.Errorf("%w: evaluator cannot be a respondent", domain.ErrConfiguration)
		}
	}
	out.Role = model.RoleEvaluator
	return &out, nil
}

// -----------------------------
// Turns
// -----------------------------

func (u *sessionUC) Advance(ctx context.Context, room string) (*model.TurnResult, error) {
	defer logging.TraceDuration(u.log, "SessionUC.Advance")()
	ls, err := u.lookup(room)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	if err := u.checkAdvanceable(ls); err != nil {
		ls.mu.Unlock()
		return nil, err
	}
	s := ls.s
	if s.Status == model.StatusAwaitingEvaluation || u.opts.Trigger.Due(s.Kind, s.Clock.Tick()) {
		return u.evaluateLocked(ctx, ls)
	}
	plan, err := PlanTurn(s.Kind, s.Clock, s.Facilitator, s.Participants)
	if err != nil {
		ls.mu.Unlock()
		return nil, err
	}
	plan.Speakers = pendingSpeakers(s, plan)
	s.Clock, _ = s.Clock.Begin()
	ls.touch()
	ls.mu.Unlock()

	return u.runBatch(ctx, ls, plan)
}

func (u *sessionUC) checkAdvanceable(ls *liveSession) error {
	s := ls.s
	reject := func(reason string, err error) error {
		metrics.IncAdvanceRejected(reason)
		return err
	}
	switch {
	case ls.closed:
		return reject("ended", domain.ErrSessionEnded)
	case s.Clock.InFlight:
		return reject("in_flight", domain.ErrTurnInFlight)
	case ls.evaluated:
		return reject("ended", domain.ErrEvaluationDone)
	case s.Status == model.StatusEnded:
		return reject("ended", domain.ErrSessionEnded)
	case s.Status == model.StatusEvaluationFailed:
		return reject("ended", fmt.Errorf("%w: evaluation failed, only the evaluator can be retried", domain.ErrInvalidState))
	case s.Status == model.StatusPaused:
		return reject("paused", domain.ErrSessionPaused)
	}
	return nil
}

// pendingSpeakers drops speakers that already have a message for the
// planned turn, so a batch abandoned by its caller resumes where it stopped.
func pendingSpeakers(s *model.Session, plan TurnPlan) []model.Participant {
	spoke := map[string]bool{}
	for i := len(s.History) - 1; i >= 0 && s.History[i].TurnNumber == plan.Turn; i-- {
		spoke[s.History[i].SpeakerID] = true
	}
	if len(spoke) == 0 {
		return plan.Speakers
	}
	out := make([]model.Participant, 0, len(plan.Speakers))
	for _, sp := range plan.Speakers {
		if !spoke[sp.ID] {
			out = append(out, sp)
		}
	}
	return out
}

// runBatch generates the plan's speakers one after another so every
// respondent sees what was said before it in the same turn. A failing
// speaker is recorded as a fault and skipped. When the caller's context
// ends, the batch stops without counting the turn.
func (u *sessionUC) runBatch(ctx context.Context, ls *liveSession, plan TurnPlan) (*model.TurnResult, error) {
	res := &model.TurnResult{Turn: plan.Turn}

	for _, sp := range plan.Speakers {
		ls.mu.Lock()
		if ls.closed {
			ls.mu.Unlock()
			return nil, u.discarded(ls)
		}
		if ctx.Err() != nil {
			return nil, u.abandonLocked(ctx, ls, plan.Turn)
		}
		req := u.request(ls, sp, plan.Turn)
		ls.mu.Unlock()

		text, err := u.generate(ctx, req)

		ls.mu.Lock()
		if ls.closed {
			ls.mu.Unlock()
			return nil, u.discarded(ls)
		}
		if err != nil && ctx.Err() != nil {
			return nil, u.abandonLocked(ctx, ls, plan.Turn)
		}
		if err != nil {
			f := u.fault(ls, sp, plan.Turn, err)
			res.Faults = append(res.Faults, f)
			ls.mu.Unlock()
			u.log.Warn().Err(err).Str("room", req.Room).Str("speaker_id", sp.ID).Int("turn", plan.Turn).
				Msg("speaker skipped")
			continue
		}
		msg := u.appendMessage(ls, sp, plan.Turn, text)
		res.Messages = append(res.Messages, msg)
		ls.mu.Unlock()
	}

	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		return nil, u.discarded(ls)
	}
	s := ls.s
	s.Clock = s.Clock.Finish().Tick()
	if plan.CompletesRound {
		s.Clock = s.Clock.CompleteRound()
	}
	if s.Status == model.StatusActive && u.opts.Trigger.Due(s.Kind, s.Clock) {
		u.setStatus(ls, model.StatusAwaitingEvaluation)
	}
	ls.touch()
	res.SessionID = s.ID
	res.Round = s.Clock.RoundCount
	res.Status = s.Status
	snap := s.Clone()
	token := ls.lockToken
	ls.mu.Unlock()

	u.storeSnapshot(ctx, snap)
	u.refreshLock(ctx, snap.Room, token)
	return res, nil
}

// abandonLocked is entered with ls.mu held and releases it. Messages already
// appended stay in the transcript; the clock is released without a tick.
func (u *sessionUC) abandonLocked(ctx context.Context, ls *liveSession, turn int) error {
	s := ls.s
	s.Clock = s.Clock.Finish()
	ls.touch()
	snap := s.Clone()
	ls.mu.Unlock()

	metrics.IncAdvanceRejected("cancelled")
	u.log.Warn().Err(ctx.Err()).Str("room", snap.Room).Str("session_id", snap.ID).Int("turn", turn).
		Msg("turn abandoned by caller")
	u.storeSnapshot(context.WithoutCancel(ctx), snap)
	return fmt.Errorf("turn %d abandoned: %w", turn, ctx.Err())
}

func (u *sessionUC) discarded(ls *liveSession) error {
	u.log.Debug().Str("room", ls.s.Room).Str("session_id", ls.s.ID).Msg("in-flight result discarded")
	return fmt.Errorf("%w: ended while a turn was in flight", domain.ErrSessionEnded)
}

// -----------------------------
// Evaluation
// -----------------------------

func (u *sessionUC) RetryEvaluation(ctx context.Context, room string) (*model.TurnResult, error) {
	defer logging.TraceDuration(u.log, "SessionUC.RetryEvaluation")()
	ls, err := u.lookup(room)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	switch {
	case ls.closed:
		ls.mu.Unlock()
		return nil, domain.ErrSessionEnded
	case ls.evaluated:
		ls.mu.Unlock()
		return nil, domain.ErrEvaluationDone
	case ls.s.Clock.InFlight:
		ls.mu.Unlock()
		return nil, domain.ErrTurnInFlight
	case ls.s.Status != model.StatusEvaluationFailed:
		st := ls.s.Status
		ls.mu.Unlock()
		return nil, fmt.Errorf("%w: evaluator retry needs %s, session is %s", domain.ErrInvalidState, model.StatusEvaluationFailed, st)
	}
	return u.evaluateLocked(ctx, ls)
}

// evaluateLocked is entered with ls.mu held and releases it. The evaluator is
// called at most once per invocation; a success is final for the session.
func (u *sessionUC) evaluateLocked(ctx context.Context, ls *liveSession) (*model.TurnResult, error) {
	s := ls.s
	if err := ctx.Err(); err != nil {
		ls.mu.Unlock()
		return nil, fmt.Errorf("evaluation not started: %w", err)
	}
	prev := s.Status
	s.Clock, _ = s.Clock.Begin()
	u.setStatus(ls, model.StatusAwaitingEvaluation)
	if ls.evalTurn == 0 {
		ls.evalTurn = s.Clock.NextTurn()
	}
	turn := ls.evalTurn
	ev := *s.Evaluator
	req := u.request(ls, ev, turn)
	ls.touch()
	ls.mu.Unlock()

	text, err := u.generate(ctx, req)

	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		metrics.IncEvaluation("discarded")
		return nil, u.discarded(ls)
	}
	s.Clock = s.Clock.Finish()
	if err != nil && ctx.Err() != nil {
		// The caller gave up; the evaluator stays due.
		if prev == model.StatusEvaluationFailed {
			u.setStatus(ls, prev)
		}
		snap := s.Clone()
		ls.mu.Unlock()

		metrics.IncEvaluation("cancelled")
		u.log.Warn().Err(ctx.Err()).Str("room", snap.Room).Str("session_id", snap.ID).Msg("evaluation abandoned by caller")
		u.storeSnapshot(context.WithoutCancel(ctx), snap)
		return nil, fmt.Errorf("evaluation abandoned: %w", ctx.Err())
	}
	if err != nil {
		u.fault(ls, ev, turn, err)
		u.setStatus(ls, model.StatusEvaluationFailed)
		snap := s.Clone()
		ls.mu.Unlock()

		metrics.IncEvaluation("failed")
		u.log.Error().Err(err).Str("room", snap.Room).Str("session_id", snap.ID).Msg("evaluation failed")
		u.storeSnapshot(ctx, snap)
		return nil, fmt.Errorf("%w: %w", domain.ErrEvaluationFailed, err)
	}

	msg := u.appendMessage(ls, ev, turn, text)
	s.Clock = s.Clock.Tick()
	commentary, verdict := ParseRuling(text)
	ruling := model.EvaluationRuling{
		SessionID:   s.ID,
		Room:        s.Room,
		EvaluatorID: ev.ID,
		Turn:        turn,
		Commentary:  commentary,
		Verdict:     verdict,
		CreatedAt:   msg.Timestamp,
	}
	s.Ruling = &ruling
	ls.evaluated = true
	ls.events.Publish(model.Event{Type: model.EventRuling, SessionID: s.ID, Room: s.Room, Ruling: &ruling})
	u.setStatus(ls, model.StatusEnded)
	ls.events.Close(model.Event{Type: model.EventClosed, SessionID: s.ID, Room: s.Room})

	res := &model.TurnResult{
		SessionID: s.ID,
		Turn:      turn,
		Round:     s.Clock.RoundCount,
		Messages:  []model.Message{msg},
		Ruling:    &ruling,
		Status:    s.Status,
	}
	snap := s.Clone()
	ls.mu.Unlock()

	metrics.IncEvaluation("ok")
	u.log.Info().Str("room", snap.Room).Str("session_id", snap.ID).
		Str("risk", verdict.Risk).Str("quality", verdict.Quality).Int("score", verdict.Score).
		Msg("evaluation ruling produced")
	if err := u.sink.DeliverRuling(ctx, ruling); err != nil {
		u.log.Error().Err(err).Str("session_id", snap.ID).Msg("ruling delivery failed")
	}
	u.storeSnapshot(ctx, snap)
	return res, nil
}

// -----------------------------
// Pause / stage / reads
// -----------------------------

func (u *sessionUC) Pause(ctx context.Context, room string) (*model.Session, error) {
	return u.setPaused(ctx, room, true)
}

func (u *sessionUC) Resume(ctx context.Context, room string) (*model.Session, error) {
	return u.setPaused(ctx, room, false)
}

// setPaused flips active <-> paused. Asking for the current state is a no-op.
// A batch already in flight is allowed to finish.
func (u *sessionUC) setPaused(ctx context.Context, room string, paused bool) (*model.Session, error) {
	ls, err := u.lookup(room)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	s := ls.s
	from, to := model.StatusActive, model.StatusPaused
	if !paused {
		from, to = to, from
	}
	switch {
	case ls.closed:
		ls.mu.Unlock()
		return nil, domain.ErrSessionEnded
	case s.Status == to:
	case s.Status == from:
		s.Clock = s.Clock.WithPaused(paused)
		u.setStatus(ls, to)
		ls.touch()
	default:
		st := s.Status
		ls.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot move from %s to %s", domain.ErrInvalidState, st, to)
	}
	snap := s.Clone()
	ls.mu.Unlock()

	u.storeSnapshot(ctx, snap)
	return snap, nil
}

// AdvanceStage moves the narrative stage forward. Reaching breakthrough
// raises the breakthrough event once; later calls are no-ops.
func (u *sessionUC) AdvanceStage(ctx context.Context, room string) (model.Stage, error) {
	ls, err := u.lookup(room)
	if err != nil {
		return "", err
	}
	ls.mu.Lock()
	if ls.closed || ls.s.Status.Closed() {
		ls.mu.Unlock()
		return "", domain.ErrSessionEnded
	}
	ls.mu.Unlock()

	stage, _ := ls.stage.Advance()

	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		return "", domain.ErrSessionEnded
	}
	u.mirrorStage(ls, stage)
	ls.touch()
	snap := ls.s.Clone()
	ls.mu.Unlock()

	u.storeSnapshot(ctx, snap)
	return stage, nil
}

// onBreakthrough is the stage engine hook. It runs without the engine lock.
// A session torn down after AdvanceStage checked it delivers nothing.
func (u *sessionUC) onBreakthrough(ctx context.Context, ls *liveSession) {
	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		u.log.Debug().Str("room", ls.s.Room).Str("session_id", ls.s.ID).Msg("breakthrough after end ignored")
		return
	}
	s := ls.s
	u.mirrorStage(ls, model.StageBreakthrough)
	ev := model.BreakthroughEvent{SessionID: s.ID, Room: s.Room, Turn: s.Clock.TurnCount, At: time.Now()}
	ls.events.Publish(model.Event{Type: model.EventBreakthrough, SessionID: s.ID, Room: s.Room, Stage: s.Stage, At: ev.At})
	ls.mu.Unlock()

	metrics.IncBreakthrough()
	u.log.Info().Str("room", ev.Room).Str("session_id", ev.SessionID).Msg("breakthrough reached")
	if err := u.sink.DeliverBreakthrough(context.WithoutCancel(ctx), ev); err != nil {
		u.log.Error().Err(err).Str("session_id", ev.SessionID).Msg("breakthrough delivery failed")
	}
}

func (u *sessionUC) mirrorStage(ls *liveSession, stage model.Stage) {
	if ls.s.Stage == stage {
		return
	}
	ls.s.Stage = stage
	ls.events.Publish(model.Event{Type: model.EventStage, SessionID: ls.s.ID, Room: ls.s.Room, Stage: stage})
}

func (u *sessionUC) Get(ctx context.Context, room string) (*model.Session, error) {
	ls, err := u.lookup(room)
	if err != nil {
		return nil, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.s.Clone(), nil
}

func (u *sessionUC) Subscribe(ctx context.Context, room string) (<-chan model.Event, func(), error) {
	ls, err := u.lookup(room)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := ls.events.Subscribe()
	return ch, cancel, nil
}

// -----------------------------
// helpers
// -----------------------------

func (u *sessionUC) lookup(room string) (*liveSession, error) {
	ls, ok := u.reg.get(room)
	if !ok {
		return nil, fmt.Errorf("%w: no session in room %q", domain.ErrNotFound, room)
	}
	return ls, nil
}

// request builds a generator request from the current transcript. Caller
// holds ls.mu.
func (u *sessionUC) request(ls *liveSession, sp model.Participant, turn int) adapter.GenerateRequest {
	s := ls.s
	return adapter.GenerateRequest{
		SessionID: s.ID,
		Room:      s.Room,
		Kind:      s.Kind,
		Speaker:   sp,
		Role:      sp.Role,
		Stage:     s.Stage,
		Turn:      turn,
		History:   append([]model.Message(nil), s.History...),
		Roster:    s.Respondents(),
		Extra:     ls.extra,
	}
}

func (u *sessionUC) generate(ctx context.Context, req adapter.GenerateRequest) (string, error) {
	start := time.Now()
	text, err := u.gen.Generate(ctx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty utterance")
	}
	metrics.ObserveGeneration(string(req.Role), err == nil, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %s %s: %w", domain.ErrGeneration, req.Role, req.Speaker.ID, err)
	}
	return strings.TrimSpace(text), nil
}

// appendMessage adds an utterance and publishes it. Caller holds ls.mu.
func (u *sessionUC) appendMessage(ls *liveSession, sp model.Participant, turn int, text string) model.Message {
	s := ls.s
	msg := model.Message{
		ID:          ulid.Make().String(),
		SpeakerID:   sp.ID,
		SpeakerName: sp.Name,
		SpeakerRole: sp.Role,
		Text:        text,
		TurnNumber:  turn,
		Timestamp:   time.Now(),
	}
	s.Append(msg)
	msg = s.History[len(s.History)-1]
	ls.events.Publish(model.Event{Type: model.EventMessage, SessionID: s.ID, Room: s.Room, Message: &msg})
	metrics.IncTurn(string(s.Kind), string(sp.Role))
	return msg
}

// fault records and publishes a skipped speaker. Caller holds ls.mu.
func (u *sessionUC) fault(ls *liveSession, sp model.Participant, turn int, err error) domain.Fault {
	f := domain.Fault{
		SessionID: ls.s.ID,
		SpeakerID: sp.ID,
		Role:      string(sp.Role),
		Turn:      turn,
		Reason:    err.Error(),
		At:        time.Now(),
	}
	ls.events.Publish(model.Event{Type: model.EventFault, SessionID: ls.s.ID, Room: ls.s.Room, Fault: &f})
	metrics.IncSpeakerFault(string(sp.Role))
	return f
}

// setStatus changes status and publishes it when it differs. Caller holds ls.mu.
func (u *sessionUC) setStatus(ls *liveSession, st model.SessionStatus) {
	if ls.s.Status == st {
		return
	}
	ls.s.Status = st
	ls.s.UpdatedAt = time.Now()
	ls.events.Publish(model.Event{Type: model.EventStatus, SessionID: ls.s.ID, Room: ls.s.Room, Status: st})
}

func (u *sessionUC) storeSnapshot(ctx context.Context, s *model.Session) {
	if u.snapshots == nil {
		return
	}
	if err := u.snapshots.Store(ctx, s); err != nil {
		u.log.Warn().Err(err).Str("session_id", s.ID).Msg("snapshot store failed")
	}
}

func (u *sessionUC) refreshLock(ctx context.Context, room, token string) {
	if u.locker == nil || token == "" {
		return
	}
	if err := u.locker.Refresh(ctx, room, token, u.opts.LockTTL); err != nil {
		u.log.Warn().Err(err).Str("room", room).Msg("room lock refresh failed")
	}
}
