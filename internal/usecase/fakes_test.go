package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dialogue-orchestrator/internal/domain"
	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/domain/ports/adapter"
)

func silentLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// scriptGen answers every request with "<speaker>@<turn>". Speakers listed in
// fail return an error; when gate is set, each call blocks until it receives.
// Like the provider SDKs it fails with ctx.Err() once the context is done.
type scriptGen struct {
	mu       sync.Mutex
	calls    []adapter.GenerateRequest
	fail     map[string]error
	evalText string
	gate     chan struct{}
	entered  chan struct{}
	onCall   func(adapter.GenerateRequest)
}

func newScriptGen() *scriptGen {
	return &scriptGen{
		fail:     map[string]error{},
		evalText: `Solid session. {"risk":"low","quality":"good","score":8}`,
	}
}

func (g *scriptGen) Generate(ctx context.Context, req adapter.GenerateRequest) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	err := g.fail[req.Speaker.ID]
	gate, entered, onCall := g.gate, g.entered, g.onCall
	g.mu.Unlock()

	if onCall != nil {
		onCall(req)
	}
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", err
	}
	if req.Role == model.RoleEvaluator {
		return g.evalText, nil
	}
	return fmt.Sprintf("%s@%d", req.Speaker.ID, req.Turn), nil
}

func (g *scriptGen) setFail(id string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.fail, id)
		return
	}
	g.fail[id] = err
}

func (g *scriptGen) setOnCall(fn func(adapter.GenerateRequest)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onCall = fn
}

func (g *scriptGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// block makes subsequent calls wait on the returned release channel and
// report entry on entered.
func (g *scriptGen) block() (release chan struct{}, entered chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate = make(chan struct{})
	g.entered = make(chan struct{}, 16)
	return g.gate, g.entered
}

func (g *scriptGen) unblock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate, g.entered = nil, nil
}

func (g *scriptGen) callsFor(role model.Role) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Role == role {
			n++
		}
	}
	return n
}

func (g *scriptGen) last() adapter.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[len(g.calls)-1]
}

type recordingSink struct {
	mu            sync.Mutex
	rulings       []model.EvaluationRuling
	breakthroughs []model.BreakthroughEvent
}

func (s *recordingSink) DeliverRuling(_ context.Context, r model.EvaluationRuling) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rulings = append(s.rulings, r)
	return nil
}

func (s *recordingSink) DeliverBreakthrough(_ context.Context, ev model.BreakthroughEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakthroughs = append(s.breakthroughs, ev)
	return nil
}

func (s *recordingSink) counts() (rulings, breakthroughs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rulings), len(s.breakthroughs)
}

// memLocker is an in-process RoomLocker.
type memLocker struct {
	mu    sync.Mutex
	held  map[string]string
	seq   int
	locks int
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]string{}} }

func (l *memLocker) TryLock(_ context.Context, room string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[room]; ok {
		return "", domain.ErrConflict
	}
	l.seq++
	tok := fmt.Sprintf("tok-%d", l.seq)
	l.held[room] = tok
	l.locks++
	return tok, nil
}

func (l *memLocker) Refresh(_ context.Context, room, token string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[room] != token {
		return errors.New("lost")
	}
	return nil
}

func (l *memLocker) Unlock(_ context.Context, room, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[room] == token {
		delete(l.held, room)
	}
	return nil
}

func (l *memLocker) isHeld(room string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[room]
	return ok
}

type memSnapshots struct {
	mu   sync.Mutex
	byID map[string]*model.Session
}

func newMemSnapshots() *memSnapshots { return &memSnapshots{byID: map[string]*model.Session{}} }

func (m *memSnapshots) Store(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = s.Clone()
	return nil
}

func (m *memSnapshots) Get(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *memSnapshots) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *memSnapshots) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok
}

// ---- fixtures ----

var (
	facilitator = model.Participant{ID: "fac", Name: "Dr. Reed"}
	evaluator   = model.Participant{ID: "judge", Name: "Judge"}
)

func respondents(n int) []model.Participant {
	out := make([]model.Participant, n)
	for i := range out {
		out[i] = model.Participant{ID: fmt.Sprintf("r%d", i+1), Name: fmt.Sprintf("Resp %d", i+1)}
	}
	return out
}

func individualParams() StartParams {
	return StartParams{Kind: model.KindIndividual, Facilitator: facilitator, Participants: respondents(1)}
}

func groupParams(n int) StartParams {
	return StartParams{Kind: model.KindGroup, Facilitator: facilitator, Participants: respondents(n)}
}

type harness struct {
	uc    *sessionUC
	gen   *scriptGen
	sink  *recordingSink
	lock  *memLocker
	snaps *memSnapshots
}

func newHarness() *harness {
	h := &harness{gen: newScriptGen(), sink: &recordingSink{}, lock: newMemLocker(), snaps: newMemSnapshots()}
	h.uc = NewSessionUseCase(h.gen, h.sink, h.lock, h.snaps, SessionOptions{
		Trigger:          DefaultEvaluationTrigger(),
		DefaultEvaluator: evaluator,
		LockWait:         200 * time.Millisecond,
		SubscriberBuffer: 256,
	}, silentLogger())
	return h
}
