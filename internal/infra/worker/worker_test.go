package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestPool_RunsTasksAndDrainsOnStop(t *testing.T) {
	p := NewPool(2, 16, testLogger())
	p.Start(context.Background())

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		if err := p.Submit(func(context.Context) error {
			mu.Lock()
			ran++
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	p.Stop()
	p.Stop()

	if ran != 10 {
		t.Fatalf("ran %d tasks, want 10", ran)
	}
	if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, ErrPoolStopped) {
		t.Fatalf("submit after stop: %v", err)
	}
}

func TestPool_QueueFull(t *testing.T) {
	p := NewPool(1, 1, testLogger()) // not started: nothing drains the queue
	if err := p.Submit(func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestPool_SurvivesPanic(t *testing.T) {
	p := NewPool(1, 4, testLogger())
	p.Start(context.Background())
	done := make(chan struct{})
	_ = p.Submit(func(context.Context) error { panic("boom") })
	_ = p.Submit(func(context.Context) error { close(done); return nil })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after a panicking task")
	}
	p.Stop()
}

type memOutcomes struct {
	mu            sync.Mutex
	rulings       map[string]model.EvaluationRuling
	breakthroughs map[string]model.BreakthroughEvent
	deliveries    map[string]int
	txs           []repository.Tx
	err           error
	markErr       error
}

func newMemOutcomes() *memOutcomes {
	return &memOutcomes{
		rulings:       map[string]model.EvaluationRuling{},
		breakthroughs: map[string]model.BreakthroughEvent{},
		deliveries:    map[string]int{},
	}
}

func (m *memOutcomes) SaveRuling(_ context.Context, tx repository.Tx, r *model.EvaluationRuling) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.txs = append(m.txs, tx)
	m.rulings[r.SessionID] = *r
	return nil
}

func (m *memOutcomes) SaveBreakthrough(_ context.Context, tx repository.Tx, ev *model.BreakthroughEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.txs = append(m.txs, tx)
	m.breakthroughs[ev.SessionID] = *ev
	return nil
}

func (m *memOutcomes) FindRulingBySession(_ context.Context, _ repository.Tx, id string) (*model.EvaluationRuling, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rulings[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &r, nil
}

func (m *memOutcomes) MarkDelivered(_ context.Context, tx repository.Tx, sessionID, kind string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return 0, m.markErr
	}
	m.txs = append(m.txs, tx)
	m.deliveries[kind+"/"+sessionID]++
	return m.deliveries[kind+"/"+sessionID], nil
}

func (m *memOutcomes) delivered(kind, sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deliveries[kind+"/"+sessionID]
}

// memTxManager runs fn against repo and undoes its writes when fn fails.
type memTxManager struct {
	mu         sync.Mutex
	repo       *memOutcomes
	committed  int
	rolledBack int
}

type memTx struct{}

func (m *memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.repo.mu.Lock()
	rulings := make(map[string]model.EvaluationRuling, len(m.repo.rulings))
	for k, v := range m.repo.rulings {
		rulings[k] = v
	}
	breakthroughs := make(map[string]model.BreakthroughEvent, len(m.repo.breakthroughs))
	for k, v := range m.repo.breakthroughs {
		breakthroughs[k] = v
	}
	deliveries := make(map[string]int, len(m.repo.deliveries))
	for k, v := range m.repo.deliveries {
		deliveries[k] = v
	}
	m.repo.mu.Unlock()

	err := fn(ctx, memTx{})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.repo.mu.Lock()
		m.repo.rulings, m.repo.breakthroughs, m.repo.deliveries = rulings, breakthroughs, deliveries
		m.repo.mu.Unlock()
		m.rolledBack++
		return err
	}
	m.committed++
	return nil
}

func TestOutcomeDispatcher_ViaPool(t *testing.T) {
	repo := newMemOutcomes()
	p := NewPool(1, 4, testLogger())
	p.Start(context.Background())
	d := NewOutcomeDispatcher(p, repo, nil, testLogger())

	ruling := model.EvaluationRuling{SessionID: "s1", Verdict: model.Verdict{Risk: "low", Quality: "good", Score: 8}}
	if err := d.DeliverRuling(context.Background(), ruling); err != nil {
		t.Fatal(err)
	}
	if err := d.DeliverBreakthrough(context.Background(), model.BreakthroughEvent{SessionID: "s1", Turn: 4}); err != nil {
		t.Fatal(err)
	}
	p.Stop()

	got, err := repo.FindRulingBySession(context.Background(), nil, "s1")
	if err != nil || got.Verdict.Score != 8 {
		t.Fatalf("ruling not stored: %+v %v", got, err)
	}
	if repo.breakthroughs["s1"].Turn != 4 {
		t.Fatal("breakthrough not stored")
	}
}

func TestOutcomeDispatcher_InlineWhenPoolRefuses(t *testing.T) {
	repo := newMemOutcomes()
	p := NewPool(1, 1, testLogger())
	p.Stop()
	d := NewOutcomeDispatcher(p, repo, nil, testLogger())

	if err := d.DeliverRuling(context.Background(), model.EvaluationRuling{SessionID: "s2"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := repo.rulings["s2"]; !ok {
		t.Fatal("inline delivery did not write")
	}

	repo.err = errors.New("db down")
	if err := d.DeliverRuling(context.Background(), model.EvaluationRuling{SessionID: "s3"}); err == nil {
		t.Fatal("inline failure should surface to the caller")
	}
}

func TestOutcomeDispatcher_NilRepoOnlyLogs(t *testing.T) {
	d := NewOutcomeDispatcher(nil, nil, nil, testLogger())
	if err := d.DeliverBreakthrough(context.Background(), model.BreakthroughEvent{SessionID: "s"}); err != nil {
		t.Fatal(err)
	}
}

func TestOutcomeDispatcher_WritesOutboxAndJournalInOneTx(t *testing.T) {
	repo := newMemOutcomes()
	tm := &memTxManager{repo: repo}
	p := NewPool(1, 4, testLogger())
	p.Start(context.Background())
	d := NewOutcomeDispatcher(p, repo, tm, testLogger())

	ruling := model.EvaluationRuling{SessionID: "s1", Verdict: model.Verdict{Score: 5}}
	if err := d.DeliverRuling(context.Background(), ruling); err != nil {
		t.Fatal(err)
	}
	if err := d.DeliverRuling(context.Background(), ruling); err != nil {
		t.Fatal(err)
	}
	p.Stop()

	if tm.committed != 2 || tm.rolledBack != 0 {
		t.Fatalf("committed=%d rolledBack=%d", tm.committed, tm.rolledBack)
	}
	if n := repo.delivered("ruling", "s1"); n != 2 {
		t.Fatalf("journal attempts = %d, want 2", n)
	}
	for i, tx := range repo.txs {
		if _, ok := tx.(memTx); !ok {
			t.Fatalf("write %d ran outside the transaction: %T", i, tx)
		}
	}
}

func TestOutcomeDispatcher_JournalFailureRollsBackOutbox(t *testing.T) {
	repo := newMemOutcomes()
	repo.markErr = errors.New("journal unavailable")
	tm := &memTxManager{repo: repo}
	d := NewOutcomeDispatcher(nil, repo, tm, testLogger())

	err := d.DeliverBreakthrough(context.Background(), model.BreakthroughEvent{SessionID: "s2", Turn: 3})
	if !errors.Is(err, repo.markErr) {
		t.Fatalf("err = %v, want journal error", err)
	}
	if _, ok := repo.breakthroughs["s2"]; ok {
		t.Fatal("breakthrough kept after the transaction failed")
	}
	if tm.rolledBack != 1 {
		t.Fatalf("rolledBack = %d, want 1", tm.rolledBack)
	}
}
