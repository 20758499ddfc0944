package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/domain/ports/adapter"
	"dialogue-orchestrator/internal/domain/ports/repository"
	"dialogue-orchestrator/internal/infra/metrics"
)

var _ adapter.OutcomeSink = (*OutcomeDispatcher)(nil)

// OutcomeDispatcher hands rulings and breakthrough events to the reward
// consumer's outbox without holding up the session. Writes run on the pool;
// when the pool refuses work they run inline. Each outbox row and its
// delivery journal entry commit together through tm. A nil repo only logs.
type OutcomeDispatcher struct {
	pool    *Pool
	repo    repository.OutcomeRepository
	tm      repository.TransactionManager
	timeout time.Duration
	log     *zerolog.Logger
}

func NewOutcomeDispatcher(pool *Pool, repo repository.OutcomeRepository, tm repository.TransactionManager, logger *zerolog.Logger) *OutcomeDispatcher {
	l := logger.With().Str("component", "outcome_dispatcher").Logger()
	return &OutcomeDispatcher{pool: pool, repo: repo, tm: tm, timeout: 10 * time.Second, log: &l}
}

func (d *OutcomeDispatcher) DeliverRuling(ctx context.Context, r model.EvaluationRuling) error {
	return d.dispatch(ctx, "ruling", r.SessionID, func(ctx context.Context) error {
		d.log.Info().Str("session_id", r.SessionID).Str("room", r.Room).
			Str("risk", r.Verdict.Risk).Str("quality", r.Verdict.Quality).Int("score", r.Verdict.Score).
			Msg("ruling delivered")
		return d.record(ctx, "ruling", r.SessionID, func(ctx context.Context, tx repository.Tx) error {
			return d.repo.SaveRuling(ctx, tx, &r)
		})
	})
}

func (d *OutcomeDispatcher) DeliverBreakthrough(ctx context.Context, ev model.BreakthroughEvent) error {
	return d.dispatch(ctx, "breakthrough", ev.SessionID, func(ctx context.Context) error {
		d.log.Info().Str("session_id", ev.SessionID).Str("room", ev.Room).Int("turn", ev.Turn).
			Msg("breakthrough delivered")
		return d.record(ctx, "breakthrough", ev.SessionID, func(ctx context.Context, tx repository.Tx) error {
			return d.repo.SaveBreakthrough(ctx, tx, &ev)
		})
	})
}

// record writes the outbox row and journals the hand-off in one transaction.
// Without a transaction manager both statements run on the pool.
func (d *OutcomeDispatcher) record(ctx context.Context, kind, sessionID string, save func(context.Context, repository.Tx) error) error {
	if d.repo == nil {
		return nil
	}
	write := func(ctx context.Context, tx repository.Tx) error {
		if err := save(ctx, tx); err != nil {
			return err
		}
		attempts, err := d.repo.MarkDelivered(ctx, tx, sessionID, kind)
		if err != nil {
			return err
		}
		if attempts > 1 {
			d.log.Warn().Str("kind", kind).Str("session_id", sessionID).Int("attempts", attempts).Msg("outcome handed off again")
		}
		return nil
	}
	if d.tm == nil {
		return write(ctx, repository.NoTX)
	}
	return d.tm.WithTx(ctx, pgx.TxOptions{}, write)
}

func (d *OutcomeDispatcher) dispatch(ctx context.Context, kind, sessionID string, write func(context.Context) error) error {
	task := func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := write(tctx); err != nil {
			metrics.IncOutcomeDelivery(kind, "failed")
			d.log.Error().Err(err).Str("kind", kind).Str("session_id", sessionID).Msg("outcome write failed")
			return err
		}
		metrics.IncOutcomeDelivery(kind, "ok")
		return nil
	}

	if d.pool != nil {
		err := d.pool.Submit(task)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrQueueFull) && !errors.Is(err, ErrPoolStopped) {
			return err
		}
		d.log.Warn().Err(err).Str("kind", kind).Msg("delivering outcome inline")
	}
	metrics.IncOutcomeDelivery(kind, "inline")
	return task(context.WithoutCancel(ctx))
}
