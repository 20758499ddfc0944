package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"dialogue-orchestrator/internal/domain"
	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/domain/ports/repository"
)

var _ repository.OutcomeRepository = (*outcomeRepo)(nil)

type outcomeRepo struct {
	pool *pgxpool.Pool
}

func NewOutcomeRepo(pool *pgxpool.Pool) repository.OutcomeRepository {
	return &outcomeRepo{pool: pool}
}

// SaveRuling writes at most one ruling per session; a repeat delivery is a no-op.
func (r *outcomeRepo) SaveRuling(ctx context.Context, tx repository.Tx, ru *model.EvaluationRuling) error {
	if ru == nil || ru.SessionID == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO session_rulings (session_id, room, evaluator_id, turn, commentary, risk, quality, score, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (session_id) DO NOTHING`
	created := ru.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		ru.SessionID, ru.Room, ru.EvaluatorID, ru.Turn, ru.Commentary,
		ru.Verdict.Risk, ru.Verdict.Quality, ru.Verdict.Score, created)
	return err
}

func (r *outcomeRepo) SaveBreakthrough(ctx context.Context, tx repository.Tx, ev *model.BreakthroughEvent) error {
	if ev == nil || ev.SessionID == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO session_breakthroughs (session_id, room, turn, reached_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (session_id) DO NOTHING`
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := execSQL(ctx, r.pool, tx, q, ev.SessionID, ev.Room, ev.Turn, at)
	return err
}

func (r *outcomeRepo) FindRulingBySession(ctx context.Context, tx repository.Tx, sessionID string) (*model.EvaluationRuling, error) {
	const q = `
SELECT session_id, room, evaluator_id, turn, commentary, risk, quality, score, created_at
FROM session_rulings WHERE session_id = $1`
	row, err := pickRow(ctx, r.pool, tx, q, sessionID)
	if err != nil {
		return nil, err
	}
	var ru model.EvaluationRuling
	if err := row.Scan(&ru.SessionID, &ru.Room, &ru.EvaluatorID, &ru.Turn, &ru.Commentary,
		&ru.Verdict.Risk, &ru.Verdict.Quality, &ru.Verdict.Score, &ru.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &ru, nil
}

func (r *outcomeRepo) MarkDelivered(ctx context.Context, tx repository.Tx, sessionID, kind string) (int, error) {
	if sessionID == "" || kind == "" {
		return 0, domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO outcome_deliveries (session_id, kind)
VALUES ($1, $2)
ON CONFLICT (session_id, kind) DO UPDATE
SET attempts = outcome_deliveries.attempts + 1, last_at = now()
RETURNING attempts`
	row, err := pickRow(ctx, r.pool, tx, q, sessionID, kind)
	if err != nil {
		return 0, err
	}
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return attempts, nil
}
