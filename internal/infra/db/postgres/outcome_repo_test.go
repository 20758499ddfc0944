//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dialogue-orchestrator/internal/domain"
	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/domain/ports/repository"
)

func TestOutcomeRepo_Integration(t *testing.T) {
	ctx := context.Background()
	repo := NewOutcomeRepo(testPool)

	t.Run("should save a ruling once and read it back", func(t *testing.T) {
		cleanup(t)
		ru := &model.EvaluationRuling{
			SessionID: "sess-1", Room: "room-a", EvaluatorID: "judge", Turn: 8,
			Commentary: "Solid work.",
			Verdict:    model.Verdict{Risk: "low", Quality: "good", Score: 7},
			CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
		}
		require.NoError(t, repo.SaveRuling(ctx, nil, ru))

		dup := *ru
		dup.Verdict.Score = 1
		require.NoError(t, repo.SaveRuling(ctx, nil, &dup))

		got, err := repo.FindRulingBySession(ctx, nil, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, 7, got.Verdict.Score)
		assert.Equal(t, "room-a", got.Room)
		assert.WithinDuration(t, ru.CreatedAt, got.CreatedAt, time.Second)
	})

	t.Run("should return not found for unknown session", func(t *testing.T) {
		cleanup(t)
		_, err := repo.FindRulingBySession(ctx, nil, "missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("should count repeated hand-offs in the delivery journal", func(t *testing.T) {
		cleanup(t)
		for want := 1; want <= 2; want++ {
			got, err := repo.MarkDelivered(ctx, nil, "sess-3", "ruling")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		got, err := repo.MarkDelivered(ctx, nil, "sess-3", "breakthrough")
		require.NoError(t, err)
		assert.Equal(t, 1, got)
	})

	t.Run("should roll back the outbox row and journal together", func(t *testing.T) {
		cleanup(t)
		tm := NewTxManager(testPool)
		boom := errors.New("boom")
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := repo.SaveBreakthrough(ctx, tx, &model.BreakthroughEvent{SessionID: "sess-2", Room: "r", Turn: 3}); err != nil {
				return err
			}
			if _, err := repo.MarkDelivered(ctx, tx, "sess-2", "breakthrough"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		var n int
		require.NoError(t, testPool.QueryRow(ctx, `SELECT count(*) FROM session_breakthroughs`).Scan(&n))
		assert.Zero(t, n)
		require.NoError(t, testPool.QueryRow(ctx, `SELECT count(*) FROM outcome_deliveries`).Scan(&n))
		assert.Zero(t, n)
	})
}
