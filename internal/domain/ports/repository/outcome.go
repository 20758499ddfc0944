package repository

import (
	"context"

	"dialogue-orchestrator/internal/domain/model"
)

// -----------------------------
// Session outcomes (outbox for the reward consumer)
// -----------------------------

type OutcomeRepository interface {
	SaveRuling(ctx context.Context, tx Tx, ruling *model.EvaluationRuling) error
	SaveBreakthrough(ctx context.Context, tx Tx, ev *model.BreakthroughEvent) error
	FindRulingBySession(ctx context.Context, tx Tx, sessionID string) (*model.EvaluationRuling, error)
	// MarkDelivered journals a hand-off of kind for the session and returns
	// how many times it has been handed off.
	MarkDelivered(ctx context.Context, tx Tx, sessionID, kind string) (int, error)
}
