package adapter

import (
	"context"

	"dialogue-orchestrator/internal/domain/model"
)

// OutcomeSink is the reward/consequence consumer. The orchestrator hands it
// plain data and never interprets the result.
type OutcomeSink interface {
	DeliverRuling(ctx context.Context, ruling model.EvaluationRuling) error
	DeliverBreakthrough(ctx context.Context, ev model.BreakthroughEvent) error
}

// NoopOutcomeSink discards everything.
type NoopOutcomeSink struct{}

func (NoopOutcomeSink) DeliverRuling(context.Context, model.EvaluationRuling) error { return nil }
func (NoopOutcomeSink) DeliverBreakthrough(context.Context, model.BreakthroughEvent) error {
	return nil
}
