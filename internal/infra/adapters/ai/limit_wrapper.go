package ai

import (
	"context"

	"dialogue-orchestrator/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

// limitedAI caps concurrent Chat calls across every session in the process.
type limitedAI struct {
	inner adapter.AIServiceAdapter
	sem   chan struct{}
}

func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int) adapter.AIServiceAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) Provider() string { return l.inner.Provider() }

func (l *limitedAI) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}

func (l *limitedAI) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatReply, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return adapter.ChatReply{}, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Chat(ctx, req)
}
