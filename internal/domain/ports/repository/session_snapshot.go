package repository

import (
	"context"

	"dialogue-orchestrator/internal/domain/model"
)

// SessionSnapshotRepository keeps a short-lived read model of live sessions
// for other processes. Snapshots are removed when the session ends.
type SessionSnapshotRepository interface {
	Store(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	Delete(ctx context.Context, sessionID string) error
}
