package repository

import (
	"context"
	"time"
)

// RoomLocker guards "one live session per room" across processes. TryLock
// returns domain.ErrConflict when another holder owns the room.
type RoomLocker interface {
	TryLock(ctx context.Context, room string, ttl time.Duration) (token string, err error)
	Refresh(ctx context.Context, room, token string, ttl time.Duration) error
	Unlock(ctx context.Context, room, token string) error
}
