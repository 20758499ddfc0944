package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dialogue-orchestrator/internal/domain"
	"dialogue-orchestrator/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ repository.RoomLocker = (*RoomLocker)(nil)

// ErrLockLost is returned by Refresh when the token no longer owns the room.
var ErrLockLost = errors.New("room lock is no longer held")

// RoomLocker enforces one live session per room across processes with a
// SETNX token. Unlock and Refresh only act when the caller still owns it.
type RoomLocker struct {
	cli   *redis.Client
	tries int
	pause time.Duration
}

func NewRoomLocker(c *Client) *RoomLocker {
	return &RoomLocker{cli: c.cli, tries: 5, pause: 50 * time.Millisecond}
}

func RoomLockKey(room string) string { return "room_lock:" + room }

func (l *RoomLocker) TryLock(ctx context.Context, room string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	key := RoomLockKey(room)
	var lastErr error
	for i := 0; i < l.tries; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err == nil && ok {
			return token, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.pause):
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("lock room %s: %w", room, lastErr)
	}
	return "", domain.ErrConflict
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

var luaRefresh = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

func (l *RoomLocker) Refresh(ctx context.Context, room, token string, ttl time.Duration) error {
	n, err := luaRefresh.Run(ctx, l.cli, []string{RoomLockKey(room)}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *RoomLocker) Unlock(ctx context.Context, room, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{RoomLockKey(room)}, token).Result()
	return err
}
