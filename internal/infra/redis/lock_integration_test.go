//go:build integration

package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"dialogue-orchestrator/internal/config"
	"dialogue-orchestrator/internal/domain"
)

func TestRoomLocker_Integration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewClient(ctx, &config.RedisConfig{URL: url})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	l := NewRoomLocker(c)
	l.tries = 2
	room := "it-room-" + time.Now().Format("150405.000")

	tok, err := l.TryLock(ctx, room, time.Second)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if _, err := l.TryLock(ctx, room, time.Second); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second TryLock err = %v, want ErrConflict", err)
	}
	if err := l.Refresh(ctx, room, "other", time.Second); !errors.Is(err, ErrLockLost) {
		t.Fatalf("Refresh with foreign token err = %v", err)
	}
	if err := l.Refresh(ctx, room, tok, 5*time.Second); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := l.Unlock(ctx, room, tok); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if _, err := l.TryLock(ctx, room, time.Second); err != nil {
		t.Fatalf("TryLock after unlock: %v", err)
	}
}
