package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dialogue-orchestrator/internal/domain"
	"dialogue-orchestrator/internal/domain/model"
	"dialogue-orchestrator/internal/domain/ports/repository"
	"dialogue-orchestrator/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
)

var _ repository.SessionSnapshotRepository = (*SessionCache)(nil)

// Sealer encrypts snapshot payloads. nil stores plain JSON.
type Sealer interface {
	Seal(plaintext []byte, label string) ([]byte, error)
	Open(data []byte, label string) ([]byte, error)
}

// SessionCache stores a read-only snapshot of each live session under
// "session:<id>" with a TTL. It is not the source of truth.
type SessionCache struct {
	client RedisClient
	sealer Sealer
	ttl    time.Duration
}

func NewSessionCache(client RedisClient, sealer Sealer, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, sealer: sealer, ttl: ttl}
}

func sessionKey(id string) string { return "session:" + id }

func (c *SessionCache) Store(ctx context.Context, s *model.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if c.sealer != nil {
		if data, err = c.sealer.Seal(data, s.ID); err != nil {
			return fmt.Errorf("seal snapshot: %w", err)
		}
	}
	return c.client.Set(ctx, sessionKey(s.ID), data, c.ttl)
}

func (c *SessionCache) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	raw, err := c.client.Get(ctx, sessionKey(sessionID))
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheRequest("session_snapshot", "miss")
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	metrics.IncCacheRequest("session_snapshot", "hit")

	data := []byte(raw)
	if c.sealer != nil {
		if data, err = c.sealer.Open(data, sessionID); err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}

func (c *SessionCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, sessionKey(sessionID))
}
