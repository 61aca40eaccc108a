package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "agency-platform/pkg/errors"
)

const replayKeyPrefix = "auth:reset:used:"

// ReplayGuard records single-use token ids until they expire.
type ReplayGuard interface {
	// Consume marks id as used. It fails with ErrTokenInvalid when id was
	// already consumed and with ErrServiceUnavailable when the store is down.
	Consume(ctx context.Context, id string, expiresAt time.Time) error
	// Release undoes a Consume whose follow-up write failed.
	Release(ctx context.Context, id string) error
}

// MemoryReplayGuard keeps consumed ids in process memory.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{used: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryReplayGuard) Consume(_ context.Context, id string, expiresAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.used[id]; ok && now.Before(exp) {
		return apperrors.Token(msgResetTokenUsed, apperrors.ErrTokenInvalid)
	}
	g.used[id] = expiresAt
	return nil
}

func (g *MemoryReplayGuard) Release(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.used, id)
	return nil
}

// Sweep drops ids whose tokens have expired.
func (g *MemoryReplayGuard) Sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, exp := range g.used {
		if !now.Before(exp) {
			delete(g.used, id)
		}
	}
}

// RedisReplayGuard stores consumed ids with SET NX and a TTL matching the
// token's remaining lifetime.
type RedisReplayGuard struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisReplayGuard(client redis.UniversalClient) *RedisReplayGuard {
	return &RedisReplayGuard{client: client, now: time.Now}
}

func (g *RedisReplayGuard) Consume(ctx context.Context, id string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(g.now())
	if ttl <= 0 {
		return apperrors.Token(msgTokenExpired, apperrors.ErrTokenExpired)
	}

	ok, err := g.client.SetNX(ctx, replayKeyPrefix+id, 1, ttl).Result()
	if err != nil {
		return apperrors.ServiceUnavailable("token store unavailable", err)
	}
	if !ok {
		return apperrors.Token(msgResetTokenUsed, apperrors.ErrTokenInvalid)
	}
	return nil
}

func (g *RedisReplayGuard) Release(ctx context.Context, id string) error {
	if err := g.client.Del(ctx, replayKeyPrefix+id).Err(); err != nil {
		return apperrors.ServiceUnavailable("token store unavailable", err)
	}
	return nil
}
