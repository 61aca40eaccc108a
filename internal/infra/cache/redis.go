package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agency-platform/internal/config"
	"agency-platform/internal/domain/tenant"
)

const (
	tenantKeyPrefix  = "tenant:subdomain:"
	redisPingTimeout = 5 * time.Second

	errFailedPingRedisFmt    = "failed to ping redis: %w"
	errFailedDecodeTenantFmt = "failed to decode cached tenant: %w"
	errFailedEncodeTenantFmt = "failed to encode tenant: %w"
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf(errFailedPingRedisFmt, err)
	}
	return client, nil
}

// RedisTenantCache shares resolved tenants across instances.
type RedisTenantCache struct {
	client redis.UniversalClient
}

func NewRedisTenantCache(client redis.UniversalClient) *RedisTenantCache {
	return &RedisTenantCache{client: client}
}

func (r *RedisTenantCache) Get(ctx context.Context, subdomain string) (*tenant.Tenant, bool, error) {
	raw, err := r.client.Get(ctx, tenantKey(subdomain)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var t tenant.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false, fmt.Errorf(errFailedDecodeTenantFmt, err)
	}
	return &t, true, nil
}

func (r *RedisTenantCache) Set(ctx context.Context, t *tenant.Tenant, ttl time.Duration) error {
	if t == nil || ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf(errFailedEncodeTenantFmt, err)
	}
	return r.client.Set(ctx, tenantKey(t.Subdomain), raw, ttl).Err()
}

func (r *RedisTenantCache) Delete(ctx context.Context, subdomain string) error {
	return r.client.Del(ctx, tenantKey(subdomain)).Err()
}

func tenantKey(subdomain string) string {
	return tenantKeyPrefix + subdomain
}
