package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revokedKeyPrefix  = "schoolcore:revoked:"
	activityKeyPrefix = "schoolcore:activity:"
)

// Redis implements Store on top of a shared Redis instance so revocation and
// activity state is visible to every process.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedis builds a Redis-backed store. The connection is established lazily
// by go-redis on first use; callers should Ping before relying on it.
func NewRedis(addr, password string, db int, now func() time.Time) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("session: redis addr is required")
	}
	if now == nil {
		now = time.Now
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client, now: now}, nil
}

// Ping probes the connection, used as the startup health check.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Blacklist(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := ttlUntil(expiresAt, r.now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

func (r *Redis) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	_, err := r.client.Get(ctx, revokedKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) RecordActivity(ctx context.Context, jti string, expiresAt time.Time) error {
	now := r.now()
	ttl := ttlUntil(expiresAt, now)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, activityKeyPrefix+jti, now.UTC().Format(time.RFC3339Nano), ttl).Err()
}

func (r *Redis) EnsureActivity(ctx context.Context, jti string, expiresAt time.Time) error {
	now := r.now()
	ttl := ttlUntil(expiresAt, now)
	if ttl <= 0 {
		return nil
	}
	return r.client.SetNX(ctx, activityKeyPrefix+jti, now.UTC().Format(time.RFC3339Nano), ttl).Err()
}

func (r *Redis) LastActivity(ctx context.Context, jti string) (time.Time, bool, error) {
	raw, err := r.client.Get(ctx, activityKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	last, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return last, true, nil
}
