package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/task-service/internal/config"
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// GetBytes fetches a raw cache entry. A miss or any transport error reports
// not-found; cache reads are best-effort.
func (r *Redis) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	if r == nil || r.Client == nil {
		return nil, false
	}
	raw, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return raw, true
}

// SetBytes stores a raw cache entry with an expiry. Failures are ignored.
func (r *Redis) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Set(ctx, key, value, ttl).Err()
}
