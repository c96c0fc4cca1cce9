package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

const cacheKeyPrefix = "course-portal:"

// CacheRepository wraps Redis for re-derivable caches of hosting-service
// state. Nothing stored here is authoritative.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository. A nil client yields a
// cache that always misses.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Get retrieves and unmarshals the cached value into the provided destination.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r == nil || r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}

	return nil
}

// Set marshals the provided value and stores it with the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r == nil || r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	if err := r.client.Set(ctx, cacheKeyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// Delete drops a cached entry.
func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, cacheKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// LookupTeamNumber returns a cached hosted team number. Any failure is
// reported as a miss so callers fall through to the hosting service.
func (r *CacheRepository) LookupTeamNumber(ctx context.Context, org, teamName string) (int64, bool) {
	var number int64
	if err := r.Get(ctx, teamNumberKey(org, teamName), &number); err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			r.logger.Warn("team number cache read failed", zap.String("team", teamName), zap.Error(err))
		}
		return 0, false
	}
	return number, true
}

// StoreTeamNumber caches a hosted team number. Failures are only logged.
func (r *CacheRepository) StoreTeamNumber(ctx context.Context, org, teamName string, number int64, ttl time.Duration) {
	if err := r.Set(ctx, teamNumberKey(org, teamName), number, ttl); err != nil {
		r.logger.Warn("team number cache write failed", zap.String("team", teamName), zap.Error(err))
	}
}

// ForgetTeamNumber drops a cached team number, used once a team is deleted.
func (r *CacheRepository) ForgetTeamNumber(ctx context.Context, org, teamName string) {
	if err := r.Delete(ctx, teamNumberKey(org, teamName)); err != nil {
		r.logger.Warn("team number cache delete failed", zap.String("team", teamName), zap.Error(err))
	}
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func teamNumberKey(org, teamName string) string {
	return "github:team:" + org + ":" + teamName
}
