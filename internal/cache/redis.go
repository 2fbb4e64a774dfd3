// Package cache caches ranked candidate lists in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/observability"
)

const keyPrefix = "accumulation:candidates:"

// CandidateCache stores candidate lists keyed by as-of date.
// All methods are safe on a nil receiver and then behave as a permanent miss.
type CandidateCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCandidateCache connects to Redis. It returns an error if the server
// does not answer a ping within five seconds.
func NewCandidateCache(addr, password string, ttl time.Duration, logger *zap.Logger) (*CandidateCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	logger.Info("connected to redis", zap.String("addr", addr))
	return &CandidateCache{client: client, ttl: ttl, logger: logger}, nil
}

// Key returns the cache key for an as-of date.
func Key(asOf time.Time) string {
	return keyPrefix + asOf.Format(domain.DateLayout)
}

// Get returns the cached list for asOf. The second result is false on a miss.
func (c *CandidateCache) Get(ctx context.Context, asOf time.Time) ([]domain.BreakoutCandidate, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	val, err := c.client.Get(ctx, Key(asOf)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("candidate cache get failed", zap.Error(err))
		}
		observability.RecordCacheLookup(false)
		return nil, false
	}

	var out []domain.BreakoutCandidate
	if err := json.Unmarshal(val, &out); err != nil {
		c.logger.Warn("candidate cache entry corrupt", zap.String("key", Key(asOf)), zap.Error(err))
		observability.RecordCacheLookup(false)
		return nil, false
	}
	observability.RecordCacheLookup(true)
	return out, true
}

// Set stores the list for asOf with the configured TTL.
func (c *CandidateCache) Set(ctx context.Context, asOf time.Time, candidates []domain.BreakoutCandidate) error {
	if c == nil || c.client == nil {
		return nil
	}
	if candidates == nil {
		candidates = []domain.BreakoutCandidate{}
	}

	data, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}
	return c.client.Set(ctx, Key(asOf), data, c.ttl).Err()
}

// Invalidate drops every cached list.
func (c *CandidateCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}

	var keys []string
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan candidate keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Close closes the Redis connection.
func (c *CandidateCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
