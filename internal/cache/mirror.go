// Package cache is the Redis fast tier. The cortex writes identity facts,
// session state and working entries through here so external processes can
// read them without touching the coordinator.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	identityPrefix = "identity:"
	sessionPrefix  = "session:"
	workingPrefix  = "working:"
)

// Mirror is a Redis-backed write-through cache of the cortex tiers.
type Mirror struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewMirror connects to Redis and verifies the connection.
func NewMirror(redisURL string, logger *zap.Logger) (*Mirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("Redis connected")
	return &Mirror{rdb: rdb, logger: logger}, nil
}

// SetIdentityFact writes one identity field into the user's identity hash.
// Identity keys carry no TTL.
func (m *Mirror) SetIdentityFact(ctx context.Context, userID, field, content string) error {
	if err := m.rdb.HSet(ctx, identityPrefix+userID, field, content).Err(); err != nil {
		return fmt.Errorf("set identity fact: %w", err)
	}
	return nil
}

// GetIdentity reads the full identity hash for a user.
func (m *Mirror) GetIdentity(ctx context.Context, userID string) (map[string]string, error) {
	out, err := m.rdb.HGetAll(ctx, identityPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return out, nil
}

// AddWorking scores a working entry by importance in the user's working
// sorted set and refreshes the set's TTL.
func (m *Mirror) AddWorking(ctx context.Context, userID, content string, importance float64, ttl time.Duration) error {
	key := workingPrefix + userID
	if err := m.rdb.ZAdd(ctx, key, redis.Z{Score: importance, Member: content}).Err(); err != nil {
		return fmt.Errorf("add working entry: %w", err)
	}
	if ttl > 0 {
		if err := m.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("expire working set: %w", err)
		}
	}
	return nil
}

// TrimWorking keeps only the top-scored entries in the working set.
func (m *Mirror) TrimWorking(ctx context.Context, userID string, keep int64) error {
	if keep <= 0 {
		return nil
	}
	err := m.rdb.ZRemRangeByRank(ctx, workingPrefix+userID, 0, -(keep + 1)).Err()
	if err != nil {
		return fmt.Errorf("trim working set: %w", err)
	}
	return nil
}

// GetWorking reads working entries, highest importance first.
func (m *Mirror) GetWorking(ctx context.Context, userID string, limit int64) ([]string, error) {
	out, err := m.rdb.ZRevRange(ctx, workingPrefix+userID, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get working set: %w", err)
	}
	return out, nil
}

// SetSession merges fields into the user's session hash and refreshes its
// inactivity TTL.
func (m *Mirror) SetSession(ctx context.Context, userID string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	key := sessionPrefix + userID
	flat := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		flat[k] = v
	}
	if err := m.rdb.HSet(ctx, key, flat).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	if ttl > 0 {
		if err := m.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("expire session: %w", err)
		}
	}
	return nil
}

// GetSession reads the full session hash for a user.
func (m *Mirror) GetSession(ctx context.Context, userID string) (map[string]string, error) {
	out, err := m.rdb.HGetAll(ctx, sessionPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return out, nil
}

// Close releases the Redis connection.
func (m *Mirror) Close() error {
	return m.rdb.Close()
}
