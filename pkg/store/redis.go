// Package store holds computed residual-load scenario entries per model,
// bounded by a retention count, with memory and Redis backends.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the Store interface using Redis as a backend. It
// lets scenario entries survive daemon restarts and supports multi-instance
// deployments sharing one cache.
//
// Layout: each entry lives at "resload:entry:{model}:{issue}" and a sorted
// set "resload:issues:{model}" (scored by issue unix time) indexes the
// retained issue times. Trimming the index and deleting evicted entry keys
// happens on every Put.
type RedisStore struct {
	client    *redis.Client
	retention int
}

// NewRedisStore creates a Redis-backed store.
//
// Parameters:
//   - addr: Redis server address (e.g. "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - retention: issue times retained per model, must be positive
//
// Returns an error if the connection to Redis fails or parameters are
// invalid.
func NewRedisStore(addr, password string, db, retention int) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if retention <= 0 {
		return nil, errors.New("retention must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client, retention: retention}, nil
}

func entryKey(model string, issue time.Time) string {
	return fmt.Sprintf("resload:entry:%s:%s", model, issue.UTC().Format(time.RFC3339))
}

func indexKey(model string) string {
	return fmt.Sprintf("resload:issues:%s", model)
}

func validModel(model string) error {
	if model == "" {
		return errors.New("model name required")
	}
	for _, c := range model {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("invalid model name %q: only alphanumeric, hyphens, and underscores allowed", model)
		}
	}
	return nil
}

// Put stores an entry and trims the model's index to the retention bound,
// deleting evicted entry keys.
func (r *RedisStore) Put(ctx context.Context, e Entry) error {
	if err := validModel(e.Model); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	issue := e.Issue.UTC()
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, entryKey(e.Model, issue), data, 0)
	pipe.ZAdd(ctx, indexKey(e.Model), redis.Z{
		Score:  float64(issue.Unix()),
		Member: issue.Format(time.RFC3339),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store entry in redis: %w", err)
	}

	evicted, err := r.client.ZRange(ctx, indexKey(e.Model), 0, int64(-r.retention-1)).Result()
	if err != nil {
		return fmt.Errorf("failed to read index for trimming: %w", err)
	}
	for _, member := range evicted {
		old, err := time.Parse(time.RFC3339, member)
		if err != nil {
			continue
		}
		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, indexKey(e.Model), member)
		pipe.Del(ctx, entryKey(e.Model, old))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to evict old entry: %w", err)
		}
	}

	return nil
}

// Get retrieves the entry for an exact (model, issue) pair.
func (r *RedisStore) Get(ctx context.Context, model string, issue time.Time) (Entry, bool, error) {
	if err := validModel(model); err != nil {
		return Entry{}, false, err
	}

	data, err := r.client.Get(ctx, entryKey(model, issue)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to get entry from redis: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return e, true, nil
}

// GetLatest retrieves the most recent entry for a model.
func (r *RedisStore) GetLatest(ctx context.Context, model string) (Entry, bool, error) {
	if err := validModel(model); err != nil {
		return Entry{}, false, err
	}

	members, err := r.client.ZRevRange(ctx, indexKey(model), 0, 0).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to read index from redis: %w", err)
	}
	if len(members) == 0 {
		return Entry{}, false, nil
	}

	issue, err := time.Parse(time.RFC3339, members[0])
	if err != nil {
		return Entry{}, false, fmt.Errorf("corrupt index member %q: %w", members[0], err)
	}
	return r.Get(ctx, model, issue)
}

// IssueTimes lists retained issue times for a model, most recent first.
func (r *RedisStore) IssueTimes(ctx context.Context, model string) ([]time.Time, error) {
	if err := validModel(model); err != nil {
		return nil, err
	}

	members, err := r.client.ZRevRange(ctx, indexKey(model), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index from redis: %w", err)
	}

	issues := make([]time.Time, 0, len(members))
	for _, m := range members {
		t, err := time.Parse(time.RFC3339, m)
		if err != nil {
			return nil, fmt.Errorf("corrupt index member %q: %w", m, err)
		}
		issues = append(issues, t)
	}
	return issues, nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisStore) Close() error {
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if err != nil && err.Error() == "redis: client is closed" {
		return nil
	}
	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
