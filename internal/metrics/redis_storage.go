package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps run history in a Redis sorted set scored by run
// time in milliseconds.
type RedisStorage struct {
	client *redis.Client
	key    string
	ttl    time.Duration // runs older than this are trimmed on write
}

// NewRedisStorage creates a new Redis storage backend.
// Returns error if connection fails.
func NewRedisStorage(url string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		key:    "dr:runs",
		ttl:    30 * 24 * time.Hour,
	}, nil
}

// SaveRun adds a run and trims runs older than the TTL in one pipeline.
func (rs *RedisStorage) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id must not be empty")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}

	pipe := rs.client.Pipeline()
	pipe.ZAdd(ctx, rs.key, redis.Z{
		Score:  float64(run.Time.UnixMilli()),
		Member: string(data),
	})

	minScore := time.Now().Add(-rs.ttl).UnixMilli()
	pipe.ZRemRangeByScore(ctx, rs.key, "-inf", fmt.Sprintf("(%d", minScore))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// LoadRuns returns runs at or after since, oldest first.
func (rs *RedisStorage) LoadRuns(ctx context.Context, since time.Time) ([]Run, error) {
	members, err := rs.client.ZRangeByScore(ctx, rs.key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.UnixMilli()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("loading runs: %w", err)
	}

	runs := make([]Run, 0, len(members))
	for _, m := range members {
		var r Run
		if err := json.Unmarshal([]byte(m), &r); err != nil {
			// Skip invalid entries
			continue
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// Count returns the number of stored runs.
func (rs *RedisStorage) Count(ctx context.Context) (int64, error) {
	n, err := rs.client.ZCard(ctx, rs.key).Result()
	if err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return n, nil
}

// Clear deletes the whole history.
func (rs *RedisStorage) Clear(ctx context.Context) error {
	if err := rs.client.Del(ctx, rs.key).Err(); err != nil {
		return fmt.Errorf("clearing runs: %w", err)
	}
	return nil
}

// SetKey changes the sorted set the history lives in.
func (rs *RedisStorage) SetKey(key string) {
	rs.key = key
}

// SetTTL sets how long runs are retained.
func (rs *RedisStorage) SetTTL(ttl time.Duration) {
	rs.ttl = ttl
}

// Close closes the Redis connection.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
