package seq

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
	"github.com/reelsheet/reelsheet/pkg/sheets"
)

// RedisConfig configures the Redis index allocator.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all counter keys (e.g., "reelsheet:seq:")
	Prefix string

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "reelsheet:seq:",
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// RedisAllocator reserves index blocks with an atomic per-sheet counter.
// The counter is seeded once from the sheet tail; after that every
// reservation is a single INCRBY, so concurrent workers always receive
// disjoint blocks.
type RedisAllocator struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisAllocator creates a Redis-backed allocator and verifies the
// connection.
func NewRedisAllocator(cfg RedisConfig) (*RedisAllocator, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "reelsheet:seq:"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisAllocator{cfg: cfg, client: client}, nil
}

// Name implements Allocator.
func (a *RedisAllocator) Name() string { return "redis" }

func (a *RedisAllocator) key(sheetID string) string {
	return a.cfg.Prefix + sheetID
}

// Next implements Allocator.
func (a *RedisAllocator) Next(ctx context.Context, store sheets.Store, n int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	key := a.key(store.SheetID())

	exists, err := a.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, rserrors.Wrap(err, rserrors.CodeStoreRead, "check index counter").
			WithContext("sheet", store.SheetID())
	}
	if exists == 0 {
		if err := a.seed(ctx, key, store); err != nil {
			return 0, err
		}
	}

	end, err := a.client.IncrBy(ctx, key, int64(n)).Result()
	if err != nil {
		return 0, rserrors.Wrap(err, rserrors.CodeStoreWrite, "reserve index block").
			WithContext("sheet", store.SheetID()).
			WithContext("count", n)
	}
	return end - int64(n) + 1, nil
}

// seed initializes the counter from the sheet tail. SETNX makes the seed
// race-free: if another worker seeds first, its value wins and ours is
// discarded.
func (a *RedisAllocator) seed(ctx context.Context, key string, store sheets.Store) error {
	tail, err := TailIndex(ctx, store)
	if err != nil {
		return err
	}
	if err := a.client.SetNX(ctx, key, tail, 0).Err(); err != nil {
		return rserrors.Wrap(err, rserrors.CodeStoreWrite, "seed index counter").
			WithContext("sheet", store.SheetID())
	}
	return nil
}

// Reset drops the counter so the next reservation reseeds from the sheet.
// Used after manual sheet edits.
func (a *RedisAllocator) Reset(ctx context.Context, sheetID string) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	return a.client.Del(ctx, a.key(sheetID)).Err()
}

// Ping checks the Redis connection.
func (a *RedisAllocator) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	return a.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (a *RedisAllocator) Close() error {
	return a.client.Close()
}
