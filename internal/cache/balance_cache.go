package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when nothing usable is cached for the user.
var ErrMiss = errors.New("balance cache miss")

// BalanceCache holds a user's balance records for short-lived reads. The TTL
// is owned by the cache; callers only invalidate after a mutation.
type BalanceCache interface {
	Get(ctx context.Context, userID string) ([]models.BalanceRecord, error)
	Set(ctx context.Context, userID string, records []models.BalanceRecord) error
	Invalidate(ctx context.Context, userID string) error
}

const defaultPrefix = "fundsledger:balances:"

type RedisBalanceCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisBalanceCache(client redis.UniversalClient, ttl time.Duration) *RedisBalanceCache {
	return &RedisBalanceCache{client: client, ttl: ttl, prefix: defaultPrefix}
}

func (c *RedisBalanceCache) key(userID string) string {
	return c.prefix + userID
}

func (c *RedisBalanceCache) Get(ctx context.Context, userID string) ([]models.BalanceRecord, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read cached balances: %w", err)
	}

	var records []models.BalanceRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode cached balances: %w", err)
	}
	return records, nil
}

func (c *RedisBalanceCache) Set(ctx context.Context, userID string, records []models.BalanceRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode balances: %w", err)
	}
	return c.client.Set(ctx, c.key(userID), raw, c.ttl).Err()
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, c.key(userID)).Err()
}

type memoryEntry struct {
	records   []models.BalanceRecord
	expiresAt time.Time
}

type MemoryBalanceCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryBalanceCache(ttl time.Duration) *MemoryBalanceCache {
	return &MemoryBalanceCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryBalanceCache) Get(_ context.Context, userID string) ([]models.BalanceRecord, error) {
	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, ErrMiss
	}
	out := make([]models.BalanceRecord, len(e.records))
	copy(out, e.records)
	return out, nil
}

func (c *MemoryBalanceCache) Set(_ context.Context, userID string, records []models.BalanceRecord) error {
	stored := make([]models.BalanceRecord, len(records))
	copy(stored, records)

	c.mu.Lock()
	c.entries[userID] = memoryEntry{records: stored, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryBalanceCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
	return nil
}
