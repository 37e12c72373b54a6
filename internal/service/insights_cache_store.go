package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"career-compass/internal/domain"
)

// InsightsCacheStore es un cache de lectura delante del backend.
// Un error del cache nunca debe bloquear la lectura: el servicio cae al backend.
type InsightsCacheStore interface {
	Get(ctx context.Context, key string) (*domain.UserInsights, error)
	Set(ctx context.Context, key string, insights domain.UserInsights, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const redisCacheTimeout = 500 * time.Millisecond

type cachedInsights struct {
	value   domain.UserInsights
	expires time.Time
}

type memoryInsightsCache struct {
	mu    sync.Mutex
	items map[string]cachedInsights
}

func NewMemoryInsightsCache() InsightsCacheStore {
	return &memoryInsightsCache{items: make(map[string]cachedInsights)}
}

func (c *memoryInsightsCache) Get(_ context.Context, key string) (*domain.UserInsights, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return nil, nil
	}
	if !item.expires.IsZero() && time.Now().UTC().After(item.expires) {
		delete(c.items, key)
		return nil, nil
	}
	v := item.value
	return &v, nil
}

func (c *memoryInsightsCache) Set(_ context.Context, key string, insights domain.UserInsights, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	item := cachedInsights{value: insights}
	if ttl > 0 {
		item.expires = time.Now().UTC().Add(ttl)
	}
	c.items[key] = item
	return nil
}

func (c *memoryInsightsCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisInsightsCache struct {
	client redisKV
	prefix string
}

func NewRedisInsightsCache(client *redis.Client) InsightsCacheStore {
	if client == nil {
		return nil
	}
	return &redisInsightsCache{
		client: client,
		prefix: "insights:",
	}
}

func (c *redisInsightsCache) Get(ctx context.Context, key string) (*domain.UserInsights, error) {
	if strings.TrimSpace(key) == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisCacheTimeout)
	defer cancel()
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out domain.UserInsights
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *redisInsightsCache) Set(ctx context.Context, key string, insights domain.UserInsights, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	body, err := json.Marshal(insights)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, redisCacheTimeout)
	defer cancel()
	return c.client.Set(ctx, c.prefix+key, body, ttl).Err()
}

func (c *redisInsightsCache) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisCacheTimeout)
	defer cancel()
	return c.client.Del(ctx, c.prefix+key).Err()
}

// insightsCacheKey separa cuentas y dispositivos aunque compartan el mismo string.
func insightsCacheKey(id domain.Identity) string {
	return id.Kind.String() + ":" + id.Subject
}
