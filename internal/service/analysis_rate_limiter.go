package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"career-compass/internal/domain"
)

// AnalysisRateLimiter acota cuantas llamadas al Analyzer puede disparar un owner por ventana.
// Ante un error del backend deja pasar.
type AnalysisRateLimiter interface {
	Allow(ctx context.Context, id domain.Identity) bool
}

const redisAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisAnalysisRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

func NewRedisAnalysisRateLimiter(client *redis.Client, window time.Duration, max int) AnalysisRateLimiter {
	if client == nil {
		return nil
	}
	window, max = limiterDefaults(window, max)
	return &redisAnalysisRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "analysis:rl:",
	}
}

func (l *redisAnalysisRateLimiter) Allow(ctx context.Context, id domain.Identity) bool {
	if l == nil || l.client == nil {
		return true
	}
	key := limiterKey(id)
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisCacheTimeout)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisAllowScript, []string{l.prefix + key}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}

type windowCount struct {
	count int
	reset time.Time
}

type memoryAnalysisRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	now    func() time.Time
	counts map[string]windowCount
}

// NewMemoryAnalysisRateLimiter es la version de un solo proceso, con ventana fija.
func NewMemoryAnalysisRateLimiter(window time.Duration, max int) AnalysisRateLimiter {
	window, max = limiterDefaults(window, max)
	return &memoryAnalysisRateLimiter{
		window: window,
		max:    max,
		now:    time.Now,
		counts: make(map[string]windowCount),
	}
}

func (l *memoryAnalysisRateLimiter) Allow(_ context.Context, id domain.Identity) bool {
	key := limiterKey(id)
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	wc := l.counts[key]
	if !now.Before(wc.reset) {
		wc = windowCount{reset: now.Add(l.window)}
	}
	wc.count++
	l.counts[key] = wc
	return wc.count <= l.max
}

func limiterDefaults(window time.Duration, max int) (time.Duration, int) {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return window, max
}

func limiterKey(id domain.Identity) string {
	if strings.TrimSpace(id.Subject) == "" {
		return ""
	}
	return id.Kind.String() + ":" + strings.TrimSpace(id.Subject)
}
