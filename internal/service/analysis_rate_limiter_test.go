package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"career-compass/internal/domain"
)

type mockRedisEvaler struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     int64
	err        error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func TestRedisAnalysisRateLimiterAllow(t *testing.T) {
	ctx := context.Background()
	acct := domain.AuthenticatedIdentity("acct-1")

	t.Run("nil receiver fail-open", func(t *testing.T) {
		var l *redisAnalysisRateLimiter
		if !l.Allow(ctx, acct) {
			t.Fatalf("expected fail-open for nil limiter")
		}
	})

	t.Run("empty subject rejected", func(t *testing.T) {
		l := &redisAnalysisRateLimiter{client: &mockRedisEvaler{result: 1}, window: time.Minute, max: 3, prefix: "analysis:rl:"}
		if l.Allow(ctx, domain.AnonymousIdentity("  ")) {
			t.Fatalf("expected empty subject to be rejected")
		}
	})

	t.Run("allow when count within max", func(t *testing.T) {
		mock := &mockRedisEvaler{result: 2}
		l := &redisAnalysisRateLimiter{client: mock, window: 2 * time.Minute, max: 3, prefix: "analysis:rl:"}
		if !l.Allow(ctx, acct) {
			t.Fatalf("expected allow when count <= max")
		}
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "analysis:rl:authenticated:acct-1" {
			t.Fatalf("unexpected key, got %+v", mock.lastKeys)
		}
		if len(mock.lastArgs) != 1 || mock.lastArgs[0] != 120 {
			t.Fatalf("expected TTL seconds=120, got %+v", mock.lastArgs)
		}
		if mock.lastScript != redisAllowScript {
			t.Fatalf("expected script to match")
		}
	})

	t.Run("deny when count exceeds max", func(t *testing.T) {
		l := &redisAnalysisRateLimiter{client: &mockRedisEvaler{result: 4}, window: time.Minute, max: 3, prefix: "analysis:rl:"}
		if l.Allow(ctx, acct) {
			t.Fatalf("expected deny when count > max")
		}
	})

	t.Run("redis error fail-open", func(t *testing.T) {
		l := &redisAnalysisRateLimiter{client: &mockRedisEvaler{err: errors.New("redis down")}, window: time.Minute, max: 3, prefix: "analysis:rl:"}
		if !l.Allow(ctx, acct) {
			t.Fatalf("expected fail-open on redis error")
		}
	})
}

func TestMemoryAnalysisRateLimiterWindow(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryAnalysisRateLimiter(time.Minute, 2).(*memoryAnalysisRateLimiter)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	id := domain.AnonymousIdentity("device-1")

	if !l.Allow(ctx, id) || !l.Allow(ctx, id) {
		t.Fatalf("expected first two calls allowed")
	}
	if l.Allow(ctx, id) {
		t.Fatalf("expected third call denied")
	}
	if !l.Allow(ctx, domain.AnonymousIdentity("device-2")) {
		t.Fatalf("limits are per owner")
	}

	now = now.Add(time.Minute)
	if !l.Allow(ctx, id) {
		t.Fatalf("expected new window to allow")
	}
}
