package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"career-compass/internal/domain"
	"career-compass/internal/repository"
)

func TestAccountServiceErase(t *testing.T) {
	ctx := context.Background()
	remote := repository.NewMemoryStore()
	router := repository.NewStorageRouter(repository.NewMemoryStore(), remote, "device-1")
	insights := NewInsightsService(&fakeAnalyzer{}, router, NewMemoryInsightsCache(), time.Hour, zap.NewNop())
	svc := NewAccountService(router, insights, zap.NewNop())
	id := domain.AuthenticatedIdentity("acct-1")

	if err := router.SaveModuleProgress(ctx, id, chat("m", user("hola"))); err != nil {
		t.Fatal(err)
	}
	if err := router.SaveInsights(ctx, id, domain.UserInsights{Patterns: []string{"p"}}); err != nil {
		t.Fatal(err)
	}
	if got, _ := insights.Get(ctx, id); got == nil {
		t.Fatal("expected insights to be cached before erase")
	}
	if _, err := router.SaveSnapshot(ctx, id, domain.ValueSnapshot{ID: "s", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	counts, err := svc.Erase(ctx, id)
	if err != nil {
		t.Fatalf("erase: %v", err)
	}
	want := domain.ErasureCounts{ModuleProgress: 1, Insights: 1, ValueSnapshots: 1}
	if counts != want {
		t.Fatalf("counts = %+v, want %+v", counts, want)
	}
	if has, _ := remote.HasData(ctx, "acct-1"); has {
		t.Fatal("remote still has data")
	}
	if got, _ := insights.Get(ctx, id); got != nil {
		t.Fatalf("cache should be invalidated, got %+v", got)
	}
}

func TestAccountServiceEraseWithoutRemote(t *testing.T) {
	router := repository.NewStorageRouter(repository.NewMemoryStore(), nil, "device-1")
	svc := NewAccountService(router, nil, nil)
	if _, err := svc.Erase(context.Background(), domain.AuthenticatedIdentity("acct-1")); !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
}
