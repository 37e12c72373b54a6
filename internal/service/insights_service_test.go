package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"career-compass/internal/domain"
	"career-compass/internal/repository"
)

func chat(moduleID string, msgs ...domain.Message) domain.ModuleProgress {
	return domain.ModuleProgress{ModuleID: moduleID, SessionID: "s", Messages: msgs}
}

func user(text string) domain.Message {
	return domain.Message{Role: domain.RoleUser, Content: text}
}

func coach(text string) domain.Message {
	return domain.Message{Role: domain.RoleAssistant, Content: text}
}

func newInsightsTestService(a Analyzer) (*InsightsService, *repository.StorageRouter) {
	router := repository.NewStorageRouter(repository.NewMemoryStore(), repository.NewMemoryStore(), "device-1")
	svc := NewInsightsService(a, router, NewMemoryInsightsCache(), time.Hour, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) }
	return svc, router
}

func TestRegenerateUsesOnlyUserText(t *testing.T) {
	a := &fakeAnalyzer{insights: domain.InsightsAnalysis{CareerThinking: []string{"quiere cambiar"}}}
	svc, router := newInsightsTestService(a)
	id := router.DeviceIdentity()

	got, err := svc.Regenerate(context.Background(), id, []domain.ModuleProgress{
		chat("a", coach("PREGUNTA DEL COACH"), user("Me gusta ensenar")),
		chat("b", user("Quiero mas autonomia")),
	})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if strings.Contains(a.lastInsightIn, "PREGUNTA DEL COACH") {
		t.Fatalf("assistant text leaked into the analyzer input: %q", a.lastInsightIn)
	}
	if !strings.Contains(a.lastInsightIn, "Me gusta ensenar") || !strings.Contains(a.lastInsightIn, "Quiero mas autonomia") {
		t.Fatalf("user text missing: %q", a.lastInsightIn)
	}
	if len(got.CareerThinking) != 1 || got.Patterns == nil || !got.LastAnalyzed.Equal(svc.now()) {
		t.Fatalf("unexpected insights: %+v", got)
	}

	stored, err := router.GetInsights(context.Background(), id)
	if err != nil || stored == nil || stored.CareerThinking[0] != "quiere cambiar" {
		t.Fatalf("insights not replaced in store: %v %v", stored, err)
	}
}

func TestRegenerateFallsBackToHeuristic(t *testing.T) {
	a := &fakeAnalyzer{insightsErr: errors.New("llm down")}
	svc, router := newInsightsTestService(a)

	got, err := svc.Regenerate(context.Background(), router.DeviceIdentity(), []domain.ModuleProgress{
		chat("a",
			user("Me preocupa no encontrar trabajo estable."),
			user("Creo que la estabilidad me importa mucho."),
			user("Busco estabilidad y un buen equipo."),
		),
	})
	if err != nil {
		t.Fatalf("heuristic fallback must not surface an error: %v", err)
	}
	if a.insightCalls != 1 {
		t.Fatalf("expected one analyzer call, got %d", a.insightCalls)
	}
	if len(got.CurrentConcerns) == 0 || len(got.CareerThinking) == 0 || len(got.ThoughtFlow) == 0 {
		t.Fatalf("heuristic produced empty categories: %+v", got)
	}
	found := false
	for _, p := range got.Patterns {
		if strings.Contains(p, "estabilidad") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected estabilidad pattern, got %v", got.Patterns)
	}
}

func TestRegenerateWithoutUserTextKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	a := &fakeAnalyzer{}
	svc, router := newInsightsTestService(a)
	id := router.DeviceIdentity()

	empty, err := svc.Regenerate(ctx, id, nil)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if empty.CareerThinking == nil || !empty.LastAnalyzed.IsZero() {
		t.Fatalf("expected empty insights, got %+v", empty)
	}

	existing := domain.UserInsights{Patterns: []string{"previo"}}
	if err := router.SaveInsights(ctx, id, existing); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Regenerate(ctx, id, []domain.ModuleProgress{chat("a", coach("solo coach"))})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if a.insightCalls != 0 {
		t.Fatalf("analyzer must not be called without user text")
	}
	if len(got.Patterns) != 1 || got.Patterns[0] != "previo" {
		t.Fatalf("expected current insights unchanged, got %+v", got)
	}
}

func TestGetReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	svc, router := newInsightsTestService(&fakeAnalyzer{})
	id := domain.AuthenticatedIdentity("acct-1")

	if got, err := svc.Get(ctx, id); err != nil || got != nil {
		t.Fatalf("expected nil,nil before any regeneration; got %v,%v", got, err)
	}

	if err := router.SaveInsights(ctx, id, domain.UserInsights{Patterns: []string{"v1"}}); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Get(ctx, id)
	if err != nil || got == nil || got.Patterns[0] != "v1" {
		t.Fatalf("expected stored insights, got %v,%v", got, err)
	}

	// El cache sirve la lectura hasta que se invalida.
	_ = router.SaveInsights(ctx, id, domain.UserInsights{Patterns: []string{"v2"}})
	got, _ = svc.Get(ctx, id)
	if got.Patterns[0] != "v1" {
		t.Fatalf("expected cached v1, got %v", got.Patterns)
	}
	svc.Invalidate(ctx, id)
	got, _ = svc.Get(ctx, id)
	if got.Patterns[0] != "v2" {
		t.Fatalf("expected v2 after invalidate, got %v", got.Patterns)
	}
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (*domain.UserInsights, error) {
	return nil, errors.New("cache down")
}

func (failingCache) Set(context.Context, string, domain.UserInsights, time.Duration) error {
	return errors.New("cache down")
}

func (failingCache) Delete(context.Context, string) error { return errors.New("cache down") }

func TestInsightsCacheFailOpen(t *testing.T) {
	ctx := context.Background()
	router := repository.NewStorageRouter(repository.NewMemoryStore(), nil, "device-1")
	a := &fakeAnalyzer{insights: domain.InsightsAnalysis{Patterns: []string{"p"}}}
	svc := NewInsightsService(a, router, failingCache{}, time.Hour, zap.NewNop())
	id := router.DeviceIdentity()

	if _, err := svc.Regenerate(ctx, id, []domain.ModuleProgress{chat("a", user("hola mundo"))}); err != nil {
		t.Fatalf("cache errors must not fail regeneration: %v", err)
	}
	got, err := svc.Get(ctx, id)
	if err != nil || got == nil || got.Patterns[0] != "p" {
		t.Fatalf("expected backend read on cache failure, got %v,%v", got, err)
	}
	svc.Invalidate(ctx, id)
}

func TestRegenerateFromStore(t *testing.T) {
	ctx := context.Background()
	a := &fakeAnalyzer{insights: domain.InsightsAnalysis{ThoughtFlow: []string{"x"}}}
	svc, router := newInsightsTestService(a)
	id := router.DeviceIdentity()

	if err := router.SaveModuleProgress(ctx, id, chat("career-intro", user("quiero trabajar con datos"))); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RegenerateFromStore(ctx, id); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if !strings.Contains(a.lastInsightIn, "quiero trabajar con datos") {
		t.Fatalf("stored progress not used: %q", a.lastInsightIn)
	}
}

func TestHeuristicInsightsCapsCategories(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("Me preocupa el trabajo numero ")
		b.WriteString(strings.Repeat("x", i+1))
		b.WriteString(". ")
	}
	out := HeuristicInsights(b.String())
	if len(out.CurrentConcerns) != maxInsightsPerCategory || len(out.CareerThinking) != maxInsightsPerCategory {
		t.Fatalf("expected capped categories, got %d/%d", len(out.CurrentConcerns), len(out.CareerThinking))
	}
}
