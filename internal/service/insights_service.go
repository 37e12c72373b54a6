package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"career-compass/internal/domain"
)

// InsightsStore es la parte del StorageRouter que usa el cache de insights.
type InsightsStore interface {
	GetInsights(ctx context.Context, id domain.Identity) (*domain.UserInsights, error)
	SaveInsights(ctx context.Context, id domain.Identity, insights domain.UserInsights) error
	ListModuleProgress(ctx context.Context, id domain.Identity, moduleID string) ([]domain.ModuleProgress, error)
}

// InsightsService regenera insights solo cuando se lo piden, para acotar las llamadas al Analyzer.
type InsightsService struct {
	analyzer Analyzer
	store    InsightsStore
	cache    InsightsCacheStore
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewInsightsService(analyzer Analyzer, store InsightsStore, cache InsightsCacheStore, ttl time.Duration, logger *zap.Logger) *InsightsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewMemoryInsightsCache()
	}
	return &InsightsService{
		analyzer: analyzer,
		store:    store,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Regenerate reemplaza los insights del owner a partir del texto escrito por el usuario.
// Si el Analyzer falla se usa la heuristica local; el usuario nunca ve ese error.
// Sin texto del usuario no se llama al Analyzer y se devuelven los insights actuales.
func (s *InsightsService) Regenerate(ctx context.Context, id domain.Identity, progress []domain.ModuleProgress) (domain.UserInsights, error) {
	var parts []string
	for _, p := range progress {
		parts = append(parts, p.UserText()...)
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		current, err := s.store.GetInsights(ctx, id)
		if err != nil {
			return domain.UserInsights{}, fmt.Errorf("get insights: %w", err)
		}
		if current == nil {
			return emptyInsights(), nil
		}
		return *current, nil
	}

	analysis, err := s.analyzer.AnalyzeInsights(ctx, text)
	if err != nil {
		s.logger.Warn("insights analyzer failed, using heuristic", zap.Error(err), zap.String("identity", id.Kind.String()))
		analysis = HeuristicInsights(text)
	}

	insights := domain.UserInsights{
		CareerThinking:  nonNil(analysis.CareerThinking),
		CurrentConcerns: nonNil(analysis.CurrentConcerns),
		ThoughtFlow:     nonNil(analysis.ThoughtFlow),
		Patterns:        nonNil(analysis.Patterns),
		LastAnalyzed:    s.now(),
	}
	if err := s.store.SaveInsights(ctx, id, insights); err != nil {
		return domain.UserInsights{}, fmt.Errorf("save insights: %w", err)
	}
	if err := s.cache.Set(ctx, insightsCacheKey(id), insights, s.ttl); err != nil {
		s.logger.Warn("insights cache set failed", zap.Error(err))
	}
	return insights, nil
}

// RegenerateFromStore junta todo el progreso de chat del owner y regenera.
func (s *InsightsService) RegenerateFromStore(ctx context.Context, id domain.Identity) (domain.UserInsights, error) {
	progress, err := s.store.ListModuleProgress(ctx, id, "")
	if err != nil {
		return domain.UserInsights{}, fmt.Errorf("list progress: %w", err)
	}
	return s.Regenerate(ctx, id, progress)
}

// Get lee del cache y, si no hay, del backend. Devuelve nil si nunca se generaron.
func (s *InsightsService) Get(ctx context.Context, id domain.Identity) (*domain.UserInsights, error) {
	key := insightsCacheKey(id)
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("insights cache get failed", zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	stored, err := s.store.GetInsights(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get insights: %w", err)
	}
	if stored != nil {
		if err := s.cache.Set(ctx, key, *stored, s.ttl); err != nil {
			s.logger.Warn("insights cache set failed", zap.Error(err))
		}
	}
	return stored, nil
}

func (s *InsightsService) Invalidate(ctx context.Context, id domain.Identity) {
	if err := s.cache.Delete(ctx, insightsCacheKey(id)); err != nil {
		s.logger.Warn("insights cache delete failed", zap.Error(err))
	}
}

func emptyInsights() domain.UserInsights {
	return domain.UserInsights{
		CareerThinking:  []string{},
		CurrentConcerns: []string{},
		ThoughtFlow:     []string{},
		Patterns:        []string{},
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
