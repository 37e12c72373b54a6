package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"career-compass/internal/domain"
)

type EraseStore interface {
	EraseAll(ctx context.Context, id domain.Identity) (domain.ErasureCounts, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, id domain.Identity)
}

// AccountService es la unica via de borrado de progreso, insights y snapshots.
type AccountService struct {
	store    EraseStore
	insights cacheInvalidator
	logger   *zap.Logger
}

func NewAccountService(store EraseStore, insights cacheInvalidator, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{store: store, insights: insights, logger: logger}
}

// Erase borra todo lo del owner en un solo paso y descarta el cache de insights.
func (s *AccountService) Erase(ctx context.Context, id domain.Identity) (domain.ErasureCounts, error) {
	counts, err := s.store.EraseAll(ctx, id)
	if err != nil {
		return domain.ErasureCounts{}, fmt.Errorf("erase %s data: %w", id.Kind, err)
	}
	if s.insights != nil {
		s.insights.Invalidate(ctx, id)
	}
	s.logger.Info("owner data erased",
		zap.String("identity", id.Kind.String()),
		zap.Int64("module_progress", counts.ModuleProgress),
		zap.Int64("interactive_progress", counts.InteractiveProgress),
		zap.Int64("insights", counts.Insights),
		zap.Int64("value_snapshots", counts.ValueSnapshots),
	)
	return counts, nil
}
