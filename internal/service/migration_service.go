package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"career-compass/internal/domain"
	"career-compass/internal/repository"
)

// MigrationResult resume una ejecucion de Run.
type MigrationResult struct {
	Skipped bool                   `json:"skipped"`
	State   domain.MigrationState  `json:"state"`
	Counts  domain.MigrationCounts `json:"counts"`
}

// MigrationService copia los datos anonimos del dispositivo a la cuenta, una sola vez.
// Es una copia: el backend local no se toca. Las escrituras remotas son upserts,
// asi que reintentar despues de un fallo parcial no duplica nada.
type MigrationService struct {
	local  repository.LocalBackend
	remote repository.Backend
	logger *zap.Logger
	now    func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	status domain.MigrationStatus
}

func NewMigrationService(local repository.LocalBackend, remote repository.Backend, logger *zap.Logger) *MigrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MigrationService{
		local:  local,
		remote: remote,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.status = domain.MigrationStatus{Phase: domain.MigrationPhaseIdle, UpdatedAt: s.now()}
	return s
}

// Status es el estado transitorio para la notificacion de la UI.
func (s *MigrationService) Status() domain.MigrationStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *MigrationService) setStatus(phase domain.MigrationPhase, counts domain.MigrationCounts, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = domain.MigrationStatus{Phase: phase, Counts: counts, UpdatedAt: s.now()}
	if err != nil {
		s.status.Error = err.Error()
	}
}

// Run migra al accountID. Llamadas concurrentes para el mismo dispositivo comparten una ejecucion.
func (s *MigrationService) Run(ctx context.Context, accountID string) (MigrationResult, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return MigrationResult{}, domain.ErrNotAuthenticated
	}
	if s.remote == nil {
		return MigrationResult{}, domain.ErrRemoteUnavailable
	}
	token, err := s.local.DeviceToken(ctx)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("device token: %w", err)
	}

	v, err, _ := s.group.Do(token, func() (any, error) {
		return s.run(ctx, token, accountID)
	})
	res, _ := v.(MigrationResult)
	return res, err
}

func (s *MigrationService) run(ctx context.Context, token, accountID string) (MigrationResult, error) {
	log := s.logger.With(zap.String("account_id", accountID))

	state, err := s.local.MigrationState(ctx)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("read migration state: %w", err)
	}
	if state == domain.MigrationComplete {
		return MigrationResult{Skipped: true, State: state}, nil
	}

	has, err := s.local.HasData(ctx, token)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("check local data: %w", err)
	}
	if !has {
		if err := s.local.SetMigrationState(ctx, domain.MigrationComplete, accountID); err != nil {
			return MigrationResult{}, fmt.Errorf("mark migration complete: %w", err)
		}
		s.setStatus(domain.MigrationPhaseCompleted, domain.MigrationCounts{}, nil)
		log.Info("migration skipped, no local data")
		return MigrationResult{State: domain.MigrationComplete}, nil
	}

	if err := s.local.SetMigrationState(ctx, domain.MigrationInProgress, ""); err != nil {
		return MigrationResult{}, fmt.Errorf("mark migration in progress: %w", err)
	}
	s.setStatus(domain.MigrationPhaseMigrating, domain.MigrationCounts{}, nil)
	log.Info("migration started")

	counts, errs := s.copyAll(ctx, token, accountID)
	if len(errs) > 0 {
		failure := fmt.Errorf("%w: %w", domain.ErrMigrationIncomplete, errors.Join(errs...))
		s.setStatus(domain.MigrationPhaseFailed, counts, failure)
		log.Warn("migration incomplete", zap.Int("failures", len(errs)), zap.Error(failure))
		return MigrationResult{State: domain.MigrationInProgress, Counts: counts}, failure
	}

	if err := s.local.SetMigrationState(ctx, domain.MigrationComplete, accountID); err != nil {
		failure := fmt.Errorf("%w: mark complete: %w", domain.ErrMigrationIncomplete, err)
		s.setStatus(domain.MigrationPhaseFailed, counts, failure)
		return MigrationResult{State: domain.MigrationInProgress, Counts: counts}, failure
	}
	s.setStatus(domain.MigrationPhaseCompleted, counts, nil)
	log.Info("migration completed",
		zap.Int("module_progress", counts.ModuleProgress),
		zap.Int("interactive_progress", counts.InteractiveProgress),
		zap.Int("insights", counts.Insights),
		zap.Int("value_snapshots", counts.ValueSnapshots),
	)
	return MigrationResult{State: domain.MigrationComplete, Counts: counts}, nil
}

// copyAll sigue despues de un fallo por item y devuelve todos los errores.
func (s *MigrationService) copyAll(ctx context.Context, token, accountID string) (domain.MigrationCounts, []error) {
	var (
		counts domain.MigrationCounts
		errs   []error
	)

	for _, kind := range domain.ProgressKinds {
		recs, err := s.local.ListProgress(ctx, token, kind, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("list local %s: %w", kind, err))
			continue
		}
		for _, rec := range recs {
			written, err := s.remote.MergeProgress(ctx, accountID, rec)
			if err != nil {
				errs = append(errs, fmt.Errorf("copy %s %s/%s: %w", kind, rec.ModuleID, rec.SessionID, err))
				continue
			}
			if !written {
				counts.KeptRemote++
				continue
			}
			if kind == domain.KindModuleProgress {
				counts.ModuleProgress++
			} else {
				counts.InteractiveProgress++
			}
		}
	}

	if err := s.copyInsights(ctx, token, accountID, &counts); err != nil {
		errs = append(errs, err)
	}

	hist, err := s.local.ListSnapshots(ctx, token, true)
	if err != nil {
		errs = append(errs, fmt.Errorf("list local snapshots: %w", err))
		return counts, errs
	}
	for _, snap := range hist.History {
		snap.OwnerID = accountID
		if err := s.remote.SaveSnapshot(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("copy snapshot %s: %w", snap.ID, err))
			continue
		}
		counts.ValueSnapshots++
	}
	return counts, errs
}

// copyInsights no pisa insights remotos analizados despues que los locales.
func (s *MigrationService) copyInsights(ctx context.Context, token, accountID string, counts *domain.MigrationCounts) error {
	insights, err := s.local.GetInsights(ctx, token)
	if err != nil {
		return fmt.Errorf("read local insights: %w", err)
	}
	if insights == nil {
		return nil
	}
	current, err := s.remote.GetInsights(ctx, accountID)
	if err != nil {
		return fmt.Errorf("read remote insights: %w", err)
	}
	if current != nil && current.LastAnalyzed.After(insights.LastAnalyzed) {
		counts.KeptRemote++
		return nil
	}
	if err := s.remote.SaveInsights(ctx, accountID, *insights); err != nil {
		return fmt.Errorf("copy insights: %w", err)
	}
	counts.Insights++
	return nil
}
