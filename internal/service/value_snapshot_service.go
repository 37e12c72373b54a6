package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"career-compass/internal/domain"
)

// minTranscriptMessages es el minimo de mensajes para pedir un analisis de valores.
const minTranscriptMessages = 2

// SnapshotStore es la parte del StorageRouter que usa el pipeline.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, id domain.Identity, snapshot domain.ValueSnapshot) (domain.ValueSnapshot, error)
	ListSnapshots(ctx context.Context, id domain.Identity, includeHistory bool) (domain.SnapshotHistory, error)
	UpdateSnapshotAxes(ctx context.Context, id domain.Identity, snapshotID string, axes map[domain.Axis]int, lastUpdated time.Time) error
}

// ValueSnapshotService transforma transcripts en snapshots de valores ordenados en el tiempo.
type ValueSnapshotService struct {
	analyzer Analyzer
	store    SnapshotStore
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewValueSnapshotService(analyzer Analyzer, store SnapshotStore, logger *zap.Logger) *ValueSnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValueSnapshotService{
		analyzer: analyzer,
		store:    store,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Analyze crea un snapshot nuevo; pasa a ser el actual por orden, no por mutar los anteriores.
// Un fallo del Analyzer no se guarda: el llamador reintenta mas tarde.
func (s *ValueSnapshotService) Analyze(ctx context.Context, id domain.Identity, moduleID string, transcript []domain.Message) (domain.ValueSnapshot, error) {
	if len(transcript) < minTranscriptMessages {
		return domain.ValueSnapshot{}, fmt.Errorf("transcript has %d messages: %w", len(transcript), domain.ErrInsufficientData)
	}

	analysis, err := s.analyzer.AnalyzeValues(ctx, transcript)
	if err != nil {
		s.logger.Warn("value analysis failed", zap.Error(err), zap.String("module_id", moduleID))
		return domain.ValueSnapshot{}, fmt.Errorf("%w: %w", domain.ErrAnalysisFailed, err)
	}

	now := s.now()
	snapshot := BuildSnapshot(analysis)
	snapshot.ID = s.newID()
	snapshot.ModuleID = strings.TrimSpace(moduleID)
	snapshot.CreatedAt = now
	snapshot.LastUpdated = now

	snapshot, err = s.store.SaveSnapshot(ctx, id, snapshot)
	if err != nil {
		return domain.ValueSnapshot{}, fmt.Errorf("save snapshot: %w", err)
	}

	s.logger.Info("value snapshot created",
		zap.String("snapshot_id", snapshot.ID),
		zap.String("module_id", snapshot.ModuleID),
		zap.Int("overall_confidence", snapshot.OverallConfidence),
	)
	return snapshot, nil
}

// BuildSnapshot completa los 7 ejes: los que faltan quedan en 50 con confianza 0.
// OverallConfidence es el promedio redondeado de las 7 confianzas.
func BuildSnapshot(analysis domain.ValueAnalysis) domain.ValueSnapshot {
	snapshot := domain.ValueSnapshot{
		Axes:      make(map[domain.Axis]int, len(domain.Axes)),
		Reasoning: make(map[domain.Axis]domain.AxisReasoning, len(domain.Axes)),
	}

	total := 0
	for _, axis := range domain.Axes {
		est, ok := analysis[axis]
		if !ok {
			snapshot.Axes[axis] = domain.AxisDefaultValue
			snapshot.Reasoning[axis] = domain.AxisReasoning{Reason: domain.AxisDefaultReason, Confidence: 0}
			continue
		}
		confidence := domain.ClampScore(roundScore(est.Confidence))
		snapshot.Axes[axis] = domain.ClampScore(roundScore(est.Value))
		snapshot.Reasoning[axis] = domain.AxisReasoning{Reason: est.Reason, Confidence: confidence}
		total += confidence
	}
	snapshot.OverallConfidence = int(math.Round(float64(total) / float64(len(domain.Axes))))
	return snapshot
}

func roundScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Max(math.Min(v, 1000), -1000)))
}

// PatchAxes corrige valores del snapshot mas reciente sin crear uno nuevo ni tocar el orden.
func (s *ValueSnapshotService) PatchAxes(ctx context.Context, id domain.Identity, axes map[domain.Axis]int) (domain.ValueSnapshot, error) {
	if len(axes) == 0 {
		return domain.ValueSnapshot{}, fmt.Errorf("no axes to patch: %w", domain.ErrInvalidInput)
	}
	for axis, v := range axes {
		if !axis.Valid() {
			return domain.ValueSnapshot{}, fmt.Errorf("axis %q: %w", axis, domain.ErrInvalidInput)
		}
		if v < 0 || v > 100 {
			return domain.ValueSnapshot{}, fmt.Errorf("axis %s value %d out of range: %w", axis, v, domain.ErrInvalidInput)
		}
	}

	hist, err := s.store.ListSnapshots(ctx, id, false)
	if err != nil {
		return domain.ValueSnapshot{}, fmt.Errorf("list snapshots: %w", err)
	}
	if hist.Current == nil {
		return domain.ValueSnapshot{}, fmt.Errorf("no current snapshot: %w", domain.ErrNotFound)
	}

	current := *hist.Current
	merged := make(map[domain.Axis]int, len(domain.Axes))
	for k, v := range current.Axes {
		merged[k] = v
	}
	for k, v := range axes {
		merged[k] = v
	}

	now := s.now()
	if err := s.store.UpdateSnapshotAxes(ctx, id, current.ID, merged, now); err != nil {
		return domain.ValueSnapshot{}, fmt.Errorf("patch snapshot %s: %w", current.ID, err)
	}
	current.Axes = merged
	if now.After(current.LastUpdated) {
		current.LastUpdated = now
	}
	return current, nil
}

func (s *ValueSnapshotService) History(ctx context.Context, id domain.Identity, includeHistory bool) (domain.SnapshotHistory, error) {
	return s.store.ListSnapshots(ctx, id, includeHistory)
}
