package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"career-compass/internal/domain"
)

type progressKey struct {
	kind      domain.ProgressKind
	owner     string
	moduleID  string
	sessionID string
}

// MemoryStore implementa Backend y DeviceStore en memoria.
// Solo lo usan los tests; sin DATABASE_URL el servidor no tiene backend remoto.
type MemoryStore struct {
	mu        sync.RWMutex
	progress  map[progressKey]domain.ProgressRecord
	insights  map[string]domain.UserInsights
	snapshots map[string]domain.ValueSnapshot
	meta      map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress:  make(map[progressKey]domain.ProgressRecord),
		insights:  make(map[string]domain.UserInsights),
		snapshots: make(map[string]domain.ValueSnapshot),
		meta:      make(map[string]string),
	}
}

func (m *MemoryStore) GetProgress(_ context.Context, owner string, kind domain.ProgressKind, moduleID, sessionID string) (*domain.ProgressRecord, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.progress[progressKey{kind, owner, moduleID, sessionID}]
	if !ok {
		return nil, nil
	}
	rec = copyRecord(rec)
	return &rec, nil
}

func (m *MemoryStore) SaveProgress(_ context.Context, owner string, rec domain.ProgressRecord) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	if err := validateRecord(rec); err != nil {
		return err
	}
	rec = normalizeTimestamps(copyRecord(rec), time.Now().UTC())

	m.mu.Lock()
	defer m.mu.Unlock()
	key := progressKey{rec.Kind, owner, rec.ModuleID, rec.SessionID}
	if prev, ok := m.progress[key]; ok {
		rec.CreatedAt = prev.CreatedAt
		if prev.LastUpdated.After(rec.LastUpdated) {
			rec.LastUpdated = prev.LastUpdated
		}
	}
	m.progress[key] = rec
	return nil
}

func (m *MemoryStore) MergeProgress(_ context.Context, owner string, rec domain.ProgressRecord) (bool, error) {
	if err := requireOwner(owner); err != nil {
		return false, err
	}
	if err := validateRecord(rec); err != nil {
		return false, err
	}
	rec = normalizeTimestamps(copyRecord(rec), time.Now().UTC())

	m.mu.Lock()
	defer m.mu.Unlock()
	key := progressKey{rec.Kind, owner, rec.ModuleID, rec.SessionID}
	if prev, ok := m.progress[key]; ok {
		if prev.LastUpdated.After(rec.LastUpdated) {
			return false, nil
		}
		rec.CreatedAt = prev.CreatedAt
		rec.Completed = rec.Completed || prev.Completed
	}
	m.progress[key] = rec
	return true, nil
}

func (m *MemoryStore) ListProgress(_ context.Context, owner string, kind domain.ProgressKind, moduleID string) ([]domain.ProgressRecord, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := []domain.ProgressRecord{}
	for key, rec := range m.progress {
		if key.owner != owner || key.kind != kind {
			continue
		}
		if moduleID != "" && key.moduleID != moduleID {
			continue
		}
		out = append(out, copyRecord(rec))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.After(out[j].LastUpdated)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) GetInsights(_ context.Context, owner string) (*domain.UserInsights, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ins, ok := m.insights[owner]
	if !ok {
		return nil, nil
	}
	return &ins, nil
}

func (m *MemoryStore) SaveInsights(_ context.Context, owner string, insights domain.UserInsights) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insights[owner] = insights
	return nil
}

func (m *MemoryStore) SaveSnapshot(_ context.Context, snapshot domain.ValueSnapshot) error {
	if err := requireOwner(snapshot.OwnerID); err != nil {
		return err
	}
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}
	snapshot = copySnapshot(snapshot)

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.snapshots[snapshot.ID]; ok {
		if prev.OwnerID != snapshot.OwnerID || prev.LastUpdated.After(snapshot.LastUpdated) {
			return nil
		}
		snapshot.CreatedAt = prev.CreatedAt
	}
	m.snapshots[snapshot.ID] = snapshot
	return nil
}

func (m *MemoryStore) ListSnapshots(_ context.Context, owner string, includeHistory bool) (domain.SnapshotHistory, error) {
	if err := requireOwner(owner); err != nil {
		return domain.SnapshotHistory{}, err
	}
	m.mu.RLock()
	var ordered []domain.ValueSnapshot
	for _, s := range m.snapshots {
		if s.OwnerID == owner {
			ordered = append(ordered, copySnapshot(s))
		}
	}
	m.mu.RUnlock()

	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].ID > ordered[j].ID
	})
	if !includeHistory && len(ordered) > snapshotPageSize {
		ordered = ordered[:snapshotPageSize]
	}
	return domain.NewSnapshotHistory(ordered, includeHistory), nil
}

func (m *MemoryStore) UpdateSnapshotAxes(_ context.Context, owner, snapshotID string, axes map[domain.Axis]int, lastUpdated time.Time) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[snapshotID]
	if !ok || s.OwnerID != owner {
		return fmt.Errorf("snapshot %s: %w", snapshotID, domain.ErrNotFound)
	}
	s.Axes = make(map[domain.Axis]int, len(axes))
	for k, v := range axes {
		s.Axes[k] = v
	}
	if lastUpdated.After(s.LastUpdated) {
		s.LastUpdated = lastUpdated.UTC()
	}
	m.snapshots[snapshotID] = s
	return nil
}

func (m *MemoryStore) DeleteAllForOwner(_ context.Context, owner string) (domain.ErasureCounts, error) {
	if err := requireOwner(owner); err != nil {
		return domain.ErasureCounts{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var counts domain.ErasureCounts
	for key := range m.progress {
		if key.owner != owner {
			continue
		}
		if key.kind == domain.KindModuleProgress {
			counts.ModuleProgress++
		} else {
			counts.InteractiveProgress++
		}
		delete(m.progress, key)
	}
	if _, ok := m.insights[owner]; ok {
		counts.Insights = 1
		delete(m.insights, owner)
	}
	for id, s := range m.snapshots {
		if s.OwnerID == owner {
			counts.ValueSnapshots++
			delete(m.snapshots, id)
		}
	}
	return counts, nil
}

func (m *MemoryStore) HasData(_ context.Context, owner string) (bool, error) {
	if err := requireOwner(owner); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for key := range m.progress {
		if key.owner == owner {
			return true, nil
		}
	}
	if _, ok := m.insights[owner]; ok {
		return true, nil
	}
	for _, s := range m.snapshots {
		if s.OwnerID == owner {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) DeviceToken(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := m.meta[metaDeviceToken]
	if token == "" {
		token = uuid.NewString()
		m.meta[metaDeviceToken] = token
	}
	return token, nil
}

func (m *MemoryStore) MigrationState(_ context.Context) (domain.MigrationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v := m.meta[metaMigrationState]; v != "" {
		return domain.MigrationState(v), nil
	}
	return domain.MigrationNotStarted, nil
}

func (m *MemoryStore) MigratedAccount(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta[metaMigrationAccount], nil
}

func (m *MemoryStore) SetMigrationState(_ context.Context, state domain.MigrationState, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := domain.MigrationState(m.meta[metaMigrationState])
	if current == "" {
		current = domain.MigrationNotStarted
	}
	if err := checkMigrationTransition(current, state); err != nil {
		return err
	}
	m.meta[metaMigrationState] = string(state)
	if accountID != "" {
		m.meta[metaMigrationAccount] = accountID
	}
	return nil
}

func copyRecord(rec domain.ProgressRecord) domain.ProgressRecord {
	if rec.Payload != nil {
		rec.Payload = append(domain.Payload(nil), rec.Payload...)
	}
	return rec
}

func copySnapshot(s domain.ValueSnapshot) domain.ValueSnapshot {
	if s.Axes != nil {
		axes := make(map[domain.Axis]int, len(s.Axes))
		for k, v := range s.Axes {
			axes[k] = v
		}
		s.Axes = axes
	}
	if s.Reasoning != nil {
		reasoning := make(map[domain.Axis]domain.AxisReasoning, len(s.Reasoning))
		for k, v := range s.Reasoning {
			reasoning[k] = v
		}
		s.Reasoning = reasoning
	}
	return s
}
