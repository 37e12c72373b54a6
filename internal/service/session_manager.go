package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"career-compass/internal/domain"
	"career-compass/internal/modules"
)

// ProgressStore es la parte del StorageRouter que usa SessionManager.
type ProgressStore interface {
	GetProgress(ctx context.Context, id domain.Identity, kind domain.ProgressKind, moduleID, sessionID string) (*domain.ProgressRecord, error)
	SaveProgress(ctx context.Context, id domain.Identity, rec domain.ProgressRecord) error
	ListProgress(ctx context.Context, id domain.Identity, kind domain.ProgressKind, moduleID string) ([]domain.ProgressRecord, error)
}

type ModuleCatalog interface {
	Lookup(id string) (modules.Module, error)
}

// SessionEntry es lo que necesita la UI al entrar a un modulo.
// Si NeedsChoice es true el usuario elige entre Sessions o empieza una nueva.
type SessionEntry struct {
	Module      modules.Module          `json:"module"`
	SessionID   string                  `json:"session_id,omitempty"`
	Progress    *domain.ProgressRecord  `json:"progress,omitempty"`
	Sessions    []domain.ProgressRecord `json:"sessions"`
	NeedsChoice bool                    `json:"needs_choice"`
}

// SessionManager da a cada corrida de un modulo un sessionId estable.
// La politica "instant" sale del catalogo, no de casos especiales aca.
type SessionManager struct {
	store   ProgressStore
	catalog ModuleCatalog
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock vive en locks mientras refs > 0.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessionManager(store ProgressStore, catalog ModuleCatalog, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		store:   store,
		catalog: catalog,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return ulid.Make().String() },
		locks:   make(map[string]*sessionLock),
	}
}

// ListSessions devuelve las sesiones del modulo, la mas recientemente actualizada primero.
func (m *SessionManager) ListSessions(ctx context.Context, id domain.Identity, moduleID string) ([]domain.ProgressRecord, error) {
	mod, err := m.catalog.Lookup(moduleID)
	if err != nil {
		return nil, err
	}
	return m.store.ListProgress(ctx, id, mod.Kind.ProgressKind(), mod.ID)
}

// StartNew no persiste nada: el progreso nace con el primer guardado.
func (m *SessionManager) StartNew(ctx context.Context, id domain.Identity, moduleID string) (string, error) {
	mod, err := m.catalog.Lookup(moduleID)
	if err != nil {
		return "", err
	}
	if mod.Instant {
		return mod.CanonicalSession, nil
	}
	return m.newID(), nil
}

// Resume devuelve nil, nil si la sesion no existe.
func (m *SessionManager) Resume(ctx context.Context, id domain.Identity, moduleID, sessionID string) (*domain.ProgressRecord, error) {
	mod, err := m.catalog.Lookup(moduleID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required: %w", domain.ErrInvalidInput)
	}
	return m.store.GetProgress(ctx, id, mod.Kind.ProgressKind(), mod.ID, sessionID)
}

func (m *SessionManager) Enter(ctx context.Context, id domain.Identity, moduleID string) (SessionEntry, error) {
	mod, err := m.catalog.Lookup(moduleID)
	if err != nil {
		return SessionEntry{}, err
	}
	entry := SessionEntry{Module: mod, Sessions: []domain.ProgressRecord{}}

	if mod.Instant {
		entry.SessionID = mod.CanonicalSession
		entry.Progress, err = m.store.GetProgress(ctx, id, mod.Kind.ProgressKind(), mod.ID, mod.CanonicalSession)
		if err != nil {
			return SessionEntry{}, err
		}
		return entry, nil
	}

	sessions, err := m.store.ListProgress(ctx, id, mod.Kind.ProgressKind(), mod.ID)
	if err != nil {
		return SessionEntry{}, err
	}
	if len(sessions) == 0 {
		entry.SessionID = m.newID()
		return entry, nil
	}
	entry.Sessions = sessions
	entry.NeedsChoice = true
	return entry, nil
}

// AppendMessage agrega un mensaje al transcript; crea el progreso con el primer mensaje.
func (m *SessionManager) AppendMessage(ctx context.Context, id domain.Identity, moduleID, sessionID string, msg domain.Message) (domain.ModuleProgress, error) {
	mod, err := m.requireKind(moduleID, modules.KindChat)
	if err != nil {
		return domain.ModuleProgress{}, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return domain.ModuleProgress{}, fmt.Errorf("session id is required: %w", domain.ErrInvalidInput)
	}
	if !msg.Role.Valid() || strings.TrimSpace(msg.Content) == "" {
		return domain.ModuleProgress{}, fmt.Errorf("message role %q: %w", msg.Role, domain.ErrInvalidInput)
	}

	unlock := m.lock(id, mod.ID, sessionID)
	defer unlock()

	now := m.now()
	progress := domain.ModuleProgress{ModuleID: mod.ID, SessionID: sessionID, CreatedAt: now}
	rec, err := m.store.GetProgress(ctx, id, domain.KindModuleProgress, mod.ID, sessionID)
	if err != nil {
		return domain.ModuleProgress{}, err
	}
	if rec != nil {
		if progress, err = domain.ModuleProgressFromRecord(*rec); err != nil {
			return domain.ModuleProgress{}, err
		}
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	progress.Messages = append(progress.Messages, msg)
	progress.LastUpdated = later(progress.LastUpdated, now)

	next, err := progress.Record()
	if err != nil {
		return domain.ModuleProgress{}, err
	}
	if err := m.store.SaveProgress(ctx, id, next); err != nil {
		return domain.ModuleProgress{}, fmt.Errorf("save progress: %w", err)
	}
	return progress, nil
}

// SaveInteraction guarda el payload del modulo interactivo tal cual.
func (m *SessionManager) SaveInteraction(ctx context.Context, id domain.Identity, moduleID, sessionID string, data domain.Payload, completed bool) (domain.InteractiveProgress, error) {
	mod, err := m.requireKind(moduleID, modules.KindInteractive)
	if err != nil {
		return domain.InteractiveProgress{}, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return domain.InteractiveProgress{}, fmt.Errorf("session id is required: %w", domain.ErrInvalidInput)
	}

	unlock := m.lock(id, mod.ID, sessionID)
	defer unlock()

	now := m.now()
	progress := domain.InteractiveProgress{ModuleID: mod.ID, SessionID: sessionID, CreatedAt: now}
	rec, err := m.store.GetProgress(ctx, id, domain.KindInteractiveProgress, mod.ID, sessionID)
	if err != nil {
		return domain.InteractiveProgress{}, err
	}
	if rec != nil {
		if progress, err = domain.InteractiveProgressFromRecord(*rec); err != nil {
			return domain.InteractiveProgress{}, err
		}
	}

	progress.Data = data
	progress.Completed = progress.Completed || completed
	progress.LastUpdated = later(progress.LastUpdated, now)
	if err := m.store.SaveProgress(ctx, id, progress.Record()); err != nil {
		return domain.InteractiveProgress{}, fmt.Errorf("save progress: %w", err)
	}
	return progress, nil
}

// Complete marca la sesion como terminada. ErrNotFound si nunca se guardo.
// changed es true solo cuando esta llamada paso Completed de false a true.
func (m *SessionManager) Complete(ctx context.Context, id domain.Identity, moduleID, sessionID string) (rec domain.ProgressRecord, changed bool, err error) {
	mod, err := m.catalog.Lookup(moduleID)
	if err != nil {
		return domain.ProgressRecord{}, false, err
	}
	kind := mod.Kind.ProgressKind()

	unlock := m.lock(id, mod.ID, sessionID)
	defer unlock()

	stored, err := m.store.GetProgress(ctx, id, kind, mod.ID, sessionID)
	if err != nil {
		return domain.ProgressRecord{}, false, err
	}
	if stored == nil {
		return domain.ProgressRecord{}, false, fmt.Errorf("session %s/%s: %w", mod.ID, sessionID, domain.ErrNotFound)
	}
	if stored.Completed {
		return *stored, false, nil
	}
	stored.Completed = true
	stored.LastUpdated = later(stored.LastUpdated, m.now())
	if err := m.store.SaveProgress(ctx, id, *stored); err != nil {
		return domain.ProgressRecord{}, false, fmt.Errorf("save progress: %w", err)
	}
	m.logger.Info("session completed", zap.String("module_id", mod.ID), zap.String("session_id", sessionID))
	return *stored, true, nil
}

func (m *SessionManager) requireKind(moduleID string, kind modules.Kind) (modules.Module, error) {
	mod, err := m.catalog.Lookup(moduleID)
	if err != nil {
		return modules.Module{}, err
	}
	if mod.Kind != kind {
		return modules.Module{}, fmt.Errorf("module %s is %s: %w", mod.ID, mod.Kind, domain.ErrModuleKindMismatch)
	}
	return mod, nil
}

// lock serializa lectura-modificacion-escritura sobre una misma sesion.
func (m *SessionManager) lock(id domain.Identity, moduleID, sessionID string) func() {
	key := id.Kind.String() + "|" + id.Subject + "|" + moduleID + "|" + sessionID

	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sessionLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
