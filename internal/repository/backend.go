package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"career-compass/internal/domain"
)

// Backend es la capacidad comun de LocalBackend y RemoteBackend.
// Toda operacion esta acotada a un owner: el token del dispositivo o el id de la cuenta.
type Backend interface {
	GetProgress(ctx context.Context, owner string, kind domain.ProgressKind, moduleID, sessionID string) (*domain.ProgressRecord, error)
	SaveProgress(ctx context.Context, owner string, rec domain.ProgressRecord) error
	// MergeProgress escribe rec solo si no es mas antiguo que el registro guardado.
	// Devuelve false cuando el registro existente gana.
	MergeProgress(ctx context.Context, owner string, rec domain.ProgressRecord) (bool, error)
	ListProgress(ctx context.Context, owner string, kind domain.ProgressKind, moduleID string) ([]domain.ProgressRecord, error)

	GetInsights(ctx context.Context, owner string) (*domain.UserInsights, error)
	SaveInsights(ctx context.Context, owner string, insights domain.UserInsights) error

	SaveSnapshot(ctx context.Context, snapshot domain.ValueSnapshot) error
	ListSnapshots(ctx context.Context, owner string, includeHistory bool) (domain.SnapshotHistory, error)
	UpdateSnapshotAxes(ctx context.Context, owner, snapshotID string, axes map[domain.Axis]int, lastUpdated time.Time) error

	DeleteAllForOwner(ctx context.Context, owner string) (domain.ErasureCounts, error)
	HasData(ctx context.Context, owner string) (bool, error)
}

// DeviceStore guarda el estado propio del dispositivo: su token anonimo y el marcador de migracion.
type DeviceStore interface {
	DeviceToken(ctx context.Context) (string, error)
	MigrationState(ctx context.Context) (domain.MigrationState, error)
	MigratedAccount(ctx context.Context) (string, error)
	SetMigrationState(ctx context.Context, state domain.MigrationState, accountID string) error
}

// LocalBackend es el backend por dispositivo.
type LocalBackend interface {
	Backend
	DeviceStore
}

const (
	metaDeviceToken      = "device_token"
	metaMigrationState   = "migration_state"
	metaMigrationAccount = "migration_account"
)

// snapshotPageSize es lo que se lee cuando solo interesan current y previous.
const snapshotPageSize = 2

func validateRecord(rec domain.ProgressRecord) error {
	if !rec.Kind.Valid() {
		return fmt.Errorf("progress kind %q: %w", rec.Kind, domain.ErrInvalidInput)
	}
	if strings.TrimSpace(rec.ModuleID) == "" || strings.TrimSpace(rec.SessionID) == "" {
		return fmt.Errorf("module and session ids are required: %w", domain.ErrInvalidInput)
	}
	return nil
}

func validateSnapshot(s domain.ValueSnapshot) error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("snapshot id is required: %w", domain.ErrInvalidInput)
	}
	return nil
}

// normalizeTimestamps completa fechas vacias sin romper created_at <= last_updated.
func normalizeTimestamps(rec domain.ProgressRecord, now time.Time) domain.ProgressRecord {
	if rec.LastUpdated.IsZero() {
		rec.LastUpdated = now
	}
	if rec.CreatedAt.IsZero() || rec.CreatedAt.After(rec.LastUpdated) {
		rec.CreatedAt = rec.LastUpdated
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.LastUpdated = rec.LastUpdated.UTC()
	return rec
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func checkMigrationTransition(current, next domain.MigrationState) error {
	if !current.CanAdvanceTo(next) {
		return fmt.Errorf("migration state %s -> %s: %w", current, next, domain.ErrInvalidInput)
	}
	return nil
}
