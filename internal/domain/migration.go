package domain

import "time"

// MigrationState solo avanza: not_started -> in_progress -> complete.
type MigrationState string

const (
	MigrationNotStarted MigrationState = "not_started"
	MigrationInProgress MigrationState = "in_progress"
	MigrationComplete   MigrationState = "complete"
)

func (s MigrationState) rank() int {
	switch s {
	case MigrationInProgress:
		return 1
	case MigrationComplete:
		return 2
	default:
		return 0
	}
}

// CanAdvanceTo permite quedarse en el mismo estado (re-ejecutar in_progress) o avanzar.
func (s MigrationState) CanAdvanceTo(next MigrationState) bool {
	return next.rank() >= s.rank()
}

type MigrationPhase string

const (
	MigrationPhaseIdle      MigrationPhase = "idle"
	MigrationPhaseMigrating MigrationPhase = "migrating"
	MigrationPhaseCompleted MigrationPhase = "completed"
	MigrationPhaseFailed    MigrationPhase = "failed"
)

type MigrationCounts struct {
	ModuleProgress      int `json:"module_progress"`
	InteractiveProgress int `json:"interactive_progress"`
	Insights            int `json:"insights"`
	ValueSnapshots      int `json:"value_snapshots"`
	// KeptRemote cuenta los registros donde la copia remota era mas reciente.
	KeptRemote int `json:"kept_remote"`
}

// MigrationStatus es el estado transitorio que ve la UI.
type MigrationStatus struct {
	Phase     MigrationPhase  `json:"phase"`
	Counts    MigrationCounts `json:"counts"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
