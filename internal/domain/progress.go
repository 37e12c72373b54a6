package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid indica si el rol pertenece al transcript de un modulo.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressKind distingue las dos colecciones de progreso.
type ProgressKind string

const (
	KindModuleProgress      ProgressKind = "module_progress"
	KindInteractiveProgress ProgressKind = "interactive_progress"
)

func (k ProgressKind) Valid() bool {
	return k == KindModuleProgress || k == KindInteractiveProgress
}

// ProgressKinds lista los tipos en el orden en que se migran.
var ProgressKinds = []ProgressKind{KindModuleProgress, KindInteractiveProgress}

// Payload es un blob opaco: el almacenamiento lo guarda y lo devuelve sin tocarlo.
type Payload []byte

// MarshalJSON emite el payload tal cual si ya es JSON; si no, como string base64.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	if json.Valid(p) {
		return []byte(p), nil
	}
	return json.Marshal([]byte(p))
}

// UnmarshalJSON conserva el JSON recibido byte a byte.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	*p = append((*p)[:0], data...)
	return nil
}

// ProgressRecord es el sobre comun persistido para ambos tipos de progreso.
type ProgressRecord struct {
	Kind        ProgressKind `json:"kind"`
	ModuleID    string       `json:"module_id"`
	SessionID   string       `json:"session_id"`
	Payload     Payload      `json:"payload,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	LastUpdated time.Time    `json:"last_updated"`
	Completed   bool         `json:"completed"`
}

// ModuleProgress es el progreso de un modulo tipo chat.
type ModuleProgress struct {
	ModuleID    string    `json:"module_id"`
	SessionID   string    `json:"session_id"`
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	Completed   bool      `json:"completed"`
}

func (p ModuleProgress) Record() (ProgressRecord, error) {
	msgs := p.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	body, err := json.Marshal(msgs)
	if err != nil {
		return ProgressRecord{}, fmt.Errorf("marshal messages: %w", err)
	}
	return ProgressRecord{
		Kind:        KindModuleProgress,
		ModuleID:    p.ModuleID,
		SessionID:   p.SessionID,
		Payload:     body,
		CreatedAt:   p.CreatedAt,
		LastUpdated: p.LastUpdated,
		Completed:   p.Completed,
	}, nil
}

func ModuleProgressFromRecord(rec ProgressRecord) (ModuleProgress, error) {
	if rec.Kind != KindModuleProgress {
		return ModuleProgress{}, fmt.Errorf("record kind %q: %w", rec.Kind, ErrModuleKindMismatch)
	}
	var msgs []Message
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, &msgs); err != nil {
			return ModuleProgress{}, fmt.Errorf("unmarshal messages: %w", err)
		}
	}
	return ModuleProgress{
		ModuleID:    rec.ModuleID,
		SessionID:   rec.SessionID,
		Messages:    msgs,
		CreatedAt:   rec.CreatedAt,
		LastUpdated: rec.LastUpdated,
		Completed:   rec.Completed,
	}, nil
}

// UserText concatena solo lo que escribio el usuario.
func (p ModuleProgress) UserText() []string {
	out := make([]string, 0, len(p.Messages))
	for _, m := range p.Messages {
		if m.Role == RoleUser && m.Content != "" {
			out = append(out, m.Content)
		}
	}
	return out
}

// InteractiveProgress es el progreso de un modulo tipo juego; Data pertenece al modulo.
type InteractiveProgress struct {
	ModuleID    string    `json:"module_id"`
	SessionID   string    `json:"session_id"`
	Data        Payload   `json:"data"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	Completed   bool      `json:"completed"`
}

func (p InteractiveProgress) Record() ProgressRecord {
	return ProgressRecord{
		Kind:        KindInteractiveProgress,
		ModuleID:    p.ModuleID,
		SessionID:   p.SessionID,
		Payload:     p.Data,
		CreatedAt:   p.CreatedAt,
		LastUpdated: p.LastUpdated,
		Completed:   p.Completed,
	}
}

func InteractiveProgressFromRecord(rec ProgressRecord) (InteractiveProgress, error) {
	if rec.Kind != KindInteractiveProgress {
		return InteractiveProgress{}, fmt.Errorf("record kind %q: %w", rec.Kind, ErrModuleKindMismatch)
	}
	return InteractiveProgress{
		ModuleID:    rec.ModuleID,
		SessionID:   rec.SessionID,
		Data:        rec.Payload,
		CreatedAt:   rec.CreatedAt,
		LastUpdated: rec.LastUpdated,
		Completed:   rec.Completed,
	}, nil
}

// ErasureCounts reporta cuantas filas se borraron por coleccion.
type ErasureCounts struct {
	ModuleProgress      int64 `json:"module_progress"`
	InteractiveProgress int64 `json:"interactive_progress"`
	Insights            int64 `json:"insights"`
	ValueSnapshots      int64 `json:"value_snapshots"`
}

func (c ErasureCounts) Total() int64 {
	return c.ModuleProgress + c.InteractiveProgress + c.Insights + c.ValueSnapshots
}
