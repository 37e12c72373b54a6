package domain

import "time"

// Axis es una de las 7 dimensiones bipolares de valores.
type Axis string

const (
	AxisMoneyMeaning       Axis = "money_vs_meaning"
	AxisStabilityAdventure Axis = "stability_vs_adventure"
	AxisAutonomyStructure  Axis = "autonomy_vs_structure"
	AxisIndividualTeam     Axis = "individual_vs_team"
	AxisAmbitionBalance    Axis = "ambition_vs_balance"
	AxisDepthBreadth       Axis = "depth_vs_breadth"
	AxisRecognitionImpact  Axis = "recognition_vs_impact"
)

// Axes es el orden canonico de los ejes.
var Axes = []Axis{
	AxisMoneyMeaning,
	AxisStabilityAdventure,
	AxisAutonomyStructure,
	AxisIndividualTeam,
	AxisAmbitionBalance,
	AxisDepthBreadth,
	AxisRecognitionImpact,
}

func (a Axis) Valid() bool {
	for _, known := range Axes {
		if a == known {
			return true
		}
	}
	return false
}

const (
	AxisDefaultValue  = 50
	AxisDefaultReason = "insufficient information"
)

type AxisReasoning struct {
	Reason     string `json:"reason"`
	Confidence int    `json:"confidence"` // 0-100
}

// AxisEstimate es lo que devuelve el Analyzer para un eje.
type AxisEstimate struct {
	Value      float64 `json:"value"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// ValueAnalysis es la salida del Analyzer; un eje ausente no esta en el mapa.
type ValueAnalysis map[Axis]AxisEstimate

type ValueSnapshot struct {
	ID                string                 `json:"id"`
	OwnerID           string                 `json:"owner_id"`
	ModuleID          string                 `json:"module_id,omitempty"`
	Axes              map[Axis]int           `json:"axes"`
	Reasoning         map[Axis]AxisReasoning `json:"reasoning"`
	OverallConfidence int                    `json:"overall_confidence"`
	CreatedAt         time.Time              `json:"created_at"`
	LastUpdated       time.Time              `json:"last_updated"`
}

// SnapshotHistory ordena por CreatedAt descendente: Current = History[0], Previous = History[1].
type SnapshotHistory struct {
	Current  *ValueSnapshot  `json:"current"`
	Previous *ValueSnapshot  `json:"previous"`
	History  []ValueSnapshot `json:"history,omitempty"`
}

// NewSnapshotHistory arma el resultado a partir de filas ya ordenadas por el almacenamiento.
func NewSnapshotHistory(ordered []ValueSnapshot, includeHistory bool) SnapshotHistory {
	var h SnapshotHistory
	if len(ordered) > 0 {
		cur := ordered[0]
		h.Current = &cur
	}
	if len(ordered) > 1 {
		prev := ordered[1]
		h.Previous = &prev
	}
	if includeHistory {
		h.History = ordered
		if h.History == nil {
			h.History = []ValueSnapshot{}
		}
	}
	return h
}

// ClampScore recorta un puntaje al rango 0-100.
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
