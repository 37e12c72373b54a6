package domain

import "time"

// UserInsights es un cache derivado por owner; cada regeneracion lo reemplaza entero.
type UserInsights struct {
	CareerThinking  []string  `json:"career_thinking"`
	CurrentConcerns []string  `json:"current_concerns"`
	ThoughtFlow     []string  `json:"thought_flow"`
	Patterns        []string  `json:"patterns"`
	LastAnalyzed    time.Time `json:"last_analyzed"`
}

// InsightsAnalysis es la respuesta del Analyzer antes de sellarla con LastAnalyzed.
type InsightsAnalysis struct {
	CareerThinking  []string `json:"careerThinking"`
	CurrentConcerns []string `json:"currentConcerns"`
	ThoughtFlow     []string `json:"thoughtFlow"`
	Patterns        []string `json:"patterns"`
}

func (a InsightsAnalysis) Empty() bool {
	return len(a.CareerThinking) == 0 && len(a.CurrentConcerns) == 0 && len(a.ThoughtFlow) == 0 && len(a.Patterns) == 0
}
