package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"career-compass/internal/domain"
	"career-compass/internal/llm"
)

// Analyzer es el colaborador externo que convierte texto en datos tipados.
type Analyzer interface {
	AnalyzeValues(ctx context.Context, transcript []domain.Message) (domain.ValueAnalysis, error)
	AnalyzeInsights(ctx context.Context, text string) (domain.InsightsAnalysis, error)
}

var errEmptyAnalysis = errors.New("analyzer returned no content")

// LLMAnalyzer implementa Analyzer sobre un LLMClient.
type LLMAnalyzer struct {
	llmClient llm.LLMClient
	logger    *zap.Logger
}

func NewLLMAnalyzer(llmClient llm.LLMClient, logger *zap.Logger) *LLMAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMAnalyzer{llmClient: llmClient, logger: logger}
}

const valuesSystemPrompt = `Eres un orientador vocacional que lee una conversacion entre un coach y una persona.
Estima donde se ubica la persona en cada uno de estos ejes de valores, de 0 a 100:
- money_vs_meaning: 0 = prioriza el dinero, 100 = prioriza el sentido.
- stability_vs_adventure: 0 = estabilidad, 100 = aventura.
- autonomy_vs_structure: 0 = autonomia, 100 = estructura.
- individual_vs_team: 0 = trabajo individual, 100 = trabajo en equipo.
- ambition_vs_balance: 0 = ambicion, 100 = equilibrio de vida.
- depth_vs_breadth: 0 = especializacion, 100 = amplitud.
- recognition_vs_impact: 0 = reconocimiento, 100 = impacto.
Para cada eje da una razon breve basada en lo que dijo la persona y una confianza de 0 a 100.
Si no hay evidencia para un eje, omitelo.
Devuelve SOLO un JSON con este formato:
{"money_vs_meaning": {"value": 70, "reason": "...", "confidence": 60}, ...}`

const insightsSystemPrompt = `Eres un orientador vocacional. Lee lo que escribio una persona en distintos modulos y resume:
- careerThinking: como piensa hoy sobre su carrera.
- currentConcerns: preocupaciones actuales.
- thoughtFlow: como evoluciona su razonamiento.
- patterns: temas que se repiten.
Maximo 5 frases cortas por categoria, en el idioma de la persona.
Devuelve SOLO un JSON con este formato:
{"careerThinking": [], "currentConcerns": [], "thoughtFlow": [], "patterns": []}`

type axisEntry struct {
	Value      *float64 `json:"value"`
	Reason     string   `json:"reason"`
	Confidence *float64 `json:"confidence"`
}

func (a *LLMAnalyzer) AnalyzeValues(ctx context.Context, transcript []domain.Message) (domain.ValueAnalysis, error) {
	raw, err := a.llmClient.Generate(ctx, valuesSystemPrompt, formatTranscript(transcript))
	if err != nil {
		return nil, fmt.Errorf("llm values: %w", err)
	}

	var entries map[string]axisEntry
	if err := decodeLLMJSON(raw, &entries); err != nil {
		a.logger.Warn("values analysis unparseable", zap.Error(err), zap.Int("raw_len", len(raw)))
		return nil, err
	}

	out := make(domain.ValueAnalysis, len(domain.Axes))
	for key, e := range entries {
		axis := domain.Axis(strings.ToLower(strings.TrimSpace(key)))
		if !axis.Valid() || e.Value == nil {
			continue
		}
		est := domain.AxisEstimate{Value: *e.Value, Reason: strings.TrimSpace(e.Reason)}
		if e.Confidence != nil {
			est.Confidence = *e.Confidence
		}
		out[axis] = est
	}
	return out, nil
}

func (a *LLMAnalyzer) AnalyzeInsights(ctx context.Context, text string) (domain.InsightsAnalysis, error) {
	raw, err := a.llmClient.Generate(ctx, insightsSystemPrompt, text)
	if err != nil {
		return domain.InsightsAnalysis{}, fmt.Errorf("llm insights: %w", err)
	}
	var out domain.InsightsAnalysis
	if err := decodeLLMJSON(raw, &out); err != nil {
		a.logger.Warn("insights analysis unparseable", zap.Error(err), zap.Int("raw_len", len(raw)))
		return domain.InsightsAnalysis{}, err
	}
	if out.Empty() {
		return domain.InsightsAnalysis{}, errEmptyAnalysis
	}
	return out, nil
}

func formatTranscript(transcript []domain.Message) string {
	var b strings.Builder
	for _, m := range transcript {
		speaker := "Persona"
		if m.Role == domain.RoleAssistant {
			speaker = "Coach"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("\n")
	}
	return b.String()
}
