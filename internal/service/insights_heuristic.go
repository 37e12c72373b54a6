package service

import (
	"sort"
	"strings"
	"unicode"

	"career-compass/internal/domain"
)

// maxInsightsPerCategory acota cada lista de la heuristica.
const maxInsightsPerCategory = 5

var careerSignals = []string{
	"carrera", "trabajo", "empleo", "profesion", "puesto", "empresa", "rubro", "estudiar", "emprender",
	"career", "job", "work", "profession", "company", "role", "industry", "study", "startup",
}

var concernSignals = []string{
	"me preocupa", "preocup", "miedo", "ansiedad", "duda", "no se", "no sé", "inseguro", "insegura", "estres", "estrés",
	"worried", "worry", "afraid", "anxious", "unsure", "not sure", "stress", "scared",
}

var thoughtSignals = []string{
	"creo que", "pienso", "quiero", "quisiera", "me gustaria", "me gustaría", "quizas", "quizás", "tal vez", "decidi", "decidí",
	"i think", "i want", "i'd like", "maybe", "i decided", "i feel",
}

// patternThemes agrupa sinonimos bajo una etiqueta; un tema es patron si aparece en 2+ frases.
var patternThemes = map[string][]string{
	"dinero":         {"dinero", "sueldo", "salario", "plata", "money", "salary", "pay"},
	"estabilidad":    {"estabilidad", "estable", "seguridad", "stability", "stable", "security"},
	"autonomia":      {"autonomia", "autonomía", "libertad", "independ", "freedom", "autonomy"},
	"equipo":         {"equipo", "companeros", "compañeros", "team", "colleagues"},
	"impacto":        {"impacto", "ayudar", "contribuir", "impact", "help"},
	"aprendizaje":    {"aprender", "crecer", "aprendizaje", "learn", "grow"},
	"reconocimiento": {"reconocimiento", "reconocido", "recognition", "recognized"},
	"equilibrio":     {"equilibrio", "balance", "familia", "tiempo libre", "family"},
}

// HeuristicInsights es el modo degradado: busca palabras clave en el mismo texto que veria el Analyzer.
func HeuristicInsights(text string) domain.InsightsAnalysis {
	out := domain.InsightsAnalysis{
		CareerThinking:  []string{},
		CurrentConcerns: []string{},
		ThoughtFlow:     []string{},
		Patterns:        []string{},
	}

	themeHits := make(map[string]int)
	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		if containsAny(lower, careerSignals) {
			out.CareerThinking = appendCapped(out.CareerThinking, sentence)
		}
		if containsAny(lower, concernSignals) {
			out.CurrentConcerns = appendCapped(out.CurrentConcerns, sentence)
		}
		if containsAny(lower, thoughtSignals) {
			out.ThoughtFlow = appendCapped(out.ThoughtFlow, sentence)
		}
		for theme, words := range patternThemes {
			if containsAny(lower, words) {
				themeHits[theme]++
			}
		}
	}

	themes := make([]string, 0, len(themeHits))
	for theme, n := range themeHits {
		if n >= 2 {
			themes = append(themes, theme)
		}
	}
	sort.Slice(themes, func(i, j int) bool {
		if themeHits[themes[i]] != themeHits[themes[j]] {
			return themeHits[themes[i]] > themeHits[themes[j]]
		}
		return themes[i] < themes[j]
	})
	for _, theme := range themes {
		out.Patterns = appendCapped(out.Patterns, "Menciona con frecuencia: "+theme)
	}
	return out
}

func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n' || r == '¿' || r == '¡'
	})
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimFunc(s, unicode.IsSpace)
		if len([]rune(s)) >= 3 {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func appendCapped(list []string, item string) []string {
	if len(list) >= maxInsightsPerCategory {
		return list
	}
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
