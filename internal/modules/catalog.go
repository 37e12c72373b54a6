package modules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"career-compass/internal/domain"
)

//go:embed modules.yaml
var defaultCatalog []byte

// DefaultCanonicalSession es la sesion que reanudan los modulos instant si no declaran otra.
const DefaultCanonicalSession = "main"

type Kind string

const (
	KindChat        Kind = "chat"
	KindInteractive Kind = "interactive"
)

// ProgressKind indica en que coleccion se guarda el progreso del modulo.
func (k Kind) ProgressKind() domain.ProgressKind {
	if k == KindInteractive {
		return domain.KindInteractiveProgress
	}
	return domain.KindModuleProgress
}

type Module struct {
	ID               string `yaml:"id" json:"id"`
	Title            string `yaml:"title" json:"title"`
	Kind             Kind   `yaml:"kind" json:"kind"`
	Instant          bool   `yaml:"instant" json:"instant"`
	CanonicalSession string `yaml:"canonical_session" json:"canonical_session,omitempty"`
}

type file struct {
	Modules []Module `yaml:"modules"`
}

// Catalog es de solo lectura una vez cargado.
type Catalog struct {
	byID  map[string]Module
	order []string
}

// Load lee el catalogo desde path; con path vacio usa el embebido.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read modules file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse modules: %w", err)
	}

	c := &Catalog{byID: make(map[string]Module, len(f.Modules))}
	for i, m := range f.Modules {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return nil, fmt.Errorf("module #%d: missing id: %w", i, domain.ErrInvalidInput)
		}
		if m.Kind != KindChat && m.Kind != KindInteractive {
			return nil, fmt.Errorf("module %s: kind %q: %w", m.ID, m.Kind, domain.ErrInvalidInput)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("module %s: duplicated id: %w", m.ID, domain.ErrInvalidInput)
		}
		if m.Instant && m.CanonicalSession == "" {
			m.CanonicalSession = DefaultCanonicalSession
		}
		c.byID[m.ID] = m
		c.order = append(c.order, m.ID)
	}
	return c, nil
}

func (c *Catalog) Lookup(id string) (Module, error) {
	m, ok := c.byID[id]
	if !ok {
		return Module{}, fmt.Errorf("module %q: %w", id, domain.ErrUnknownModule)
	}
	return m, nil
}

// All devuelve los modulos en el orden del archivo.
func (c *Catalog) All() []Module {
	out := make([]Module, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
