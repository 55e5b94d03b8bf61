// Package catalog provides the static content of the app: encounters,
// temperaments and the narrator system prompts.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/ashureev/junrei/internal/domain"
	"gopkg.in/yaml.v3"
)

// DefaultEncounterID is used when a requested encounter has no prompt.
const DefaultEncounterID = "little-prince"

//go:embed catalog.yaml
var catalogYAML []byte

type document struct {
	Encounters   []domain.Encounter       `yaml:"encounters"`
	Temperaments []domain.TemperamentInfo `yaml:"temperaments"`
	Prompts      struct {
		MarkerRules string            `yaml:"marker_rules"`
		Onboarding  string            `yaml:"onboarding"`
		Encounters  map[string]string `yaml:"encounters"`
	} `yaml:"prompts"`
}

// Catalog is the parsed content set. It is read-only after Load.
type Catalog struct {
	doc        document
	encounters map[string]*domain.Encounter
	temps      map[domain.Temperament]*domain.TemperamentInfo
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(catalogYAML)
}

// MustLoad is Load for program initialisation.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		doc:        doc,
		encounters: make(map[string]*domain.Encounter, len(doc.Encounters)),
		temps:      make(map[domain.Temperament]*domain.TemperamentInfo, len(doc.Temperaments)),
	}
	for i := range doc.Encounters {
		e := &c.doc.Encounters[i]
		if e.ID == "" {
			return nil, fmt.Errorf("encounter %d has no id", i)
		}
		if _, dup := c.encounters[e.ID]; dup {
			return nil, fmt.Errorf("duplicate encounter %q", e.ID)
		}
		for _, t := range e.TemperamentAffinity {
			if !t.Valid() {
				return nil, fmt.Errorf("encounter %q: unknown temperament %q", e.ID, t)
			}
		}
		c.encounters[e.ID] = e
	}
	for i := range doc.Temperaments {
		t := &c.doc.Temperaments[i]
		if !t.ID.Valid() {
			return nil, fmt.Errorf("unknown temperament %q", t.ID)
		}
		c.temps[t.ID] = t
	}
	return c, nil
}

// Encounter looks up an encounter by id.
func (c *Catalog) Encounter(id string) (*domain.Encounter, bool) {
	e, ok := c.encounters[id]
	return e, ok
}

// All returns every encounter in catalog order.
func (c *Catalog) All() []domain.Encounter {
	return append([]domain.Encounter(nil), c.doc.Encounters...)
}

// Encounters returns the encounters of a tier in catalog order.
func (c *Catalog) Encounters(tier domain.Tier) []domain.Encounter {
	var out []domain.Encounter
	for _, e := range c.doc.Encounters {
		if e.Tier == tier {
			out = append(out, e)
		}
	}
	return out
}

// Temperament looks up display info for a temperament.
func (c *Catalog) Temperament(t domain.Temperament) (*domain.TemperamentInfo, bool) {
	info, ok := c.temps[t]
	return info, ok
}

// DialoguePrompt returns the narrator instruction for an encounter, falling
// back to DefaultEncounterID for unknown ids.
func (c *Catalog) DialoguePrompt(encounterID string) string {
	body, ok := c.doc.Prompts.Encounters[encounterID]
	if !ok {
		body = c.doc.Prompts.Encounters[DefaultEncounterID]
	}
	return joinPrompt(body, c.doc.Prompts.MarkerRules)
}

// OnboardingPrompt returns the temperament classifier instruction.
func (c *Catalog) OnboardingPrompt() string {
	return strings.TrimSpace(c.doc.Prompts.Onboarding)
}

func joinPrompt(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
	}
	return b.String()
}
