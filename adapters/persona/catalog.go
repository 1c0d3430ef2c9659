// Package persona loads the astrologer catalog from its JSON descriptor.
package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
)

// Descriptor is the on-disk persona document
type Descriptor struct {
	Astrologers          []entities.Persona `json:"astrologers"`
	VoiceMappings        map[string]string  `json:"voice_mappings"`
	LanguageInstructions map[string]string  `json:"language_instructions"`
}

// Catalog is an immutable set of active personas
type Catalog struct {
	personas  map[string]*entities.Persona
	ordered   []*entities.Persona
	voices    map[string]string
	languages map[string]string
}

// NewCatalog builds a catalog from a parsed descriptor. Inactive entries and
// entries without an id are skipped.
func NewCatalog(d Descriptor) *Catalog {
	c := &Catalog{
		personas:  make(map[string]*entities.Persona),
		voices:    make(map[string]string),
		languages: make(map[string]string),
	}
	for i := range d.Astrologers {
		p := d.Astrologers[i]
		if p.ID == "" || !p.IsActive() {
			continue
		}
		if _, dup := c.personas[p.ID]; dup {
			continue
		}
		c.personas[p.ID] = &p
		c.ordered = append(c.ordered, &p)
	}
	sort.SliceStable(c.ordered, func(i, j int) bool { return c.ordered[i].ID < c.ordered[j].ID })
	for k, v := range d.VoiceMappings {
		c.voices[k] = v
	}
	for k, v := range d.LanguageInstructions {
		c.languages[k] = v
	}
	return c
}

// Parse decodes a descriptor document
func Parse(data []byte) (*Catalog, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse persona descriptor: %w", err)
	}
	return NewCatalog(d), nil
}

// LoadFile reads the descriptor at path. Any failure yields an empty catalog
// so callers fall back to default instructions.
func LoadFile(path string, logger *zap.Logger) *Catalog {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("Failed to read persona descriptor", zap.String("path", path), zap.Error(err))
		return NewCatalog(Descriptor{})
	}
	c, err := Parse(data)
	if err != nil {
		logger.Error("Failed to load persona catalog", zap.String("path", path), zap.Error(err))
		return NewCatalog(Descriptor{})
	}
	logger.Info("Persona catalog loaded", zap.String("path", path), zap.Int("personas", len(c.ordered)))
	return c
}

// Get returns an active persona by id
func (c *Catalog) Get(id string) (*entities.Persona, bool) {
	p, ok := c.personas[id]
	return p, ok
}

// List returns active personas ordered by id
func (c *Catalog) List() []*entities.Persona {
	out := make([]*entities.Persona, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Voice maps a persona voice alias to the upstream voice. Unmapped aliases
// pass through unchanged.
func (c *Catalog) Voice(alias string) string {
	if v, ok := c.voices[alias]; ok && v != "" {
		return v
	}
	return alias
}

// LanguageInstruction returns the identity line for a language, if any
func (c *Catalog) LanguageInstruction(language string) string {
	return c.languages[language]
}

// Len returns the number of active personas
func (c *Catalog) Len() int {
	return len(c.ordered)
}
