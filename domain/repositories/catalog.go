package repositories

import "github.com/satriahrh/kundli/server/domain/entities"

// PersonaCatalog serves the astrologer personas loaded at startup
type PersonaCatalog interface {
	// Get returns the active persona with the given id
	Get(id string) (*entities.Persona, bool)
	// List returns every active persona
	List() []*entities.Persona
	// Voice resolves a persona voice alias to the upstream voice identifier
	Voice(alias string) string
	// LanguageInstruction returns the extra identity line for a persona language
	LanguageInstruction(language string) string
}
