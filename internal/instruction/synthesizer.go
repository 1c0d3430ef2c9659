package instruction

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
	"github.com/satriahrh/kundli/server/internal/memory"
)

const astrologyLookupTimeout = 2 * time.Second

// SessionConfig is the persona part of an upstream session configuration
type SessionConfig struct {
	Persona      *entities.Persona
	Instructions string
	Voice        string
}

// Synthesizer gathers the inputs of a turn from the stores and records turns
// back into memory. Both mediators share one instance.
type Synthesizer struct {
	catalog      repositories.PersonaCatalog
	states       repositories.UserStateStore
	memory       *memory.Memory
	profiles     repositories.AstrologyProfiles
	defaultVoice string
	logger       *zap.Logger
}

// NewSynthesizer creates a synthesizer. profiles may be nil.
func NewSynthesizer(
	catalog repositories.PersonaCatalog,
	states repositories.UserStateStore,
	mem *memory.Memory,
	profiles repositories.AstrologyProfiles,
	defaultVoice string,
	logger *zap.Logger,
) *Synthesizer {
	return &Synthesizer{
		catalog:      catalog,
		states:       states,
		memory:       mem,
		profiles:     profiles,
		defaultVoice: defaultVoice,
		logger:       logger,
	}
}

// Persona looks up a persona, returning nil when it is unknown
func (s *Synthesizer) Persona(personaID string) *entities.Persona {
	if personaID == "" {
		return nil
	}
	p, ok := s.catalog.Get(personaID)
	if !ok {
		return nil
	}
	return p
}

// Session returns the base prompt and voice for a persona, falling back to the
// default instruction for unknown personas
func (s *Synthesizer) Session(personaID string) SessionConfig {
	p := s.Persona(personaID)
	if p == nil {
		return SessionConfig{Instructions: DefaultSessionPrompt, Voice: s.defaultVoice}
	}

	prompt := p.SystemPrompt
	if prompt == "" {
		prompt = DefaultSessionPrompt
	}
	if line := s.catalog.LanguageInstruction(p.Language); line != "" {
		prompt += "\n\n" + line
	}
	voice := s.catalog.Voice(p.VoiceID)
	if voice == "" {
		voice = s.defaultVoice
	}
	return SessionConfig{Persona: p, Instructions: prompt, Voice: voice}
}

// ForTurn builds the instruction for the user's next turn. It must be called
// before that turn is recorded.
func (s *Synthesizer) ForTurn(ctx context.Context, userID, personaID string, mode Mode) Instruction {
	p := s.Persona(personaID)
	in := Input{
		Persona:          p,
		Fragment:         s.states.Fragment(userID),
		History:          s.memory.All(userID),
		AstrologyContext: s.astrologyContext(ctx, userID),
		Mode:             mode,
	}
	if p != nil {
		in.LanguageLine = s.catalog.LanguageInstruction(p.Language)
	}
	return Build(in)
}

// History returns the recent turns of a user
func (s *Synthesizer) History(userID string, n int) []entities.Turn {
	return s.memory.Recent(userID, n)
}

// RecordUser stores a user turn flagged with the completion state at this
// instant, then runs the extraction hook on it
func (s *Synthesizer) RecordUser(userID, content string) entities.Turn {
	turn := entities.NewTurn(entities.TurnRoleUser, content, s.states.Fragment(userID).Complete())
	s.memory.Append(userID, turn)

	if found := Extract(content); found != (entities.ProfileFragment{}) {
		updated := s.states.UpdateFragment(userID, found)
		s.logger.Debug("Profile fields extracted",
			zap.String("userID", userID),
			zap.Strings("missing", fieldNames(updated.Missing())))
	}
	return turn
}

// RecordAssistant scrubs an assistant reply and stores it as a turn. The
// scrubbed text is returned for delivery.
func (s *Synthesizer) RecordAssistant(userID, content string) string {
	clean := Scrub(content)
	if clean == "" {
		return clean
	}
	s.memory.Append(userID, entities.NewTurn(entities.TurnRoleAssistant, clean, s.states.Fragment(userID).Complete()))
	return clean
}

func (s *Synthesizer) astrologyContext(ctx context.Context, userID string) string {
	if s.profiles == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, astrologyLookupTimeout)
	defer cancel()

	text, ok, err := s.profiles.ContextForAI(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to load astrology profile", zap.String("userID", userID), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return text
}

func fieldNames(fields []entities.ProfileField) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}
