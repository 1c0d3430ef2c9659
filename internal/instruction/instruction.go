// Package instruction builds the per-turn instructions that steer the upstream
// model through profile collection and the four disclosure phases.
package instruction

import (
	"fmt"
	"strings"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/internal/memory"
)

// ContextTurns is the number of recent turns quoted in the context block
const ContextTurns = 5

const turnPrefixLimit = 100

// Mode selects spoken or written rules
type Mode int

const (
	ModeVoice Mode = iota
	ModeText
)

// Input is everything a turn instruction depends on. History holds the turns
// recorded before the turn being answered.
type Input struct {
	Persona          *entities.Persona
	LanguageLine     string
	Fragment         entities.ProfileFragment
	History          []entities.Turn
	AstrologyContext string
	Mode             Mode
}

// Instruction is the synthesized guidance for one turn
type Instruction struct {
	Phase     entities.Phase
	Identity  string
	CoreRules string
	Banned    string
	Context   string
	Directive string
}

// Preamble joins identity, core rules and the banned phrase filter
func (i Instruction) Preamble() string {
	return joinBlocks(i.Identity, i.CoreRules, i.Banned)
}

// System joins all five blocks in order
func (i Instruction) System() string {
	return joinBlocks(i.Identity, i.CoreRules, i.Banned, i.Context, i.Directive)
}

// ResponseInstructions is what accompanies a response request
func (i Instruction) ResponseInstructions() string {
	return joinBlocks(i.Preamble(), i.Directive)
}

// Render is the full instruction text
func (i Instruction) Render() string {
	return i.System()
}

// PhaseFor computes the phase of the turn being answered from the history
// recorded before it
func PhaseFor(fragment entities.ProfileFragment, history []entities.Turn) entities.Phase {
	if !fragment.Complete() {
		return entities.PhaseCollection
	}
	return entities.ComputePhase(true, memory.CountPostProfile(history)+1)
}

// Build synthesizes the instruction for one turn
func Build(in Input) Instruction {
	phase := PhaseFor(in.Fragment, in.History)
	return Instruction{
		Phase:     phase,
		Identity:  identity(in.Persona, in.LanguageLine),
		CoreRules: coreRules(in.Mode),
		Banned:    bannedBlock(),
		Context:   contextBlock(in.Fragment, in.AstrologyContext, in.History),
		Directive: directive(phase, in.Fragment),
	}
}

func identity(p *entities.Persona, languageLine string) string {
	if p == nil {
		return DefaultIdentity
	}
	line := fmt.Sprintf("You are %s, an experienced Vedic astrologer.", p.Name)
	if languageLine != "" {
		line += " " + languageLine
	}
	return line
}

func coreRules(mode Mode) string {
	rules := coreRulesVoice
	if mode == ModeText {
		rules = coreRulesText
	}
	var b strings.Builder
	b.WriteString("Rules:")
	for _, r := range rules {
		b.WriteString("\n- ")
		b.WriteString(r)
	}
	return b.String()
}

func bannedBlock() string {
	var b strings.Builder
	b.WriteString("Never say any of these phrases, in any form:")
	for _, p := range BannedPhrases {
		b.WriteString("\n- \"")
		b.WriteString(p)
		b.WriteString("\"")
	}
	return b.String()
}

func contextBlock(f entities.ProfileFragment, astrology string, history []entities.Turn) string {
	var b strings.Builder
	b.WriteString("User profile:")
	for _, field := range entities.ProfileFields {
		value := f.Get(field)
		if value == "" {
			value = "(unknown)"
		}
		fmt.Fprintf(&b, "\n%s: %s", field, value)
	}

	if astrology = strings.TrimSpace(astrology); astrology != "" {
		b.WriteString("\n\nAstrology profile:\n")
		b.WriteString(astrology)
	}

	recent := history
	if len(recent) > ContextTurns {
		recent = recent[len(recent)-ContextTurns:]
	}
	if len(recent) > 0 {
		b.WriteString("\n\nRecent conversation:")
		for _, t := range recent {
			fmt.Fprintf(&b, "\n%s: %s", t.Role, entities.Truncate(t.Content, turnPrefixLimit))
		}
	}
	return b.String()
}

func directive(phase entities.Phase, f entities.ProfileFragment) string {
	if phase != entities.PhaseCollection {
		return "Task: " + phaseDirectives[phase]
	}

	missing := f.Missing()
	asks := make([]string, 0, len(missing))
	for _, field := range missing {
		asks = append(asks, fieldPrompts[field])
	}
	return "Task: Before any astrology, naturally ask the user for " + joinList(asks) +
		". Do not give any reading, planet or remedy yet."
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func joinBlocks(blocks ...string) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			parts = append(parts, b)
		}
	}
	return strings.Join(parts, "\n\n")
}
