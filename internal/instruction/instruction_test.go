package instruction

import (
	"strings"
	"testing"

	"github.com/satriahrh/kundli/server/domain/entities"
)

var completeFragment = entities.ProfileFragment{
	Name:          "A",
	BirthDate:     "1990-01-01",
	BirthTime:     "12:00",
	BirthLocation: "Pune",
}

var tina = &entities.Persona{ID: "tina_kulkarni_vedic_marriage", Name: "Tina Kulkarni", Language: "hinglish"}

func postProfileHistory(userTurns int) []entities.Turn {
	var turns []entities.Turn
	for i := 0; i < userTurns; i++ {
		turns = append(turns,
			entities.NewTurn(entities.TurnRoleUser, "question", true),
			entities.NewTurn(entities.TurnRoleAssistant, "answer", true),
		)
	}
	return turns
}

func TestBuildPhaseDirectives(t *testing.T) {
	tests := []struct {
		name      string
		fragment  entities.ProfileFragment
		history   []entities.Turn
		phase     entities.Phase
		contains  string
		forbidden string
	}{
		{"collection", entities.ProfileFragment{}, nil, entities.PhaseCollection,
			"their name, their date of birth, their exact time of birth and their place of birth", "Do you want"},
		{"first answer after completion", completeFragment, nil, entities.PhaseReason, ReasonQuestion, "remedy, such as"},
		{"second", completeFragment, postProfileHistory(1), entities.PhaseDepth, DepthQuestion, RemedyQuestion},
		{"third", completeFragment, postProfileHistory(2), entities.PhaseSimpleRemedy, RemedyQuestion, DepthQuestion},
		{"fourth", completeFragment, postProfileHistory(3), entities.PhaseFullSolution, "mantra, ritual or gemstone", ReasonQuestion},
		{"later", completeFragment, postProfileHistory(8), entities.PhaseFullSolution, "commit", DepthQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := Build(Input{Persona: tina, Fragment: tt.fragment, History: tt.history})

			if ins.Phase != tt.phase {
				t.Fatalf("Expected phase %s, got %s", tt.phase, ins.Phase)
			}
			if !strings.Contains(ins.Directive, tt.contains) {
				t.Errorf("Directive %q does not contain %q", ins.Directive, tt.contains)
			}
			if strings.Contains(ins.Directive, tt.forbidden) {
				t.Errorf("Directive %q must not contain %q", ins.Directive, tt.forbidden)
			}
		})
	}
}

func TestCollectionAsksOnlyMissingFields(t *testing.T) {
	ins := Build(Input{Fragment: entities.ProfileFragment{Name: "A", BirthDate: "1990-01-01"}})

	if strings.Contains(ins.Directive, "their name") {
		t.Error("Collection directive asks for a field already present")
	}
	if !strings.Contains(ins.Directive, "their exact time of birth and their place of birth") {
		t.Errorf("Unexpected directive: %s", ins.Directive)
	}
}

func TestPreProfileTurnsDoNotCount(t *testing.T) {
	history := []entities.Turn{
		entities.NewTurn(entities.TurnRoleUser, "hello", false),
		entities.NewTurn(entities.TurnRoleUser, "my name is A", false),
		entities.NewTurn(entities.TurnRoleUser, "born 1990", false),
	}
	if got := PhaseFor(completeFragment, history); got != entities.PhaseReason {
		t.Errorf("Expected reason phase, got %s", got)
	}
}

func TestIdentityAndBlocks(t *testing.T) {
	ins := Build(Input{
		Persona:          tina,
		LanguageLine:     "Speak in natural Hinglish.",
		Fragment:         entities.ProfileFragment{Name: "A"},
		AstrologyContext: "Moon in Cancer",
		History: []entities.Turn{
			entities.NewTurn(entities.TurnRoleUser, "I want to know about my marriage", false),
		},
	})

	if !strings.HasPrefix(ins.Identity, "You are Tina Kulkarni, an experienced Vedic astrologer.") {
		t.Errorf("Unexpected identity: %s", ins.Identity)
	}
	if !strings.Contains(ins.Identity, "Hinglish") {
		t.Error("Expected language line in identity")
	}
	for _, want := range []string{"name: A", "birth_date: (unknown)", "Moon in Cancer", "user: I want to know about my marriage"} {
		if !strings.Contains(ins.Context, want) {
			t.Errorf("Context missing %q:\n%s", want, ins.Context)
		}
	}
	for _, phrase := range BannedPhrases {
		if !strings.Contains(ins.Banned, phrase) {
			t.Errorf("Banned block missing %q", phrase)
		}
	}

	system := ins.System()
	order := []string{ins.Identity, ins.CoreRules, ins.Banned, ins.Context, ins.Directive}
	last := -1
	for _, block := range order {
		idx := strings.Index(system, block)
		if idx <= last {
			t.Fatalf("Blocks are out of order in system text")
		}
		last = idx
	}

	if strings.Contains(ins.ResponseInstructions(), ins.Context) {
		t.Error("Response instructions must not carry the context block")
	}
	if !strings.HasSuffix(ins.ResponseInstructions(), ins.Directive) {
		t.Error("Response instructions must end with the directive")
	}
}

func TestDefaultIdentityWithoutPersona(t *testing.T) {
	if got := Build(Input{}).Identity; got != DefaultIdentity {
		t.Errorf("Expected default identity, got %s", got)
	}
}

func TestContextQuotesLastFiveTurns(t *testing.T) {
	var history []entities.Turn
	for _, c := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
		history = append(history, entities.NewTurn(entities.TurnRoleUser, c, false))
	}
	ctx := Build(Input{History: history}).Context

	if strings.Contains(ctx, "user: two") {
		t.Error("Context should only quote the last five turns")
	}
	if !strings.Contains(ctx, "user: three") || !strings.Contains(ctx, "user: seven") {
		t.Errorf("Context missing recent turns:\n%s", ctx)
	}
}

func TestVoiceRulesAvoidLists(t *testing.T) {
	voice := Build(Input{Mode: ModeVoice}).CoreRules
	text := Build(Input{Mode: ModeText}).CoreRules
	if !strings.Contains(voice, "Do not use lists") {
		t.Error("Voice rules must forbid lists")
	}
	if strings.Contains(text, "Do not use lists") {
		t.Error("Text rules should not carry the spoken-mode rule")
	}
}
