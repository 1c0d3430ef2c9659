package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/adapters/llm"
	memstore "github.com/satriahrh/kundli/server/adapters/memory"
	"github.com/satriahrh/kundli/server/adapters/persona"
	"github.com/satriahrh/kundli/server/adapters/userstate"
	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
	"github.com/satriahrh/kundli/server/internal/instruction"
	"github.com/satriahrh/kundli/server/internal/memory"
)

type capturingChat struct {
	mu       sync.Mutex
	requests []repositories.ChatRequest
	reply    string
	err      error
}

func (c *capturingChat) Complete(ctx context.Context, req repositories.ChatRequest) (repositories.ChatResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	if c.err != nil {
		return repositories.ChatResponse{}, c.err
	}
	return repositories.ChatResponse{Content: c.reply, TokensUsed: 42}, nil
}

type textFixture struct {
	service *TextConsultation
	states  *userstate.Store
	mem     *memory.Memory
	convs   *memstore.ConversationStore
}

func newTextFixture(t *testing.T, chat repositories.ChatCompleter) *textFixture {
	t.Helper()
	logger := zap.NewNop()
	catalog := persona.LoadFile("../data/astrologers.json", logger)
	states := userstate.NewStore(context.Background(), nil, logger)
	t.Cleanup(func() { states.Close() })
	mem := memory.New(20)
	convs := memstore.NewConversationStore()
	synth := instruction.NewSynthesizer(catalog, states, mem, nil, "alloy", logger)
	return &textFixture{
		service: NewTextConsultation(synth, chat, states, convs, TextConsultationOptions{
			DefaultPersonaID: "tina_kulkarni_vedic_marriage",
			Temperature:      0.4,
			MaxTokens:        300,
		}, logger),
		states: states,
		mem:    mem,
		convs:  convs,
	}
}

func TestTextConsultation_PhaseProgression(t *testing.T) {
	f := newTextFixture(t, llm.NewMockChat())
	ctx := context.Background()

	steps := []struct {
		message   string
		wantPhase entities.Phase
		wantEnd   string
	}{
		{"My name is asha sharma and I was born on 1990-01-01", entities.PhaseCollection, "Shall we look deeper?"},
		{"born at 12:00 in Nagpur", entities.PhaseCollection, "Shall we look deeper?"},
		{"Why is my marriage delayed?", entities.PhaseReason, instruction.ReasonQuestion},
		{"Yes", entities.PhaseDepth, instruction.DepthQuestion},
		{"Yes please", entities.PhaseSimpleRemedy, instruction.RemedyQuestion},
		{"Tell me more", entities.PhaseFullSolution, "Shall we look deeper?"},
	}

	for _, step := range steps {
		reply, err := f.service.Reply(ctx, TextRequest{UserID: "u1", PersonaID: "priyanka_vedic_love", Message: step.message})
		if err != nil {
			t.Fatalf("%q: unexpected error %v", step.message, err)
		}
		if reply.Phase != step.wantPhase.Number() {
			t.Errorf("%q: expected phase %d, got %d", step.message, step.wantPhase.Number(), reply.Phase)
		}
		if !strings.HasSuffix(reply.Message, step.wantEnd) {
			t.Errorf("%q: expected reply ending %q, got %q", step.message, step.wantEnd, reply.Message)
		}
		if reply.PersonaName != "Priyanka Joshi" || reply.PersonaID != "priyanka_vedic_love" {
			t.Errorf("Unexpected persona in reply %+v", reply)
		}
	}

	fragment := f.states.Fragment("u1")
	if !fragment.Complete() || fragment.Name != "Asha Sharma" || fragment.BirthLocation != "Nagpur" {
		t.Errorf("Expected extracted profile, got %+v", fragment)
	}
	if bound, _ := f.states.Binding("u1"); bound != "priyanka_vedic_love" {
		t.Errorf("Expected persona bound, got %q", bound)
	}

	conv, err := f.convs.ActiveFor(ctx, "u1", "priyanka_vedic_love")
	if err != nil {
		t.Fatalf("Expected one reused conversation: %v", err)
	}
	if conv.TotalMessages != 2*len(steps) {
		t.Errorf("Expected %d messages, got %d", 2*len(steps), conv.TotalMessages)
	}
}

func TestTextConsultation_MessageLayout(t *testing.T) {
	chat := &capturingChat{reply: "As an AI, Saturn is slow. Do you want to know the solution?"}
	f := newTextFixture(t, chat)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := f.service.Reply(ctx, TextRequest{UserID: "u2", Message: "question"}); err != nil {
			t.Fatalf("Reply failed: %v", err)
		}
	}

	last := chat.requests[len(chat.requests)-1]
	if last.Messages[0].Role != entities.TurnRoleSystem {
		t.Fatalf("Expected system message first, got %s", last.Messages[0].Role)
	}
	if !strings.Contains(last.Messages[0].Content, "Tina Kulkarni") {
		t.Error("Expected the default persona identity in the system message")
	}
	// system + last 10 turns + current message
	if len(last.Messages) != 12 {
		t.Errorf("Expected 12 messages, got %d", len(last.Messages))
	}
	if final := last.Messages[len(last.Messages)-1]; final.Role != entities.TurnRoleUser || final.Content != "question" {
		t.Errorf("Expected current user message last, got %+v", final)
	}
	if last.Temperature != 0.4 || last.MaxTokens != 300 {
		t.Errorf("Expected options forwarded, got %v/%d", last.Temperature, last.MaxTokens)
	}

	for _, turn := range f.mem.All("u2") {
		if turn.Role == entities.TurnRoleAssistant && instruction.ContainsBanned(turn.Content) {
			t.Errorf("Banned phrase stored in memory: %q", turn.Content)
		}
	}
}

func TestTextConsultation_Errors(t *testing.T) {
	chat := &capturingChat{err: errors.New("quota exceeded")}
	f := newTextFixture(t, chat)
	ctx := context.Background()

	if _, err := f.service.Reply(ctx, TextRequest{Message: "hi"}); !errors.Is(err, ErrMissingUser) {
		t.Errorf("Expected ErrMissingUser, got %v", err)
	}
	if _, err := f.service.Reply(ctx, TextRequest{UserID: "u3", Message: "   "}); !errors.Is(err, ErrMissingMessage) {
		t.Errorf("Expected ErrMissingMessage, got %v", err)
	}
	if _, err := f.service.Reply(ctx, TextRequest{UserID: "u3", Message: "hi"}); err == nil {
		t.Error("Expected provider error")
	}
	if n := len(f.mem.All("u3")); n != 0 {
		t.Errorf("Failed replies must not record turns, got %d", n)
	}
}

func TestTextConsultation_UnknownPersonaFallsBack(t *testing.T) {
	f := newTextFixture(t, llm.NewMockChat())

	reply, err := f.service.Reply(context.Background(), TextRequest{UserID: "u4", PersonaID: "nobody", Message: "hello"})
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if reply.PersonaName != "" || reply.Message == "" {
		t.Errorf("Expected default reply without persona name, got %+v", reply)
	}
	if _, ok := f.states.Binding("u4"); ok {
		t.Error("Unknown persona must not be bound")
	}
}

func TestTextConsultation_SerializesPerUser(t *testing.T) {
	f := newTextFixture(t, llm.NewMockChat())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.service.Reply(context.Background(), TextRequest{UserID: "u5", Message: "hello"})
		}()
	}
	wg.Wait()

	turns := f.mem.All("u5")
	if len(turns) != 20 {
		t.Fatalf("Expected 20 turns kept, got %d", len(turns))
	}
	for i := 0; i < len(turns); i += 2 {
		if turns[i].Role != entities.TurnRoleUser || turns[i+1].Role != entities.TurnRoleAssistant {
			t.Fatalf("Turns interleaved at %d: %s then %s", i, turns[i].Role, turns[i+1].Role)
		}
	}
}
