package memory

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/satriahrh/kundli/server/domain/entities"
)

func TestAppendEvictsOldest(t *testing.T) {
	m := New(3)
	for i := 0; i < 5; i++ {
		m.Append("u1", entities.NewTurn(entities.TurnRoleUser, fmt.Sprintf("turn %d", i), false))
	}

	turns := m.All("u1")
	if len(turns) != 3 {
		t.Fatalf("Expected 3 turns, got %d", len(turns))
	}
	if turns[0].Content != "turn 2" || turns[2].Content != "turn 4" {
		t.Errorf("Unexpected retained turns: %q .. %q", turns[0].Content, turns[2].Content)
	}
}

func TestRecent(t *testing.T) {
	m := New(10)
	m.Append("u1", entities.NewTurn(entities.TurnRoleUser, "a", false))
	m.Append("u1", entities.NewTurn(entities.TurnRoleAssistant, "b", false))
	m.Append("u1", entities.NewTurn(entities.TurnRoleUser, "c", false))

	tests := []struct {
		n    int
		want []string
	}{
		{0, nil},
		{2, []string{"b", "c"}},
		{5, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		got := m.Recent("u1", tt.n)
		if len(got) != len(tt.want) {
			t.Errorf("Recent(%d) returned %d turns, want %d", tt.n, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if got[i].Content != tt.want[i] {
				t.Errorf("Recent(%d)[%d] = %q, want %q", tt.n, i, got[i].Content, tt.want[i])
			}
		}
	}

	if got := m.Recent("nobody", 5); got != nil {
		t.Errorf("Expected nil for unknown user, got %v", got)
	}
}

func TestPostProfileTurnCount(t *testing.T) {
	m := New(20)
	m.Append("u1", entities.NewTurn(entities.TurnRoleUser, "hello", false))
	m.Append("u1", entities.NewTurn(entities.TurnRoleAssistant, "details?", false))
	m.Append("u1", entities.NewTurn(entities.TurnRoleUser, "question", true))
	m.Append("u1", entities.NewTurn(entities.TurnRoleAssistant, "answer", true))
	m.Append("u1", entities.NewTurn(entities.TurnRoleUser, "more", true))

	if got := m.PostProfileTurnCount("u1"); got != 2 {
		t.Errorf("Expected 2 post-profile user turns, got %d", got)
	}
	if got := m.PostProfileTurnCount("u2"); got != 0 {
		t.Errorf("Expected 0 for unknown user, got %d", got)
	}
}

func TestAppendTruncatesContent(t *testing.T) {
	m := New(5)
	m.Append("u1", entities.Turn{Role: entities.TurnRoleUser, Content: strings.Repeat("x", 500)})

	if got := len(m.All("u1")[0].Content); got != entities.TurnContentLimit {
		t.Errorf("Expected content of %d runes, got %d", entities.TurnContentLimit, got)
	}
}

func TestConcurrentAppend(t *testing.T) {
	m := New(1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Append("u1", entities.NewTurn(entities.TurnRoleUser, "x", true))
			}
		}()
	}
	wg.Wait()

	if got := m.PostProfileTurnCount("u1"); got != 500 {
		t.Errorf("Expected 500 turns, got %d", got)
	}
}
