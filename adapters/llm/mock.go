package llm

import (
	"context"
	"strings"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
)

const closingMarker = `End with exactly: "`

// MockChat is an offline ChatCompleter. Its reply ends with the closing
// question requested by the system instruction, if any.
type MockChat struct{}

// NewMockChat creates a mock chat completer
func NewMockChat() *MockChat {
	return &MockChat{}
}

// Complete implements repositories.ChatCompleter
func (m *MockChat) Complete(ctx context.Context, req repositories.ChatRequest) (repositories.ChatResponse, error) {
	var system, user string
	tokens := 0
	for _, msg := range req.Messages {
		tokens += len(strings.Fields(msg.Content))
		switch msg.Role {
		case entities.TurnRoleSystem:
			system = msg.Content
		case entities.TurnRoleUser:
			user = msg.Content
		}
	}

	reply := "I hear you. The planets have a clear story about this."
	if user == "" {
		reply = "Namaste. Tell me what is on your mind."
	}
	if q := closingQuestion(system); q != "" {
		reply += " " + q
	} else {
		reply += " Shall we look deeper?"
	}
	return repositories.ChatResponse{Content: reply, TokensUsed: tokens + len(strings.Fields(reply))}, nil
}

func closingQuestion(system string) string {
	i := strings.LastIndex(system, closingMarker)
	if i < 0 {
		return ""
	}
	rest := system[i+len(closingMarker):]
	if j := strings.Index(rest, `"`); j >= 0 {
		return rest[:j]
	}
	return ""
}
