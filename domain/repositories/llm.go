package repositories

import (
	"context"

	"github.com/satriahrh/kundli/server/domain/entities"
)

// ChatMessage represents a single message in a text consultation request
type ChatMessage struct {
	Role    entities.TurnRole `json:"role"`
	Content string            `json:"content"`
}

// ChatRequest is one non-streaming completion request
type ChatRequest struct {
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int
}

// ChatResponse carries the reply and the provider's token accounting
type ChatResponse struct {
	Content    string
	TokensUsed int
}

// ChatCompleter abstracts any chat completion provider
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
