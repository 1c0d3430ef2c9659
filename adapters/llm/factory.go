package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/repositories"
)

// Providers
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Options selects and configures a text chat provider
type Options struct {
	Provider    string
	OpenAIKey   string
	OpenAIURL   string
	OpenAIModel string
	GeminiKey   string
	GeminiModel string
}

// New creates the configured chat completer
func New(ctx context.Context, opts Options, logger *zap.Logger) (repositories.ChatCompleter, error) {
	switch opts.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIChat(opts.OpenAIKey, opts.OpenAIURL, opts.OpenAIModel, logger), nil
	case ProviderGemini:
		return NewGeminiChat(ctx, opts.GeminiKey, opts.GeminiModel, logger)
	case ProviderMock:
		return NewMockChat(), nil
	}
	return nil, fmt.Errorf("unknown chat provider %q", opts.Provider)
}
