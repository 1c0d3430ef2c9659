package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	geminiAttempts     = 3
)

// GeminiChat implements ChatCompleter using Google's Gemini API
type GeminiChat struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiChat creates a new Gemini chat completer
func NewGeminiChat(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiChat, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}
	return &GeminiChat{client: client, model: model, logger: logger}, nil
}

// Complete implements repositories.ChatCompleter
func (g *GeminiChat) Complete(ctx context.Context, req repositories.ChatRequest) (repositories.ChatResponse, error) {
	system, contents := toGeminiContents(req.Messages)

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < geminiAttempts; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < geminiAttempts-1 {
			select {
			case <-time.After(time.Duration(attempt+1) * time.Second):
			case <-ctx.Done():
				return repositories.ChatResponse{}, ctx.Err()
			}
		}
	}
	if err != nil {
		return repositories.ChatResponse{}, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return repositories.ChatResponse{}, fmt.Errorf("no content generated")
	}

	var text strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return repositories.ChatResponse{}, fmt.Errorf("empty response")
	}

	out := repositories.ChatResponse{Content: text.String()}
	if response.UsageMetadata != nil {
		out.TokensUsed = int(response.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

// toGeminiContents splits system messages into the system instruction and
// converts the rest
func toGeminiContents(messages []repositories.ChatMessage) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case entities.TurnRoleSystem:
			system = append(system, msg.Content)
		case entities.TurnRoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
