package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
)

// OpenAIChat implements ChatCompleter using the chat completions API
type OpenAIChat struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIChat creates a new OpenAI chat completer. baseURL may be empty.
func NewOpenAIChat(apiKey, baseURL, model string, logger *zap.Logger) *OpenAIChat {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIChat{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger,
	}
}

// Complete implements repositories.ChatCompleter
func (c *OpenAIChat) Complete(ctx context.Context, req repositories.ChatRequest) (repositories.ChatResponse, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return repositories.ChatResponse{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return repositories.ChatResponse{}, fmt.Errorf("chat completion returned no choices")
	}

	c.logger.Debug("Chat completion finished",
		zap.String("model", c.model),
		zap.Int("promptTokens", resp.Usage.PromptTokens),
		zap.Int("completionTokens", resp.Usage.CompletionTokens))

	return repositories.ChatResponse{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

func openAIRole(role entities.TurnRole) string {
	switch role {
	case entities.TurnRoleSystem:
		return openai.ChatMessageRoleSystem
	case entities.TurnRoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
