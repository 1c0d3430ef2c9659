package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
	"github.com/satriahrh/kundli/server/internal/instruction"
)

// TextHistoryTurns is the number of past turns sent with each chat request
const TextHistoryTurns = 10

var (
	ErrMissingUser    = errors.New("user_id is required")
	ErrMissingMessage = errors.New("message is required")
)

// TextRequest is one chat message from a user
type TextRequest struct {
	UserID    string `json:"user_id"`
	PersonaID string `json:"persona_id"`
	Message   string `json:"message"`
}

// TextReply is the astrologer's answer
type TextReply struct {
	Message     string    `json:"message"`
	TokensUsed  int       `json:"tokens_used"`
	Phase       int       `json:"phase"`
	PersonaID   string    `json:"persona_id"`
	PersonaName string    `json:"persona_name"`
	Timestamp   time.Time `json:"timestamp"`
}

// TextConsultationOptions tunes the chat requests
type TextConsultationOptions struct {
	DefaultPersonaID string
	Temperature      float32
	MaxTokens        int
}

// TextConsultation answers chat messages with the same persona, memory and
// phase policy as the voice path
type TextConsultation struct {
	synth         *instruction.Synthesizer
	chat          repositories.ChatCompleter
	states        repositories.UserStateStore
	conversations repositories.ConversationStore
	opts          TextConsultationOptions
	logger        *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTextConsultation creates the text use case. conversations may be nil.
func NewTextConsultation(
	synth *instruction.Synthesizer,
	chat repositories.ChatCompleter,
	states repositories.UserStateStore,
	conversations repositories.ConversationStore,
	opts TextConsultationOptions,
	logger *zap.Logger,
) *TextConsultation {
	return &TextConsultation{
		synth:         synth,
		chat:          chat,
		states:        states,
		conversations: conversations,
		opts:          opts,
		logger:        logger,
		locks:         make(map[string]*sync.Mutex),
	}
}

// Reply answers one message. Messages of the same user are handled one at a time.
func (s *TextConsultation) Reply(ctx context.Context, req TextRequest) (TextReply, error) {
	if req.UserID == "" {
		return TextReply{}, ErrMissingUser
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return TextReply{}, ErrMissingMessage
	}

	lock := s.userLock(req.UserID)
	lock.Lock()
	defer lock.Unlock()

	personaID := s.resolvePersona(req.UserID, req.PersonaID)
	p := s.synth.Persona(personaID)
	if p != nil {
		s.states.BindPersona(req.UserID, personaID)
	} else {
		s.logger.Warn("Unknown persona for text chat, using default instructions",
			zap.String("userID", req.UserID),
			zap.String("personaID", personaID))
	}

	turn := s.synth.ForTurn(ctx, req.UserID, personaID, instruction.ModeText)

	messages := []repositories.ChatMessage{{Role: entities.TurnRoleSystem, Content: turn.System()}}
	for _, past := range s.synth.History(req.UserID, TextHistoryTurns) {
		if past.Role == entities.TurnRoleSystem {
			continue
		}
		messages = append(messages, repositories.ChatMessage{Role: past.Role, Content: past.Content})
	}
	messages = append(messages, repositories.ChatMessage{Role: entities.TurnRoleUser, Content: message})

	resp, err := s.chat.Complete(ctx, repositories.ChatRequest{
		Messages:    messages,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return TextReply{}, fmt.Errorf("chat completion failed: %w", err)
	}

	s.synth.RecordUser(req.UserID, message)
	reply := s.synth.RecordAssistant(req.UserID, resp.Content)

	if conversationID := s.conversationFor(ctx, req.UserID, personaID, p); conversationID != "" {
		s.appendMessage(ctx, conversationID, entities.TurnRoleUser, message)
		if reply != "" {
			s.appendMessage(ctx, conversationID, entities.TurnRoleAssistant, reply)
		}
	}

	s.logger.Info("Text reply generated",
		zap.String("userID", req.UserID),
		zap.String("personaID", personaID),
		zap.Stringer("phase", turn.Phase),
		zap.Int("tokensUsed", resp.TokensUsed))

	out := TextReply{
		Message:    reply,
		TokensUsed: resp.TokensUsed,
		Phase:      turn.Phase.Number(),
		PersonaID:  personaID,
		Timestamp:  time.Now(),
	}
	if p != nil {
		out.PersonaName = p.Name
	}
	return out, nil
}

func (s *TextConsultation) resolvePersona(userID, requested string) string {
	if requested != "" {
		return requested
	}
	if bound, ok := s.states.Binding(userID); ok {
		return bound
	}
	return s.opts.DefaultPersonaID
}

func (s *TextConsultation) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// conversationFor reuses the open conversation of the user with the persona
func (s *TextConsultation) conversationFor(ctx context.Context, userID, personaID string, p *entities.Persona) string {
	if s.conversations == nil {
		return ""
	}
	conv, err := s.conversations.ActiveFor(ctx, userID, personaID)
	if err == nil {
		return conv.ID
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		s.logger.Error("Failed to look up conversation", zap.String("userID", userID), zap.Error(err))
		return ""
	}

	topic := ""
	if p != nil {
		topic = p.Speciality
	}
	id, err := s.conversations.Open(ctx, userID, personaID, topic)
	if err != nil {
		s.logger.Error("Failed to open conversation", zap.String("userID", userID), zap.Error(err))
		return ""
	}
	return id
}

func (s *TextConsultation) appendMessage(ctx context.Context, conversationID string, sender entities.TurnRole, content string) {
	if err := s.conversations.AppendMessage(ctx, conversationID, sender, entities.MessageKindText, content); err != nil {
		s.logger.Error("Failed to append message",
			zap.String("conversationID", conversationID),
			zap.Error(err))
	}
}
