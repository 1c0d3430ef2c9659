package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ConversationStatus represents the lifecycle state of a conversation record
type ConversationStatus string

const (
	ConversationStatusActive ConversationStatus = "active"
	ConversationStatusEnded  ConversationStatus = "ended"
)

// MessageKind describes how a message reached the conversation
type MessageKind string

const (
	MessageKindText       MessageKind = "text"
	MessageKindTranscript MessageKind = "audio_transcript"
	MessageKindGreeting   MessageKind = "greeting"
)

// Conversation is the persistent record of one consultation
type Conversation struct {
	ID            string             `json:"conversation_id" bson:"_id"`
	UserID        string             `json:"user_id" bson:"user_id"`
	PersonaID     string             `json:"persona_id" bson:"persona_id"`
	Topic         string             `json:"topic" bson:"topic"`
	Status        ConversationStatus `json:"status" bson:"status"`
	StartedAt     time.Time          `json:"started_at" bson:"started_at"`
	LastActiveAt  time.Time          `json:"last_active_at" bson:"last_active_at"`
	EndedAt       *time.Time         `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
	TotalDuration int64              `json:"total_duration" bson:"total_duration"`
	TotalMessages int                `json:"total_messages" bson:"total_messages"`
}

// NewConversation opens a conversation for a user and persona
func NewConversation(userID, personaID, topic string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           uuid.NewString(),
		UserID:       userID,
		PersonaID:    personaID,
		Topic:        topic,
		Status:       ConversationStatusActive,
		StartedAt:    now,
		LastActiveAt: now,
	}
}

// Touch records activity on the conversation
func (c *Conversation) Touch() {
	c.LastActiveAt = time.Now()
}

// End closes the conversation with the given duration in seconds
func (c *Conversation) End(durationSeconds int64) {
	now := time.Now()
	c.Status = ConversationStatusEnded
	c.EndedAt = &now
	c.TotalDuration = durationSeconds
}

// IsIdle reports whether an active conversation saw no activity for longer than idle
func (c *Conversation) IsIdle(idle time.Duration) bool {
	return c.Status == ConversationStatusActive && time.Since(c.LastActiveAt) > idle
}

// Validate validates the conversation data
func (c *Conversation) Validate() error {
	if c.UserID == "" {
		return errors.New("user_id is required")
	}
	if c.Status != ConversationStatusActive && c.Status != ConversationStatusEnded {
		return errors.New("invalid conversation status")
	}
	return nil
}

// Message is one stored utterance of a conversation
type Message struct {
	ID             string      `json:"id" bson:"_id"`
	ConversationID string      `json:"conversation_id" bson:"conversation_id"`
	Sender         TurnRole    `json:"sender" bson:"sender"`
	Kind           MessageKind `json:"kind" bson:"kind"`
	Content        string      `json:"content" bson:"content"`
	Timestamp      time.Time   `json:"timestamp" bson:"timestamp"`
}

// NewMessage builds a message for a conversation
func NewMessage(conversationID string, sender TurnRole, kind MessageKind, content string) *Message {
	return &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Kind:           kind,
		Content:        content,
		Timestamp:      time.Now(),
	}
}

// TransactionKind separates wallet debits from credits
type TransactionKind string

const (
	TransactionDebit  TransactionKind = "debit"
	TransactionCredit TransactionKind = "credit"
)

// WalletTransaction is one balance change of a user's wallet
type WalletTransaction struct {
	ID             string          `json:"id" bson:"_id"`
	UserID         string          `json:"user_id" bson:"user_id"`
	ConversationID string          `json:"conversation_id,omitempty" bson:"conversation_id,omitempty"`
	Amount         float64         `json:"amount" bson:"amount"`
	Kind           TransactionKind `json:"kind" bson:"kind"`
	Reason         string          `json:"reason" bson:"reason"`
	BalanceAfter   float64         `json:"balance_after" bson:"balance_after"`
	CreatedAt      time.Time       `json:"created_at" bson:"created_at"`
}

// Review is the user's rating of a finished conversation
type Review struct {
	ConversationID string    `json:"conversation_id" bson:"conversation_id"`
	UserID         string    `json:"user_id" bson:"user_id"`
	Rating         int       `json:"rating" bson:"rating"`
	Comment        string    `json:"comment,omitempty" bson:"comment,omitempty"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}

// Validate validates the review data
func (r *Review) Validate() error {
	if r.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	if r.Rating < 1 || r.Rating > 5 {
		return errors.New("rating must be between 1 and 5")
	}
	return nil
}
