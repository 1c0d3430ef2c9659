package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/satriahrh/kundli/server/domain/entities"
)

var (
	// ErrNotFound is returned when a stored record does not exist
	ErrNotFound = errors.New("not found")
	// ErrConversationEnded is returned when writing to a conversation that was
	// already closed
	ErrConversationEnded = errors.New("conversation already ended")
)

// ConversationStore records consultations and their messages
type ConversationStore interface {
	Open(ctx context.Context, userID, personaID, topic string) (string, error)
	AppendMessage(ctx context.Context, conversationID string, sender entities.TurnRole, kind entities.MessageKind, content string) error
	// Close ends an active conversation. Exactly one caller wins; the others
	// get ErrConversationEnded.
	Close(ctx context.Context, conversationID string, durationSeconds int64) error
	Get(ctx context.Context, conversationID string) (*entities.Conversation, error)
	// ActiveFor returns the open conversation of a user with a persona
	ActiveFor(ctx context.Context, userID, personaID string) (*entities.Conversation, error)
	ListIdle(ctx context.Context, idleSince time.Time) ([]*entities.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]*entities.Message, error)
	SaveReview(ctx context.Context, review *entities.Review) error
}

// Wallet adjusts user balances. It never refuses a debit.
type Wallet interface {
	Debit(ctx context.Context, userID string, amount float64) (float64, error)
	Credit(ctx context.Context, userID string, amount float64) (float64, error)
	Balance(ctx context.Context, userID string) (float64, error)
	RecordTransaction(ctx context.Context, tx *entities.WalletTransaction) error
	Transactions(ctx context.Context, userID string) ([]*entities.WalletTransaction, error)
}

// AstrologyProfiles provides a chart summary used to enrich instructions
type AstrologyProfiles interface {
	ContextForAI(ctx context.Context, userID string) (string, bool, error)
}
