// Package memory provides in-process implementations of the conversation
// store, wallet and astrology profile collaborators.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
)

// ConversationStore is an in-memory ConversationStore
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*entities.Conversation // id -> conversation
	messages      map[string][]*entities.Message     // conversation id -> messages
	reviews       map[string]*entities.Review        // conversation id -> review
}

// NewConversationStore creates an empty store
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*entities.Conversation),
		messages:      make(map[string][]*entities.Message),
		reviews:       make(map[string]*entities.Review),
	}
}

// Open implements ConversationStore
func (s *ConversationStore) Open(ctx context.Context, userID, personaID, topic string) (string, error) {
	conv := entities.NewConversation(userID, personaID, topic)
	if err := conv.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	return conv.ID, nil
}

// AppendMessage implements ConversationStore
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID string, sender entities.TurnRole, kind entities.MessageKind, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return repositories.ErrNotFound
	}
	if conv.Status == entities.ConversationStatusEnded {
		return repositories.ErrConversationEnded
	}
	s.messages[conversationID] = append(s.messages[conversationID], entities.NewMessage(conversationID, sender, kind, content))
	conv.TotalMessages++
	conv.Touch()
	return nil
}

// Close implements ConversationStore
func (s *ConversationStore) Close(ctx context.Context, conversationID string, durationSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return repositories.ErrNotFound
	}
	if conv.Status == entities.ConversationStatusEnded {
		return repositories.ErrConversationEnded
	}
	conv.End(durationSeconds)
	return nil
}

// Get implements ConversationStore
func (s *ConversationStore) Get(ctx context.Context, conversationID string) (*entities.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *conv
	return &c, nil
}

// ActiveFor implements ConversationStore
func (s *ConversationStore) ActiveFor(ctx context.Context, userID, personaID string) (*entities.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *entities.Conversation
	for _, conv := range s.conversations {
		if conv.UserID != userID || conv.PersonaID != personaID || conv.Status != entities.ConversationStatusActive {
			continue
		}
		if latest == nil || conv.LastActiveAt.After(latest.LastActiveAt) {
			latest = conv
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	c := *latest
	return &c, nil
}

// ListIdle implements ConversationStore
func (s *ConversationStore) ListIdle(ctx context.Context, idleSince time.Time) ([]*entities.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entities.Conversation
	for _, conv := range s.conversations {
		if conv.Status == entities.ConversationStatusActive && conv.LastActiveAt.Before(idleSince) {
			c := *conv
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.Before(out[j].LastActiveAt) })
	return out, nil
}

// Messages implements ConversationStore
func (s *ConversationStore) Messages(ctx context.Context, conversationID string) ([]*entities.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, repositories.ErrNotFound
	}
	out := make([]*entities.Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out, nil
}

// SaveReview implements ConversationStore. A conversation keeps one review.
func (s *ConversationStore) SaveReview(ctx context.Context, review *entities.Review) error {
	if review == nil {
		return errors.New("review cannot be nil")
	}
	if err := review.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[review.ConversationID]
	if !ok || conv.UserID != review.UserID {
		return repositories.ErrNotFound
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now()
	}
	r := *review
	s.reviews[review.ConversationID] = &r
	return nil
}

// Review returns the review of a conversation
func (s *ConversationStore) Review(conversationID string) (*entities.Review, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviews[conversationID]
	return r, ok
}

// Wallet is an in-memory Wallet
type Wallet struct {
	mu           sync.Mutex
	balances     map[string]float64
	transactions map[string][]*entities.WalletTransaction
}

// NewWallet creates a wallet with the given opening balances
func NewWallet(opening map[string]float64) *Wallet {
	w := &Wallet{
		balances:     make(map[string]float64),
		transactions: make(map[string][]*entities.WalletTransaction),
	}
	for userID, amount := range opening {
		w.balances[userID] = amount
	}
	return w
}

// Debit implements Wallet. Balances may go negative.
func (w *Wallet) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	if amount < 0 {
		return 0, errors.New("amount must not be negative")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] -= amount
	return w.balances[userID], nil
}

// Credit implements Wallet
func (w *Wallet) Credit(ctx context.Context, userID string, amount float64) (float64, error) {
	if amount < 0 {
		return 0, errors.New("amount must not be negative")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] += amount
	return w.balances[userID], nil
}

// Balance implements Wallet
func (w *Wallet) Balance(ctx context.Context, userID string) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID], nil
}

// RecordTransaction implements Wallet
func (w *Wallet) RecordTransaction(ctx context.Context, tx *entities.WalletTransaction) error {
	if tx == nil || tx.UserID == "" {
		return errors.New("transaction requires a user")
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	t := *tx
	w.transactions[tx.UserID] = append(w.transactions[tx.UserID], &t)
	return nil
}

// Transactions implements Wallet, newest first
func (w *Wallet) Transactions(ctx context.Context, userID string) ([]*entities.WalletTransaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	src := w.transactions[userID]
	out := make([]*entities.WalletTransaction, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

// AstrologyProfiles serves chart summaries registered in memory
type AstrologyProfiles struct {
	mu       sync.RWMutex
	profiles map[string]string
}

// NewAstrologyProfiles creates an empty provider
func NewAstrologyProfiles() *AstrologyProfiles {
	return &AstrologyProfiles{profiles: make(map[string]string)}
}

// Set stores the summary of a user
func (a *AstrologyProfiles) Set(userID, summary string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.profiles[userID] = summary
}

// ContextForAI implements AstrologyProfiles
func (a *AstrologyProfiles) ContextForAI(ctx context.Context, userID string) (string, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	summary, ok := a.profiles[userID]
	return summary, ok && summary != "", nil
}
