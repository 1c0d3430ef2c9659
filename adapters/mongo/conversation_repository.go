package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
)

// ConversationRepository implements ConversationStore using MongoDB
type ConversationRepository struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	reviews       *mongo.Collection
	logger        *zap.Logger
}

// NewConversationRepository creates a new MongoDB conversation repository
func NewConversationRepository(db *mongo.Database, logger *zap.Logger) *ConversationRepository {
	r := &ConversationRepository{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
		reviews:       db.Collection("reviews"),
		logger:        logger,
	}

	ensureIndexes(r.conversations, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "persona_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "last_active_at", Value: 1}}},
	}, logger)
	ensureIndexes(r.messages, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: 1}}},
	}, logger)
	ensureIndexes(r.reviews, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}, logger)

	return r
}

// Open implements repositories.ConversationStore
func (r *ConversationRepository) Open(ctx context.Context, userID, personaID, topic string) (string, error) {
	conv := entities.NewConversation(userID, personaID, topic)
	if err := conv.Validate(); err != nil {
		return "", err
	}
	if _, err := r.conversations.InsertOne(ctx, conv); err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv.ID, nil
}

// AppendMessage implements repositories.ConversationStore
func (r *ConversationRepository) AppendMessage(ctx context.Context, conversationID string, sender entities.TurnRole, kind entities.MessageKind, content string) error {
	msg := entities.NewMessage(conversationID, sender, kind, content)

	result, err := r.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID, "status": entities.ConversationStatusActive},
		bson.M{
			"$inc": bson.M{"total_messages": 1},
			"$set": bson.M{"last_active_at": msg.Timestamp},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return r.inactive(ctx, conversationID)
	}

	if _, err := r.messages.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// Close implements repositories.ConversationStore. The status filter makes the
// update conditional, so concurrent closes cannot both succeed.
func (r *ConversationRepository) Close(ctx context.Context, conversationID string, durationSeconds int64) error {
	now := time.Now()
	result, err := r.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID, "status": entities.ConversationStatusActive},
		bson.M{"$set": bson.M{
			"status":         entities.ConversationStatusEnded,
			"ended_at":       now,
			"total_duration": durationSeconds,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to close conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return r.inactive(ctx, conversationID)
	}
	return nil
}

// inactive explains why a status filtered update matched nothing
func (r *ConversationRepository) inactive(ctx context.Context, conversationID string) error {
	if _, err := r.Get(ctx, conversationID); err != nil {
		return err
	}
	return repositories.ErrConversationEnded
}

// Get implements repositories.ConversationStore
func (r *ConversationRepository) Get(ctx context.Context, conversationID string) (*entities.Conversation, error) {
	var conv entities.Conversation
	err := r.conversations.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", conversationID, err)
	}
	return &conv, nil
}

// ActiveFor implements repositories.ConversationStore
func (r *ConversationRepository) ActiveFor(ctx context.Context, userID, personaID string) (*entities.Conversation, error) {
	filter := bson.M{
		"user_id":    userID,
		"persona_id": personaID,
		"status":     entities.ConversationStatusActive,
	}
	opts := options.FindOne().SetSort(bson.M{"last_active_at": -1})

	var conv entities.Conversation
	if err := r.conversations.FindOne(ctx, filter, opts).Decode(&conv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active conversation: %w", err)
	}
	return &conv, nil
}

// ListIdle implements repositories.ConversationStore
func (r *ConversationRepository) ListIdle(ctx context.Context, idleSince time.Time) ([]*entities.Conversation, error) {
	filter := bson.M{
		"status":         entities.ConversationStatusActive,
		"last_active_at": bson.M{"$lt": idleSince},
	}
	cursor, err := r.conversations.Find(ctx, filter, options.Find().SetSort(bson.M{"last_active_at": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list idle conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*entities.Conversation
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode idle conversations: %w", err)
	}
	return out, nil
}

// Messages implements repositories.ConversationStore
func (r *ConversationRepository) Messages(ctx context.Context, conversationID string) ([]*entities.Message, error) {
	cursor, err := r.messages.Find(ctx,
		bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.M{"timestamp": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*entities.Message
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return out, nil
}

// SaveReview implements repositories.ConversationStore. A second review
// replaces the first.
func (r *ConversationRepository) SaveReview(ctx context.Context, review *entities.Review) error {
	if review == nil {
		return errors.New("review cannot be nil")
	}
	if err := review.Validate(); err != nil {
		return err
	}

	conv, err := r.Get(ctx, review.ConversationID)
	if err != nil {
		return err
	}
	if conv.UserID != review.UserID {
		return repositories.ErrNotFound
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now()
	}

	_, err = r.reviews.ReplaceOne(ctx,
		bson.M{"conversation_id": review.ConversationID},
		review,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save review: %w", err)
	}
	return nil
}
