package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
)

type walletDocument struct {
	UserID    string    `bson:"_id"`
	Balance   float64   `bson:"balance"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// WalletRepository implements Wallet using MongoDB
type WalletRepository struct {
	wallets      *mongo.Collection
	transactions *mongo.Collection
	logger       *zap.Logger
}

// NewWalletRepository creates a new MongoDB wallet repository
func NewWalletRepository(db *mongo.Database, logger *zap.Logger) *WalletRepository {
	r := &WalletRepository{
		wallets:      db.Collection("wallets"),
		transactions: db.Collection("wallet_transactions"),
		logger:       logger,
	}
	ensureIndexes(r.transactions, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "conversation_id", Value: 1}}},
	}, logger)
	return r
}

// Debit implements repositories.Wallet. The balance may go negative.
func (r *WalletRepository) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	if amount < 0 {
		return 0, errors.New("amount must not be negative")
	}
	return r.adjust(ctx, userID, -amount)
}

// Credit implements repositories.Wallet
func (r *WalletRepository) Credit(ctx context.Context, userID string, amount float64) (float64, error) {
	if amount < 0 {
		return 0, errors.New("amount must not be negative")
	}
	return r.adjust(ctx, userID, amount)
}

func (r *WalletRepository) adjust(ctx context.Context, userID string, delta float64) (float64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc walletDocument
	err := r.wallets.FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$inc": bson.M{"balance": delta},
			"$set": bson.M{"updated_at": time.Now()},
		},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust wallet for %s: %w", userID, err)
	}
	return doc.Balance, nil
}

// Balance implements repositories.Wallet
func (r *WalletRepository) Balance(ctx context.Context, userID string) (float64, error) {
	var doc walletDocument
	err := r.wallets.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read wallet: %w", err)
	}
	return doc.Balance, nil
}

// RecordTransaction implements repositories.Wallet
func (r *WalletRepository) RecordTransaction(ctx context.Context, tx *entities.WalletTransaction) error {
	if tx == nil || tx.UserID == "" {
		return errors.New("transaction requires a user")
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	if _, err := r.transactions.InsertOne(ctx, tx); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// Transactions implements repositories.Wallet, newest first
func (r *WalletRepository) Transactions(ctx context.Context, userID string) ([]*entities.WalletTransaction, error) {
	cursor, err := r.transactions.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.M{"created_at": -1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*entities.WalletTransaction
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	return out, nil
}
