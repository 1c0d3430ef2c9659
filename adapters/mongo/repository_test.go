package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
)

// TestRepositories_Integration requires a running MongoDB instance (skipped if MONGODB_URI is not set)
func TestRepositories_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	logger, _ := zap.NewDevelopment()

	client, err := NewClient(ctx, mongoURI, "kundli_test", logger)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Close(ctx)
	defer client.Database.Drop(ctx)

	conversations := NewConversationRepository(client.Database, logger)
	wallets := NewWalletRepository(client.Database, logger)
	profiles := NewAstrologyProfileRepository(client.Database, logger)

	t.Run("ConversationLifecycle", func(t *testing.T) {
		id, err := conversations.Open(ctx, "user-1", "tina_kulkarni_vedic_marriage", "marriage")
		if err != nil {
			t.Fatalf("Failed to open conversation: %v", err)
		}

		if err := conversations.AppendMessage(ctx, id, entities.TurnRoleUser, entities.MessageKindTranscript, "hello"); err != nil {
			t.Fatalf("Failed to append message: %v", err)
		}

		active, err := conversations.ActiveFor(ctx, "user-1", "tina_kulkarni_vedic_marriage")
		if err != nil || active.ID != id {
			t.Fatalf("Expected active conversation %s, got %v", id, err)
		}

		if err := conversations.Close(ctx, id, 61); err != nil {
			t.Fatalf("Failed to close conversation: %v", err)
		}
		if err := conversations.Close(ctx, id, 99); !errors.Is(err, repositories.ErrConversationEnded) {
			t.Errorf("Expected ErrConversationEnded on second close, got %v", err)
		}
		if err := conversations.AppendMessage(ctx, id, entities.TurnRoleUser, entities.MessageKindTranscript, "late"); !errors.Is(err, repositories.ErrConversationEnded) {
			t.Errorf("Expected ErrConversationEnded appending after close, got %v", err)
		}
		conv, err := conversations.Get(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get conversation: %v", err)
		}
		if conv.Status != entities.ConversationStatusEnded || conv.TotalDuration != 61 || conv.TotalMessages != 1 {
			t.Errorf("Unexpected conversation state: %+v", conv)
		}

		msgs, err := conversations.Messages(ctx, id)
		if err != nil || len(msgs) != 1 {
			t.Errorf("Expected 1 message, got %d (%v)", len(msgs), err)
		}

		if err := conversations.SaveReview(ctx, &entities.Review{ConversationID: id, UserID: "user-1", Rating: 5}); err != nil {
			t.Errorf("Failed to save review: %v", err)
		}
	})

	t.Run("CloseUnknownConversation", func(t *testing.T) {
		if err := conversations.Close(ctx, "missing", 1); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListIdle", func(t *testing.T) {
		id, _ := conversations.Open(ctx, "user-2", "p", "")
		idle, err := conversations.ListIdle(ctx, time.Now().Add(time.Minute))
		if err != nil {
			t.Fatalf("Failed to list idle conversations: %v", err)
		}
		found := false
		for _, c := range idle {
			found = found || c.ID == id
		}
		if !found {
			t.Error("Expected the new conversation to be listed as idle")
		}
	})

	t.Run("Wallet", func(t *testing.T) {
		balance, err := wallets.Credit(ctx, "user-1", 100)
		if err != nil || balance != 100 {
			t.Fatalf("Expected balance 100, got %v (%v)", balance, err)
		}
		balance, err = wallets.Debit(ctx, "user-1", 130)
		if err != nil || balance != -30 {
			t.Fatalf("Expected balance -30, got %v (%v)", balance, err)
		}
		if err := wallets.RecordTransaction(ctx, &entities.WalletTransaction{UserID: "user-1", Amount: 130, Kind: entities.TransactionDebit}); err != nil {
			t.Fatalf("Failed to record transaction: %v", err)
		}
		txs, err := wallets.Transactions(ctx, "user-1")
		if err != nil || len(txs) != 1 {
			t.Errorf("Expected 1 transaction, got %d (%v)", len(txs), err)
		}
	})

	t.Run("AstrologyProfile", func(t *testing.T) {
		_, err := client.Database.Collection("astrology_profiles").InsertOne(ctx, bson.M{
			"user_id":   "user-1",
			"ascendant": "Leo",
			"planets":   bson.M{"venus": "7th house"},
		})
		if err != nil {
			t.Fatalf("Failed to seed profile: %v", err)
		}

		text, ok, err := profiles.ContextForAI(ctx, "user-1")
		if err != nil || !ok {
			t.Fatalf("Expected profile, got ok=%v err=%v", ok, err)
		}
		if text != "Ascendant: Leo\nVenus: 7th house" {
			t.Errorf("Unexpected profile text %q", text)
		}

		if _, ok, _ := profiles.ContextForAI(ctx, "nobody"); ok {
			t.Error("Expected no profile for unknown user")
		}
	})
}

func TestAstrologyProfileText(t *testing.T) {
	p := AstrologyProfile{MoonSign: "Cancer", Dasha: "Venus", Planets: map[string]string{"saturn": "10th", "mars": "1st"}, Summary: "Strong career yoga"}
	want := "Moon sign: Cancer\nCurrent dasha: Venus\nMars: 1st\nSaturn: 10th\nStrong career yoga"
	if got := p.Text(); got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}
