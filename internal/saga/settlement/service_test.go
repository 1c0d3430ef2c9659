package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	memstore "github.com/satriahrh/kundli/server/adapters/memory"
	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/internal/saga"
)

type failingRecorder struct {
	*memstore.Wallet
}

func (f failingRecorder) RecordTransaction(ctx context.Context, tx *entities.WalletTransaction) error {
	return errors.New("disk full")
}

func openConversation(t *testing.T, convs *memstore.ConversationStore) string {
	t.Helper()
	id, err := convs.Open(context.Background(), "u1", "tina_kulkarni_vedic_marriage", "marriage")
	if err != nil {
		t.Fatalf("Failed to open conversation: %v", err)
	}
	return id
}

func summary(conversationID string, d time.Duration) entities.SessionSummary {
	start := time.Now().Add(-d)
	return entities.SessionSummary{
		UserID:         "u1",
		PersonaID:      "tina_kulkarni_vedic_marriage",
		ConversationID: conversationID,
		StartedAt:      start,
		EndedAt:        start.Add(d),
	}
}

func TestCharge(t *testing.T) {
	tests := []struct {
		seconds int64
		rate    float64
		want    float64
	}{
		{0, 10, 0},
		{60, 10, 10},
		{90, 10, 15},
		{100, 7, 11.67},
		{120, 0, 0},
	}
	for _, tt := range tests {
		if got := Charge(tt.seconds, tt.rate); got != tt.want {
			t.Errorf("Charge(%d, %v) = %v, want %v", tt.seconds, tt.rate, got, tt.want)
		}
	}
}

func TestSettle(t *testing.T) {
	ctx := context.Background()
	convs := memstore.NewConversationStore()
	wallet := memstore.NewWallet(map[string]float64{"u1": 100})
	service := NewService(saga.NewManager(zap.NewNop()), convs, wallet, 10, zap.NewNop())

	id := openConversation(t, convs)
	if err := service.Settle(ctx, summary(id, 3*time.Minute)); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	conv, _ := convs.Get(ctx, id)
	if conv.Status != entities.ConversationStatusEnded || conv.TotalDuration != 180 {
		t.Errorf("Expected ended conversation of 180s, got %+v", conv)
	}
	if balance, _ := wallet.Balance(ctx, "u1"); balance != 70 {
		t.Errorf("Expected balance 70, got %v", balance)
	}
	txs, _ := wallet.Transactions(ctx, "u1")
	if len(txs) != 1 || txs[0].Amount != 30 || txs[0].BalanceAfter != 70 || txs[0].ConversationID != id {
		t.Errorf("Unexpected transactions %+v", txs)
	}

	// a second settlement of the same conversation must not bill again
	err := service.Settle(ctx, summary(id, 3*time.Minute))
	if !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("Expected ErrAlreadySettled, got %v", err)
	}
	if balance, _ := wallet.Balance(ctx, "u1"); balance != 70 {
		t.Errorf("Expected balance unchanged, got %v", balance)
	}
}

func TestSettle_ConcurrentChargesOnce(t *testing.T) {
	ctx := context.Background()
	convs := memstore.NewConversationStore()
	wallet := memstore.NewWallet(map[string]float64{"u1": 100})
	service := NewService(saga.NewManager(zap.NewNop()), convs, wallet, 10, zap.NewNop())

	id := openConversation(t, convs)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- service.Settle(ctx, summary(id, time.Minute))
		}()
	}
	wg.Wait()
	close(errs)

	settled := 0
	for err := range errs {
		switch {
		case err == nil:
			settled++
		case !errors.Is(err, ErrAlreadySettled):
			t.Errorf("Unexpected error %v", err)
		}
	}
	if settled != 1 {
		t.Errorf("Expected exactly one settlement, got %d", settled)
	}
	if balance, _ := wallet.Balance(ctx, "u1"); balance != 90 {
		t.Errorf("Expected balance 90, got %v", balance)
	}
}

func TestSettle_RefundsWhenRecordFails(t *testing.T) {
	ctx := context.Background()
	convs := memstore.NewConversationStore()
	wallet := memstore.NewWallet(map[string]float64{"u1": 50})
	service := NewService(saga.NewManager(zap.NewNop()), convs, failingRecorder{wallet}, 10, zap.NewNop())

	id := openConversation(t, convs)
	if err := service.Settle(ctx, summary(id, 2*time.Minute)); err == nil {
		t.Fatal("Expected settlement error")
	}
	if balance, _ := wallet.Balance(ctx, "u1"); balance != 50 {
		t.Errorf("Expected debit refunded, got balance %v", balance)
	}
	conv, _ := convs.Get(ctx, id)
	if conv.Status != entities.ConversationStatusEnded {
		t.Error("Conversation should stay closed")
	}
}

func TestSettle_ShortSessionIsFree(t *testing.T) {
	ctx := context.Background()
	convs := memstore.NewConversationStore()
	wallet := memstore.NewWallet(nil)
	service := NewService(saga.NewManager(zap.NewNop()), convs, wallet, 10, zap.NewNop())

	id := openConversation(t, convs)
	if err := service.Settle(ctx, summary(id, 0)); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if txs, _ := wallet.Transactions(ctx, "u1"); len(txs) != 0 {
		t.Errorf("Expected no transaction, got %d", len(txs))
	}
}
