package settlement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
	"github.com/satriahrh/kundli/server/internal/saga"
)

// DefinitionID names the settlement saga
const DefinitionID = "session_settlement"

// ErrAlreadySettled is returned when the conversation was closed before
var ErrAlreadySettled = errors.New("conversation already settled")

// Data keys for the settlement saga
const (
	DataKeyUserID         = "user_id"
	DataKeyPersonaID      = "persona_id"
	DataKeyConversationID = "conversation_id"
	DataKeyDuration       = "duration_seconds"
	DataKeyAmount         = "amount"
	DataKeyBalance        = "balance"
	DataKeyTransactionID  = "transaction_id"
)

// Definition closes the conversation, debits the wallet and records the
// transaction. A failed record refunds the debit.
type Definition struct {
	conversations repositories.ConversationStore
	wallet        repositories.Wallet
	ratePerMinute float64
	logger        *zap.Logger
}

// NewDefinition creates the settlement saga definition
func NewDefinition(conversations repositories.ConversationStore, wallet repositories.Wallet, ratePerMinute float64, logger *zap.Logger) *Definition {
	return &Definition{
		conversations: conversations,
		wallet:        wallet,
		ratePerMinute: ratePerMinute,
		logger:        logger,
	}
}

func (d *Definition) ID() string {
	return DefinitionID
}

func (d *Definition) Timeout() time.Duration {
	return 10 * time.Second
}

func (d *Definition) Steps() []saga.Step {
	return []saga.Step{
		&CloseConversationStep{conversations: d.conversations, logger: d.logger},
		&DebitWalletStep{wallet: d.wallet, ratePerMinute: d.ratePerMinute, logger: d.logger},
		&RecordTransactionStep{wallet: d.wallet, logger: d.logger},
	}
}

// Charge is the amount billed for a session, rounded to two decimals
func Charge(durationSeconds int64, ratePerMinute float64) float64 {
	if durationSeconds <= 0 || ratePerMinute <= 0 {
		return 0
	}
	amount := float64(durationSeconds) / 60 * ratePerMinute
	return math.Round(amount*100) / 100
}

// CloseConversationStep marks the conversation ended with its duration
type CloseConversationStep struct {
	conversations repositories.ConversationStore
	logger        *zap.Logger
}

func (s *CloseConversationStep) ID() saga.StepID {
	return "close_conversation"
}

func (s *CloseConversationStep) Execute(ctx context.Context, data saga.SagaData) saga.StepResult {
	conversationID, _ := data[DataKeyConversationID].(string)
	duration, _ := data[DataKeyDuration].(int64)
	if conversationID == "" {
		return saga.Fail(fmt.Errorf("missing conversation id"))
	}

	// Close is conditional on the active status, so only one settlement passes.
	if err := s.conversations.Close(ctx, conversationID, duration); err != nil {
		if errors.Is(err, repositories.ErrConversationEnded) {
			return saga.Fail(ErrAlreadySettled)
		}
		return saga.Fail(fmt.Errorf("failed to close conversation: %w", err))
	}

	s.logger.Info("Conversation closed",
		zap.String("conversationID", conversationID),
		zap.Int64("durationSeconds", duration))
	return saga.Ok(duration)
}

func (s *CloseConversationStep) Compensate(ctx context.Context, data saga.SagaData) error {
	// an ended conversation stays ended; billing is retried by hand
	s.logger.Warn("Conversation closed without settlement",
		zap.Any("conversationID", data[DataKeyConversationID]))
	return nil
}

// DebitWalletStep charges the user for the session
type DebitWalletStep struct {
	wallet        repositories.Wallet
	ratePerMinute float64
	logger        *zap.Logger
}

func (s *DebitWalletStep) ID() saga.StepID {
	return "debit_wallet"
}

func (s *DebitWalletStep) Execute(ctx context.Context, data saga.SagaData) saga.StepResult {
	userID, _ := data[DataKeyUserID].(string)
	duration, _ := data[DataKeyDuration].(int64)

	amount := Charge(duration, s.ratePerMinute)
	data[DataKeyAmount] = amount
	if amount == 0 {
		return saga.Ok(0.0)
	}

	balance, err := s.wallet.Debit(ctx, userID, amount)
	if err != nil {
		return saga.Fail(fmt.Errorf("failed to debit wallet: %w", err))
	}
	data[DataKeyBalance] = balance

	s.logger.Info("Wallet debited",
		zap.String("userID", userID),
		zap.Float64("amount", amount),
		zap.Float64("balance", balance))
	return saga.Ok(amount)
}

func (s *DebitWalletStep) Compensate(ctx context.Context, data saga.SagaData) error {
	userID, _ := data[DataKeyUserID].(string)
	amount, _ := data[DataKeyAmount].(float64)
	if amount == 0 {
		return nil
	}
	if _, err := s.wallet.Credit(ctx, userID, amount); err != nil {
		return fmt.Errorf("failed to refund wallet: %w", err)
	}
	s.logger.Info("Wallet refunded", zap.String("userID", userID), zap.Float64("amount", amount))
	return nil
}

// RecordTransactionStep writes the wallet history row
type RecordTransactionStep struct {
	wallet repositories.Wallet
	logger *zap.Logger
}

func (s *RecordTransactionStep) ID() saga.StepID {
	return "record_transaction"
}

func (s *RecordTransactionStep) Execute(ctx context.Context, data saga.SagaData) saga.StepResult {
	amount, _ := data[DataKeyAmount].(float64)
	if amount == 0 {
		return saga.Ok(nil)
	}

	userID, _ := data[DataKeyUserID].(string)
	conversationID, _ := data[DataKeyConversationID].(string)
	personaID, _ := data[DataKeyPersonaID].(string)
	balance, _ := data[DataKeyBalance].(float64)

	tx := &entities.WalletTransaction{
		UserID:         userID,
		ConversationID: conversationID,
		Amount:         amount,
		Kind:           entities.TransactionDebit,
		Reason:         "consultation with " + personaID,
		BalanceAfter:   balance,
		CreatedAt:      time.Now(),
	}
	if err := s.wallet.RecordTransaction(ctx, tx); err != nil {
		return saga.Fail(fmt.Errorf("failed to record transaction: %w", err))
	}
	data[DataKeyTransactionID] = tx.ID
	return saga.Ok(tx.ID)
}

func (s *RecordTransactionStep) Compensate(ctx context.Context, data saga.SagaData) error {
	return nil
}
