// Package settlement bills finished consultations through a saga.
package settlement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
	"github.com/satriahrh/kundli/server/internal/saga"
)

// Service settles sessions. It satisfies the mediator's Settler.
type Service struct {
	sagaManager *saga.Manager
	logger      *zap.Logger
}

// NewService registers the settlement saga on the manager
func NewService(sagaManager *saga.Manager, conversations repositories.ConversationStore, wallet repositories.Wallet, ratePerMinute float64, logger *zap.Logger) *Service {
	sagaManager.RegisterDefinition(NewDefinition(conversations, wallet, ratePerMinute, logger))
	return &Service{
		sagaManager: sagaManager,
		logger:      logger,
	}
}

// Settle closes the conversation and charges the user for its duration
func (s *Service) Settle(ctx context.Context, summary entities.SessionSummary) error {
	data := saga.SagaData{
		DataKeyUserID:         summary.UserID,
		DataKeyPersonaID:      summary.PersonaID,
		DataKeyConversationID: summary.ConversationID,
		DataKeyDuration:       summary.DurationSeconds(),
	}

	instance, err := s.sagaManager.Run(ctx, DefinitionID, data)
	if err != nil {
		return fmt.Errorf("settlement of %s failed: %w", summary.ConversationID, err)
	}

	s.logger.Info("Session settled",
		zap.String("userID", summary.UserID),
		zap.String("conversationID", summary.ConversationID),
		zap.Int64("durationSeconds", summary.DurationSeconds()),
		zap.Any("amount", instance.Data[DataKeyAmount]))
	return nil
}
