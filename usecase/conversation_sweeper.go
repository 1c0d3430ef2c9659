package usecase

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
)

// Settler bills and closes a finished conversation
type Settler interface {
	Settle(ctx context.Context, summary entities.SessionSummary) error
}

// LiveCheck reports whether a conversation is still owned by a live session
type LiveCheck func(userID, conversationID string) bool

// ConversationSweeper settles conversations that saw no activity for longer
// than the idle timeout, such as text chats that are never closed explicitly
type ConversationSweeper struct {
	conversations repositories.ConversationStore
	settler       Settler
	live          LiveCheck
	idleTimeout   time.Duration
	schedule      string
	cron          *cron.Cron
	logger        *zap.Logger
}

// NewConversationSweeper creates a sweeper running on a cron schedule. live may
// be nil when no sessions hold conversations.
func NewConversationSweeper(conversations repositories.ConversationStore, settler Settler, live LiveCheck, idleTimeout time.Duration, schedule string, logger *zap.Logger) *ConversationSweeper {
	return &ConversationSweeper{
		conversations: conversations,
		settler:       settler,
		live:          live,
		idleTimeout:   idleTimeout,
		schedule:      schedule,
		cron:          cron.New(cron.WithLocation(time.UTC)),
		logger:        logger,
	}
}

// Start registers the sweep and starts the scheduler
func (s *ConversationSweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Sweep(ctx, time.Now())
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("Conversation sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop waits for a running sweep to finish
func (s *ConversationSweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Conversation sweeper stopped")
}

// Sweep settles every conversation idle at now and returns how many it settled
func (s *ConversationSweeper) Sweep(ctx context.Context, now time.Time) int {
	idle, err := s.conversations.ListIdle(ctx, now.Add(-s.idleTimeout))
	if err != nil {
		s.logger.Error("Failed to list idle conversations", zap.Error(err))
		return 0
	}

	settled := 0
	for _, conv := range idle {
		if s.live != nil && s.live(conv.UserID, conv.ID) {
			s.logger.Debug("Skipping conversation held by a live session", zap.String("conversationID", conv.ID))
			continue
		}
		summary := entities.SessionSummary{
			UserID:         conv.UserID,
			PersonaID:      conv.PersonaID,
			ConversationID: conv.ID,
			StartedAt:      conv.StartedAt,
			EndedAt:        conv.LastActiveAt,
		}
		if err := s.settler.Settle(ctx, summary); err != nil {
			s.logger.Warn("Failed to settle idle conversation",
				zap.String("conversationID", conv.ID),
				zap.Error(err))
			continue
		}
		settled++
	}

	if len(idle) > 0 {
		s.logger.Info("Idle conversations swept", zap.Int("found", len(idle)), zap.Int("settled", settled))
	}
	return settled
}
