package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered saga definitions. Each run executes its steps in
// order and compensates the completed ones in reverse when a step fails.
type Manager struct {
	logger      *zap.Logger
	definitions map[string]SagaDefinition
	eventChan   chan SagaEvent
	mu          sync.RWMutex
}

// NewManager creates a new saga manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:      logger,
		definitions: make(map[string]SagaDefinition),
		eventChan:   make(chan SagaEvent, 100),
	}
}

// RegisterDefinition registers a saga definition
func (m *Manager) RegisterDefinition(def SagaDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[def.ID()] = def
	m.logger.Info("Saga definition registered", zap.String("id", def.ID()))
}

// Run executes a saga to completion. The returned instance is never nil for a
// registered definition; the error is the failing step's error.
func (m *Manager) Run(ctx context.Context, definitionID string, data SagaData) (*SagaInstance, error) {
	m.mu.RLock()
	def, exists := m.definitions[definitionID]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("saga definition not found: %s", definitionID)
	}

	steps := def.Steps()
	instance := &SagaInstance{
		ID:         SagaID(fmt.Sprintf("%s_%d", definitionID, time.Now().UnixNano())),
		Definition: definitionID,
		State:      SagaStateStarted,
		Data:       data,
		Steps:      make([]StepExecution, len(steps)),
		StartedAt:  time.Now(),
	}
	for i, step := range steps {
		instance.Steps[i] = StepExecution{ID: step.ID(), State: StepStatePending}
	}
	m.emitEvent(SagaEvent{SagaID: instance.ID, Type: EventSagaStarted, Timestamp: instance.StartedAt})

	ctx, cancel := context.WithTimeout(ctx, def.Timeout())
	defer cancel()

	instance.State = SagaStateRunning
	lastCompleted := -1
	var failure error
	for i, step := range steps {
		if err := m.executeStep(ctx, instance, i, step); err != nil {
			m.logger.Error("Step failed",
				zap.String("sagaID", string(instance.ID)),
				zap.String("stepID", string(step.ID())),
				zap.Error(err))
			failure = err
			break
		}
		lastCompleted = i
	}

	if failure != nil {
		m.compensate(ctx, instance, steps, lastCompleted)
		instance.Error = failure.Error()
		return instance, failure
	}

	now := time.Now()
	instance.State = SagaStateCompleted
	instance.CompletedAt = &now
	m.emitEvent(SagaEvent{SagaID: instance.ID, Type: EventSagaCompleted, Timestamp: now})
	m.logger.Info("Saga completed", zap.String("sagaID", string(instance.ID)))
	return instance, nil
}

func (m *Manager) executeStep(ctx context.Context, instance *SagaInstance, i int, step Step) error {
	exec := &instance.Steps[i]
	started := time.Now()
	exec.State = StepStateRunning
	exec.StartedAt = &started

	if err := ctx.Err(); err != nil {
		exec.State = StepStateFailed
		exec.Error = err.Error()
		return err
	}

	result := step.Execute(ctx, instance.Data)
	finished := time.Now()
	exec.CompletedAt = &finished

	if !result.Success {
		err := result.Error
		if err == nil {
			err = fmt.Errorf("step %s failed", step.ID())
		}
		exec.State = StepStateFailed
		exec.Error = err.Error()
		m.emitEvent(SagaEvent{SagaID: instance.ID, StepID: step.ID(), Type: EventStepFailed, Timestamp: finished, Data: exec.Error})
		return err
	}

	exec.State = StepStateCompleted
	exec.Result = result.Data
	m.emitEvent(SagaEvent{SagaID: instance.ID, StepID: step.ID(), Type: EventStepCompleted, Timestamp: finished, Data: result.Data})
	m.logger.Debug("Step completed",
		zap.String("sagaID", string(instance.ID)),
		zap.String("stepID", string(step.ID())))
	return nil
}

// compensate undoes completed steps in reverse order. Compensation runs on a
// fresh context when the saga deadline has already passed.
func (m *Manager) compensate(ctx context.Context, instance *SagaInstance, steps []Step, lastCompleted int) {
	if ctx.Err() != nil {
		fresh, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctx = fresh
	}

	for i := lastCompleted; i >= 0; i-- {
		step := steps[i]
		m.logger.Info("Compensating step",
			zap.String("sagaID", string(instance.ID)),
			zap.String("stepID", string(step.ID())))

		if err := step.Compensate(ctx, instance.Data); err != nil {
			m.logger.Error("Compensation failed",
				zap.String("sagaID", string(instance.ID)),
				zap.String("stepID", string(step.ID())),
				zap.Error(err))
			continue
		}
		instance.Steps[i].State = StepStateCompensated
		m.emitEvent(SagaEvent{SagaID: instance.ID, StepID: step.ID(), Type: EventStepCompensated, Timestamp: time.Now()})
	}

	now := time.Now()
	instance.State = SagaStateCompensated
	instance.CompletedAt = &now
	m.emitEvent(SagaEvent{SagaID: instance.ID, Type: EventSagaCompensated, Timestamp: now})
	m.logger.Info("Saga compensated", zap.String("sagaID", string(instance.ID)))
}

func (m *Manager) emitEvent(event SagaEvent) {
	select {
	case m.eventChan <- event:
	default:
		m.logger.Debug("Event channel full, dropping event", zap.String("type", event.Type))
	}
}

// EventChannel returns the event channel for listening to saga events
func (m *Manager) EventChannel() <-chan SagaEvent {
	return m.eventChan
}
