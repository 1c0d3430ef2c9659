// Package userstate keeps collected profile fragments and persona bindings in
// memory and writes every change through to a durable backend.
package userstate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
)

const (
	writeQueueSize = 256
	writeTimeout   = 5 * time.Second
)

type writeJob struct {
	userID string
	state  entities.UserState
	done   chan struct{}
}

// Store is the authoritative in-memory user state. Writes are forwarded to the
// backend by a single goroutine, so durable order matches mutation order.
// Mutations never wait on the backend: when the queue is full the user is
// marked dirty and its latest state is saved once the writer catches up.
type Store struct {
	mu     sync.RWMutex
	states map[string]entities.UserState

	dirtyMu sync.Mutex
	dirty   map[string]struct{}

	backend repositories.UserStateBackend
	writes  chan writeJob
	closed  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	logger *zap.Logger
}

// NewStore loads the durable state and starts the writer. A backend load
// failure is logged and leaves the store empty.
func NewStore(ctx context.Context, backend repositories.UserStateBackend, logger *zap.Logger) *Store {
	s := &Store{
		states:  make(map[string]entities.UserState),
		dirty:   make(map[string]struct{}),
		backend: backend,
		writes:  make(chan writeJob, writeQueueSize),
		closed:  make(chan struct{}),
		logger:  logger,
	}

	if backend != nil {
		loaded, err := backend.Load(ctx)
		if err != nil {
			logger.Error("Failed to load user state, starting empty", zap.Error(err))
		}
		for userID, state := range loaded {
			s.states[userID] = state
		}
		logger.Info("User state loaded", zap.Int("users", len(s.states)))
	}

	s.wg.Add(1)
	go s.writer()
	return s
}

// Fragment returns the profile fragment of a user
func (s *Store) Fragment(userID string) entities.ProfileFragment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[userID].ProfileFragment
}

// UpdateFragment fills absent fields of the user's fragment and persists the
// result when anything changed
func (s *Store) UpdateFragment(userID string, update entities.ProfileFragment) entities.ProfileFragment {
	s.mu.Lock()
	state := s.states[userID]
	changed := state.ProfileFragment.Merge(update)
	if changed {
		s.states[userID] = state
	}
	s.mu.Unlock()

	if changed {
		s.enqueue(userID, state)
	}
	return state.ProfileFragment
}

// Binding returns the persona a user last selected
func (s *Store) Binding(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[userID]
	if !ok || state.PersonaID == "" {
		return "", false
	}
	return state.PersonaID, true
}

// BindPersona records the user's persona selection
func (s *Store) BindPersona(userID, personaID string) {
	s.mu.Lock()
	state := s.states[userID]
	if state.PersonaID == personaID {
		s.mu.Unlock()
		return
	}
	state.PersonaID = personaID
	s.states[userID] = state
	s.mu.Unlock()

	s.enqueue(userID, state)
}

// Snapshot returns a copy of the whole mapping
func (s *Store) Snapshot() map[string]entities.UserState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]entities.UserState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// Flush blocks until every write queued so far reached the backend
func (s *Store) Flush() {
	done := make(chan struct{})
	select {
	case s.writes <- writeJob{done: done}:
	case <-s.closed:
		return
	}
	<-done
}

// Close drains pending writes and closes the backend
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.closed)
	})
	s.wg.Wait()
	if s.backend != nil {
		return s.backend.Close()
	}
	return nil
}

func (s *Store) enqueue(userID string, state entities.UserState) {
	if s.backend == nil {
		return
	}
	select {
	case s.writes <- writeJob{userID: userID, state: state}:
	case <-s.closed:
		s.logger.Warn("User state store closed, write dropped", zap.String("userID", userID))
	default:
		s.dirtyMu.Lock()
		s.dirty[userID] = struct{}{}
		s.dirtyMu.Unlock()
		s.logger.Warn("User state write queue full, coalescing write", zap.String("userID", userID))
	}
}

func (s *Store) writer() {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.writes:
			s.apply(job)
			if len(s.writes) == 0 {
				s.saveDirty()
			}
		case <-s.closed:
			for {
				select {
				case job := <-s.writes:
					s.apply(job)
				default:
					s.saveDirty()
					return
				}
			}
		}
	}
}

func (s *Store) apply(job writeJob) {
	if job.done != nil {
		s.saveDirty()
		close(job.done)
		return
	}
	s.save(job.userID, job.state)
}

// saveDirty persists the current state of users whose writes were coalesced.
// It only runs with the queue drained, so no older queued write follows it.
func (s *Store) saveDirty() {
	s.dirtyMu.Lock()
	if len(s.dirty) == 0 {
		s.dirtyMu.Unlock()
		return
	}
	users := s.dirty
	s.dirty = make(map[string]struct{})
	s.dirtyMu.Unlock()

	for userID := range users {
		s.mu.RLock()
		state := s.states[userID]
		s.mu.RUnlock()
		s.save(userID, state)
	}
}

func (s *Store) save(userID string, state entities.UserState) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.backend.Save(ctx, userID, state); err != nil {
		s.logger.Error("Failed to persist user state",
			zap.String("userID", userID),
			zap.Error(err))
	}
}
