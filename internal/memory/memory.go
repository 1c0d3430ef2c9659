// Package memory keeps a bounded history of recent turns per user.
package memory

import (
	"sync"

	"github.com/satriahrh/kundli/server/domain/entities"
)

// DefaultCapacity is the number of turns kept per user
const DefaultCapacity = 20

// Memory is a per-user FIFO of turns. Oldest turns are evicted once the
// capacity is reached.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	turns    map[string][]entities.Turn
}

// New creates a memory with the given per-user capacity
func New(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{
		capacity: capacity,
		turns:    make(map[string][]entities.Turn),
	}
}

// Append records a turn, truncating its content
func (m *Memory) Append(userID string, turn entities.Turn) {
	turn.Content = entities.Truncate(turn.Content, entities.TurnContentLimit)

	m.mu.Lock()
	defer m.mu.Unlock()

	turns := append(m.turns[userID], turn)
	if over := len(turns) - m.capacity; over > 0 {
		turns = append([]entities.Turn(nil), turns[over:]...)
	}
	m.turns[userID] = turns
}

// Recent returns up to n most recent turns, oldest first
func (m *Memory) Recent(userID string, n int) []entities.Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := m.turns[userID]
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	if n > len(turns) {
		n = len(turns)
	}
	out := make([]entities.Turn, n)
	copy(out, turns[len(turns)-n:])
	return out
}

// All returns every retained turn of the user
func (m *Memory) All(userID string) []entities.Turn {
	return m.Recent(userID, m.capacity)
}

// PostProfileTurnCount counts user turns recorded after the profile was complete
func (m *Memory) PostProfileTurnCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return CountPostProfile(m.turns[userID])
}

// CountPostProfile counts user turns flagged as after profile completion
func CountPostProfile(turns []entities.Turn) int {
	count := 0
	for _, t := range turns {
		if t.Role == entities.TurnRoleUser && t.AfterProfileComplete {
			count++
		}
	}
	return count
}
