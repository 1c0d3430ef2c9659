package repositories

import (
	"context"

	"github.com/satriahrh/kundli/server/domain/entities"
)

// UserStateStore holds collected profile fragments and persona bindings.
// Reads never fail; writes are persisted in the background.
type UserStateStore interface {
	Fragment(userID string) entities.ProfileFragment
	// UpdateFragment merges absent fields and returns the resulting fragment
	UpdateFragment(userID string, update entities.ProfileFragment) entities.ProfileFragment
	Binding(userID string) (string, bool)
	BindPersona(userID, personaID string)
	Snapshot() map[string]entities.UserState
}

// UserStateBackend is the durable form of the user state mapping
type UserStateBackend interface {
	Load(ctx context.Context) (map[string]entities.UserState, error)
	Save(ctx context.Context, userID string, state entities.UserState) error
	Close() error
}
