package userstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
)

// FileBackend stores the whole mapping as one JSON document. Each save
// rewrites the document through a temporary file and a rename.
type FileBackend struct {
	path   string
	mu     sync.Mutex
	states map[string]entities.UserState
	logger *zap.Logger
}

// NewFileBackend creates a backend writing to path
func NewFileBackend(path string, logger *zap.Logger) *FileBackend {
	return &FileBackend{
		path:   path,
		states: make(map[string]entities.UserState),
		logger: logger,
	}
}

// Load reads the document. A missing or malformed file is an empty mapping.
func (b *FileBackend) Load(ctx context.Context) (map[string]entities.UserState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]entities.UserState{}, nil
	}
	if err != nil {
		return map[string]entities.UserState{}, fmt.Errorf("failed to read user state file: %w", err)
	}

	states := make(map[string]entities.UserState)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &states); err != nil {
			b.logger.Warn("Malformed user state file, treating as empty",
				zap.String("path", b.path),
				zap.Error(err))
			states = make(map[string]entities.UserState)
		}
	}

	b.states = make(map[string]entities.UserState, len(states))
	out := make(map[string]entities.UserState, len(states))
	for k, v := range states {
		b.states[k] = v
		out[k] = v
	}
	return out, nil
}

// Save updates one user and rewrites the document
func (b *FileBackend) Save(ctx context.Context, userID string, state entities.UserState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.states[userID] = state
	data, err := json.MarshalIndent(b.states, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode user state: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create user state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".userstate-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace user state file: %w", err)
	}
	return nil
}

// Close implements UserStateBackend
func (b *FileBackend) Close() error {
	return nil
}
