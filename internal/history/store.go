// internal/history/store.go
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/signalnine/logsentry/internal/protocol"
)

var (
	// ErrNotFound is returned by Get for an unknown id
	ErrNotFound = errors.New("analysis not found")
	// ErrDuplicateID is returned by Append when the id is already stored
	ErrDuplicateID = errors.New("analysis id already exists")
)

// Backend persists the whole history as one sequence, newest first.
// Load on an empty backend returns an empty slice and no error.
type Backend interface {
	Load(ctx context.Context) ([]protocol.AnalysisResult, error)
	Save(ctx context.Context, history []protocol.AnalysisResult) error
}

// Store is an append-only, newest-first list of completed analyses
type Store struct {
	mu      sync.Mutex
	backend Backend
}

// NewStore creates a store over backend
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Append prepends r to the history
func (s *Store) Append(ctx context.Context, r protocol.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, existing := range history {
		if existing.ID == r.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
		}
	}

	updated := make([]protocol.AnalysisResult, 0, len(history)+1)
	updated = append(updated, r)
	updated = append(updated, history...)

	if err := s.backend.Save(ctx, updated); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// List returns every stored analysis, newest first
func (s *Store) List(ctx context.Context) ([]protocol.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if history == nil {
		history = []protocol.AnalysisResult{}
	}
	return history, nil
}

// Get returns the analysis with the given id or ErrNotFound
func (s *Store) Get(ctx context.Context, id string) (protocol.AnalysisResult, error) {
	history, err := s.List(ctx)
	if err != nil {
		return protocol.AnalysisResult{}, err
	}
	for _, r := range history {
		if r.ID == id {
			return r, nil
		}
	}
	return protocol.AnalysisResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// MemoryBackend keeps history in process memory
type MemoryBackend struct {
	mu      sync.Mutex
	history []protocol.AnalysisResult
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load(ctx context.Context) ([]protocol.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.AnalysisResult, len(m.history))
	copy(out, m.history)
	return out, nil
}

func (m *MemoryBackend) Save(ctx context.Context, history []protocol.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = make([]protocol.AnalysisResult, len(history))
	copy(m.history, history)
	return nil
}
