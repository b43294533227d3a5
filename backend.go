package dialectic

import (
	"context"
	"sync"
)

// Record names used in logs and PersistError.
const (
	RecordPatterns      = "patterns"
	RecordMetrics       = "metrics"
	RecordEffectiveness = "agent_effectiveness"
	RecordLog           = "learning_log"
)

// Backend persists LearningState.
//
// Load resets any unreadable or malformed record to its empty default and
// returns an error only when the storage location itself is unusable.
// Save must leave previously committed data intact if it fails part way.
type Backend interface {
	Load(ctx context.Context) (*LearningState, error)
	Save(ctx context.Context, state *LearningState) error
	Close() error
}

// MemoryBackend keeps state in memory. Used for dry runs and tests.
type MemoryBackend struct {
	mu      sync.Mutex
	state   *LearningState
	saves   int
	SaveErr error
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{state: NewLearningState()}
}

// Load implements Backend.
func (m *MemoryBackend) Load(_ context.Context) (*LearningState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), nil
}

// Save implements Backend. When SaveErr is set, Save fails with it.
func (m *MemoryBackend) Save(_ context.Context, state *LearningState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.state = state.Clone()
	m.saves++
	return nil
}

// Saves returns how many saves succeeded.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }
