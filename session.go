package dialectic

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Batch is one generated set of specs kept for a later Learn call.
type Batch struct {
	Ref       string          `json:"ref"`
	Event     Event           `json:"event"`
	Analysis  ContextAnalysis `json:"analysis"`
	Specs     []AgentSpec     `json:"specs"`
	CreatedAt time.Time       `json:"created_at"`
	Learned   bool            `json:"learned"`
}

// Session tracks batches generated during a session so outcomes can be
// reported later by short reference (E1, E2, ...).
type Session struct {
	mu      sync.Mutex
	batches map[string]*Batch
	byAgent map[string]string // agent ID -> session ref
	counter int
}

// NewSession creates a new session tracker.
func NewSession() *Session {
	return &Session{
		batches: make(map[string]*Batch),
		byAgent: make(map[string]string),
	}
}

// Track stores a batch and returns its session reference.
func (s *Session) Track(ev Event, ca ContextAnalysis, specs []AgentSpec) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	ref := fmt.Sprintf("E%d", s.counter)
	s.batches[ref] = &Batch{
		Ref:       ref,
		Event:     ev,
		Analysis:  ca,
		Specs:     append([]AgentSpec(nil), specs...),
		CreatedAt: time.Now().UTC(),
	}
	for _, spec := range specs {
		s.byAgent[spec.AgentID] = ref
	}
	return ref
}

// Resolve returns a copy of the batch for a reference. It accepts session
// refs in any case ("E1", "e1") and the agent ID of any spec in a batch.
func (s *Session) Resolve(ref string) (Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.lookup(ref)
	if b == nil {
		return Batch{}, false
	}
	out := *b
	out.Specs = append([]AgentSpec(nil), b.Specs...)
	return out, true
}

func (s *Session) lookup(ref string) *Batch {
	ref = strings.TrimSpace(ref)
	if b, ok := s.batches[strings.ToUpper(ref)]; ok {
		return b
	}
	if r, ok := s.byAgent[ref]; ok {
		return s.batches[r]
	}
	return nil
}

// MarkLearned records that a batch's outcome has been learned.
// It reports false when the reference is unknown.
func (s *Session) MarkLearned(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.lookup(ref)
	if b == nil {
		return false
	}
	b.Learned = true
	return true
}

// Pending returns the refs of batches not learned yet, oldest first.
func (s *Session) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refs []string
	for i := 1; i <= s.counter; i++ {
		ref := fmt.Sprintf("E%d", i)
		if b, ok := s.batches[ref]; ok && !b.Learned {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Count returns the number of batches tracked this session.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// Clear resets the session tracking.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches = make(map[string]*Batch)
	s.byAgent = make(map[string]string)
	s.counter = 0
}
