package dialectic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hyperengineering/dialectic/internal/metrics"
)

// LearningStore tracks which agent types work for which event shapes and
// recommends agents for new events.
//
// Writers are serialized. Each write builds the next state from a copy of the
// committed one, persists it, and only then publishes it, so readers never
// observe a state that was not saved.
type LearningStore struct {
	backend Backend
	tuning  Tuning
	matcher PatternMatcher
	logger  *Logger
	metrics *metrics.Metrics
	now     func() time.Time

	writeMu sync.Mutex

	mu     sync.RWMutex
	state  *LearningState
	closed bool
}

// LearningOptions configures NewLearningStore. Zero values pick defaults.
type LearningOptions struct {
	Tuning  *Tuning
	Matcher PatternMatcher
	Logger  *Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// NewLearningStore loads state from backend. It fails only when the backend
// cannot reach its storage; missing or corrupt history starts empty.
func NewLearningStore(ctx context.Context, backend Backend, opts LearningOptions) (*LearningStore, error) {
	t := DefaultTuning()
	if opts.Tuning != nil {
		t = *opts.Tuning
	}
	if opts.Matcher == nil {
		opts.Matcher = JaccardMatcher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	state, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load learning state: %w", err)
	}
	if state == nil {
		state = NewLearningState()
	}
	normalizeState(state)

	return &LearningStore{
		backend: backend,
		tuning:  t,
		matcher: opts.Matcher,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		state:   state,
	}, nil
}

// normalizeState fills nil collections, canonicalizes pattern keys and
// recomputes derived counters.
func normalizeState(s *LearningState) {
	if s.Patterns == nil {
		s.Patterns = make(map[string]int)
	}
	if s.Agents == nil {
		s.Agents = make(map[string]AgentEffectiveness)
	}
	if s.Log == nil {
		s.Log = []LearningEvent{}
	}

	patterns := make(map[string]int, len(s.Patterns))
	for k, v := range s.Patterns {
		patterns[CanonicalPatternKey(k)] += v
	}
	s.Patterns = patterns
	for i := range s.Log {
		e := &s.Log[i]
		e.PatternKey = CanonicalPatternKey(e.PatternKey)
		if e.AgentsSpawned == nil {
			e.AgentsSpawned = []string{}
		}
		if e.EventSummary.Files == nil {
			e.EventSummary.Files = []string{}
		}
	}
	s.Metrics.TotalPatterns = len(s.Patterns)
}

func (s *LearningStore) snapshot() (*LearningState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.state, nil
}

// commit persists next and publishes it. Callers hold writeMu.
func (s *LearningStore) commit(ctx context.Context, next *LearningState) error {
	start := time.Now()
	err := s.backend.Save(ctx, next)
	s.metrics.ObservePersist(time.Since(start))
	if err != nil {
		s.logger.Error("persist learning state", err, nil)
		var pe *PersistError
		if errors.As(err, &pe) {
			return err
		}
		return &PersistError{Record: "learning state", Err: fmt.Errorf("%w: %w", ErrStorageUnavailable, err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.state = next
	return nil
}

// Learn records the outcome of processing ev with the given specs and
// documentation updates. Concurrent calls are serialized.
func (s *LearningStore) Learn(ctx context.Context, ev Event, specs []AgentSpec, outcome Outcome, updates []DocumentationUpdate) error {
	if !outcome.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur, err := s.snapshot()
	if err != nil {
		return err
	}

	next := cur.Clone()
	key := s.apply(next, ev, specs, outcome, updates)

	if err := s.commit(ctx, next); err != nil {
		return err
	}

	s.metrics.ObserveEvent(string(outcome))
	s.logger.Debug("learned from event", logrus.Fields{
		"pattern": key,
		"outcome": outcome,
		"agents":  len(specs),
		"updates": len(updates),
	})
	return nil
}

func (s *LearningStore) apply(st *LearningState, ev Event, specs []AgentSpec, outcome Outcome, updates []DocumentationUpdate) string {
	now := s.now().UTC()
	key := PatternKey(ev)

	st.Patterns[key]++

	st.Metrics.TotalEvents++
	switch outcome {
	case OutcomeSuccess:
		st.Metrics.SuccessfulUpdates++
	case OutcomeFailure:
		st.Metrics.FailedUpdates++
	}
	st.Metrics.TotalPatterns = len(st.Patterns)

	perAgent := make(map[string]int)
	for _, u := range updates {
		perAgent[u.Agent]++
	}

	spawned := make([]string, 0, len(specs))
	for _, spec := range specs {
		rec := st.getOrCreateAgent(spec.AgentType)
		rec.TotalSpawned++
		n := float64(rec.TotalSpawned)
		rec.AverageConfidence = (rec.AverageConfidence*(n-1) + spec.Confidence) / n
		used := now
		rec.LastUsed = &used
		rec.SuccessfulUpdates += perAgent[spec.AgentType]
		st.Agents[spec.AgentType] = rec
		spawned = append(spawned, spec.AgentType)
	}

	st.Log = append(st.Log, LearningEvent{
		Timestamp:     now,
		PatternKey:    key,
		AgentsSpawned: spawned,
		Outcome:       outcome,
		UpdatesCount:  len(updates),
		EventSummary: EventSummary{
			Files:      append([]string{}, ev.Files...),
			Message:    ev.Message,
			ErrorCount: len(ev.Errors),
		},
	})
	st.trimLog(s.tuning.LogCapacity)
	return key
}

// getOrCreateAgent returns the effectiveness record for agentType, inserting
// an empty one first if none exists.
func (st *LearningState) getOrCreateAgent(agentType string) AgentEffectiveness {
	rec, ok := st.Agents[agentType]
	if !ok {
		rec = AgentEffectiveness{}
		st.Agents[agentType] = rec
	}
	return rec
}

// trimLog drops the oldest entries until at most limit remain.
func (st *LearningState) trimLog(limit int) {
	if limit > 0 && len(st.Log) > limit {
		st.Log = append([]LearningEvent(nil), st.Log[len(st.Log)-limit:]...)
	}
}

// Recommend returns up to MaxRecommendations agent types that historically
// did well for events similar to ev, best first. Ties keep first-seen order.
// An empty result means no stored pattern was similar enough.
func (s *LearningStore) Recommend(ctx context.Context, ev Event) ([]string, error) {
	st, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	key := PatternKey(ev)
	matches := s.matcher.Match(key, st.Patterns, s.tuning.SimilarityThreshold)
	if len(matches) == 0 {
		s.metrics.ObserveRecommendation(false)
		return []string{}, nil
	}

	weights := make(map[string]float64, len(matches))
	for _, m := range matches {
		weights[m.Pattern] = m.Weight()
	}

	var order []string
	scores := make(map[string]float64)
	for _, entry := range st.Log {
		w, ok := weights[entry.PatternKey]
		if !ok {
			continue
		}
		ow := s.tuning.OutcomeWeights.Weight(entry.Outcome)
		for _, agent := range entry.AgentsSpawned {
			if _, seen := scores[agent]; !seen {
				order = append(order, agent)
				scores[agent] = 0
			}
			scores[agent] += w * ow
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	if len(order) > s.tuning.MaxRecommendations {
		order = order[:s.tuning.MaxRecommendations]
	}
	if order == nil {
		order = []string{}
	}

	s.metrics.ObserveRecommendation(len(order) > 0)
	s.logger.Debug("recommended agents", logrus.Fields{
		"pattern": key,
		"similar": len(matches),
		"agents":  order,
	})
	return order, nil
}

// Metrics returns the global counters.
func (s *LearningStore) Metrics() (GlobalMetrics, error) {
	st, err := s.snapshot()
	if err != nil {
		return GlobalMetrics{}, err
	}
	return st.Metrics, nil
}

// Snapshot returns a deep copy of the committed state.
func (s *LearningStore) Snapshot() (*LearningState, error) {
	st, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// Replace persists state as the new committed state.
func (s *LearningStore) Replace(ctx context.Context, state *LearningState) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.snapshot(); err != nil {
		return err
	}
	next := state.Clone()
	normalizeState(next)
	next.trimLog(s.tuning.LogCapacity)
	return s.commit(ctx, next)
}

// update applies fn to a copy of the committed state and commits the result.
func (s *LearningStore) update(ctx context.Context, fn func(*LearningState) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur, err := s.snapshot()
	if err != nil {
		return err
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return err
	}
	normalizeState(next)
	next.trimLog(s.tuning.LogCapacity)
	return s.commit(ctx, next)
}

// Summary describes what the store has learned.
func (s *LearningStore) Summary() (*LearningSummary, error) {
	st, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	agents := make([]AgentStat, 0, len(st.Agents))
	for _, t := range sortedKeys(st.Agents) {
		agents = append(agents, AgentStat{AgentType: t, AgentEffectiveness: st.Agents[t]})
	}
	sort.SliceStable(agents, func(i, j int) bool {
		return agents[i].SuccessfulUpdates > agents[j].SuccessfulUpdates
	})
	if len(agents) > 3 {
		agents = agents[:3]
	}

	patterns := make([]PatternCount, 0, len(st.Patterns))
	for _, k := range sortedKeys(st.Patterns) {
		patterns = append(patterns, PatternCount{Pattern: k, Count: st.Patterns[k]})
	}
	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Count > patterns[j].Count
	})
	if len(patterns) > 5 {
		patterns = patterns[:5]
	}

	return &LearningSummary{
		TotalEvents:         st.Metrics.TotalEvents,
		SuccessfulUpdates:   st.Metrics.SuccessfulUpdates,
		FailedUpdates:       st.Metrics.FailedUpdates,
		SuccessRate:         st.Metrics.SuccessRate(),
		PatternsLearned:     len(st.Patterns),
		MostEffectiveAgents: agents,
		MostCommonPatterns:  patterns,
		LearningEventsLog:   len(st.Log),
	}, nil
}

// Insights returns one agent type's record and its runs among the most recent
// log entries. It never creates a record.
func (s *LearningStore) Insights(agentType string) (*AgentInsights, error) {
	st, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	rec, ok := st.Agents[agentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgentType, agentType)
	}

	recent := st.Log
	if w := s.tuning.InsightWindow; len(recent) > w {
		recent = recent[len(recent)-w:]
	}

	runs := []AgentRun{}
	for _, e := range recent {
		for _, a := range e.AgentsSpawned {
			if a == agentType {
				runs = append(runs, AgentRun{Timestamp: e.Timestamp, Outcome: e.Outcome, UpdatesCount: e.UpdatesCount})
				break
			}
		}
	}

	return &AgentInsights{AgentType: agentType, AgentEffectiveness: rec, RecentPerformance: runs}, nil
}

// Patterns returns every learned pattern, most frequent first.
// History and success rate are derived from the retained log only.
func (s *LearningStore) Patterns() ([]PatternRecord, error) {
	st, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	type acc struct {
		agents   []string
		seen     map[string]bool
		weighted float64
		entries  int
		last     time.Time
	}
	byKey := make(map[string]*acc)
	for _, e := range st.Log {
		a := byKey[e.PatternKey]
		if a == nil {
			a = &acc{seen: make(map[string]bool)}
			byKey[e.PatternKey] = a
		}
		for _, t := range e.AgentsSpawned {
			if !a.seen[t] {
				a.seen[t] = true
				a.agents = append(a.agents, t)
			}
		}
		a.weighted += s.tuning.OutcomeWeights.Weight(e.Outcome)
		a.entries++
		if e.Timestamp.After(a.last) {
			a.last = e.Timestamp
		}
	}

	out := make([]PatternRecord, 0, len(st.Patterns))
	for _, k := range sortedKeys(st.Patterns) {
		rec := PatternRecord{PatternKey: k, OccurrenceCount: st.Patterns[k], AgentsSpawned: []string{}}
		if a := byKey[k]; a != nil {
			rec.AgentsSpawned = nonNil(a.agents)
			rec.SuccessRate = a.weighted / float64(a.entries)
			rec.LastSeen = a.last
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurrenceCount > out[j].OccurrenceCount
	})
	return out, nil
}

// Close releases the backend. Further calls return ErrStoreClosed.
func (s *LearningStore) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.backend.Close()
}
