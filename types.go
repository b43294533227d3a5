package dialectic

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrorRecord describes one class of error reported alongside an event.
type ErrorRecord struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// UnmarshalJSON accepts both "kind" and the older "type" field name.
func (e *ErrorRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind  string `json:"kind"`
		Type  string `json:"type"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Kind = raw.Kind
	if e.Kind == "" {
		e.Kind = raw.Type
	}
	e.Count = raw.Count
	return nil
}

// ParseErrorRecord parses "kind" or "kind:count". A missing count means 1.
func ParseErrorRecord(s string) (ErrorRecord, error) {
	kind, count, found := strings.Cut(strings.TrimSpace(s), ":")
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return ErrorRecord{}, fmt.Errorf("error record %q: empty kind", s)
	}
	if !found {
		return ErrorRecord{Kind: kind, Count: 1}, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n < 0 {
		return ErrorRecord{}, fmt.Errorf("error record %q: count must be a non-negative integer", s)
	}
	return ErrorRecord{Kind: kind, Count: n}, nil
}

// Event is a development event: changed files, a message, and any reported errors.
// Missing fields are treated as empty.
type Event struct {
	Files   []string      `json:"files"`
	Message string        `json:"message"`
	Errors  []ErrorRecord `json:"errors"`
}

// FileCategory is one of the fixed file-type buckets used by the classifier.
type FileCategory string

const (
	FileSource      FileCategory = "source"
	FileScript      FileCategory = "script"
	FileTypedScript FileCategory = "typed_script"
	FileMarkup      FileCategory = "markup"
	FileStylesheet  FileCategory = "stylesheet"
	FileMarkdown    FileCategory = "markdown"
	FileConfig      FileCategory = "config"
	FileOther       FileCategory = "other"
)

// FileCategories returns all file categories in classification order.
func FileCategories() []FileCategory {
	return []FileCategory{
		FileSource,
		FileScript,
		FileTypedScript,
		FileMarkup,
		FileStylesheet,
		FileMarkdown,
		FileConfig,
		FileOther,
	}
}

// Confidence holds per-focus confidence scores in [0, 1].
type Confidence struct {
	Security    float64 `json:"security"`
	MVP         float64 `json:"mvp"`
	Performance float64 `json:"performance"`
}

// ContextAnalysis is the classifier's structured view of an event.
type ContextAnalysis struct {
	SecurityFocus      bool `json:"security_focus"`
	MVPFocus           bool `json:"mvp_focus"`
	PerformanceFocus   bool `json:"performance_focus"`
	DocumentationFocus bool `json:"documentation_focus"`
	ErrorFocus         bool `json:"error_focus"`

	Confidence Confidence `json:"confidence"`

	// FileTypes always carries every category, zero counts included.
	FileTypes       map[FileCategory]int `json:"file_types"`
	ComplexityScore int                  `json:"complexity_score"`

	FilesChanged  []string `json:"files_changed"`
	CommitMessage string   `json:"commit_message"`
	ErrorCount    int      `json:"error_count"`

	// ErrorOccurrences sums the per-record counts (a record with count <= 0 counts once).
	ErrorOccurrences int `json:"error_occurrences"`
}

// Agent types produced by the deterministic catalog.
const (
	AgentSecuritySpecialist      = "security_specialist"
	AgentMVPStrategist           = "mvp_strategist"
	AgentPerformanceExpert       = "performance_expert"
	AgentDocumentationSpecialist = "documentation_specialist"
	AgentErrorHandler            = "error_handler"
	AgentAPISpecialist           = "api_specialist"
	AgentFrontendSpecialist      = "frontend_specialist"
)

// Priority tiers. Lower is more urgent.
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// AgentSpec is a declarative recommendation for one specialized agent profile.
// Specs are created per event and never mutated afterwards.
type AgentSpec struct {
	AgentID              string    `json:"agent_id"`
	AgentType            string    `json:"agent_type"`
	FocusArea            string    `json:"focus_area"`
	DocumentationTargets []string  `json:"documentation_targets"`
	Priority             int       `json:"priority"`
	Confidence           float64   `json:"confidence"`
	CreatedAt            time.Time `json:"created_at"`
	ContextReason        string    `json:"context_reason"`
	EstimatedDuration    string    `json:"estimated_duration"`
	Tags                 []string  `json:"tags"`
	// Dependencies are advisory; nothing schedules on them.
	Dependencies []string `json:"dependencies"`
}

// Outcome classifies how processing of an event went.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// IsValid reports whether o is one of the known outcomes.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomePartial, OutcomeFailure:
		return true
	}
	return false
}

// Update types recorded by a documentation projector.
const (
	UpdateCreated = "created"
	UpdateUpdated = "updated"
)

// DocumentationUpdate records one documentation write made on behalf of an agent.
type DocumentationUpdate struct {
	File      string    `json:"file"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Agent     string    `json:"agent"`
	Size      int       `json:"size"`
}

// GlobalMetrics are the store-wide learning counters.
type GlobalMetrics struct {
	TotalEvents       int `json:"total_events"`
	SuccessfulUpdates int `json:"successful_updates"`
	FailedUpdates     int `json:"failed_updates"`
	TotalPatterns     int `json:"total_patterns"`
}

// SuccessRate returns successful events over total events, or 0 with no events.
func (m GlobalMetrics) SuccessRate() float64 {
	if m.TotalEvents == 0 {
		return 0
	}
	return float64(m.SuccessfulUpdates) / float64(m.TotalEvents)
}

// AgentEffectiveness tracks how one agent type has performed over time.
type AgentEffectiveness struct {
	TotalSpawned      int        `json:"total_spawned"`
	SuccessfulUpdates int        `json:"successful_updates"`
	AverageConfidence float64    `json:"average_confidence"`
	LastUsed          *time.Time `json:"last_used"`
}

// EventSummary is the compact copy of an event kept in the learning log.
type EventSummary struct {
	Files      []string `json:"files"`
	Message    string   `json:"message"`
	ErrorCount int      `json:"error_count"`
}

// LearningEvent is one entry of the bounded learning log.
type LearningEvent struct {
	Timestamp     time.Time    `json:"timestamp"`
	PatternKey    string       `json:"pattern_key"`
	AgentsSpawned []string     `json:"agents_spawned"`
	Outcome       Outcome      `json:"outcome"`
	UpdatesCount  int          `json:"updates_count"`
	EventSummary  EventSummary `json:"event_summary"`
}

// LearningState is the full persisted learning state: four independent records.
type LearningState struct {
	Patterns map[string]int                `json:"patterns"`
	Metrics  GlobalMetrics                 `json:"metrics"`
	Agents   map[string]AgentEffectiveness `json:"agents"`
	Log      []LearningEvent               `json:"log"`
}

// NewLearningState returns an empty state.
func NewLearningState() *LearningState {
	return &LearningState{
		Patterns: make(map[string]int),
		Agents:   make(map[string]AgentEffectiveness),
		Log:      []LearningEvent{},
	}
}

// Clone returns a deep copy of the state.
func (s *LearningState) Clone() *LearningState {
	out := &LearningState{
		Patterns: make(map[string]int, len(s.Patterns)),
		Metrics:  s.Metrics,
		Agents:   make(map[string]AgentEffectiveness, len(s.Agents)),
		Log:      make([]LearningEvent, len(s.Log)),
	}
	for k, v := range s.Patterns {
		out.Patterns[k] = v
	}
	for k, v := range s.Agents {
		if v.LastUsed != nil {
			t := *v.LastUsed
			v.LastUsed = &t
		}
		out.Agents[k] = v
	}
	for i, e := range s.Log {
		e.AgentsSpawned = nonNil(e.AgentsSpawned)
		e.EventSummary.Files = nonNil(e.EventSummary.Files)
		out.Log[i] = e
	}
	return out
}

// PatternRecord is the derived view of one learned pattern.
type PatternRecord struct {
	PatternKey      string    `json:"pattern_key"`
	OccurrenceCount int       `json:"occurrence_count"`
	AgentsSpawned   []string  `json:"agents_spawned"`
	SuccessRate     float64   `json:"success_rate"`
	LastSeen        time.Time `json:"last_seen,omitempty"`
}

// AgentStat pairs an agent type with its effectiveness record.
type AgentStat struct {
	AgentType string `json:"agent_type"`
	AgentEffectiveness
}

// PatternCount pairs a pattern key with its occurrence count.
type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// LearningSummary describes what the store has learned so far.
type LearningSummary struct {
	TotalEvents         int            `json:"total_events_processed"`
	SuccessfulUpdates   int            `json:"successful_updates"`
	FailedUpdates       int            `json:"failed_updates"`
	SuccessRate         float64        `json:"success_rate"`
	PatternsLearned     int            `json:"patterns_learned"`
	MostEffectiveAgents []AgentStat    `json:"most_effective_agents"`
	MostCommonPatterns  []PatternCount `json:"most_common_patterns"`
	LearningEventsLog   int            `json:"learning_events_logged"`
}

// AgentRun is one recent log entry that involved a given agent type.
type AgentRun struct {
	Timestamp    time.Time `json:"timestamp"`
	Outcome      Outcome   `json:"outcome"`
	UpdatesCount int       `json:"updates_count"`
}

// AgentInsights describes one agent type's record and its recent runs.
type AgentInsights struct {
	AgentType string `json:"agent_type"`
	AgentEffectiveness
	RecentPerformance []AgentRun `json:"recent_performance"`
}
