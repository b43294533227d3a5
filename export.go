package dialectic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ExportVersion is the current version of the export format.
const ExportVersion = "1.0"

// ExportFormat is the top-level structure for JSON exports.
type ExportFormat struct {
	Version    string                        `json:"version"`
	ExportedAt time.Time                     `json:"exported_at"`
	StoreID    string                        `json:"store_id"`
	Patterns   map[string]int                `json:"patterns"`
	Metrics    GlobalMetrics                 `json:"metrics"`
	Agents     map[string]AgentEffectiveness `json:"agents"`
	Log        []LearningEvent               `json:"log"`
}

// MergeStrategy defines how imported state combines with existing state.
type MergeStrategy string

const (
	// MergeStrategySkip adds only pattern keys and agent types that do not exist yet.
	MergeStrategySkip MergeStrategy = "skip"
	// MergeStrategyReplace discards existing state in favour of the import.
	MergeStrategyReplace MergeStrategy = "replace"
	// MergeStrategyMerge sums counters and folds agent records together (default).
	MergeStrategyMerge MergeStrategy = "merge"
)

// ParseMergeStrategy validates a strategy name. Empty means merge.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case "":
		return MergeStrategyMerge, nil
	case MergeStrategySkip, MergeStrategyReplace, MergeStrategyMerge:
		return MergeStrategy(s), nil
	}
	return "", fmt.Errorf("unknown merge strategy %q (want skip, replace or merge)", s)
}

// ImportResult summarizes an import operation.
type ImportResult struct {
	Patterns   int  `json:"patterns"`
	Agents     int  `json:"agents"`
	LogEntries int  `json:"log_entries"`
	Created    int  `json:"created"`
	Merged     int  `json:"merged"`
	Skipped    int  `json:"skipped"`
	DryRun     bool `json:"dry_run,omitempty"`
}

// ExportJSON writes the committed learning state as indented JSON.
func (s *LearningStore) ExportJSON(_ context.Context, storeID string, w io.Writer) error {
	st, err := s.snapshot()
	if err != nil {
		return err
	}

	out := ExportFormat{
		Version:    ExportVersion,
		ExportedAt: s.now().UTC(),
		StoreID:    storeID,
		Patterns:   st.Patterns,
		Metrics:    st.Metrics,
		Agents:     st.Agents,
		Log:        st.Log,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	return nil
}
