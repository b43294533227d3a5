package dialectic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// ImportJSON reads an export document and combines it with the committed
// state using strategy. With dryRun the result is computed but nothing is saved.
func (s *LearningStore) ImportJSON(ctx context.Context, r io.Reader, strategy MergeStrategy, dryRun bool) (*ImportResult, error) {
	var in ExportFormat
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("import: decode: %w", err)
	}
	if in.Version != "" && in.Version != ExportVersion {
		return nil, fmt.Errorf("import: unsupported export version %q", in.Version)
	}

	imported := &LearningState{
		Patterns: in.Patterns,
		Metrics:  in.Metrics,
		Agents:   in.Agents,
		Log:      in.Log,
	}
	normalizeState(imported)
	return s.ImportState(ctx, imported, strategy, dryRun)
}

// ImportState combines an already decoded state with the committed one.
func (s *LearningStore) ImportState(ctx context.Context, imported *LearningState, strategy MergeStrategy, dryRun bool) (*ImportResult, error) {
	if _, err := ParseMergeStrategy(string(strategy)); err != nil {
		return nil, err
	}
	if strategy == "" {
		strategy = MergeStrategyMerge
	}

	result := &ImportResult{
		Patterns:   len(imported.Patterns),
		Agents:     len(imported.Agents),
		LogEntries: len(imported.Log),
		DryRun:     dryRun,
	}

	apply := func(st *LearningState) error {
		mergeState(st, imported, strategy, result)
		return nil
	}

	if dryRun {
		cur, err := s.snapshot()
		if err != nil {
			return nil, err
		}
		_ = apply(cur.Clone())
		return result, nil
	}

	if err := s.update(ctx, apply); err != nil {
		return nil, err
	}
	s.logger.Info("imported learning state", logrus.Fields{
		"strategy": strategy,
		"created":  result.Created,
		"merged":   result.Merged,
		"skipped":  result.Skipped,
	})
	return result, nil
}

// mergeState folds in into st in place. result counts keys (patterns and
// agent types) by what happened to them.
func mergeState(st, in *LearningState, strategy MergeStrategy, result *ImportResult) {
	if strategy == MergeStrategyReplace {
		for k := range in.Patterns {
			if _, ok := st.Patterns[k]; ok {
				result.Merged++
			} else {
				result.Created++
			}
		}
		for k := range in.Agents {
			if _, ok := st.Agents[k]; ok {
				result.Merged++
			} else {
				result.Created++
			}
		}
		fresh := in.Clone()
		*st = *fresh
		return
	}

	for _, k := range sortedKeys(in.Patterns) {
		count := in.Patterns[k]
		if _, ok := st.Patterns[k]; !ok {
			st.Patterns[k] = count
			result.Created++
			continue
		}
		if strategy == MergeStrategySkip {
			result.Skipped++
			continue
		}
		st.Patterns[k] += count
		result.Merged++
	}

	for _, k := range sortedKeys(in.Agents) {
		rec := in.Agents[k]
		cur, ok := st.Agents[k]
		if !ok {
			st.Agents[k] = rec
			result.Created++
			continue
		}
		if strategy == MergeStrategySkip {
			result.Skipped++
			continue
		}
		st.Agents[k] = mergeEffectiveness(cur, rec)
		result.Merged++
	}

	if strategy == MergeStrategyMerge {
		st.Metrics.TotalEvents += in.Metrics.TotalEvents
		st.Metrics.SuccessfulUpdates += in.Metrics.SuccessfulUpdates
		st.Metrics.FailedUpdates += in.Metrics.FailedUpdates
		st.Log = append(st.Log, in.Clone().Log...)
	} else {
		st.Log = append(st.Log, newLogEntries(st.Log, in.Log)...)
	}
	sort.SliceStable(st.Log, func(i, j int) bool {
		return st.Log[i].Timestamp.Before(st.Log[j].Timestamp)
	})
	st.Metrics.TotalPatterns = len(st.Patterns)
}

// mergeEffectiveness combines two records with a spawn-weighted mean confidence.
func mergeEffectiveness(a, b AgentEffectiveness) AgentEffectiveness {
	out := AgentEffectiveness{
		TotalSpawned:      a.TotalSpawned + b.TotalSpawned,
		SuccessfulUpdates: a.SuccessfulUpdates + b.SuccessfulUpdates,
		LastUsed:          laterTime(a.LastUsed, b.LastUsed),
	}
	if out.TotalSpawned > 0 {
		out.AverageConfidence = (a.AverageConfidence*float64(a.TotalSpawned) +
			b.AverageConfidence*float64(b.TotalSpawned)) / float64(out.TotalSpawned)
	}
	return out
}

func laterTime(a, b *time.Time) *time.Time {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		t := *b
		return &t
	case b == nil || !b.After(*a):
		t := *a
		return &t
	}
	t := *b
	return &t
}

// newLogEntries returns the entries of in not already present in existing,
// compared by timestamp and pattern key.
func newLogEntries(existing, in []LearningEvent) []LearningEvent {
	type key struct {
		ts      time.Time
		pattern string
	}
	seen := make(map[key]bool, len(existing))
	for _, e := range existing {
		seen[key{e.Timestamp.UTC(), e.PatternKey}] = true
	}
	var out []LearningEvent
	for _, e := range in {
		k := key{e.Timestamp.UTC(), e.PatternKey}
		if seen[k] {
			continue
		}
		seen[k] = true
		e.AgentsSpawned = nonNil(e.AgentsSpawned)
		out = append(out, e)
	}
	return out
}

// ImportLegacyDir merges learning state kept in the legacy JSON layout at dir.
func (s *LearningStore) ImportLegacyDir(ctx context.Context, dir string, strategy MergeStrategy) (*ImportResult, error) {
	legacy := &FileBackend{dir: dir, logger: s.logger}
	st, err := legacy.Load(ctx)
	if err != nil {
		return nil, err
	}
	normalizeState(st)
	return s.ImportState(ctx, st, strategy, false)
}
