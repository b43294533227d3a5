package dialectic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hyperengineering/dialectic/internal/store"
)

// FileBackend stores each learning record as its own JSON document in a
// directory, using the legacy file names. Every file is replaced atomically
// by writing a temporary sibling and renaming it over the original.
type FileBackend struct {
	dir    string
	logger *Logger
}

// NewFileBackend opens dir, creating it if needed, and checks that it is writable.
func NewFileBackend(dir string, logger *Logger) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStorageUnavailable, dir, err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %s not writable: %w", ErrStorageUnavailable, dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return &FileBackend{dir: dir, logger: logger}, nil
}

// Dir returns the backend's directory.
func (b *FileBackend) Dir() string { return b.dir }

type metricsFile struct {
	TotalEvents       int `json:"total_events"`
	SuccessfulUpdates int `json:"successful_updates"`
	FailedUpdates     int `json:"failed_updates"`
	TotalPatterns     int `json:"total_patterns"`
}

type effectivenessFile struct {
	TotalSpawned      int     `json:"total_spawned"`
	SuccessfulUpdates int     `json:"successful_updates"`
	AverageConfidence float64 `json:"average_confidence"`
	LastUsed          *string `json:"last_used"`
}

type logEntryFile struct {
	Timestamp     string       `json:"timestamp"`
	PatternKey    string       `json:"pattern_key"`
	AgentsSpawned []string     `json:"agents_spawned"`
	Outcome       string       `json:"outcome"`
	UpdatesCount  int          `json:"updates_count"`
	EventSummary  EventSummary `json:"event_summary"`
}

// Load implements Backend. Each record that is missing or does not parse
// starts empty; the others are kept.
func (b *FileBackend) Load(_ context.Context) (*LearningState, error) {
	if _, err := os.Stat(b.dir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	st := NewLearningState()

	var patterns map[string]int
	if b.read(store.PatternsFile, RecordPatterns, &patterns) && patterns != nil {
		st.Patterns = patterns
	}

	var m metricsFile
	if b.read(store.MetricsFile, RecordMetrics, &m) {
		st.Metrics = GlobalMetrics(m)
	}

	var agents map[string]effectivenessFile
	if b.read(store.EffectivenessFile, RecordEffectiveness, &agents) {
		for k, v := range agents {
			rec := AgentEffectiveness{
				TotalSpawned:      v.TotalSpawned,
				SuccessfulUpdates: v.SuccessfulUpdates,
				AverageConfidence: v.AverageConfidence,
			}
			if v.LastUsed != nil {
				if t, ok := parseTimestamp(*v.LastUsed); ok {
					rec.LastUsed = &t
				}
			}
			st.Agents[k] = rec
		}
	}

	var entries []logEntryFile
	if b.read(store.LogFile, RecordLog, &entries) {
		for _, e := range entries {
			ts, _ := parseTimestamp(e.Timestamp)
			st.Log = append(st.Log, LearningEvent{
				Timestamp:     ts,
				PatternKey:    e.PatternKey,
				AgentsSpawned: nonNil(e.AgentsSpawned),
				Outcome:       Outcome(e.Outcome),
				UpdatesCount:  e.UpdatesCount,
				EventSummary:  e.EventSummary,
			})
		}
	}

	return st, nil
}

// read decodes one record file into v. It reports false when the file is
// absent or unusable, logging the latter.
func (b *FileBackend) read(name, record string, v any) bool {
	data, err := os.ReadFile(filepath.Join(b.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	if err == nil {
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		b.logger.Warn("resetting unreadable learning record", logrus.Fields{
			"record": record,
			"file":   name,
			"error":  err.Error(),
		})
		return false
	}
	return true
}

// Save implements Backend. Records are written one file at a time; a failure
// leaves the failed file and every later one at their previous contents.
func (b *FileBackend) Save(_ context.Context, st *LearningState) error {
	agents := make(map[string]effectivenessFile, len(st.Agents))
	for k, v := range st.Agents {
		rec := effectivenessFile{
			TotalSpawned:      v.TotalSpawned,
			SuccessfulUpdates: v.SuccessfulUpdates,
			AverageConfidence: v.AverageConfidence,
		}
		if v.LastUsed != nil {
			s := v.LastUsed.UTC().Format(time.RFC3339Nano)
			rec.LastUsed = &s
		}
		agents[k] = rec
	}

	entries := make([]logEntryFile, len(st.Log))
	for i, e := range st.Log {
		entries[i] = logEntryFile{
			Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
			PatternKey:    e.PatternKey,
			AgentsSpawned: nonNil(e.AgentsSpawned),
			Outcome:       string(e.Outcome),
			UpdatesCount:  e.UpdatesCount,
			EventSummary:  e.EventSummary,
		}
		if entries[i].EventSummary.Files == nil {
			entries[i].EventSummary.Files = []string{}
		}
	}

	patterns := st.Patterns
	if patterns == nil {
		patterns = map[string]int{}
	}

	records := []struct {
		name   string
		record string
		v      any
	}{
		{store.PatternsFile, RecordPatterns, patterns},
		{store.MetricsFile, RecordMetrics, metricsFile(st.Metrics)},
		{store.EffectivenessFile, RecordEffectiveness, agents},
		{store.LogFile, RecordLog, entries},
	}
	for _, r := range records {
		if err := b.write(r.name, r.v); err != nil {
			return &PersistError{Record: r.record, Err: fmt.Errorf("%w: %w", ErrStorageUnavailable, err)}
		}
	}
	return nil
}

func (b *FileBackend) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(b.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(b.dir, name)); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// Close implements Backend.
func (b *FileBackend) Close() error { return nil }

// Timestamps written by older tools lack a zone; they are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
