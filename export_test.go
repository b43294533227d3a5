package dialectic_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperengineering/dialectic"
)

func TestExportJSON_Format(t *testing.T) {
	ls := newLearningStore(t, dialectic.NewMemoryBackend(), nil)
	ctx := context.Background()
	if err := ls.Learn(ctx, authEvent, authSpecs, dialectic.OutcomeSuccess, authUpdates); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := ls.ExportJSON(ctx, "team/api", &buf); err != nil {
		t.Fatalf("ExportJSON() error = %v", err)
	}

	var out dialectic.ExportFormat
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if out.Version != dialectic.ExportVersion || out.StoreID != "team/api" {
		t.Errorf("header = %q/%q", out.Version, out.StoreID)
	}
	if !out.ExportedAt.Equal(fixedNow) {
		t.Errorf("ExportedAt = %v, want %v", out.ExportedAt, fixedNow)
	}
	if out.Metrics.TotalEvents != 1 || len(out.Patterns) != 1 || len(out.Agents) != 2 || len(out.Log) != 1 {
		t.Errorf("export = %+v", out)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newLearningStore(t, dialectic.NewMemoryBackend(), nil)
	if _, err := src.ImportState(ctx, sampleState(), dialectic.MergeStrategyReplace, false); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := src.ExportJSON(ctx, "src", &buf); err != nil {
		t.Fatal(err)
	}

	dst := newLearningStore(t, dialectic.NewMemoryBackend(), nil)
	result, err := dst.ImportJSON(ctx, &buf, dialectic.MergeStrategyReplace, false)
	if err != nil {
		t.Fatalf("ImportJSON() error = %v", err)
	}
	if result.Patterns != 2 || result.Agents != 2 || result.LogEntries != 2 || result.Created != 4 {
		t.Errorf("result = %+v", result)
	}

	got, _ := dst.Snapshot()
	assertStateEqual(t, got, sampleState())
}

// =============================================================================
// Merge strategies
// =============================================================================

func seededStore(t *testing.T) *dialectic.LearningStore {
	t.Helper()
	ls := newLearningStore(t, dialectic.NewMemoryBackend(), nil)
	if err := ls.Learn(context.Background(), authEvent, authSpecs, dialectic.OutcomeSuccess, authUpdates); err != nil {
		t.Fatal(err)
	}
	return ls
}

func TestImportState_Merge(t *testing.T) {
	ls := seededStore(t)
	key := dialectic.PatternKey(authEvent)

	result, err := ls.ImportState(context.Background(), sampleState(), dialectic.MergeStrategyMerge, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Created != 2 || result.Merged != 2 || result.Skipped != 0 {
		t.Errorf("result = %+v, want 2 created, 2 merged", result)
	}

	st, _ := ls.Snapshot()
	if st.Patterns[key] != 4 {
		t.Errorf("Patterns[%q] = %d, want 4", key, st.Patterns[key])
	}
	want := dialectic.GlobalMetrics{TotalEvents: 5, SuccessfulUpdates: 4, FailedUpdates: 1, TotalPatterns: 2}
	if st.Metrics != want {
		t.Errorf("Metrics = %+v, want %+v", st.Metrics, want)
	}

	sec := st.Agents[dialectic.AgentSecuritySpecialist]
	if sec.TotalSpawned != 4 || sec.SuccessfulUpdates != 7 {
		t.Errorf("security = %+v", sec)
	}
	if math.Abs(sec.AverageConfidence-0.8625) > 1e-9 {
		t.Errorf("AverageConfidence = %v, want spawn-weighted 0.8625", sec.AverageConfidence)
	}
	if sec.LastUsed == nil || !sec.LastUsed.Equal(fixedNow) {
		t.Errorf("LastUsed = %v, want the later %v", sec.LastUsed, fixedNow)
	}

	if len(st.Log) != 3 {
		t.Fatalf("len(Log) = %d, want 3", len(st.Log))
	}
	for i := 1; i < len(st.Log); i++ {
		if st.Log[i].Timestamp.Before(st.Log[i-1].Timestamp) {
			t.Errorf("log not in timestamp order at %d", i)
		}
	}
}

func TestImportState_Skip(t *testing.T) {
	ls := seededStore(t)
	key := dialectic.PatternKey(authEvent)

	result, err := ls.ImportState(context.Background(), sampleState(), dialectic.MergeStrategySkip, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Created != 2 || result.Skipped != 2 || result.Merged != 0 {
		t.Errorf("result = %+v, want 2 created, 2 skipped", result)
	}

	st, _ := ls.Snapshot()
	if st.Patterns[key] != 1 {
		t.Errorf("existing pattern changed: %d", st.Patterns[key])
	}
	if st.Metrics.TotalEvents != 1 {
		t.Errorf("TotalEvents = %d, want 1 (skip leaves counters)", st.Metrics.TotalEvents)
	}
	if st.Agents[dialectic.AgentSecuritySpecialist].TotalSpawned != 1 {
		t.Errorf("existing agent changed: %+v", st.Agents[dialectic.AgentSecuritySpecialist])
	}
	if _, ok := st.Agents[dialectic.AgentMVPStrategist]; !ok {
		t.Error("new agent type not added")
	}

	// Importing again adds no duplicate log entries.
	if _, err := ls.ImportState(context.Background(), sampleState(), dialectic.MergeStrategySkip, false); err != nil {
		t.Fatal(err)
	}
	st, _ = ls.Snapshot()
	if len(st.Log) != 3 {
		t.Errorf("len(Log) = %d, want 3", len(st.Log))
	}
}

func TestImportState_Replace(t *testing.T) {
	ls := seededStore(t)

	result, err := ls.ImportState(context.Background(), sampleState(), dialectic.MergeStrategyReplace, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Created != 2 || result.Merged != 2 {
		t.Errorf("result = %+v", result)
	}

	st, _ := ls.Snapshot()
	assertStateEqual(t, st, sampleState())
}

func TestImportState_DryRun(t *testing.T) {
	backend := dialectic.NewMemoryBackend()
	ls := newLearningStore(t, backend, nil)
	_ = ls.Learn(context.Background(), authEvent, authSpecs, dialectic.OutcomeSuccess, nil)
	before, _ := ls.Snapshot()

	result, err := ls.ImportState(context.Background(), sampleState(), dialectic.MergeStrategyMerge, true)
	if err != nil {
		t.Fatal(err)
	}
	if !result.DryRun || result.Created != 2 || result.Merged != 2 {
		t.Errorf("result = %+v", result)
	}

	after, _ := ls.Snapshot()
	assertStateEqual(t, after, before)
	if backend.Saves() != 1 {
		t.Errorf("Saves() = %d, want 1", backend.Saves())
	}
}

func TestImportJSON_Errors(t *testing.T) {
	ls := newLearningStore(t, dialectic.NewMemoryBackend(), nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		input    string
		strategy dialectic.MergeStrategy
		wantErr  string
	}{
		{"malformed", "{", dialectic.MergeStrategyMerge, "decode"},
		{"future version", `{"version": "9.0"}`, dialectic.MergeStrategyMerge, "unsupported export version"},
		{"bad strategy", `{"version": "1.0"}`, dialectic.MergeStrategy("upsert"), "unknown merge strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ls.ImportJSON(ctx, strings.NewReader(tt.input), tt.strategy, false)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ImportJSON() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestImportLegacyDir(t *testing.T) {
	dir := t.TempDir()
	legacy, err := dialectic.NewFileBackend(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := legacy.Save(context.Background(), sampleState()); err != nil {
		t.Fatal(err)
	}

	ls := newLearningStore(t, dialectic.NewMemoryBackend(), nil)
	result, err := ls.ImportLegacyDir(context.Background(), dir, dialectic.MergeStrategyReplace)
	if err != nil {
		t.Fatalf("ImportLegacyDir() error = %v", err)
	}
	if result.Patterns != 2 || result.LogEntries != 2 {
		t.Errorf("result = %+v", result)
	}
	st, _ := ls.Snapshot()
	assertStateEqual(t, st, sampleState())
}

// writeOriginalLayout writes learning files the way the original Python tool
// did: capitalized booleans, "py" type codes and zoneless timestamps.
func writeOriginalLayout(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"patterns.json": `{
  "sec:True|mvp:False|perf:False|err:False|doc:False|type:py": 2
}`,
		"success_metrics.json": `{
  "total_events": 2,
  "successful_updates": 1,
  "failed_updates": 0,
  "total_patterns": 1
}`,
		"agent_effectiveness.json": `{
  "security_specialist": {
    "total_spawned": 2,
    "successful_updates": 3,
    "average_confidence": 0.9,
    "last_used": "2025-09-14T10:05:00.123456"
  },
  "documentation_specialist": {
    "total_spawned": 1,
    "successful_updates": 1,
    "average_confidence": 1.0,
    "last_used": "2025-09-14T10:00:00.654321"
  }
}`,
		"learning_log.json": `[
  {
    "timestamp": "2025-09-14T10:00:00.654321",
    "pattern_key": "sec:True|mvp:False|perf:False|err:False|doc:False|type:py",
    "agents_spawned": ["security_specialist", "documentation_specialist"],
    "outcome": "success",
    "updates_count": 3,
    "event_summary": {"files": ["src/auth/jwt.py"], "message": "Add JWT auth", "error_count": 0}
  },
  {
    "timestamp": "2025-09-14T10:05:00.123456",
    "pattern_key": "sec:True|mvp:False|perf:False|err:False|doc:False|type:py",
    "agents_spawned": ["security_specialist"],
    "outcome": "partial",
    "updates_count": 1,
    "event_summary": {"files": ["src/auth/session.py"], "message": "Rotate auth token", "error_count": 0}
  }
]`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestImportLegacyDir_OriginalKeyFormat(t *testing.T) {
	dir := t.TempDir()
	writeOriginalLayout(t, dir)
	ctx := context.Background()

	ls := newLearningStore(t, dialectic.NewMemoryBackend(), nil)
	if _, err := ls.ImportLegacyDir(ctx, dir, dialectic.MergeStrategyReplace); err != nil {
		t.Fatalf("ImportLegacyDir() error = %v", err)
	}

	key := dialectic.PatternKey(authEvent)
	st, _ := ls.Snapshot()
	if st.Patterns[key] != 2 || len(st.Patterns) != 1 {
		t.Errorf("Patterns = %v, want {%q: 2}", st.Patterns, key)
	}
	for i, e := range st.Log {
		if e.PatternKey != key {
			t.Errorf("Log[%d].PatternKey = %q, want %q", i, e.PatternKey, key)
		}
	}

	got, err := ls.Recommend(ctx, authEvent)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	want := []string{dialectic.AgentSecuritySpecialist, dialectic.AgentDocumentationSpecialist}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Recommend() = %v, want %v", got, want)
	}
}

func TestParseMergeStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    dialectic.MergeStrategy
		wantErr bool
	}{
		{"", dialectic.MergeStrategyMerge, false},
		{"merge", dialectic.MergeStrategyMerge, false},
		{"skip", dialectic.MergeStrategySkip, false},
		{"replace", dialectic.MergeStrategyReplace, false},
		{"Replace", "", true},
		{"overwrite", "", true},
	}
	for _, tt := range tests {
		got, err := dialectic.ParseMergeStrategy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMergeStrategy(%q) = %q, %v", tt.in, got, err)
		}
	}
}
