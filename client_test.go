package dialectic_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperengineering/dialectic"
)

var securityEvent = dialectic.Event{
	Files:   []string{"src/auth/jwt.py", "src/middleware/auth.py"},
	Message: "Add JWT authentication with secure token handling",
}

// fakeProjector writes nothing and reports one update per target, failing
// the targets listed in fail.
type fakeProjector struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func (p *fakeProjector) Project(_ context.Context, spec dialectic.AgentSpec, _ dialectic.ContextAnalysis) ([]dialectic.DocumentationUpdate, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	var (
		out  []dialectic.DocumentationUpdate
		errs []error
	)
	for _, target := range spec.DocumentationTargets {
		if p.fail["*"] || p.fail[target] {
			errs = append(errs, fmt.Errorf("%s: boom", target))
			continue
		}
		out = append(out, dialectic.DocumentationUpdate{
			File:  target,
			Type:  dialectic.UpdateCreated,
			Agent: spec.AgentType,
			Size:  10,
		})
	}
	return out, errors.Join(errs...)
}

func newTestClient(t *testing.T, opts ...dialectic.Option) *dialectic.Client {
	t.Helper()
	cfg := dialectic.Config{StorageDir: t.TempDir(), Store: "test"}
	opts = append([]dialectic.Option{
		dialectic.WithBackend(dialectic.NewMemoryBackend()),
		dialectic.WithLogger(dialectic.NewLoggerTo(io.Discard, false)),
	}, opts...)
	c, err := dialectic.New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_ValidConfig(t *testing.T) {
	dir := t.TempDir()

	client, err := dialectic.New(dialectic.Config{StorageDir: dir, Store: "proj"},
		dialectic.WithLogger(dialectic.NewLoggerTo(io.Discard, false)))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer client.Close()

	if _, err := os.Stat(filepath.Join(dir, "proj", "learning.db")); err != nil {
		t.Errorf("expected sqlite database to be created: %v", err)
	}
	if client.Adaptive() {
		t.Error("client should not be adaptive by default")
	}
}

func TestNew_CorruptDatabaseStillProcesses(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "proj", "learning.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dbPath, bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 1024), 0o644); err != nil {
		t.Fatal(err)
	}

	client, err := dialectic.New(dialectic.Config{StorageDir: dir, Store: "proj"},
		dialectic.WithLogger(dialectic.NewLoggerTo(io.Discard, false)))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer client.Close()

	res, err := client.Process(context.Background(), securityEvent, dialectic.ProcessOptions{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Specs) == 0 {
		t.Error("expected specs for a security event")
	}
	sum, err := client.Summary()
	if err != nil || sum.TotalEvents != 1 {
		t.Errorf("Summary() = %+v, %v, want one event", sum, err)
	}
}

func TestClient_StoreInfo(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "other"), 0o755); err != nil {
		t.Fatal(err)
	}

	client, err := dialectic.New(dialectic.Config{StorageDir: dir, Store: "proj"},
		dialectic.WithLogger(dialectic.NewLoggerTo(io.Discard, false)))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer client.Close()

	info, err := client.StoreInfo()
	if err != nil {
		t.Fatalf("StoreInfo: %v", err)
	}
	if info.StoreID != "proj" || info.Backend != dialectic.BackendSQLite {
		t.Errorf("StoreInfo = %+v", info)
	}
	if info.Location != filepath.Join(dir, "proj", "learning.db") {
		t.Errorf("Location = %q", info.Location)
	}
	if info.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set for a sqlite store")
	}
	if len(info.Stores) != 2 || info.Stores[0] != "other" || info.Stores[1] != "proj" {
		t.Errorf("Stores = %v, want [other proj]", info.Stores)
	}
}

func TestNew_JSONBackend(t *testing.T) {
	dir := t.TempDir()

	client, err := dialectic.New(dialectic.Config{StorageDir: dir, Store: "proj", Backend: dialectic.BackendJSON},
		dialectic.WithLogger(dialectic.NewLoggerTo(io.Discard, false)))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer client.Close()

	if _, err := client.Process(context.Background(), securityEvent, dialectic.ProcessOptions{}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "proj", "patterns.json")); err != nil {
		t.Errorf("expected patterns.json after learning: %v", err)
	}
}

func TestNew_InvalidBackend(t *testing.T) {
	_, err := dialectic.New(dialectic.Config{StorageDir: t.TempDir(), Backend: "mongo"})
	var ve *dialectic.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("New() returned %v, want *ValidationError", err)
	}
	if ve.Field != "Backend" {
		t.Errorf("Field = %q, want Backend", ve.Field)
	}
}

func TestNew_StoreInitError_WrapsWithClientPrefix(t *testing.T) {
	dir := t.TempDir()
	// A file where the store directory should be.
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := dialectic.New(dialectic.Config{StorageDir: blocker, Store: "s"},
		dialectic.WithLogger(dialectic.NewLoggerTo(io.Discard, false)))
	if err == nil {
		t.Fatal("New() returned nil error for unusable storage")
	}
	if !errors.Is(err, dialectic.ErrStorageUnavailable) {
		t.Errorf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestNew_BadTuningFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("security_threshold: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := dialectic.New(dialectic.Config{StorageDir: t.TempDir(), TuningPath: path},
		dialectic.WithBackend(dialectic.NewMemoryBackend()))
	if err == nil {
		t.Fatal("New() accepted invalid tuning")
	}
}

func TestProcess_NoProjectorIsPartial(t *testing.T) {
	c := newTestClient(t)

	res, err := c.Process(context.Background(), securityEvent, dialectic.ProcessOptions{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Specs) == 0 {
		t.Fatal("expected specs for a security event")
	}
	if res.Specs[0].AgentType != dialectic.AgentSecuritySpecialist {
		t.Errorf("first spec = %s, want security_specialist", res.Specs[0].AgentType)
	}
	if res.Outcome != dialectic.OutcomePartial {
		t.Errorf("Outcome = %q, want partial", res.Outcome)
	}
	if !res.Learned {
		t.Error("event should have been learned")
	}
	if res.Ref != "E1" {
		t.Errorf("Ref = %q, want E1", res.Ref)
	}

	sum, err := c.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalEvents != 1 {
		t.Errorf("TotalEvents = %d, want 1", sum.TotalEvents)
	}
}

func TestProcess_ProjectorOutcomes(t *testing.T) {
	tests := []struct {
		name string
		fail map[string]bool
		want dialectic.Outcome
	}{
		{"all written", nil, dialectic.OutcomeSuccess},
		{"one target failed", map[string]bool{".cursor/rules/security_rules.md": true}, dialectic.OutcomePartial},
		{"everything failed", map[string]bool{"*": true}, dialectic.OutcomeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProjector{fail: tt.fail}
			c := newTestClient(t, dialectic.WithProjector(p))

			res, err := c.Process(context.Background(), securityEvent, dialectic.ProcessOptions{})
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if res.Outcome != tt.want {
				t.Errorf("Outcome = %q, want %q", res.Outcome, tt.want)
			}
			if p.calls != len(res.Specs) {
				t.Errorf("projector calls = %d, want %d", p.calls, len(res.Specs))
			}
			if tt.fail != nil && len(res.ProjectionErrors) == 0 {
				t.Error("expected projection errors")
			}
		})
	}
}

func TestProcess_EmptyEventIsFailure(t *testing.T) {
	c := newTestClient(t, dialectic.WithProjector(&fakeProjector{}))

	res, err := c.Process(context.Background(), dialectic.Event{}, dialectic.ProcessOptions{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Specs) != 0 {
		t.Errorf("specs = %d, want 0", len(res.Specs))
	}
	if res.Outcome != dialectic.OutcomeFailure {
		t.Errorf("Outcome = %q, want failure", res.Outcome)
	}
}

func TestProcess_SkipLearning(t *testing.T) {
	c := newTestClient(t)

	res, err := c.Process(context.Background(), securityEvent, dialectic.ProcessOptions{SkipLearning: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Learned {
		t.Error("Learned = true with SkipLearning")
	}
	sum, _ := c.Summary()
	if sum.TotalEvents != 0 {
		t.Errorf("TotalEvents = %d, want 0", sum.TotalEvents)
	}
	if pending := c.Session().Pending(); len(pending) != 1 || pending[0] != res.Ref {
		t.Errorf("Pending = %v, want [%s]", pending, res.Ref)
	}
}

func TestProcess_RecommendsFromPriorHistory(t *testing.T) {
	c := newTestClient(t, dialectic.WithProjector(&fakeProjector{}))
	ctx := context.Background()

	first, err := c.Process(ctx, securityEvent, dialectic.ProcessOptions{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(first.Recommendations) != 0 {
		t.Errorf("first recommendations = %v, want none", first.Recommendations)
	}

	second, err := c.Process(ctx, securityEvent, dialectic.ProcessOptions{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(second.Recommendations) == 0 || second.Recommendations[0] != dialectic.AgentSecuritySpecialist {
		t.Errorf("second recommendations = %v, want security_specialist first", second.Recommendations)
	}
}

func TestProcess_LearnFailureIsLogged(t *testing.T) {
	backend := dialectic.NewMemoryBackend()
	var logs bytes.Buffer
	c, err := dialectic.New(dialectic.Config{StorageDir: t.TempDir()},
		dialectic.WithBackend(backend),
		dialectic.WithLogger(dialectic.NewLoggerTo(&logs, false)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	backend.SaveErr = errors.New("disk full")

	res, err := c.Process(context.Background(), securityEvent, dialectic.ProcessOptions{})
	if err != nil {
		t.Fatalf("Process should not fail on learn errors: %v", err)
	}
	if res.Learned {
		t.Error("Learned = true after a failed save")
	}
	if !bytes.Contains(logs.Bytes(), []byte("learning failed")) {
		t.Errorf("expected learn failure in logs, got %q", logs.String())
	}
}

func TestClient_LearnByRef(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	gen, err := c.Generate(ctx, securityEvent)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	updates := []dialectic.DocumentationUpdate{{File: "a.md", Type: dialectic.UpdateCreated, Agent: dialectic.AgentSecuritySpecialist}}
	if err := c.Learn(ctx, gen.Ref, dialectic.OutcomeSuccess, updates); err != nil {
		t.Fatalf("Learn: %v", err)
	}

	ins, err := c.Insights(dialectic.AgentSecuritySpecialist)
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if ins.SuccessfulUpdates != 1 {
		t.Errorf("SuccessfulUpdates = %d, want 1", ins.SuccessfulUpdates)
	}

	// Agent IDs resolve to their batch too.
	if err := c.Learn(ctx, gen.Specs[0].AgentID, dialectic.OutcomePartial, nil); err != nil {
		t.Errorf("Learn by agent ID: %v", err)
	}
}

func TestClient_LearnErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	err := c.Learn(ctx, "E99", dialectic.OutcomeSuccess, nil)
	if !errors.Is(err, dialectic.ErrSessionRefNotFound) {
		t.Errorf("unknown ref: err = %v, want ErrSessionRefNotFound", err)
	}

	gen, _ := c.Generate(ctx, securityEvent)
	err = c.Learn(ctx, gen.Ref, dialectic.Outcome("great"), nil)
	if !errors.Is(err, dialectic.ErrInvalidOutcome) {
		t.Errorf("bad outcome: err = %v, want ErrInvalidOutcome", err)
	}
}

func TestClient_ExportImportRoundTrip(t *testing.T) {
	src := newTestClient(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := src.Process(ctx, securityEvent, dialectic.ProcessOptions{}); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := src.Export(ctx, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst := newTestClient(t)
	res, err := dst.Import(ctx, &buf, dialectic.MergeStrategyMerge, false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.LogEntries != 3 {
		t.Errorf("LogEntries = %d, want 3", res.LogEntries)
	}
	sum, _ := dst.Summary()
	if sum.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", sum.TotalEvents)
	}
}

func TestClient_ClosedRejectsWork(t *testing.T) {
	c, err := dialectic.New(dialectic.Config{StorageDir: t.TempDir()},
		dialectic.WithBackend(dialectic.NewMemoryBackend()),
		dialectic.WithLogger(dialectic.NewLoggerTo(io.Discard, false)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	_, err = c.Process(context.Background(), securityEvent, dialectic.ProcessOptions{})
	if !errors.Is(err, dialectic.ErrStoreClosed) {
		t.Errorf("Process after Close: err = %v, want ErrStoreClosed", err)
	}
	if _, err := c.Summary(); !errors.Is(err, dialectic.ErrStoreClosed) {
		t.Errorf("Summary after Close: err = %v, want ErrStoreClosed", err)
	}
}

func TestClient_ConcurrentAccess(t *testing.T) {
	c := newTestClient(t, dialectic.WithProjector(&fakeProjector{}))
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := c.Process(ctx, securityEvent, dialectic.ProcessOptions{}); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := c.Recommend(ctx, securityEvent); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent call failed: %v", err)
	}

	sum, _ := c.Summary()
	if sum.TotalEvents != n {
		t.Errorf("TotalEvents = %d, want %d (no lost updates)", sum.TotalEvents, n)
	}
}

func TestDeriveOutcome(t *testing.T) {
	tests := []struct {
		specs, updates int
		failed         bool
		projected      bool
		want           dialectic.Outcome
	}{
		{0, 0, false, true, dialectic.OutcomeFailure},
		{0, 0, false, false, dialectic.OutcomeFailure},
		{2, 0, false, false, dialectic.OutcomePartial},
		{2, 0, true, true, dialectic.OutcomeFailure},
		{2, 0, false, true, dialectic.OutcomeFailure},
		{2, 3, true, true, dialectic.OutcomePartial},
		{2, 3, false, true, dialectic.OutcomeSuccess},
	}
	for _, tt := range tests {
		got := dialectic.DeriveOutcome(tt.specs, tt.updates, tt.failed, tt.projected)
		if got != tt.want {
			t.Errorf("DeriveOutcome(%d, %d, %v, %v) = %q, want %q",
				tt.specs, tt.updates, tt.failed, tt.projected, got, tt.want)
		}
	}
}
