package dialectic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hyperengineering/dialectic/internal/metrics"
	"github.com/hyperengineering/dialectic/internal/store"
)

// Client runs the event pipeline: analyze, generate, project, learn.
type Client struct {
	config    Config
	tuning    Tuning
	logger    *Logger
	ownLogger bool
	metrics   *metrics.Metrics

	analyzer  *Analyzer
	generator Generator
	adaptive  bool
	learning  *LearningStore
	projector Projector
	session   *Session

	mu     sync.Mutex
	closed bool
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	projector Projector
	proposer  AgentProposer
	logger    *Logger
	ids       IDSource
	backend   Backend
	now       func() time.Time
}

// WithProjector sets the documentation projector used by Process.
func WithProjector(p Projector) Option {
	return func(o *clientOptions) { o.projector = p }
}

// WithProposer enables adaptive generation backed by p, regardless of Config.Adaptive.
func WithProposer(p AgentProposer) Option {
	return func(o *clientOptions) { o.proposer = p }
}

// WithLogger sets the logger. The client does not close it.
func WithLogger(l *Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithIDSource sets the agent ID source.
func WithIDSource(ids IDSource) Option {
	return func(o *clientOptions) { o.ids = ids }
}

// WithBackend overrides the backend selected by Config.Backend.
func WithBackend(b Backend) Option {
	return func(o *clientOptions) { o.backend = b }
}

// WithClock sets the time source used for learning timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) { o.now = now }
}

// New creates a Dialectic client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		config:    cfg,
		logger:    o.logger,
		projector: o.projector,
		session:   NewSession(),
		metrics:   metrics.New(),
	}
	if c.logger == nil {
		c.logger = NewLogger(LoggerOptions{Debug: cfg.Debug, Path: cfg.LogPath, JSON: cfg.LogJSON})
		c.ownLogger = true
	}
	c.logger = c.logger.With(logrus.Fields{"store": cfg.Store})

	c.tuning = DefaultTuning()
	if cfg.TuningPath != "" {
		t, err := LoadTuning(cfg.TuningPath)
		if err != nil {
			c.closeLogger()
			return nil, fmt.Errorf("client: %w", err)
		}
		c.tuning = t
	}

	backend := o.backend
	if backend == nil {
		b, err := openBackend(cfg, c.logger)
		if err != nil {
			c.closeLogger()
			return nil, fmt.Errorf("client: %w", err)
		}
		backend = b
	}

	ctx := context.Background()
	learning, err := NewLearningStore(ctx, backend, LearningOptions{
		Tuning:  &c.tuning,
		Logger:  c.logger,
		Metrics: c.metrics,
		Now:     o.now,
	})
	if err != nil {
		_ = backend.Close()
		c.closeLogger()
		return nil, fmt.Errorf("client: %w", err)
	}
	c.learning = learning

	if o.backend == nil {
		c.importLegacy(ctx, backend)
	}

	c.analyzer = NewAnalyzer(c.tuning)
	deterministic := NewDeterministicGenerator(DefaultCatalog(), c.tuning, o.ids)
	c.generator = deterministic

	proposer := o.proposer
	if proposer == nil && cfg.Adaptive {
		p, err := NewOllamaProposer(cfg.OllamaHost, cfg.OllamaModel, nil, c.logger)
		if err != nil {
			c.logger.Warn("adaptive generation unavailable", logrus.Fields{
				"error":    err.Error(),
				"fallback": "deterministic",
			})
		} else {
			proposer = p
		}
	}
	if proposer != nil {
		if cfg.ProposerCacheTTL > 0 {
			proposer = NewCachingProposer(proposer, cfg.ProposerCacheTTL)
		}
		c.generator = NewAdaptiveGenerator(proposer, deterministic, AdaptiveOptions{
			Timeout: cfg.ProposerTimeout,
			IDs:     o.ids,
			Logger:  c.logger,
			Metrics: c.metrics,
		})
		c.adaptive = true
	}

	return c, nil
}

func openBackend(cfg Config, logger *Logger) (Backend, error) {
	switch cfg.Backend {
	case BackendJSON:
		return NewFileBackend(cfg.StoreDir(), logger)
	default:
		s, err := NewStore(cfg.DBPath(), logger)
		if err != nil {
			return nil, err
		}
		if id, _ := s.Metadata(MetaStoreID); id == "" {
			_ = s.SetMetadata(MetaStoreID, cfg.Store)
		}
		return s, nil
	}
}

// importLegacy pulls in state from the legacy ./.cursor/learning layout the
// first time the default SQLite store is opened. Best-effort.
func (c *Client) importLegacy(ctx context.Context, backend Backend) {
	s, ok := backend.(*Store)
	if !ok || c.config.Store != store.DefaultStoreID {
		return
	}
	dir := store.LegacyDir()
	if !store.HasLegacyState(dir) {
		return
	}
	if from, _ := s.Metadata(MetaImportedFrom); from != "" {
		return
	}
	empty, err := s.IsEmpty(ctx)
	if err != nil || !empty {
		return
	}

	res, err := c.learning.ImportLegacyDir(ctx, dir, MergeStrategyReplace)
	if err != nil {
		c.logger.Warn("legacy import failed", logrus.Fields{"dir": dir, "error": err.Error()})
		return
	}
	_ = s.SetMetadata(MetaImportedFrom, dir)
	c.logger.Info("imported legacy learning state", logrus.Fields{
		"dir":      dir,
		"patterns": res.Patterns,
		"agents":   res.Agents,
		"log":      res.LogEntries,
	})
}

func (c *Client) closeLogger() {
	if c.ownLogger {
		_ = c.logger.Close()
	}
}

// Config returns the resolved configuration.
func (c *Client) Config() Config { return c.config }

// Tuning returns the heuristic parameters in use.
func (c *Client) Tuning() Tuning { return c.tuning }

// Adaptive reports whether generation goes through a proposer.
func (c *Client) Adaptive() bool { return c.adaptive }

// Session returns the session tracker of generated batches.
func (c *Client) Session() *Session { return c.session }

// Analyze classifies an event.
func (c *Client) Analyze(ev Event) ContextAnalysis {
	return c.analyzer.Analyze(ev)
}

// DescribeAnalysis summarizes an analysis in one line.
func (c *Client) DescribeAnalysis(ca ContextAnalysis) string {
	return c.analyzer.Summary(ca)
}

// Generation is the result of Generate.
type Generation struct {
	Ref      string          `json:"ref"`
	Analysis ContextAnalysis `json:"analysis"`
	Specs    []AgentSpec     `json:"specs"`
}

// Generate analyzes ev and produces ranked agent specs. The batch is tracked
// in the session so its outcome can be reported later with Learn.
func (c *Client) Generate(ctx context.Context, ev Event) (*Generation, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	ca := c.analyzer.Analyze(ev)
	specs := c.generator.Generate(ctx, ca)
	for _, s := range specs {
		c.metrics.ObserveSpawn(s.AgentType)
	}
	ref := c.session.Track(ev, ca, specs)
	return &Generation{Ref: ref, Analysis: ca, Specs: specs}, nil
}

// Recommend returns up to three agent types that worked for similar events.
func (c *Client) Recommend(ctx context.Context, ev Event) ([]string, error) {
	return c.learning.Recommend(ctx, ev)
}

// ProcessOptions tunes a single Process call.
type ProcessOptions struct {
	// SkipLearning leaves the learning store untouched.
	SkipLearning bool
}

// ProcessResult is everything Process produced for one event.
type ProcessResult struct {
	Ref             string                `json:"ref"`
	Analysis        ContextAnalysis       `json:"analysis"`
	Specs           []AgentSpec           `json:"specs"`
	Recommendations []string              `json:"recommendations"`
	Updates         []DocumentationUpdate `json:"updates"`
	Outcome         Outcome               `json:"outcome"`
	Learned         bool                  `json:"learned"`
	// ProjectionErrors lists documentation targets that could not be written.
	ProjectionErrors []string `json:"projection_errors,omitempty"`
}

// Process runs the full pipeline for one event. Recommendations are drawn
// from history before this event is learned.
//
// Only precondition failures are returned: a closed client or a canceled
// context. Generation, projection and learning failures degrade.
func (c *Client) Process(ctx context.Context, ev Event, opts ProcessOptions) (*ProcessResult, error) {
	gen, err := c.Generate(ctx, ev)
	if err != nil {
		return nil, err
	}

	res := &ProcessResult{
		Ref:             gen.Ref,
		Analysis:        gen.Analysis,
		Specs:           gen.Specs,
		Recommendations: []string{},
		Updates:         []DocumentationUpdate{},
	}

	recs, err := c.Recommend(ctx, ev)
	if err != nil {
		if errors.Is(err, ErrStoreClosed) {
			return nil, err
		}
		c.logger.Warn("recommendation failed", logrus.Fields{"error": err.Error()})
	} else {
		res.Recommendations = recs
	}

	failed := false
	if c.projector != nil {
		for _, spec := range gen.Specs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			updates, err := c.projector.Project(ctx, spec, gen.Analysis)
			res.Updates = append(res.Updates, updates...)
			if err != nil {
				failed = true
				res.ProjectionErrors = append(res.ProjectionErrors, err.Error())
			}
		}
	}
	res.Outcome = DeriveOutcome(len(gen.Specs), len(res.Updates), failed, c.projector != nil)

	if opts.SkipLearning {
		return res, nil
	}
	if err := c.learning.Learn(ctx, ev, gen.Specs, res.Outcome, res.Updates); err != nil {
		c.logger.Error("learning failed", err, logrus.Fields{"ref": gen.Ref, "outcome": res.Outcome})
		return res, nil
	}
	c.session.MarkLearned(gen.Ref)
	res.Learned = true
	return res, nil
}

// DeriveOutcome classifies a processed event.
//
//	no specs, or specs but no update written     -> failure
//	updates written and no target failed         -> success
//	some targets failed, or no projector at all  -> partial
func DeriveOutcome(specs, updates int, targetFailed, projected bool) Outcome {
	switch {
	case specs == 0:
		return OutcomeFailure
	case !projected:
		return OutcomePartial
	case updates == 0:
		return OutcomeFailure
	case targetFailed:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// Learn records the outcome of a batch generated earlier in this session.
// ref is a session ref ("E1") or the agent ID of any spec in the batch.
func (c *Client) Learn(ctx context.Context, ref string, outcome Outcome, updates []DocumentationUpdate) error {
	batch, ok := c.session.Resolve(ref)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionRefNotFound, ref)
	}
	if batch.Learned {
		c.logger.Debug("batch learned again", logrus.Fields{"ref": batch.Ref})
	}
	if err := c.learning.Learn(ctx, batch.Event, batch.Specs, outcome, updates); err != nil {
		return err
	}
	c.session.MarkLearned(batch.Ref)
	return nil
}

// Summary describes what the store has learned.
func (c *Client) Summary() (*LearningSummary, error) {
	return c.learning.Summary()
}

// Insights returns one agent type's effectiveness and recent runs.
func (c *Client) Insights(agentType string) (*AgentInsights, error) {
	return c.learning.Insights(agentType)
}

// Patterns returns every learned pattern, most frequent first.
func (c *Client) Patterns() ([]PatternRecord, error) {
	return c.learning.Patterns()
}

// Export writes the learning state as JSON.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	return c.learning.ExportJSON(ctx, c.config.Store, w)
}

// Import merges exported learning state into the store.
func (c *Client) Import(ctx context.Context, r io.Reader, strategy MergeStrategy, dryRun bool) (*ImportResult, error) {
	return c.learning.ImportJSON(ctx, r, strategy, dryRun)
}

// ImportLegacy merges state kept in the legacy JSON layout at dir.
func (c *Client) ImportLegacy(ctx context.Context, dir string, strategy MergeStrategy) (*ImportResult, error) {
	return c.learning.ImportLegacyDir(ctx, dir, strategy)
}

// StoreInfo describes where learning state lives and how much it holds.
type StoreInfo struct {
	StoreID      string    `json:"store_id"`
	Backend      string    `json:"backend"`
	Location     string    `json:"location,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	ImportedFrom string    `json:"imported_from,omitempty"`
	Events       int       `json:"events"`
	Patterns     int       `json:"patterns"`
	Agents       int       `json:"agents"`
	LogEntries   int       `json:"log_entries"`
	// Stores lists every store found under the storage root.
	Stores       []string  `json:"stores,omitempty"`
}

// StoreInfo reports on the active store.
func (c *Client) StoreInfo() (*StoreInfo, error) {
	st, err := c.learning.Snapshot()
	if err != nil {
		return nil, err
	}
	info := &StoreInfo{
		StoreID:    c.config.Store,
		Backend:    "memory",
		Events:     st.Metrics.TotalEvents,
		Patterns:   len(st.Patterns),
		Agents:     len(st.Agents),
		LogEntries: len(st.Log),
	}
	switch b := c.learning.backend.(type) {
	case *Store:
		info.Backend = BackendSQLite
		info.Location = b.Path()
		if v, _ := b.Metadata(MetaCreatedAt); v != "" {
			info.CreatedAt, _ = time.Parse(time.RFC3339, v)
		}
		info.ImportedFrom, _ = b.Metadata(MetaImportedFrom)
	case *FileBackend:
		info.Backend = BackendJSON
		info.Location = b.Dir()
	}
	if ids, err := store.ListStores(c.config.StorageDir); err == nil {
		info.Stores = ids
	}
	return info, nil
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the learning store and, if the client created it, the logger.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	err := c.learning.Close()
	c.closeLogger()
	return err
}
