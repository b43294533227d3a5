package dialectic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/hyperengineering/dialectic/internal/metrics"
)

// AgentProposer is an external source of agent lists. It receives a context
// summary and returns a JSON document of the form {"agents": [...]}.
// Implementations are treated as slow and unreliable.
type AgentProposer interface {
	Propose(ctx context.Context, summary string) (string, error)
}

// ProposerSystemPrompt instructs a model-backed proposer how to answer.
const ProposerSystemPrompt = `You generate specialized software development agents based on code changes.
Analyze the change and decide which specialist agents are needed. For each agent provide:
- agent_type: snake_case name such as "security_specialist"
- focus_area: primary focus such as "security", "performance" or "documentation"
- priority: 1 (critical), 2 (important) or 3 (nice-to-have)
- confidence: number between 0.0 and 1.0
- context_reason: why the agent is needed
- estimated_duration: rough time estimate such as "15-30 min"
- documentation_targets: 2-4 documentation files the agent should update
- tags: 2-4 relevant tags
- dependencies: agent types that should run first
Answer with a single JSON object and nothing else. Only generate agents that are truly needed.`

// BuildContextSummary renders an analysis as the prompt handed to an AgentProposer.
func BuildContextSummary(ca ContextAnalysis) string {
	var b strings.Builder
	b.WriteString("Analyze these code changes and determine what specialist agents are needed:\n\n")

	b.WriteString("Files Changed:\n")
	if len(ca.FilesChanged) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, f := range ca.FilesChanged {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	fmt.Fprintf(&b, "\nCommit Message:\n%s\n\n", ca.CommitMessage)

	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Errors detected: %d\n", ca.ErrorCount)
	fmt.Fprintf(&b, "- Complexity score: %d\n", ca.ComplexityScore)
	b.WriteString("- File types:")
	for _, c := range FileCategories() {
		fmt.Fprintf(&b, " %s=%d", c, ca.FileTypes[c])
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Security focus: %t\n", ca.SecurityFocus)
	fmt.Fprintf(&b, "- MVP focus: %t\n", ca.MVPFocus)
	fmt.Fprintf(&b, "- Performance focus: %t\n", ca.PerformanceFocus)
	fmt.Fprintf(&b, "- Documentation focus: %t\n", ca.DocumentationFocus)
	fmt.Fprintf(&b, "- Error focus: %t\n", ca.ErrorFocus)

	b.WriteString(`
Generate a JSON object with this structure:
{
  "agents": [
    {
      "agent_type": "security_specialist",
      "focus_area": "security",
      "priority": 1,
      "confidence": 0.95,
      "context_reason": "JWT authentication changes require security review",
      "estimated_duration": "20-30 min",
      "documentation_targets": [".cursor/rules/security_rules.md"],
      "tags": ["security", "authentication"],
      "dependencies": []
    }
  ]
}
An empty "agents" list is a valid answer.`)
	return b.String()
}

type proposalDoc struct {
	Agents *[]proposedAgent `json:"agents"`
}

type proposedAgent struct {
	AgentType            *string   `json:"agent_type"`
	FocusArea            *string   `json:"focus_area"`
	Priority             *float64  `json:"priority"`
	Confidence           *float64  `json:"confidence"`
	ContextReason        *string   `json:"context_reason"`
	EstimatedDuration    *string   `json:"estimated_duration"`
	DocumentationTargets *[]string `json:"documentation_targets"`
	Tags                 []string  `json:"tags"`
	Dependencies         []string  `json:"dependencies"`
}

// ParseProposal strictly converts a proposer response into ranked specs.
// Any invalid entry rejects the whole response with a *ProposalError.
// Repeated agent types keep their first occurrence.
func ParseProposal(raw string, ids IDSource, created time.Time) ([]AgentSpec, error) {
	if ids == nil {
		ids = ULIDSource{}
	}

	var doc proposalDoc
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &doc); err != nil {
		return nil, &ProposalError{Index: -1, Err: fmt.Errorf("%w: %v", ErrInvalidProposal, err)}
	}
	if doc.Agents == nil {
		return nil, &ProposalError{Index: -1, Field: "agents", Err: fmt.Errorf("%w: missing agents", ErrInvalidProposal)}
	}

	seen := make(map[string]bool)
	specs := make([]AgentSpec, 0, len(*doc.Agents))
	for i, a := range *doc.Agents {
		if err := validateProposed(a); err != nil {
			err.Index = i
			return nil, err
		}
		agentType := strings.TrimSpace(*a.AgentType)
		if seen[agentType] {
			continue
		}
		seen[agentType] = true

		specs = append(specs, AgentSpec{
			AgentID:              ids.NewID(agentType),
			AgentType:            agentType,
			FocusArea:            strings.TrimSpace(*a.FocusArea),
			DocumentationTargets: append([]string{}, (*a.DocumentationTargets)...),
			Priority:             int(*a.Priority),
			Confidence:           *a.Confidence,
			CreatedAt:            created.UTC(),
			ContextReason:        *a.ContextReason,
			EstimatedDuration:    *a.EstimatedDuration,
			Tags:                 nonNil(a.Tags),
			Dependencies:         nonNil(a.Dependencies),
		})
	}

	for i := range specs {
		specs[i].Dependencies = filterDependencies(specs[i].AgentType, specs[i].Dependencies, seen)
	}

	RankSpecs(specs)
	return specs, nil
}

func validateProposed(a proposedAgent) *ProposalError {
	missing := func(field string) *ProposalError {
		return &ProposalError{Field: field, Err: fmt.Errorf("%w: missing", ErrInvalidProposal)}
	}
	invalid := func(field, msg string) *ProposalError {
		return &ProposalError{Field: field, Err: fmt.Errorf("%w: %s", ErrInvalidProposal, msg)}
	}

	switch {
	case a.AgentType == nil:
		return missing("agent_type")
	case a.FocusArea == nil:
		return missing("focus_area")
	case a.Priority == nil:
		return missing("priority")
	case a.Confidence == nil:
		return missing("confidence")
	case a.ContextReason == nil:
		return missing("context_reason")
	case a.EstimatedDuration == nil:
		return missing("estimated_duration")
	case a.DocumentationTargets == nil:
		return missing("documentation_targets")
	}

	if strings.TrimSpace(*a.AgentType) == "" {
		return invalid("agent_type", "empty")
	}
	if strings.TrimSpace(*a.FocusArea) == "" {
		return invalid("focus_area", "empty")
	}
	p := *a.Priority
	if p != math.Trunc(p) || p < PriorityHigh || p > PriorityLow {
		return invalid("priority", "must be 1, 2 or 3")
	}
	c := *a.Confidence
	if math.IsNaN(c) || c < 0 || c > 1 {
		return invalid("confidence", "must be between 0 and 1")
	}
	if len(*a.DocumentationTargets) == 0 {
		return invalid("documentation_targets", "empty")
	}
	return nil
}

// filterDependencies keeps references to other agents present in the batch.
func filterDependencies(self string, deps []string, present map[string]bool) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, d := range deps {
		if d == self || !present[d] || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s...)
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Fallback reasons reported to metrics and logs.
const (
	fallbackTimeout   = "timeout"
	fallbackCanceled  = "canceled"
	fallbackError     = "error"
	fallbackMalformed = "malformed"
)

// AdaptiveGenerator asks an AgentProposer for the agent list and falls back
// to another Generator whenever the proposer fails, times out or answers
// with something that does not parse.
type AdaptiveGenerator struct {
	proposer AgentProposer
	fallback Generator
	timeout  time.Duration
	ids      IDSource
	logger   *Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// AdaptiveOptions configures NewAdaptiveGenerator.
type AdaptiveOptions struct {
	// Timeout bounds each proposer call. Zero means 30 seconds.
	Timeout time.Duration
	IDs     IDSource
	Logger  *Logger
	Metrics *metrics.Metrics
}

// NewAdaptiveGenerator wraps proposer with fallback.
func NewAdaptiveGenerator(proposer AgentProposer, fallback Generator, opts AdaptiveOptions) *AdaptiveGenerator {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.IDs == nil {
		opts.IDs = ULIDSource{}
	}
	return &AdaptiveGenerator{
		proposer: proposer,
		fallback: fallback,
		timeout:  opts.Timeout,
		ids:      opts.IDs,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      time.Now,
	}
}

type proposal struct {
	raw string
	err error
}

// Generate implements Generator. It never returns an error to the caller.
func (g *AdaptiveGenerator) Generate(ctx context.Context, ca ContextAnalysis) []AgentSpec {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	summary := BuildContextSummary(ca)
	done := make(chan proposal, 1)
	go func() {
		raw, err := g.proposer.Propose(callCtx, summary)
		done <- proposal{raw: raw, err: err}
	}()

	var p proposal
	select {
	case p = <-done:
	case <-callCtx.Done():
		p = proposal{err: callCtx.Err()}
	}

	if p.err != nil {
		return g.fallBack(ctx, ca, fallbackReason(p.err), p.err)
	}

	specs, err := ParseProposal(p.raw, g.ids, g.now())
	if err != nil {
		g.logger.Debug("rejected proposal", logrus.Fields{"response": truncateForLog(p.raw, 2000)})
		return g.fallBack(ctx, ca, fallbackMalformed, err)
	}

	g.logger.Debug("adaptive generation succeeded", logrus.Fields{"agents": len(specs)})
	return specs
}

func (g *AdaptiveGenerator) fallBack(ctx context.Context, ca ContextAnalysis, reason string, cause error) []AgentSpec {
	g.logger.Warn("adaptive generation failed", logrus.Fields{
		"reason":   reason,
		"error":    cause.Error(),
		"fallback": "deterministic",
	})
	g.metrics.ObserveFallback(reason)
	return g.fallback.Generate(ctx, ca)
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fallbackTimeout
	case errors.Is(err, context.Canceled):
		return fallbackCanceled
	}
	return fallbackError
}

// CachingProposer memoizes successful proposals by context summary.
// Failures are never cached.
type CachingProposer struct {
	next  AgentProposer
	cache *cache.Cache
}

// NewCachingProposer wraps next with a TTL cache.
func NewCachingProposer(next AgentProposer, ttl time.Duration) *CachingProposer {
	return &CachingProposer{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Propose implements AgentProposer.
func (c *CachingProposer) Propose(ctx context.Context, summary string) (string, error) {
	sum := sha256.Sum256([]byte(summary))
	key := hex.EncodeToString(sum[:])

	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	raw, err := c.next.Propose(ctx, summary)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, raw, cache.DefaultExpiration)
	return raw, nil
}

// Len returns the number of cached proposals.
func (c *CachingProposer) Len() int {
	return c.cache.ItemCount()
}
