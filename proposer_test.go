package dialectic_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperengineering/dialectic"
)

const validProposal = `{
  "agents": [
    {
      "agent_type": "api_specialist",
      "focus_area": "api",
      "priority": 2,
      "confidence": 0.7,
      "context_reason": "New endpoint",
      "estimated_duration": "15-30 min",
      "documentation_targets": [".cursor/rules/api_rules.md"],
      "tags": ["api"],
      "dependencies": ["security_specialist", "ghost_agent", "api_specialist"]
    },
    {
      "agent_type": "security_specialist",
      "focus_area": "security",
      "priority": 1,
      "confidence": 0.9,
      "context_reason": "Token handling",
      "estimated_duration": "20-30 min",
      "documentation_targets": [".cursor/rules/security_rules.md"]
    },
    {
      "agent_type": "api_specialist",
      "focus_area": "api",
      "priority": 3,
      "confidence": 0.1,
      "context_reason": "duplicate",
      "estimated_duration": "5 min",
      "documentation_targets": ["x.md"]
    }
  ]
}`

// =============================================================================
// ParseProposal
// =============================================================================

func TestParseProposal_Valid(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	specs, err := dialectic.ParseProposal(validProposal, &seqIDs{}, created)
	if err != nil {
		t.Fatalf("ParseProposal() error = %v", err)
	}

	if got := fmt.Sprint(agentTypes(specs)); got != "[security_specialist api_specialist]" {
		t.Fatalf("agents = %s, want ranked and deduplicated", got)
	}
	api := specs[1]
	if fmt.Sprint(api.Dependencies) != "[security_specialist]" {
		t.Errorf("Dependencies = %v, want [security_specialist]", api.Dependencies)
	}
	if api.Priority != 2 || api.Confidence != 0.7 {
		t.Errorf("first occurrence not kept: %+v", api)
	}
	if !api.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", api.CreatedAt, created)
	}
	sec := specs[0]
	if sec.Tags == nil || sec.Dependencies == nil {
		t.Errorf("absent lists should be empty, got tags=%#v deps=%#v", sec.Tags, sec.Dependencies)
	}
}

func TestParseProposal_CodeFence(t *testing.T) {
	raw := "```json\n{\"agents\": []}\n```"
	specs, err := dialectic.ParseProposal(raw, nil, time.Now())
	if err != nil {
		t.Fatalf("ParseProposal() error = %v", err)
	}
	if specs == nil || len(specs) != 0 {
		t.Errorf("specs = %#v, want empty", specs)
	}
}

func TestParseProposal_Invalid(t *testing.T) {
	entry := func(override string) string {
		fields := map[string]string{
			"agent_type":            `"x"`,
			"focus_area":            `"api"`,
			"priority":              `2`,
			"confidence":            `0.5`,
			"context_reason":        `"r"`,
			"estimated_duration":    `"5 min"`,
			"documentation_targets": `["a.md"]`,
		}
		name, value, _ := strings.Cut(override, "=")
		if value == "-" {
			delete(fields, name)
		} else if name != "" {
			fields[name] = value
		}
		var parts []string
		for k, v := range fields {
			parts = append(parts, fmt.Sprintf("%q: %s", k, v))
		}
		return `{"agents": [{` + strings.Join(parts, ", ") + `}]}`
	}

	tests := []struct {
		name      string
		raw       string
		wantField string
		wantIndex int
	}{
		{"not json", "the agents are: security", "", -1},
		{"missing agents", `{"agent": []}`, "agents", -1},
		{"missing agent_type", entry("agent_type=-"), "agent_type", 0},
		{"missing targets", entry("documentation_targets=-"), "documentation_targets", 0},
		{"blank agent_type", entry(`agent_type="  "`), "agent_type", 0},
		{"priority out of range", entry("priority=4"), "priority", 0},
		{"fractional priority", entry("priority=1.5"), "priority", 0},
		{"confidence above one", entry("confidence=1.2"), "confidence", 0},
		{"negative confidence", entry("confidence=-0.1"), "confidence", 0},
		{"empty targets", entry("documentation_targets=[]"), "documentation_targets", 0},
		{"wrong type", entry(`priority="high"`), "", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dialectic.ParseProposal(tt.raw, nil, time.Now())
			if err == nil {
				t.Fatal("ParseProposal() error = nil, want error")
			}
			if !errors.Is(err, dialectic.ErrInvalidProposal) {
				t.Errorf("errors.Is(err, ErrInvalidProposal) = false: %v", err)
			}
			var pe *dialectic.ProposalError
			if !errors.As(err, &pe) {
				t.Fatalf("errors.As(*ProposalError) = false: %v", err)
			}
			if pe.Index != tt.wantIndex {
				t.Errorf("Index = %d, want %d", pe.Index, tt.wantIndex)
			}
			if tt.wantField != "" && pe.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", pe.Field, tt.wantField)
			}
		})
	}
}

func TestBuildContextSummary(t *testing.T) {
	ca := dialectic.NewAnalyzer(dialectic.DefaultTuning()).Analyze(dialectic.Event{
		Files:   []string{"src/auth/jwt.py"},
		Message: "Add JWT",
	})
	s := dialectic.BuildContextSummary(ca)

	for _, want := range []string{
		"- src/auth/jwt.py",
		"Commit Message:\nAdd JWT",
		"- Security focus: true",
		"source=1",
		`"agents"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}

	empty := dialectic.BuildContextSummary(dialectic.NewAnalyzer(dialectic.DefaultTuning()).Analyze(dialectic.Event{}))
	if !strings.Contains(empty, "- (none)") {
		t.Errorf("empty summary missing placeholder:\n%s", empty)
	}
}

// =============================================================================
// AdaptiveGenerator
// =============================================================================

// stubProposer answers with a fixed response, or blocks until the context ends.
type stubProposer struct {
	raw   string
	err   error
	block bool
	calls atomic.Int32
}

func (p *stubProposer) Propose(ctx context.Context, _ string) (string, error) {
	p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return p.raw, p.err
}

// fixedGenerator stands in for the deterministic fallback.
type fixedGenerator struct {
	calls atomic.Int32
}

func (g *fixedGenerator) Generate(context.Context, dialectic.ContextAnalysis) []dialectic.AgentSpec {
	g.calls.Add(1)
	return []dialectic.AgentSpec{{AgentType: "fallback_agent"}}
}

func TestAdaptiveGenerator_UsesProposal(t *testing.T) {
	fb := &fixedGenerator{}
	g := dialectic.NewAdaptiveGenerator(&stubProposer{raw: validProposal}, fb, dialectic.AdaptiveOptions{
		Logger: dialectic.NewLoggerTo(io.Discard, true),
	})

	specs := g.Generate(context.Background(), dialectic.ContextAnalysis{})
	if got := fmt.Sprint(agentTypes(specs)); got != "[security_specialist api_specialist]" {
		t.Errorf("agents = %s", got)
	}
	if fb.calls.Load() != 0 {
		t.Errorf("fallback called %d times, want 0", fb.calls.Load())
	}
}

func TestAdaptiveGenerator_FallsBack(t *testing.T) {
	tests := []struct {
		name     string
		proposer *stubProposer
		logged   string
	}{
		{"proposer error", &stubProposer{err: dialectic.ErrProposerUnavailable}, "reason=error"},
		{"malformed response", &stubProposer{raw: `{"agents": [{"agent_type": "x"}]}`}, "reason=malformed"},
		{"timeout", &stubProposer{block: true}, "reason=timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs strings.Builder
			fb := &fixedGenerator{}
			g := dialectic.NewAdaptiveGenerator(tt.proposer, fb, dialectic.AdaptiveOptions{
				Timeout: 20 * time.Millisecond,
				Logger:  dialectic.NewLoggerTo(&logs, false),
			})

			specs := g.Generate(context.Background(), dialectic.ContextAnalysis{})
			if len(specs) != 1 || specs[0].AgentType != "fallback_agent" {
				t.Errorf("specs = %+v, want fallback result", specs)
			}
			if fb.calls.Load() != 1 {
				t.Errorf("fallback called %d times, want 1", fb.calls.Load())
			}
			if !strings.Contains(logs.String(), tt.logged) {
				t.Errorf("log missing %q:\n%s", tt.logged, logs.String())
			}
		})
	}
}

func TestAdaptiveGenerator_EmptyProposalIsValid(t *testing.T) {
	fb := &fixedGenerator{}
	g := dialectic.NewAdaptiveGenerator(&stubProposer{raw: `{"agents": []}`}, fb, dialectic.AdaptiveOptions{})

	specs := g.Generate(context.Background(), dialectic.ContextAnalysis{})
	if len(specs) != 0 {
		t.Errorf("specs = %+v, want none", specs)
	}
	if fb.calls.Load() != 0 {
		t.Error("empty agent list should not fall back")
	}
}

// =============================================================================
// CachingProposer
// =============================================================================

func TestCachingProposer_CachesSuccess(t *testing.T) {
	next := &stubProposer{raw: validProposal}
	c := dialectic.NewCachingProposer(next, time.Minute)

	for i := 0; i < 3; i++ {
		raw, err := c.Propose(context.Background(), "summary A")
		if err != nil || raw != validProposal {
			t.Fatalf("Propose() = %q, %v", raw, err)
		}
	}
	if _, err := c.Propose(context.Background(), "summary B"); err != nil {
		t.Fatalf("Propose(B) error = %v", err)
	}

	if n := next.calls.Load(); n != 2 {
		t.Errorf("underlying calls = %d, want 2", n)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestCachingProposer_DoesNotCacheFailures(t *testing.T) {
	next := &stubProposer{err: errors.New("boom")}
	c := dialectic.NewCachingProposer(next, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := c.Propose(context.Background(), "summary"); err == nil {
			t.Fatal("Propose() error = nil, want error")
		}
	}
	if n := next.calls.Load(); n != 2 {
		t.Errorf("underlying calls = %d, want 2", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}
