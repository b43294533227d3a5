package docs_test

import (
	"strings"
	"testing"

	"github.com/hyperengineering/dialectic"
	"github.com/hyperengineering/dialectic/docs"
)

func TestNewRenderer_Succeeds(t *testing.T) {
	r, err := docs.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() failed: %v", err)
	}
	if r == nil {
		t.Fatal("NewRenderer() returned nil")
	}
}

func TestRender_EveryStrategy(t *testing.T) {
	r, err := docs.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	data := docs.SectionData{
		Timestamp:  "2026-01-02 03:04:05",
		Agent:      "Security Specialist",
		AgentType:  dialectic.AgentSecuritySpecialist,
		Files:      "src/auth/jwt.py, src/middleware/auth.py",
		Message:    "Add JWT authentication",
		Confidence: dialectic.Confidence{Security: 0.75, MVP: 0.3, Performance: 0.4},
		ErrorCount: 2,
	}

	tests := map[string][]string{
		dialectic.StrategySecurity:      {"## Security Update - 2026-01-02 03:04:05", "**Confidence**: 75.0%", "Security audit of src/auth/jwt.py"},
		dialectic.StrategyMVP:           {"## MVP Development", "**Confidence**: 30.0%", "Add JWT authentication"},
		dialectic.StrategyPerformance:   {"## Performance Optimization", "**Confidence**: 40.0%"},
		dialectic.StrategyDocumentation: {"## Documentation Update"},
		dialectic.StrategyDebugging:     {"## Debugging Session", "**Errors Detected**: 2", "Identified 2 errors"},
		dialectic.StrategyAPI:           {"## API Update"},
		dialectic.StrategyFrontend:      {"## Frontend Update"},
		dialectic.StrategyGeneral:       {"## Update - 2026-01-02 03:04:05", "**Context**: Add JWT authentication"},
	}

	for strategy, checks := range tests {
		t.Run(strategy, func(t *testing.T) {
			out, err := r.Render(strategy, data)
			if err != nil {
				t.Fatalf("Render(%s) failed: %v", strategy, err)
			}
			if !strings.Contains(out, "**Agent**: Security Specialist") {
				t.Errorf("output missing agent line:\n%s", out)
			}
			for _, check := range checks {
				if !strings.Contains(out, check) {
					t.Errorf("output missing %q:\n%s", check, out)
				}
			}
			if !strings.HasSuffix(strings.TrimSpace(out), "---") {
				t.Errorf("section should end with a rule:\n%s", out)
			}
		})
	}
}

func TestRender_UnknownStrategy(t *testing.T) {
	r, err := docs.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	if _, err := r.Render("nonexistent", docs.SectionData{}); err == nil {
		t.Fatal("Render(nonexistent) should fail")
	}
}

func TestNewSectionData(t *testing.T) {
	spec := dialectic.AgentSpec{AgentType: dialectic.AgentErrorHandler}
	ca := dialectic.ContextAnalysis{
		FilesChanged: []string{"a.go", "b.go"},
		ErrorCount:   3,
	}

	d := docs.NewSectionData(spec, ca, "ts")
	if d.Agent != "Error Handler" {
		t.Errorf("Agent = %q, want %q", d.Agent, "Error Handler")
	}
	if d.Files != "a.go, b.go" {
		t.Errorf("Files = %q", d.Files)
	}
	if d.Message != "No message" {
		t.Errorf("Message = %q, want placeholder", d.Message)
	}
	if d.ErrorCount != 3 {
		t.Errorf("ErrorCount = %d, want 3", d.ErrorCount)
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"security_specialist": "Security Specialist",
		"mvp_strategist":      "Mvp Strategist",
		"README":              "Readme",
		"":                    "",
	}
	for in, want := range tests {
		if got := docs.DisplayName(in); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
