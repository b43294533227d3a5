package dialectic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator turns a context analysis into a ranked list of agent specs.
// Implementations never fail; a degraded result is returned instead.
type Generator interface {
	Generate(ctx context.Context, ca ContextAnalysis) []AgentSpec
}

// IDSource produces unique agent IDs. Implementations must be safe for concurrent use.
type IDSource interface {
	NewID(agentType string) string
}

// ULIDSource builds IDs as "<agent_type>_<lower-case ulid>".
type ULIDSource struct{}

// NewID implements IDSource. ulid.Make is safe for concurrent use.
func (ULIDSource) NewID(agentType string) string {
	return agentType + "_" + strings.ToLower(ulid.Make().String())
}

// DeterministicGenerator spawns agents from the template catalog using fixed rules.
// It performs no I/O and holds no mutable state.
type DeterministicGenerator struct {
	catalog Catalog
	tuning  Tuning
	ids     IDSource
	now     func() time.Time
}

// NewDeterministicGenerator creates a generator. A nil catalog uses DefaultCatalog
// and a nil ids uses ULIDSource.
func NewDeterministicGenerator(catalog Catalog, t Tuning, ids IDSource) *DeterministicGenerator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if ids == nil {
		ids = ULIDSource{}
	}
	return &DeterministicGenerator{catalog: catalog, tuning: t, ids: ids, now: time.Now}
}

type candidate struct {
	agentType  string
	confidence float64
	reason     string
}

// Generate implements Generator.
func (g *DeterministicGenerator) Generate(_ context.Context, ca ContextAnalysis) []AgentSpec {
	cands := g.candidates(ca)
	if len(cands) == 0 {
		return []AgentSpec{}
	}

	spawned := make(map[string]bool, len(cands))
	for _, c := range cands {
		spawned[c.agentType] = true
	}

	created := g.now().UTC()
	specs := make([]AgentSpec, 0, len(cands))
	for _, c := range cands {
		tpl, ok := g.catalog.Lookup(c.agentType)
		if !ok {
			continue
		}
		specs = append(specs, AgentSpec{
			AgentID:              g.ids.NewID(c.agentType),
			AgentType:            c.agentType,
			FocusArea:            tpl.FocusArea,
			DocumentationTargets: append([]string{}, tpl.DocumentationTargets...),
			Priority:             tpl.Priority,
			Confidence:           c.confidence,
			CreatedAt:            created,
			ContextReason:        c.reason,
			EstimatedDuration:    tpl.EstimatedDuration,
			Tags:                 append([]string{}, tpl.Tags...),
			Dependencies:         dependencies(c.agentType, ca, spawned),
		})
	}

	RankSpecs(specs)
	return specs
}

func (g *DeterministicGenerator) candidates(ca ContextAnalysis) []candidate {
	t := g.tuning
	var out []candidate

	if ca.SecurityFocus && ca.Confidence.Security > t.SecurityThreshold {
		out = append(out, candidate{
			agentType:  AgentSecuritySpecialist,
			confidence: ca.Confidence.Security,
			reason:     fmt.Sprintf("Security focus detected (confidence: %.1f%%)", ca.Confidence.Security*100),
		})
	}
	if ca.MVPFocus && ca.Confidence.MVP > t.MVPThreshold {
		out = append(out, candidate{
			agentType:  AgentMVPStrategist,
			confidence: ca.Confidence.MVP,
			reason:     fmt.Sprintf("MVP/prototype work detected (confidence: %.1f%%)", ca.Confidence.MVP*100),
		})
	}
	if ca.PerformanceFocus && ca.Confidence.Performance > t.PerformanceThreshold {
		out = append(out, candidate{
			agentType:  AgentPerformanceExpert,
			confidence: ca.Confidence.Performance,
			reason:     fmt.Sprintf("Performance optimization detected (confidence: %.1f%%)", ca.Confidence.Performance*100),
		})
	}
	if ca.DocumentationFocus {
		out = append(out, candidate{
			agentType:  AgentDocumentationSpecialist,
			confidence: 1.0,
			reason:     "Documentation files modified",
		})
	}
	if ca.ErrorFocus {
		occurrences := ca.ErrorOccurrences
		if occurrences < ca.ErrorCount {
			occurrences = ca.ErrorCount
		}
		out = append(out, candidate{
			agentType:  AgentErrorHandler,
			confidence: math.Min(float64(occurrences)*t.ErrorWeight, 1.0),
			reason:     fmt.Sprintf("Errors detected (%d errors, %d occurrences)", ca.ErrorCount, occurrences),
		})
	}

	source := ca.FileTypes[FileSource]
	if source > 0 && countPatterns(apiPaths, strings.ToLower(strings.Join(ca.FilesChanged, " "))) > 0 {
		out = append(out, candidate{
			agentType:  AgentAPISpecialist,
			confidence: math.Min(float64(source)*t.APIWeight, 1.0),
			reason:     fmt.Sprintf("API-related source files detected (%d files)", source),
		})
	}

	frontend := ca.FileTypes[FileScript] + ca.FileTypes[FileTypedScript] +
		ca.FileTypes[FileMarkup] + ca.FileTypes[FileStylesheet]
	if frontend > 0 {
		out = append(out, candidate{
			agentType:  AgentFrontendSpecialist,
			confidence: math.Min(float64(frontend)*t.FrontendWeight, 1.0),
			reason:     fmt.Sprintf("Frontend files detected (%d files)", frontend),
		})
	}

	return out
}

// dependencies lists the agent types that should conceptually precede agentType.
// Security and performance reference only agents spawned in the same batch;
// the API agent follows the context's focus flags, spawned or not.
func dependencies(agentType string, ca ContextAnalysis, spawned map[string]bool) []string {
	deps := []string{}
	add := func(t string) {
		if spawned[t] {
			deps = append(deps, t)
		}
	}
	switch agentType {
	case AgentSecuritySpecialist:
		add(AgentDocumentationSpecialist)
	case AgentPerformanceExpert:
		add(AgentErrorHandler)
	case AgentAPISpecialist:
		if ca.SecurityFocus {
			deps = append(deps, AgentSecuritySpecialist)
		}
		if ca.PerformanceFocus {
			deps = append(deps, AgentPerformanceExpert)
		}
	}
	return deps
}

// RankSpecs sorts specs by priority ascending, then confidence descending.
// Ties keep their generation order.
func RankSpecs(specs []AgentSpec) {
	sort.SliceStable(specs, func(i, j int) bool {
		if specs[i].Priority != specs[j].Priority {
			return specs[i].Priority < specs[j].Priority
		}
		return specs[i].Confidence > specs[j].Confidence
	})
}

// SummarizeAgents renders a one-line summary of a spec batch.
func SummarizeAgents(specs []AgentSpec) string {
	if len(specs) == 0 {
		return "No agents generated"
	}
	parts := make([]string, len(specs))
	for i, s := range specs {
		parts[i] = fmt.Sprintf("[P%d] %s (%.0f%%)", s.Priority, s.AgentType, s.Confidence*100)
	}
	return strings.Join(parts, " | ")
}
