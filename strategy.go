package dialectic

import (
	"context"
	"strings"
)

// Documentation strategies. Each one selects the template a projector
// renders for an agent.
const (
	StrategySecurity      = "security"
	StrategyMVP           = "mvp"
	StrategyPerformance   = "performance"
	StrategyDocumentation = "documentation"
	StrategyDebugging     = "debugging"
	StrategyAPI           = "api"
	StrategyFrontend      = "frontend"
	StrategyGeneral       = "general"
)

// Strategies returns every strategy name, general last.
func Strategies() []string {
	return []string{
		StrategySecurity,
		StrategyMVP,
		StrategyPerformance,
		StrategyDocumentation,
		StrategyDebugging,
		StrategyAPI,
		StrategyFrontend,
		StrategyGeneral,
	}
}

// StrategyFor maps an agent's focus area to a documentation strategy.
// Unknown focus areas, including ones invented by an adaptive proposer,
// fall back to general.
func StrategyFor(focusArea string) string {
	switch f := strings.ToLower(strings.TrimSpace(focusArea)); f {
	case StrategySecurity, StrategyMVP, StrategyPerformance, StrategyDocumentation,
		StrategyDebugging, StrategyAPI, StrategyFrontend:
		return f
	case "errors", "error_handling":
		return StrategyDebugging
	default:
		return StrategyGeneral
	}
}

// Projector turns an agent spec into documentation changes.
//
// Implementations write what they can and report the updates that landed;
// the returned error describes targets that failed. Both may be non-empty.
type Projector interface {
	Project(ctx context.Context, spec AgentSpec, ca ContextAnalysis) ([]DocumentationUpdate, error)
}
