package dialectic

import "sort"

// Template describes what an agent type can be: its fixed priority, focus
// area and where its documentation goes.
type Template struct {
	AgentType            string   `json:"agent_type" yaml:"agent_type"`
	FocusArea            string   `json:"focus_area" yaml:"focus_area"`
	Priority             int      `json:"priority" yaml:"priority"`
	DocumentationTargets []string `json:"documentation_targets" yaml:"documentation_targets"`
	Tags                 []string `json:"tags" yaml:"tags"`
	EstimatedDuration    string   `json:"estimated_duration" yaml:"estimated_duration"`
}

// Catalog maps agent types to templates.
type Catalog map[string]Template

// DefaultCatalog returns the seven built-in agent templates.
func DefaultCatalog() Catalog {
	return Catalog{
		AgentSecuritySpecialist: {
			AgentType: AgentSecuritySpecialist,
			FocusArea: "security",
			Priority:  PriorityHigh,
			DocumentationTargets: []string{
				".cursor/rules/security_rules.md",
				".cursor/commands/security_commands.md",
				".cursor/development/patterns/auth_patterns.md",
				".cursor/development/debugging/security_debugging.md",
			},
			Tags:              []string{"security", "auth", "permissions"},
			EstimatedDuration: "15-30 min",
		},
		AgentMVPStrategist: {
			AgentType: AgentMVPStrategist,
			FocusArea: "mvp",
			Priority:  PriorityMedium,
			DocumentationTargets: []string{
				".cursor/rules/mvp_guidelines.md",
				".cursor/commands/rapid_prototyping.md",
				".cursor/development/patterns/mvp_patterns.md",
				".cursor/plans/mvp_tracking.md",
			},
			Tags:              []string{"mvp", "prototype", "rapid"},
			EstimatedDuration: "10-20 min",
		},
		AgentPerformanceExpert: {
			AgentType: AgentPerformanceExpert,
			FocusArea: "performance",
			Priority:  PriorityMedium,
			DocumentationTargets: []string{
				".cursor/rules/performance_rules.md",
				".cursor/commands/optimization_commands.md",
				".cursor/development/patterns/performance_patterns.md",
				".cursor/development/debugging/performance_debugging.md",
			},
			Tags:              []string{"performance", "optimization", "caching"},
			EstimatedDuration: "20-40 min",
		},
		AgentDocumentationSpecialist: {
			AgentType: AgentDocumentationSpecialist,
			FocusArea: "documentation",
			Priority:  PriorityLow,
			DocumentationTargets: []string{
				".cursor/README.md",
				".cursor/development/debugging/",
				".cursor/plans/",
				".cursor/commands/",
			},
			Tags:              []string{"documentation", "docs", "guides"},
			EstimatedDuration: "5-15 min",
		},
		AgentErrorHandler: {
			AgentType: AgentErrorHandler,
			FocusArea: "debugging",
			Priority:  PriorityHigh,
			DocumentationTargets: []string{
				".cursor/development/debugging/",
				".cursor/commands/debugging_commands.md",
				".cursor/rules/error_handling_rules.md",
			},
			Tags:              []string{"debugging", "errors", "fixes"},
			EstimatedDuration: "10-25 min",
		},
		AgentAPISpecialist: {
			AgentType: AgentAPISpecialist,
			FocusArea: "api",
			Priority:  PriorityMedium,
			DocumentationTargets: []string{
				".cursor/rules/api_rules.md",
				".cursor/commands/api_commands.md",
				".cursor/development/patterns/api_patterns.md",
			},
			Tags:              []string{"api", "endpoints", "rest"},
			EstimatedDuration: "15-30 min",
		},
		AgentFrontendSpecialist: {
			AgentType: AgentFrontendSpecialist,
			FocusArea: "frontend",
			Priority:  PriorityMedium,
			DocumentationTargets: []string{
				".cursor/rules/frontend_rules.md",
				".cursor/commands/frontend_commands.md",
				".cursor/development/patterns/ui_patterns.md",
			},
			Tags:              []string{"frontend", "ui", "components"},
			EstimatedDuration: "15-25 min",
		},
	}
}

// Lookup returns the template for an agent type.
func (c Catalog) Lookup(agentType string) (Template, bool) {
	t, ok := c[agentType]
	return t, ok
}

// Types returns the catalog's agent types sorted by name.
func (c Catalog) Types() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
