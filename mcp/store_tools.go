package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/dialectic"
)

const defaultPatternLimit = 10

// handlePatterns handles the dialectic_patterns tool call.
func (s *Server) handlePatterns(_ context.Context, args map[string]any) (*ToolResult, error) {
	limit := defaultPatternLimit
	if l, ok := args["limit"].(float64); ok {
		if l < 1 {
			return errorResult("limit must be at least 1"), nil
		}
		limit = int(l)
	}

	patterns, err := s.client.Patterns()
	if err != nil {
		return errorResult("list patterns failed: %v", err), nil
	}
	return &ToolResult{Content: formatPatterns(patterns, limit)}, nil
}

// handleStoreInfo handles the dialectic_store_info tool call.
func (s *Server) handleStoreInfo(_ context.Context, _ map[string]any) (*ToolResult, error) {
	info, err := s.client.StoreInfo()
	if err != nil {
		return errorResult("get store info failed: %v", err), nil
	}
	return &ToolResult{Content: formatStoreInfo(info)}, nil
}

// formatPatterns formats learned patterns for display.
func formatPatterns(patterns []dialectic.PatternRecord, limit int) string {
	if len(patterns) == 0 {
		return "No patterns learned yet."
	}

	var sb strings.Builder
	shown := patterns
	if len(shown) > limit {
		shown = shown[:limit]
	}
	fmt.Fprintf(&sb, "Learned patterns (%d of %d):\n\n", len(shown), len(patterns))
	for _, p := range shown {
		fmt.Fprintf(&sb, "  %s\n", p.PatternKey)
		fmt.Fprintf(&sb, "    Seen: %d | Success: %.0f%% | Last: %s\n",
			p.OccurrenceCount, p.SuccessRate*100, formatRelativeTime(p.LastSeen))
		if len(p.AgentsSpawned) > 0 {
			fmt.Fprintf(&sb, "    Agents: %s\n", strings.Join(p.AgentsSpawned, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatStoreInfo formats the store info response for display.
func formatStoreInfo(info *dialectic.StoreInfo) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Store: %s\n", info.StoreID)
	fmt.Fprintf(&sb, "Backend: %s\n", info.Backend)
	if info.Location != "" {
		fmt.Fprintf(&sb, "Location: %s\n", info.Location)
	}
	if !info.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "Created: %s\n", formatTimestamp(info.CreatedAt))
	}
	if info.ImportedFrom != "" {
		fmt.Fprintf(&sb, "Imported from: %s\n", info.ImportedFrom)
	}
	sb.WriteString("\n")

	sb.WriteString("Statistics:\n")
	fmt.Fprintf(&sb, "  Events: %d\n", info.Events)
	fmt.Fprintf(&sb, "  Patterns: %d\n", info.Patterns)
	fmt.Fprintf(&sb, "  Agent types: %d\n", info.Agents)
	fmt.Fprintf(&sb, "  Log entries: %d\n", info.LogEntries)

	return sb.String()
}

// formatRelativeTime formats a timestamp as relative time (e.g., "2h ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	duration := time.Since(t)
	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		mins := int(duration.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	default:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
