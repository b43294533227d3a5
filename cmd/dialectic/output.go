package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/dialectic"
	"github.com/spf13/cobra"
)

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError prints an error to stderr.
func outputError(w io.Writer, err error) {
	fmt.Fprintln(w, renderErrorPanel(err.Error(), "", ""))
}

// outputAnalysis prints a context analysis.
func outputAnalysis(cmd *cobra.Command, summary string, ca dialectic.ContextAnalysis) error {
	if outputJSON {
		return outputAsJSON(cmd, ca)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, summary)
	fmt.Fprintln(out)

	var b strings.Builder
	fmt.Fprintf(&b, "Security:      %s (%.0f%%)\n", yesNo(ca.SecurityFocus), ca.Confidence.Security*100)
	fmt.Fprintf(&b, "MVP:           %s (%.0f%%)\n", yesNo(ca.MVPFocus), ca.Confidence.MVP*100)
	fmt.Fprintf(&b, "Performance:   %s (%.0f%%)\n", yesNo(ca.PerformanceFocus), ca.Confidence.Performance*100)
	fmt.Fprintf(&b, "Documentation: %s\n", yesNo(ca.DocumentationFocus))
	fmt.Fprintf(&b, "Errors:        %s (%d records, %d occurrences)\n", yesNo(ca.ErrorFocus), ca.ErrorCount, ca.ErrorOccurrences)
	fmt.Fprintf(&b, "Complexity:    %d", ca.ComplexityScore)
	fmt.Fprintln(out, renderPanel("Context Analysis", b.String()))

	var rows [][]string
	for _, cat := range dialectic.FileCategories() {
		if n := ca.FileTypes[cat]; n > 0 {
			rows = append(rows, []string{string(cat), strconv.Itoa(n)})
		}
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable([]string{"FILE TYPE", "COUNT"}, rows))
	}
	return nil
}

// outputSpecs prints generated agent specs as a table.
func outputSpecs(out io.Writer, specs []dialectic.AgentSpec) {
	if len(specs) == 0 {
		printMuted(out, "No agents generated.")
		return
	}
	rows := make([][]string, 0, len(specs))
	for _, s := range specs {
		rows = append(rows, []string{
			s.AgentType,
			strconv.Itoa(s.Priority),
			fmt.Sprintf("%.0f%%", s.Confidence*100),
			s.EstimatedDuration,
			strings.Join(s.Dependencies, ", "),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"AGENT", "PRIORITY", "CONFIDENCE", "DURATION", "DEPENDS ON"}, rows))
	for _, s := range specs {
		printLabel(out, s.AgentType+": ")
		fmt.Fprintln(out, s.ContextReason)
	}
}

// outputProcess prints the result of processing one event.
func outputProcess(cmd *cobra.Command, res *dialectic.ProcessResult, dryRun bool) error {
	if outputJSON {
		return outputAsJSON(cmd, res)
	}

	out := cmd.OutOrStdout()
	printInfo(out, "[%s] %s", res.Ref, dialectic.SummarizeAgents(res.Specs))
	outputSpecs(out, res.Specs)

	if len(res.Recommendations) > 0 {
		fmt.Fprintln(out)
		printLabel(out, "Worked before: ")
		fmt.Fprintln(out, strings.Join(res.Recommendations, ", "))
	}

	if len(res.Updates) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(res.Updates))
		for _, u := range res.Updates {
			rows = append(rows, []string{u.File, u.Type, u.Agent, formatBytes(int64(u.Size))})
		}
		fmt.Fprintln(out, renderTable([]string{"FILE", "CHANGE", "AGENT", "SIZE"}, rows))
	}
	for _, e := range res.ProjectionErrors {
		printWarning(out, "%s", e)
	}

	fmt.Fprintln(out)
	switch {
	case dryRun:
		printMuted(out, "Dry-run: outcome would be %s. Nothing written or learned.", res.Outcome)
	case res.Learned:
		printOutcome(out, res.Outcome, "Learned outcome: %s", res.Outcome)
	default:
		printOutcome(out, res.Outcome, "Outcome: %s (not learned)", res.Outcome)
	}
	return nil
}

func printOutcome(out io.Writer, o dialectic.Outcome, format string, args ...interface{}) {
	switch o {
	case dialectic.OutcomeSuccess:
		printSuccess(out, format, args...)
	case dialectic.OutcomePartial:
		printWarning(out, format, args...)
	default:
		printError(out, format, args...)
	}
}

// outputSummary prints the learning summary and store info as panels.
func outputSummary(cmd *cobra.Command, sum *dialectic.LearningSummary, info *dialectic.StoreInfo) error {
	if outputJSON {
		return outputAsJSON(cmd, struct {
			Store   *dialectic.StoreInfo       `json:"store"`
			Summary *dialectic.LearningSummary `json:"summary"`
		}{info, sum})
	}

	out := cmd.OutOrStdout()

	var b strings.Builder
	fmt.Fprintf(&b, "Store:     %s\n", info.StoreID)
	fmt.Fprintf(&b, "Backend:   %s\n", info.Backend)
	if info.Location != "" {
		fmt.Fprintf(&b, "Location:  %s\n", info.Location)
	}
	if !info.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Created:   %s (%s)\n", info.CreatedAt.Format(time.RFC3339), formatRelativeTime(info.CreatedAt))
	}
	if info.ImportedFrom != "" {
		fmt.Fprintf(&b, "Imported:  %s\n", info.ImportedFrom)
	}
	if len(info.Stores) > 1 {
		fmt.Fprintf(&b, "All:       %s\n", strings.Join(info.Stores, ", "))
	}
	fmt.Fprintln(out, renderPanel("Learning Store", b.String()))

	b.Reset()
	fmt.Fprintf(&b, "Events:        %d\n", sum.TotalEvents)
	fmt.Fprintf(&b, "Successful:    %d\n", sum.SuccessfulUpdates)
	fmt.Fprintf(&b, "Failed:        %d\n", sum.FailedUpdates)
	fmt.Fprintf(&b, "Success rate:  %.1f%%\n", sum.SuccessRate*100)
	fmt.Fprintf(&b, "Patterns:      %d\n", sum.PatternsLearned)
	fmt.Fprintf(&b, "Log entries:   %d", sum.LearningEventsLog)
	fmt.Fprintln(out, renderPanel("Statistics", b.String()))

	if len(sum.MostEffectiveAgents) > 0 {
		rows := make([][]string, 0, len(sum.MostEffectiveAgents))
		for _, a := range sum.MostEffectiveAgents {
			rows = append(rows, []string{
				a.AgentType,
				strconv.Itoa(a.TotalSpawned),
				strconv.Itoa(a.SuccessfulUpdates),
				fmt.Sprintf("%.0f%%", a.AverageConfidence*100),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"AGENT", "SPAWNED", "SUCCESSFUL", "AVG CONFIDENCE"}, rows))
	}
	if len(sum.MostCommonPatterns) > 0 {
		rows := make([][]string, 0, len(sum.MostCommonPatterns))
		for _, p := range sum.MostCommonPatterns {
			rows = append(rows, []string{p.Pattern, strconv.Itoa(p.Count)})
		}
		fmt.Fprintln(out, renderTable([]string{"PATTERN", "COUNT"}, rows))
	}
	return nil
}

// outputInsights prints one agent type's record.
func outputInsights(cmd *cobra.Command, ins *dialectic.AgentInsights) error {
	if outputJSON {
		return outputAsJSON(cmd, ins)
	}

	out := cmd.OutOrStdout()
	var b strings.Builder
	fmt.Fprintf(&b, "Spawned:             %d\n", ins.TotalSpawned)
	fmt.Fprintf(&b, "Successful updates:  %d\n", ins.SuccessfulUpdates)
	fmt.Fprintf(&b, "Average confidence:  %.1f%%\n", ins.AverageConfidence*100)
	if ins.LastUsed != nil {
		fmt.Fprintf(&b, "Last used:           %s", formatRelativeTime(*ins.LastUsed))
	} else {
		b.WriteString("Last used:           never")
	}
	fmt.Fprintln(out, renderPanel(ins.AgentType, b.String()))

	if len(ins.RecentPerformance) > 0 {
		rows := make([][]string, 0, len(ins.RecentPerformance))
		for _, r := range ins.RecentPerformance {
			rows = append(rows, []string{r.Timestamp.Format("2006-01-02 15:04"), string(r.Outcome), strconv.Itoa(r.UpdatesCount)})
		}
		fmt.Fprintln(out, renderTable([]string{"WHEN", "OUTCOME", "UPDATES"}, rows))
	}
	return nil
}

// outputPatterns prints learned patterns, most frequent first.
func outputPatterns(cmd *cobra.Command, patterns []dialectic.PatternRecord) error {
	if outputJSON {
		if patterns == nil {
			patterns = []dialectic.PatternRecord{}
		}
		return outputAsJSON(cmd, patterns)
	}

	out := cmd.OutOrStdout()
	if len(patterns) == 0 {
		fmt.Fprintln(out, "No patterns learned yet.")
		return nil
	}
	rows := make([][]string, 0, len(patterns))
	for _, p := range patterns {
		agents := append([]string(nil), p.AgentsSpawned...)
		sort.Strings(agents)
		rows = append(rows, []string{
			p.PatternKey,
			strconv.Itoa(p.OccurrenceCount),
			fmt.Sprintf("%.0f%%", p.SuccessRate*100),
			formatRelativeTime(p.LastSeen),
			strings.Join(agents, ", "),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"PATTERN", "SEEN", "SUCCESS", "LAST SEEN", "AGENTS"}, rows))
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// formatRelativeTime formats a timestamp as relative time (e.g., "2h ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
