package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend agents that worked for similar past events",
	Example: `  dialectic recommend -f src/auth/session.go -m "Harden session cookies"
  dialectic recommend --event event.json --json`,
	Args: cobra.NoArgs,
	RunE: runRecommend,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the learning store has learned",
	Long: `Display the active store, event totals, success rate, the most
effective agents and the most common event patterns.`,
	Example: `  dialectic stats
  dialectic stats --store my-project --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var insightsCmd = &cobra.Command{
	Use:     "insights <agent-type>",
	Short:   "Show effectiveness and recent runs of one agent type",
	Example: `  dialectic insights security_specialist`,
	Args:    cobra.ExactArgs(1),
	RunE:    runInsights,
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List learned event patterns",
	Example: `  dialectic patterns
  dialectic patterns --limit 5`,
	Args: cobra.NoArgs,
	RunE: runPatterns,
}

var (
	recommendEvent eventFlags
	patternsLimit  int
)

func init() {
	recommendEvent.bind(recommendCmd)
	patternsCmd.Flags().IntVarP(&patternsLimit, "limit", "n", 20, "Maximum number of patterns to show (0 for all)")

	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(patternsCmd)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	ev, err := recommendEvent.event(cmd.InOrStdin())
	if err != nil {
		return err
	}

	s, err := openSession(loadConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	recs, err := s.client.Recommend(cmd.Context(), ev)
	if err != nil {
		return fmt.Errorf("recommend: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, recs)
	}
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No similar past events yet.")
		return nil
	}
	printInfo(out, "Recommended: %s", strings.Join(recs, ", "))
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := openSession(loadConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	sum, err := s.client.Summary()
	if err != nil {
		return fmt.Errorf("get summary: %w", err)
	}
	info, err := s.client.StoreInfo()
	if err != nil {
		return fmt.Errorf("get store info: %w", err)
	}
	return outputSummary(cmd, sum, info)
}

func runInsights(cmd *cobra.Command, args []string) error {
	s, err := openSession(loadConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	ins, err := s.client.Insights(args[0])
	if err != nil {
		return fmt.Errorf("get insights: %w", err)
	}
	return outputInsights(cmd, ins)
}

func runPatterns(cmd *cobra.Command, args []string) error {
	if patternsLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	s, err := openSession(loadConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	patterns, err := s.client.Patterns()
	if err != nil {
		return fmt.Errorf("list patterns: %w", err)
	}
	if patternsLimit > 0 && len(patterns) > patternsLimit {
		patterns = patterns[:patternsLimit]
	}
	return outputPatterns(cmd, patterns)
}
