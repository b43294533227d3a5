package main

import (
	"fmt"

	"github.com/hyperengineering/dialectic"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify a development event",
	Long: `Classify a development event into focus areas, confidences, a file
type histogram and a complexity score. Nothing is stored.`,
	Example: `  dialectic analyze -f src/auth/jwt.go -m "Add JWT validation"
  dialectic analyze --event event.json --json
  git diff --name-only | jq -R -s '{files: split("\n")[:-1]}' | dialectic analyze --event -`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate ranked agent specs for an event",
	Long: `Generate ranked agent specs for a development event without writing
documentation or learning from it.`,
	Example: `  dialectic generate -f api/routes.go -m "Add orders endpoint"
  dialectic generate -f app.py -e TypeError:3 --adaptive`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

var (
	analyzeEvent  eventFlags
	generateEvent eventFlags
	generateAdapt bool
)

func init() {
	analyzeEvent.bind(analyzeCmd)
	generateEvent.bind(generateCmd)
	generateCmd.Flags().BoolVar(&generateAdapt, "adaptive", false, "Ask the configured model to propose agents")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(generateCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ev, err := analyzeEvent.event(cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg := loadConfig()
	tuning := dialectic.DefaultTuning()
	if cfg.TuningPath != "" {
		if tuning, err = dialectic.LoadTuning(cfg.TuningPath); err != nil {
			return err
		}
	}

	analyzer := dialectic.NewAnalyzer(tuning)
	ca := analyzer.Analyze(ev)
	return outputAnalysis(cmd, analyzer.Summary(ca), ca)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ev, err := generateEvent.event(cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg := loadConfig()
	if generateAdapt {
		cfg.Adaptive = true
	}
	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var gen *dialectic.Generation
	err = runMaybeWithSpinner(cmd, s.client.Adaptive(), "Asking "+cfg.OllamaModel+" for agents", func() error {
		var genErr error
		gen, genErr = s.client.Generate(cmd.Context(), ev)
		return genErr
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, gen)
	}
	out := cmd.OutOrStdout()
	printInfo(out, "%s", dialectic.SummarizeAgents(gen.Specs))
	outputSpecs(out, gen.Specs)
	return nil
}
