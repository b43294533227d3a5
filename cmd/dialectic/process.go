package main

import (
	"fmt"

	"github.com/hyperengineering/dialectic"
	"github.com/hyperengineering/dialectic/docs"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Generate agents, write their docs and learn from the event",
	Long: `Run the full pipeline for one development event:

  1. classify the event and generate ranked agent specs
  2. look up agents that worked for similar past events
  3. append each agent's documentation section to its targets
  4. record the outcome so future recommendations improve

Documentation targets are resolved against --docs-root (default: the
working directory) and never outside it.`,
	Example: `  dialectic process -f src/auth/jwt.go -f src/middleware/auth.go -m "Add JWT auth"
  dialectic process --event event.json --docs-root ./project
  dialectic process -f app.py -e TimeoutError:4 --dry-run`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

var (
	processEvent    eventFlags
	processAdaptive bool
	processDocsRoot string
	processDryRun   bool
	processNoLearn  bool
)

func init() {
	processEvent.bind(processCmd)
	processCmd.Flags().BoolVar(&processAdaptive, "adaptive", false, "Ask the configured model to propose agents")
	processCmd.Flags().StringVar(&processDocsRoot, "docs-root", "", "Directory documentation targets are resolved against")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "Preview documentation sections without writing or learning")
	processCmd.Flags().BoolVar(&processNoLearn, "no-learn", false, "Write documentation but do not record the outcome")

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ev, err := processEvent.event(cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg := loadConfig()
	if processAdaptive {
		cfg.Adaptive = true
	}
	if processDocsRoot != "" {
		cfg.DocsRoot = processDocsRoot
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	p, err := docs.New(docs.Options{
		Root:   cfg.DocsRoot,
		DryRun: processDryRun,
		Logger: logger,
	})
	if err != nil {
		_ = logger.Close()
		return fmt.Errorf("documentation projector: %w", err)
	}

	s, err := openSessionWith(cfg, logger, dialectic.WithProjector(p))
	if err != nil {
		return err
	}
	defer s.Close()

	var res *dialectic.ProcessResult
	err = runMaybeWithSpinner(cmd, s.client.Adaptive(), "Asking "+cfg.OllamaModel+" for agents", func() error {
		var procErr error
		res, procErr = s.client.Process(cmd.Context(), ev, dialectic.ProcessOptions{
			SkipLearning: processDryRun || processNoLearn,
		})
		return procErr
	})
	if err != nil {
		return fmt.Errorf("process: %w", err)
	}

	if processDryRun && !outputJSON {
		previewSections(cmd, p, res)
	}
	return outputProcess(cmd, res, processDryRun)
}

// previewSections renders each spec's section once, for the first target
// it would be written to.
func previewSections(cmd *cobra.Command, p *docs.Projector, res *dialectic.ProcessResult) {
	out := cmd.OutOrStdout()
	for _, spec := range res.Specs {
		pages, _ := p.Render(spec, res.Analysis)
		if len(pages) == 0 {
			continue
		}
		title := fmt.Sprintf("%s -> %s", spec.AgentType, pages[0].File)
		if len(pages) > 1 {
			title += fmt.Sprintf(" (+%d more)", len(pages)-1)
		}
		fmt.Fprintln(out, renderPanel(title, renderMarkdown(pages[0].Content)))
	}
}
