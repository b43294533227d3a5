package main

import (
	"fmt"

	"github.com/hyperengineering/dialectic"
	"github.com/spf13/cobra"
)

var (
	cfgStorageDir string
	cfgStore      string
	cfgBackend    string
	cfgTuning     string
	cfgLogFile    string
	cfgDebug      bool
	outputJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "dialectic",
	Short: "Dialectic - context-aware agent planning CLI",
	Long: `Dialectic turns development events into ranked specialist agent specs.

It classifies changed files, commit messages and errors, proposes the
agents worth spawning, writes their documentation sections, and learns
which agents worked for which kinds of change.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgStorageDir, "storage-dir", "", "Root directory for learning stores (default: ~/.dialectic/stores)")
	pf.StringVar(&cfgStore, "store", "", "Store ID (default: $DIALECTIC_STORE or 'default')")
	pf.StringVar(&cfgBackend, "backend", "", "Storage backend: sqlite, json")
	pf.StringVar(&cfgTuning, "tuning", "", "Path to a YAML tuning file")
	pf.StringVar(&cfgLogFile, "log-file", "", "Write logs to a rotated file instead of stderr")
	pf.BoolVar(&cfgDebug, "debug", false, "Enable debug logging")
	pf.BoolVar(&outputJSON, "json", false, "Output as JSON")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() dialectic.Config {
	cfg := dialectic.ConfigFromEnv()

	if cfgStorageDir != "" {
		cfg.StorageDir = cfgStorageDir
	}
	if cfgStore != "" {
		cfg.Store = cfgStore
	}
	if cfgBackend != "" {
		cfg.Backend = cfgBackend
	}
	if cfgTuning != "" {
		cfg.TuningPath = cfgTuning
	}
	if cfgLogFile != "" {
		cfg.LogPath = cfgLogFile
	}
	if cfgDebug {
		cfg.Debug = true
	}

	return cfg.WithDefaults()
}

// session bundles a client with the logger it shares with other components.
type session struct {
	cfg    dialectic.Config
	logger *dialectic.Logger
	client *dialectic.Client
}

func (s *session) Close() error {
	err := s.client.Close()
	_ = s.logger.Close()
	return err
}

func newLogger(cfg dialectic.Config) *dialectic.Logger {
	return dialectic.NewLogger(dialectic.LoggerOptions{
		Debug: cfg.Debug,
		Path:  cfg.LogPath,
		JSON:  cfg.LogJSON,
	})
}

// openSession validates cfg and opens a client with its own logger.
func openSession(cfg dialectic.Config, opts ...dialectic.Option) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return openSessionWith(cfg, newLogger(cfg), opts...)
}

// openSessionWith opens a client sharing logger. The session owns logger
// from here on, including on error.
func openSessionWith(cfg dialectic.Config, logger *dialectic.Logger, opts ...dialectic.Option) (*session, error) {
	client, err := dialectic.New(cfg, append([]dialectic.Option{dialectic.WithLogger(logger)}, opts...)...)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("initialize client: %w", err)
	}
	return &session{cfg: cfg, logger: logger, client: client}, nil
}
