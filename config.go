package dialectic

import (
	"os"
	"strconv"
	"time"

	"github.com/hyperengineering/dialectic/internal/store"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Config configures the Dialectic client.
type Config struct {
	// StorageDir is the root directory holding one subdirectory per store.
	// Defaults to ~/.dialectic/stores.
	StorageDir string

	// Store is the store ID to operate against.
	// If empty, resolved using store resolution (explicit > DIALECTIC_STORE env > "default").
	Store string

	// Backend selects how learning state is persisted: "sqlite" (default) or
	// "json", which keeps the four record files of the legacy layout.
	Backend string

	// TuningPath is an optional YAML file overriding heuristic constants.
	TuningPath string

	// Adaptive enables model-backed agent generation with deterministic fallback.
	Adaptive bool

	// OllamaHost is the Ollama server used in adaptive mode.
	// Empty uses the Ollama client's environment defaults.
	OllamaHost string

	// OllamaModel is the model name used in adaptive mode.
	OllamaModel string

	// ProposerTimeout bounds a single adaptive generation call.
	// Defaults to 30 seconds.
	ProposerTimeout time.Duration

	// ProposerCacheTTL caches proposer responses per context summary.
	// Zero disables caching.
	ProposerCacheTTL time.Duration

	// DocsRoot is the directory documentation targets are resolved against.
	// Defaults to the working directory.
	DocsRoot string

	// Debug enables debug-level logging.
	Debug bool

	// LogPath is a file to write logs to, rotated by size.
	// Defaults to stderr if empty.
	LogPath string

	// LogJSON switches the log format to JSON.
	LogJSON bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StorageDir:      store.DefaultStoreRoot(),
		Store:           store.DefaultStoreID,
		Backend:         BackendSQLite,
		OllamaModel:     DefaultOllamaModel,
		ProposerTimeout: 30 * time.Second,
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	DIALECTIC_STORAGE_DIR       → StorageDir
//	DIALECTIC_STORE             → Store
//	DIALECTIC_BACKEND           → Backend
//	DIALECTIC_TUNING            → TuningPath
//	DIALECTIC_ADAPTIVE          → Adaptive (parsed as bool)
//	OLLAMA_HOST                 → OllamaHost
//	DIALECTIC_MODEL             → OllamaModel
//	DIALECTIC_PROPOSER_TIMEOUT  → ProposerTimeout (Go duration)
//	DIALECTIC_PROPOSER_CACHE    → ProposerCacheTTL (Go duration)
//	DIALECTIC_DOCS_ROOT         → DocsRoot
//	DIALECTIC_DEBUG             → Debug (any non-empty value enables)
//	DIALECTIC_LOG               → LogPath
//	DIALECTIC_LOG_JSON          → LogJSON (any non-empty value enables)
//
// Unparseable values are left zero and filled by WithDefaults.
func ConfigFromEnv() Config {
	adaptive, _ := strconv.ParseBool(os.Getenv("DIALECTIC_ADAPTIVE"))
	timeout, _ := time.ParseDuration(os.Getenv("DIALECTIC_PROPOSER_TIMEOUT"))
	cacheTTL, _ := time.ParseDuration(os.Getenv("DIALECTIC_PROPOSER_CACHE"))
	return Config{
		StorageDir:       os.Getenv("DIALECTIC_STORAGE_DIR"),
		Store:            os.Getenv(store.EnvStore),
		Backend:          os.Getenv("DIALECTIC_BACKEND"),
		TuningPath:       os.Getenv("DIALECTIC_TUNING"),
		Adaptive:         adaptive,
		OllamaHost:       os.Getenv("OLLAMA_HOST"),
		OllamaModel:      os.Getenv("DIALECTIC_MODEL"),
		ProposerTimeout:  timeout,
		ProposerCacheTTL: cacheTTL,
		DocsRoot:         os.Getenv("DIALECTIC_DOCS_ROOT"),
		Debug:            os.Getenv("DIALECTIC_DEBUG") != "",
		LogPath:          os.Getenv("DIALECTIC_LOG"),
		LogJSON:          os.Getenv("DIALECTIC_LOG_JSON") != "",
	}
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.StorageDir == "" {
		return &ValidationError{Field: "StorageDir", Message: "required: directory for learning stores"}
	}

	if c.Store != "" {
		if err := store.ValidateStoreID(c.Store); err != nil {
			return &ValidationError{Field: "Store", Message: err.Error()}
		}
	}

	switch c.Backend {
	case BackendSQLite, BackendJSON:
	default:
		return &ValidationError{Field: "Backend", Message: "must be \"sqlite\" or \"json\""}
	}

	if c.ProposerTimeout < 0 {
		return &ValidationError{Field: "ProposerTimeout", Message: "must be non-negative"}
	}
	if c.ProposerCacheTTL < 0 {
		return &ValidationError{Field: "ProposerCacheTTL", Message: "must be non-negative"}
	}
	if c.Adaptive && c.OllamaModel == "" {
		return &ValidationError{Field: "OllamaModel", Message: "required when Adaptive is set"}
	}

	return nil
}

// WithDefaults fills in default values for unset fields.
// Store resolution: explicit Store field > DIALECTIC_STORE env > "default".
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Store == "" {
		resolved, err := store.ResolveStore("")
		if err == nil {
			c.Store = resolved
		} else {
			c.Store = defaults.Store
		}
	}
	if c.StorageDir == "" {
		c.StorageDir = defaults.StorageDir
	}
	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if c.OllamaModel == "" {
		c.OllamaModel = defaults.OllamaModel
	}
	if c.ProposerTimeout == 0 {
		c.ProposerTimeout = defaults.ProposerTimeout
	}

	return c
}

// StoreDir returns the directory holding the configured store.
func (c *Config) StoreDir() string {
	return store.StoreDir(c.StorageDir, c.Store)
}

// DBPath returns the SQLite database path of the configured store.
func (c *Config) DBPath() string {
	return store.StoreDBPath(c.StorageDir, c.Store)
}
