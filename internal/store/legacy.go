package store

import (
	"os"
	"path/filepath"
)

// File names of the legacy JSON learning layout. The JSON backend uses the same names.
const (
	PatternsFile      = "patterns.json"
	MetricsFile       = "success_metrics.json"
	EffectivenessFile = "agent_effectiveness.json"
	LogFile           = "learning_log.json"
)

// LegacyFiles lists the legacy record files in save order.
func LegacyFiles() []string {
	return []string{PatternsFile, MetricsFile, EffectivenessFile, LogFile}
}

// LegacyDir returns the pre-store learning directory: ./.cursor/learning.
func LegacyDir() string {
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, ".cursor", "learning")
}

// HasLegacyState reports whether dir holds at least one legacy record file.
func HasLegacyState(dir string) bool {
	for _, name := range LegacyFiles() {
		if fi, err := os.Stat(filepath.Join(dir, name)); err == nil && !fi.IsDir() {
			return true
		}
	}
	return false
}
