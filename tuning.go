package dialectic

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds every heuristic constant used by the classifier, the generator
// and the learning store. The values are not derived from anything; they are
// starting points meant to be adjusted.
type Tuning struct {
	// Spawn thresholds. A focus agent spawns when its confidence is strictly greater.
	SecurityThreshold    float64 `yaml:"security_threshold"`
	MVPThreshold         float64 `yaml:"mvp_threshold"`
	PerformanceThreshold float64 `yaml:"performance_threshold"`

	// Confidence weights.
	PathPatternWeight float64 `yaml:"path_pattern_weight"`
	KeywordWeight     float64 `yaml:"keyword_weight"`
	KeywordCap        float64 `yaml:"keyword_cap"`
	MVPKeywordWeight  float64 `yaml:"mvp_keyword_weight"`
	ErrorWeight       float64 `yaml:"error_weight"`
	FrontendWeight    float64 `yaml:"frontend_weight"`
	APIWeight         float64 `yaml:"api_weight"`

	Complexity ComplexityWeights `yaml:"complexity"`

	// Learning.
	SimilarityThreshold float64        `yaml:"similarity_threshold"`
	MaxRecommendations  int            `yaml:"max_recommendations"`
	LogCapacity         int            `yaml:"log_capacity"`
	InsightWindow       int            `yaml:"insight_window"`
	OutcomeWeights      OutcomeWeights `yaml:"outcome_weights"`
}

// ComplexityWeights are the coefficients of the complexity score.
type ComplexityWeights struct {
	File        float64 `yaml:"file"`
	Word        float64 `yaml:"word"`
	FileType    float64 `yaml:"file_type"`
	Security    float64 `yaml:"security"`
	Performance float64 `yaml:"performance"`
}

// OutcomeWeights weight historical log entries by their outcome during recommendation.
type OutcomeWeights struct {
	Success float64 `yaml:"success"`
	Partial float64 `yaml:"partial"`
	Failure float64 `yaml:"failure"`
}

// Weight returns the weight for an outcome, 0 for unknown outcomes.
func (w OutcomeWeights) Weight(o Outcome) float64 {
	switch o {
	case OutcomeSuccess:
		return w.Success
	case OutcomePartial:
		return w.Partial
	case OutcomeFailure:
		return w.Failure
	}
	return 0
}

// DefaultTuning returns the stock heuristic constants.
func DefaultTuning() Tuning {
	return Tuning{
		SecurityThreshold:    0.3,
		MVPThreshold:         0.2,
		PerformanceThreshold: 0.3,

		PathPatternWeight: 0.4,
		KeywordWeight:     0.1,
		KeywordCap:        0.6,
		MVPKeywordWeight:  0.3,
		ErrorWeight:       0.2,
		FrontendWeight:    0.2,
		APIWeight:         0.1,

		Complexity: ComplexityWeights{
			File:        2,
			Word:        0.5,
			FileType:    3,
			Security:    5,
			Performance: 3,
		},

		SimilarityThreshold: 0.5,
		MaxRecommendations:  3,
		LogCapacity:         100,
		InsightWindow:       20,
		OutcomeWeights: OutcomeWeights{
			Success: 1.0,
			Partial: 0.5,
			Failure: 0.0,
		},
	}
}

// LoadTuning reads a YAML tuning file. Keys absent from the file keep their defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tuning %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// Validate checks that probabilities lie in [0, 1] and weights are non-negative.
// Returns *ValidationError for the first invalid field.
func (t Tuning) Validate() error {
	unit := []struct {
		field string
		v     float64
	}{
		{"security_threshold", t.SecurityThreshold},
		{"mvp_threshold", t.MVPThreshold},
		{"performance_threshold", t.PerformanceThreshold},
		{"keyword_cap", t.KeywordCap},
		{"similarity_threshold", t.SimilarityThreshold},
		{"outcome_weights.success", t.OutcomeWeights.Success},
		{"outcome_weights.partial", t.OutcomeWeights.Partial},
		{"outcome_weights.failure", t.OutcomeWeights.Failure},
	}
	for _, u := range unit {
		if u.v < 0 || u.v > 1 {
			return &ValidationError{Field: u.field, Message: "must be between 0 and 1"}
		}
	}

	nonNeg := []struct {
		field string
		v     float64
	}{
		{"path_pattern_weight", t.PathPatternWeight},
		{"keyword_weight", t.KeywordWeight},
		{"mvp_keyword_weight", t.MVPKeywordWeight},
		{"error_weight", t.ErrorWeight},
		{"frontend_weight", t.FrontendWeight},
		{"api_weight", t.APIWeight},
		{"complexity.file", t.Complexity.File},
		{"complexity.word", t.Complexity.Word},
		{"complexity.file_type", t.Complexity.FileType},
		{"complexity.security", t.Complexity.Security},
		{"complexity.performance", t.Complexity.Performance},
	}
	for _, n := range nonNeg {
		if n.v < 0 {
			return &ValidationError{Field: n.field, Message: "must be non-negative"}
		}
	}

	if t.MaxRecommendations < 1 {
		return &ValidationError{Field: "max_recommendations", Message: "must be at least 1"}
	}
	if t.LogCapacity < 1 {
		return &ValidationError{Field: "log_capacity", Message: "must be at least 1"}
	}
	if t.InsightWindow < 1 {
		return &ValidationError{Field: "insight_window", Message: "must be at least 1"}
	}
	return nil
}
