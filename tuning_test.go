package dialectic_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperengineering/dialectic"
)

func TestDefaultTuning_Valid(t *testing.T) {
	if err := dialectic.DefaultTuning().Validate(); err != nil {
		t.Errorf("DefaultTuning().Validate() error = %v", err)
	}
}

func TestTuning_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*dialectic.Tuning)
		wantField string
	}{
		{"threshold above one", func(tu *dialectic.Tuning) { tu.SecurityThreshold = 1.5 }, "security_threshold"},
		{"negative similarity", func(tu *dialectic.Tuning) { tu.SimilarityThreshold = -0.1 }, "similarity_threshold"},
		{"outcome weight", func(tu *dialectic.Tuning) { tu.OutcomeWeights.Partial = 2 }, "outcome_weights.partial"},
		{"negative weight", func(tu *dialectic.Tuning) { tu.APIWeight = -1 }, "api_weight"},
		{"negative complexity", func(tu *dialectic.Tuning) { tu.Complexity.Word = -0.5 }, "complexity.word"},
		{"zero recommendations", func(tu *dialectic.Tuning) { tu.MaxRecommendations = 0 }, "max_recommendations"},
		{"zero log capacity", func(tu *dialectic.Tuning) { tu.LogCapacity = 0 }, "log_capacity"},
		{"zero insight window", func(tu *dialectic.Tuning) { tu.InsightWindow = 0 }, "insight_window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tu := dialectic.DefaultTuning()
			tt.mutate(&tu)

			var ve *dialectic.ValidationError
			if err := tu.Validate(); !errors.As(err, &ve) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestLoadTuning_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	yaml := `
security_threshold: 0.5
max_recommendations: 5
complexity:
  word: 1
outcome_weights:
  partial: 0.25
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	tu, err := dialectic.LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning() error = %v", err)
	}

	def := dialectic.DefaultTuning()
	if tu.SecurityThreshold != 0.5 || tu.MaxRecommendations != 5 || tu.Complexity.Word != 1 || tu.OutcomeWeights.Partial != 0.25 {
		t.Errorf("overrides not applied: %+v", tu)
	}
	if tu.MVPThreshold != def.MVPThreshold || tu.Complexity.File != def.Complexity.File || tu.OutcomeWeights.Success != def.OutcomeWeights.Success {
		t.Errorf("defaults lost: %+v", tu)
	}
}

func TestLoadTuning_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := dialectic.LoadTuning(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadTuning(missing) error = nil")
	}

	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("security_threshold: [1, 2"), 0o644)
	if _, err := dialectic.LoadTuning(bad); err == nil {
		t.Error("LoadTuning(malformed) error = nil")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	_ = os.WriteFile(invalid, []byte("keyword_cap: 3"), 0o644)
	var ve *dialectic.ValidationError
	if _, err := dialectic.LoadTuning(invalid); !errors.As(err, &ve) || ve.Field != "keyword_cap" {
		t.Errorf("LoadTuning(invalid) error = %v, want keyword_cap validation error", err)
	}
}

func TestOutcomeWeights_Weight(t *testing.T) {
	w := dialectic.DefaultTuning().OutcomeWeights
	tests := []struct {
		o    dialectic.Outcome
		want float64
	}{
		{dialectic.OutcomeSuccess, 1.0},
		{dialectic.OutcomePartial, 0.5},
		{dialectic.OutcomeFailure, 0},
		{dialectic.Outcome("unknown"), 0},
	}
	for _, tt := range tests {
		if got := w.Weight(tt.o); got != tt.want {
			t.Errorf("Weight(%q) = %v, want %v", tt.o, got, tt.want)
		}
	}
}
