package dialectic_test

import (
	"math"
	"testing"

	"github.com/hyperengineering/dialectic"
)

func analyze(ev dialectic.Event) dialectic.ContextAnalysis {
	return dialectic.NewAnalyzer(dialectic.DefaultTuning()).Analyze(ev)
}

func TestAnalyze_SecurityChange(t *testing.T) {
	ca := analyze(dialectic.Event{
		Files:   []string{"src/auth/jwt.py", "src/middleware/auth.py"},
		Message: "Add JWT authentication",
	})

	if !ca.SecurityFocus {
		t.Error("SecurityFocus = false, want true")
	}
	if ca.Confidence.Security != 1.0 {
		t.Errorf("Confidence.Security = %v, want 1.0 (clamped)", ca.Confidence.Security)
	}
	if ca.PerformanceFocus || ca.MVPFocus || ca.DocumentationFocus || ca.ErrorFocus {
		t.Errorf("unexpected focus flags: %+v", ca)
	}
	if ca.FileTypes[dialectic.FileSource] != 2 {
		t.Errorf("FileTypes[source] = %d, want 2", ca.FileTypes[dialectic.FileSource])
	}
	// 2*2 files + 0.5*3 words + 3*1 type + 5 security = 13.5
	if ca.ComplexityScore != 13 {
		t.Errorf("ComplexityScore = %d, want 13", ca.ComplexityScore)
	}
}

func TestAnalyze_EmptyEvent(t *testing.T) {
	ca := analyze(dialectic.Event{})

	if ca.SecurityFocus || ca.MVPFocus || ca.PerformanceFocus || ca.DocumentationFocus || ca.ErrorFocus {
		t.Errorf("empty event has focus flags: %+v", ca)
	}
	if ca.ComplexityScore != 0 {
		t.Errorf("ComplexityScore = %d, want 0", ca.ComplexityScore)
	}
	for _, c := range dialectic.FileCategories() {
		n, ok := ca.FileTypes[c]
		if !ok {
			t.Errorf("FileTypes missing category %q", c)
		}
		if n != 0 {
			t.Errorf("FileTypes[%q] = %d, want 0", c, n)
		}
	}
	if ca.FilesChanged == nil {
		t.Error("FilesChanged = nil, want empty slice")
	}
}

func TestAnalyze_FileTypeCountsSumToFiles(t *testing.T) {
	files := []string{"a.go", "b.JS", "c.tsx", "d.html", "e.scss", "f.md", "g.yaml", "Makefile", "h.py"}
	ca := analyze(dialectic.Event{Files: files})

	total := 0
	for _, n := range ca.FileTypes {
		total += n
	}
	if total != len(files) {
		t.Errorf("sum(FileTypes) = %d, want %d", total, len(files))
	}
	if ca.FileTypes[dialectic.FileSource] != 2 {
		t.Errorf("FileTypes[source] = %d, want 2", ca.FileTypes[dialectic.FileSource])
	}
	if ca.FileTypes[dialectic.FileOther] != 1 {
		t.Errorf("FileTypes[other] = %d, want 1", ca.FileTypes[dialectic.FileOther])
	}
}

func TestAnalyze_ErrorCounts(t *testing.T) {
	ca := analyze(dialectic.Event{
		Errors: []dialectic.ErrorRecord{{Kind: "TimeoutError", Count: 3}, {Kind: "KeyError", Count: 0}},
	})

	if !ca.ErrorFocus {
		t.Error("ErrorFocus = false, want true")
	}
	if ca.ErrorCount != 2 {
		t.Errorf("ErrorCount = %d, want 2", ca.ErrorCount)
	}
	if ca.ErrorOccurrences != 4 {
		t.Errorf("ErrorOccurrences = %d, want 4", ca.ErrorOccurrences)
	}
}

func TestAnalyze_MVPOnlyFromMessage(t *testing.T) {
	ca := analyze(dialectic.Event{Files: []string{"prototype/demo.go"}})
	if ca.MVPFocus {
		t.Error("MVPFocus from file path, want message only")
	}

	ca = analyze(dialectic.Event{Message: "Quick hackathon demo"})
	if !ca.MVPFocus {
		t.Fatal("MVPFocus = false, want true")
	}
	if math.Abs(ca.Confidence.MVP-0.9) > 1e-9 {
		t.Errorf("Confidence.MVP = %v, want 0.9", ca.Confidence.MVP)
	}
}

func TestAnalyze_ConfidenceBounded(t *testing.T) {
	ca := analyze(dialectic.Event{
		Files:   []string{"auth/security/login/jwt/middleware/guard/permission.go", "cache/async/queue/pool/connection/database.go"},
		Message: "optimize performance speed cache async await slow latency token password session mvp prototype quick rapid demo",
	})

	for name, v := range map[string]float64{
		"security":    ca.Confidence.Security,
		"mvp":         ca.Confidence.MVP,
		"performance": ca.Confidence.Performance,
	} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Errorf("Confidence.%s = %v, want within [0, 1]", name, v)
		}
	}
}

func TestAnalyze_TuningWeights(t *testing.T) {
	tuning := dialectic.DefaultTuning()
	tuning.PathPatternWeight = 0
	tuning.KeywordWeight = 0

	ca := dialectic.NewAnalyzer(tuning).Analyze(dialectic.Event{Files: []string{"auth.go"}})
	if !ca.SecurityFocus {
		t.Error("SecurityFocus = false, want true regardless of weights")
	}
	if ca.Confidence.Security != 0 {
		t.Errorf("Confidence.Security = %v, want 0", ca.Confidence.Security)
	}
}

func TestAnalyzer_Summary(t *testing.T) {
	a := dialectic.NewAnalyzer(dialectic.DefaultTuning())

	tests := []struct {
		name string
		ev   dialectic.Event
		want string
	}{
		{
			name: "general",
			ev:   dialectic.Event{},
			want: "General | Complexity: Low (0)",
		},
		{
			name: "security",
			ev:   dialectic.Event{Files: []string{"src/auth/jwt.py", "src/middleware/auth.py"}, Message: "Add JWT authentication"},
			want: "Security (100.0%) | Complexity: Medium (13)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Summary(a.Analyze(tt.ev)); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComplexityBand(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, "Low"},
		{4, "Low"},
		{5, "Medium"},
		{14, "Medium"},
		{15, "High"},
		{80, "High"},
	}
	for _, tt := range tests {
		if got := dialectic.ComplexityBand(tt.score); got != tt.want {
			t.Errorf("ComplexityBand(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestClassifyFile(t *testing.T) {
	tests := []struct {
		path string
		want dialectic.FileCategory
	}{
		{"main.go", dialectic.FileSource},
		{"types.pyi", dialectic.FileSource},
		{"app.JSX", dialectic.FileScript},
		{"view.tsx", dialectic.FileTypedScript},
		{"index.htm", dialectic.FileMarkup},
		{"theme.sass", dialectic.FileStylesheet},
		{"notes.rst", dialectic.FileMarkdown},
		{"setup.cfg", dialectic.FileConfig},
		{"Dockerfile", dialectic.FileOther},
		{"", dialectic.FileOther},
	}
	for _, tt := range tests {
		if got := dialectic.ClassifyFile(tt.path); got != tt.want {
			t.Errorf("ClassifyFile(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestParseErrorRecord(t *testing.T) {
	tests := []struct {
		in      string
		want    dialectic.ErrorRecord
		wantErr bool
	}{
		{in: "TimeoutError", want: dialectic.ErrorRecord{Kind: "TimeoutError", Count: 1}},
		{in: "KeyError:4", want: dialectic.ErrorRecord{Kind: "KeyError", Count: 4}},
		{in: " IOError : 0 ", want: dialectic.ErrorRecord{Kind: "IOError", Count: 0}},
		{in: "", wantErr: true},
		{in: ":3", wantErr: true},
		{in: "X:lots", wantErr: true},
		{in: "X:-1", wantErr: true},
	}
	for _, tt := range tests {
		got, err := dialectic.ParseErrorRecord(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseErrorRecord(%q) error = nil, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseErrorRecord(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseErrorRecord(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
