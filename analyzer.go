package dialectic

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Keyword sets matched as substrings against lower-cased text.
var (
	securityKeywords = []string{
		"auth", "password", "token", "security", "encrypt", "decrypt",
		"permission", "login", "session", "jwt", "oauth", "ssl", "tls",
		"cors", "csrf", "xss", "sql", "injection", "hash", "salt",
		"private", "secret", "key", "certificate", "signature",
	}

	mvpKeywords = []string{
		"mvp", "prototype", "quick", "rapid", "hackathon", "demo",
		"poc", "proof of concept", "minimal", "basic", "simple",
		"temporary", "placeholder", "mock", "stub",
	}

	performanceKeywords = []string{
		"optimize", "performance", "speed", "cache", "async", "await",
		"slow", "latency", "bottleneck", "efficiency", "memory",
		"cpu", "load", "scale", "concurrent", "parallel", "thread",
		"queue", "buffer", "pool", "connection",
	}

	documentationKeywords = []string{
		"readme", "docs", "documentation", "guide", "tutorial",
		"api", "spec", "schema", "comment", "explain", "describe",
	}

	docExtensions = []string{".md", ".rst", ".txt", ".doc", ".docx"}
)

// Path pattern sets, matched against the space-joined lower-cased paths.
var (
	securityPaths    = compilePatterns("auth", "security", "login", "jwt", "middleware", "guard", "permission")
	performancePaths = compilePatterns("optimize", "cache", "async", "queue", "pool", "connection", "database")
	apiPaths         = compilePatterns("api", "endpoint", "route", "controller", "handler", "service")
	frontendPaths    = compilePatterns("component", "ui", "view", "template", "css", "scss", "js", "ts")
)

func compilePatterns(words ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(regexp.QuoteMeta(w))
	}
	return out
}

// fileRule maps suffixes to a category. Rules are tried in order.
type fileRule struct {
	category FileCategory
	suffixes []string
}

var fileRules = []fileRule{
	{FileSource, []string{".py", ".pyi", ".go", ".rb", ".java", ".rs"}},
	{FileScript, []string{".js", ".jsx"}},
	{FileTypedScript, []string{".ts", ".tsx"}},
	{FileMarkup, []string{".html", ".htm"}},
	{FileStylesheet, []string{".css", ".scss", ".sass"}},
	{FileMarkdown, []string{".md", ".rst", ".txt"}},
	{FileConfig, []string{".json", ".yaml", ".yml", ".toml", ".ini", ".cfg"}},
}

// ClassifyFile returns the category for a path based on its lower-cased suffix.
func ClassifyFile(path string) FileCategory {
	lower := strings.ToLower(path)
	for _, r := range fileRules {
		for _, s := range r.suffixes {
			if strings.HasSuffix(lower, s) {
				return r.category
			}
		}
	}
	return FileOther
}

// Analyzer classifies events into a ContextAnalysis. It holds no mutable
// state and is safe for concurrent use.
type Analyzer struct {
	tuning Tuning
}

// NewAnalyzer creates an Analyzer using the given tuning.
func NewAnalyzer(t Tuning) *Analyzer {
	return &Analyzer{tuning: t}
}

// Analyze classifies an event. It never fails; absent fields are treated as empty.
func (a *Analyzer) Analyze(ev Event) ContextAnalysis {
	files := append([]string{}, ev.Files...)
	pathText := strings.ToLower(strings.Join(files, " "))
	msgText := strings.ToLower(ev.Message)
	allText := pathText + " " + msgText

	secPatterns := countPatterns(securityPaths, pathText)
	perfPatterns := countPatterns(performancePaths, pathText)
	secKeywords := countKeywords(securityKeywords, allText)
	perfKeywords := countKeywords(performanceKeywords, allText)
	mvpMatches := countKeywords(mvpKeywords, msgText)

	ca := ContextAnalysis{
		SecurityFocus:      secPatterns > 0 || secKeywords > 0,
		MVPFocus:           mvpMatches > 0,
		PerformanceFocus:   perfPatterns > 0 || perfKeywords > 0,
		DocumentationFocus: hasDocFile(files) || countKeywords(documentationKeywords, allText) > 0,
		ErrorFocus:         len(ev.Errors) > 0,

		Confidence: Confidence{
			Security:    a.focusConfidence(secPatterns, secKeywords),
			MVP:         clamp01(float64(mvpMatches) * a.tuning.MVPKeywordWeight),
			Performance: a.focusConfidence(perfPatterns, perfKeywords),
		},

		FileTypes:        fileHistogram(files),
		FilesChanged:     files,
		CommitMessage:    ev.Message,
		ErrorCount:       len(ev.Errors),
		ErrorOccurrences: errorOccurrences(ev.Errors),
	}
	ca.ComplexityScore = a.complexity(ca, ev.Message)
	return ca
}

func (a *Analyzer) focusConfidence(patterns, keywords int) float64 {
	c := float64(patterns) * a.tuning.PathPatternWeight
	c += math.Min(float64(keywords)*a.tuning.KeywordWeight, a.tuning.KeywordCap)
	return clamp01(c)
}

func (a *Analyzer) complexity(ca ContextAnalysis, message string) int {
	w := a.tuning.Complexity
	distinct := 0
	for _, n := range ca.FileTypes {
		if n > 0 {
			distinct++
		}
	}
	score := w.File*float64(len(ca.FilesChanged)) +
		w.Word*float64(len(strings.Fields(message))) +
		w.FileType*float64(distinct)
	if ca.SecurityFocus {
		score += w.Security
	}
	if ca.PerformanceFocus {
		score += w.Performance
	}
	return int(math.Floor(score))
}

// Summary renders a one-line human summary of an analysis.
func (a *Analyzer) Summary(ca ContextAnalysis) string {
	var focuses []string
	if ca.SecurityFocus {
		focuses = append(focuses, fmt.Sprintf("Security (%.1f%%)", ca.Confidence.Security*100))
	}
	if ca.MVPFocus {
		focuses = append(focuses, fmt.Sprintf("MVP (%.1f%%)", ca.Confidence.MVP*100))
	}
	if ca.PerformanceFocus {
		focuses = append(focuses, fmt.Sprintf("Performance (%.1f%%)", ca.Confidence.Performance*100))
	}
	if ca.DocumentationFocus {
		focuses = append(focuses, "Documentation")
	}
	if ca.ErrorFocus {
		focuses = append(focuses, fmt.Sprintf("Errors (%d)", ca.ErrorCount))
	}
	if len(focuses) == 0 {
		focuses = append(focuses, "General")
	}
	return fmt.Sprintf("%s | Complexity: %s (%d)", strings.Join(focuses, ", "), ComplexityBand(ca.ComplexityScore), ca.ComplexityScore)
}

// ComplexityBand names the band a complexity score falls into.
func ComplexityBand(score int) string {
	switch {
	case score < 5:
		return "Low"
	case score < 15:
		return "Medium"
	default:
		return "High"
	}
}

func countPatterns(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

func countKeywords(keywords []string, text string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			n++
		}
	}
	return n
}

func hasDocFile(files []string) bool {
	for _, f := range files {
		lower := strings.ToLower(f)
		for _, ext := range docExtensions {
			if strings.HasSuffix(lower, ext) {
				return true
			}
		}
	}
	return false
}

func fileHistogram(files []string) map[FileCategory]int {
	hist := make(map[FileCategory]int, len(fileRules)+1)
	for _, c := range FileCategories() {
		hist[c] = 0
	}
	for _, f := range files {
		hist[ClassifyFile(f)]++
	}
	return hist
}

func errorOccurrences(errs []ErrorRecord) int {
	n := 0
	for _, e := range errs {
		if e.Count > 0 {
			n += e.Count
		} else {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}
