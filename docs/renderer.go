// Package docs projects agent specs onto a tree of markdown documentation.
//
// Each agent's focus area selects a strategy template; the rendered section
// is appended to every documentation target the agent names.
package docs

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hyperengineering/dialectic"
)

//go:embed templates/*.md.tmpl
var templateFS embed.FS

// TimestampLayout formats the section heading timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// SectionData is the input to every strategy template.
type SectionData struct {
	Timestamp  string
	Agent      string
	AgentType  string
	Files      string
	Message    string
	Confidence dialectic.Confidence
	ErrorCount int
}

// NewSectionData builds template input for spec from an analysis.
func NewSectionData(spec dialectic.AgentSpec, ca dialectic.ContextAnalysis, timestamp string) SectionData {
	msg := ca.CommitMessage
	if msg == "" {
		msg = "No message"
	}
	return SectionData{
		Timestamp:  timestamp,
		Agent:      DisplayName(spec.AgentType),
		AgentType:  spec.AgentType,
		Files:      strings.Join(ca.FilesChanged, ", "),
		Message:    msg,
		Confidence: ca.Confidence,
		ErrorCount: ca.ErrorCount,
	}
}

// Renderer renders a strategy section.
type Renderer interface {
	Render(strategy string, data SectionData) (string, error)
}

// EmbedRenderer renders the templates compiled into the binary.
type EmbedRenderer struct {
	templates *template.Template
}

var _ Renderer = (*EmbedRenderer)(nil)

var funcs = template.FuncMap{
	"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
}

// NewRenderer parses the embedded strategy templates.
func NewRenderer() (*EmbedRenderer, error) {
	t, err := template.New("docs").Funcs(funcs).ParseFS(templateFS, "templates/*.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	for _, s := range dialectic.Strategies() {
		if t.Lookup(templateName(s)) == nil {
			return nil, fmt.Errorf("missing template for strategy %q", s)
		}
	}
	return &EmbedRenderer{templates: t}, nil
}

// Render executes the template for strategy.
func (r *EmbedRenderer) Render(strategy string, data SectionData) (string, error) {
	t := r.templates.Lookup(templateName(strategy))
	if t == nil {
		return "", fmt.Errorf("unknown strategy %q", strategy)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", strategy, err)
	}
	return b.String(), nil
}

func templateName(strategy string) string {
	return strategy + ".md.tmpl"
}

// DisplayName turns an identifier like "security_specialist" into "Security Specialist".
func DisplayName(id string) string {
	// A Caser is stateful; one per call.
	return cases.Title(language.English).String(strings.ReplaceAll(id, "_", " "))
}
