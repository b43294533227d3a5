package docs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hyperengineering/dialectic"
)

// Options configures a Projector.
type Options struct {
	// Root is the directory targets are resolved against. Defaults to the
	// working directory.
	Root string

	// DryRun renders and reports updates without writing anything.
	DryRun bool

	Renderer Renderer
	Logger   *dialectic.Logger
	Now      func() time.Time
}

// Page is one rendered section and the file it belongs to.
type Page struct {
	// File is the slash-separated path relative to the root.
	File    string
	Content string
	Exists  bool
}

// Projector writes strategy sections into documentation targets.
// It implements dialectic.Projector.
type Projector struct {
	root     string
	dryRun   bool
	renderer Renderer
	logger   *dialectic.Logger
	now      func() time.Time

	mu sync.Mutex
}

var _ dialectic.Projector = (*Projector)(nil)

// ErrUnsafeTarget is returned for targets that would escape the root.
var ErrUnsafeTarget = errors.New("documentation target escapes root")

// New creates a Projector.
func New(opts Options) (*Projector, error) {
	root := opts.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve docs root: %w", err)
		}
		root = wd
	}
	r := opts.Renderer
	if r == nil {
		er, err := NewRenderer()
		if err != nil {
			return nil, err
		}
		r = er
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Projector{
		root:     root,
		dryRun:   opts.DryRun,
		renderer: r,
		logger:   opts.Logger,
		now:      now,
	}, nil
}

// Root returns the directory targets are resolved against.
func (p *Projector) Root() string { return p.root }

// DryRun reports whether the projector skips writes.
func (p *Projector) DryRun() bool { return p.dryRun }

// Render produces one page per documentation target of spec without
// touching disk. Targets that cannot be resolved are reported in the error
// and skipped.
func (p *Projector) Render(spec dialectic.AgentSpec, ca dialectic.ContextAnalysis) ([]Page, error) {
	data := NewSectionData(spec, ca, p.now().Format(TimestampLayout))
	content, err := p.renderer.Render(dialectic.StrategyFor(spec.FocusArea), data)
	if err != nil {
		return nil, err
	}

	var (
		pages []Page
		errs  []error
	)
	for _, target := range spec.DocumentationTargets {
		rel, err := ResolveTarget(target, spec.AgentType)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, statErr := os.Stat(filepath.Join(p.root, filepath.FromSlash(rel)))
		pages = append(pages, Page{File: rel, Content: content, Exists: statErr == nil})
	}
	return pages, errors.Join(errs...)
}

// Project renders spec's section and appends it to each target, creating
// files and directories as needed. Failed targets are logged and skipped;
// the returned error joins their causes.
func (p *Projector) Project(ctx context.Context, spec dialectic.AgentSpec, ca dialectic.ContextAnalysis) ([]dialectic.DocumentationUpdate, error) {
	pages, renderErr := p.Render(spec, ca)
	errs := []error{renderErr}

	updates := make([]dialectic.DocumentationUpdate, 0, len(pages))
	for _, pg := range pages {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		kind := dialectic.UpdateCreated
		size := len(Title(pg.File)) + len(pg.Content)
		if pg.Exists {
			kind = dialectic.UpdateUpdated
			size = len(pg.Content)
		}
		if !p.dryRun {
			var err error
			kind, size, err = p.write(pg)
			if err != nil {
				p.logger.Warn("documentation update failed", logrus.Fields{
					"agent":  spec.AgentType,
					"target": pg.File,
					"error":  err.Error(),
				})
				errs = append(errs, fmt.Errorf("%s: %w", pg.File, err))
				continue
			}
		}

		updates = append(updates, dialectic.DocumentationUpdate{
			File:      pg.File,
			Type:      kind,
			Timestamp: p.now(),
			Agent:     spec.AgentType,
			Size:      size,
		})
		p.logger.Debug("documentation updated", logrus.Fields{
			"agent":   spec.AgentType,
			"target":  pg.File,
			"type":    kind,
			"dry_run": p.dryRun,
		})
	}
	return updates, errors.Join(errs...)
}

// write appends to an existing file or creates it with a title heading. It
// returns the number of bytes written.
func (p *Projector) write(pg Page) (string, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	full := filepath.Join(p.root, filepath.FromSlash(pg.File))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", 0, err
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_APPEND, 0)
	if err == nil {
		defer f.Close()
		n, err := f.WriteString(pg.Content)
		if err != nil {
			return "", n, err
		}
		return dialectic.UpdateUpdated, n, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", 0, err
	}

	f, err = os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	n, err := f.WriteString(Title(pg.File) + pg.Content)
	if err != nil {
		return "", n, err
	}
	return dialectic.UpdateCreated, n, nil
}

// ResolveTarget turns a documentation target into a clean slash-separated
// path relative to the root. Targets ending in "/" name a directory and
// resolve to "<dir>/<agentType>.md".
func ResolveTarget(target, agentType string) (string, error) {
	t := strings.TrimSpace(strings.ReplaceAll(target, "\\", "/"))
	if t == "" {
		return "", fmt.Errorf("%w: empty target", ErrUnsafeTarget)
	}
	if strings.HasSuffix(t, "/") {
		if agentType == "" {
			agentType = "agent"
		}
		t = path.Join(t, agentType+".md")
	}
	clean := path.Clean(t)
	if !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeTarget, target)
	}
	return clean, nil
}

// Title is the heading written at the top of a new file, derived from its name.
func Title(file string) string {
	stem := strings.TrimSuffix(path.Base(file), path.Ext(file))
	return "# " + DisplayName(stem) + "\n\n"
}
