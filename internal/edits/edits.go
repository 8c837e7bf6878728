// Package edits applies whole-file replacements, the fallback used when a
// generated diff cannot be applied.
package edits

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	intm "github.com/scottymoll/luce/internal"
	"github.com/scottymoll/luce/internal/allowset"
)

// ErrNoEditsApplied is returned when no directive resulted in a write.
var ErrNoEditsApplied = errors.New("no edits applied")

// Disposition is what happened to one directive.
type Disposition string

const (
	Written   Disposition = "written"
	Identical Disposition = "identical"
	Rejected  Disposition = "rejected"
)

// Report describes the handling of one directive.
type Report struct {
	Path        string
	Disposition Disposition
	Reason      string
}

// Applicator writes directives under root, restricted to an allow-set.
type Applicator struct {
	root  string
	allow *allowset.Set
	log   zerolog.Logger
}

func New(root string, allow *allowset.Set, log zerolog.Logger) *Applicator {
	return &Applicator{root: root, allow: allow, log: log}
}

// Apply writes every acceptable directive and returns the written paths in
// directive order. It fails with ErrNoEditsApplied when nothing was written.
func (a *Applicator) Apply(directives []intm.EditDirective) ([]string, error) {
	written, reports, err := a.apply(directives)
	for _, r := range reports {
		ev := a.log.Debug()
		if r.Disposition == Rejected {
			ev = a.log.Warn()
		}
		ev.Str("path", r.Path).Str("disposition", string(r.Disposition)).Str("reason", r.Reason).Msg("edit directive")
	}
	if err != nil {
		return written, err
	}
	if len(written) == 0 {
		return nil, ErrNoEditsApplied
	}
	return written, nil
}

func (a *Applicator) apply(directives []intm.EditDirective) ([]string, []Report, error) {
	var (
		written []string
		reports []Report
		seen    = map[string]bool{}
	)
	for _, d := range directives {
		rel, reason := a.validate(d)
		if reason != "" {
			reports = append(reports, Report{Path: d.Path, Disposition: Rejected, Reason: reason})
			continue
		}
		abs := filepath.Join(a.root, filepath.FromSlash(rel))

		prev, err := os.ReadFile(abs)
		if err == nil && bytes.Equal(prev, []byte(d.Content)) {
			reports = append(reports, Report{Path: rel, Disposition: Identical})
			continue
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return written, reports, fmt.Errorf("reading %s: %w", rel, err)
		}

		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return written, reports, fmt.Errorf("creating parent of %s: %w", rel, err)
		}
		if err := os.WriteFile(abs, []byte(d.Content), 0o644); err != nil {
			return written, reports, fmt.Errorf("writing %s: %w", rel, err)
		}
		reports = append(reports, Report{Path: rel, Disposition: Written})
		if !seen[rel] {
			seen[rel] = true
			written = append(written, rel)
		}
	}
	return written, reports, nil
}

func (a *Applicator) validate(d intm.EditDirective) (string, string) {
	if strings.TrimSpace(d.Path) == "" {
		return "", "empty path"
	}
	rel, ok := allowset.Clean(d.Path)
	if !ok {
		return "", "path escapes repository"
	}
	if !utf8.ValidString(d.Content) {
		return "", "content is not text"
	}
	if strings.HasPrefix(strings.TrimLeft(d.Content, " \t\r\n"), "diff --git ") {
		return "", "content is a diff, not a file"
	}
	if !a.allow.Permits(rel) {
		return "", "outside allow-set"
	}
	return rel, ""
}
