// Package patch applies model-generated unified diffs to the working tree
// using an ordered list of git apply strategies.
package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/rs/zerolog"

	"github.com/scottymoll/luce/internal/allowset"
	"github.com/scottymoll/luce/internal/vcs"
)

// Strategy is one way of invoking git apply.
type Strategy int

const (
	StrictRoot Strategy = iota
	StripOne
	ThreeWay
)

// Strategies is the fixed order in which strategies are attempted.
var Strategies = []Strategy{StrictRoot, StripOne, ThreeWay}

func (s Strategy) String() string {
	switch s {
	case StrictRoot:
		return "strict-root"
	case StripOne:
		return "strip-one"
	case ThreeWay:
		return "three-way"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Flags returns the git apply flags for s.
func (s Strategy) Flags() []string {
	switch s {
	case StrictRoot:
		return []string{"-p0", "--reject", "--whitespace=fix"}
	case StripOne:
		return []string{"-p1", "--reject", "--whitespace=fix"}
	default:
		return []string{"--3way", "--whitespace=fix"}
	}
}

// Attempt records the result of one strategy.
type Attempt struct {
	Strategy Strategy
	Output   string
	Err      error
}

// Outcome describes a successful application.
type Outcome struct {
	Strategy Strategy
	Attempts []Attempt
	Paths    []string
}

// PatchApplyError is returned once every strategy has failed, or when the
// diff is unusable before any strategy runs.
type PatchApplyError struct {
	Reason   string
	Attempts []Attempt
}

func (e *PatchApplyError) Error() string {
	if len(e.Attempts) == 0 {
		return "patch not applied: " + e.Reason
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("patch failed after %d strategies, last (%s): %v", len(e.Attempts), last.Strategy, last.Err)
}

var errRejects = errors.New("hunks rejected")

// Applicator applies diffs inside one git working tree.
type Applicator struct {
	git      *vcs.Git
	allow    *allowset.Set
	artifact string
	log      zerolog.Logger
}

// New returns an Applicator writing the transient patch file to artifact,
// relative to the working tree unless absolute.
func New(git *vcs.Git, allow *allowset.Set, artifact string, log zerolog.Logger) *Applicator {
	if !filepath.IsAbs(artifact) {
		artifact = filepath.Join(git.Dir(), artifact)
	}
	return &Applicator{git: git, allow: allow, artifact: artifact, log: log}
}

// Apply tries each strategy in order against a normalized diff. The patch
// file is left on disk for inspection.
func (a *Applicator) Apply(ctx context.Context, diff string) (Outcome, error) {
	files, _, err := gitdiff.Parse(strings.NewReader(diff))
	if err != nil {
		return Outcome{}, &PatchApplyError{Reason: fmt.Sprintf("unparseable diff: %v", err)}
	}
	if len(files) == 0 {
		return Outcome{}, &PatchApplyError{Reason: "diff touches no files"}
	}

	if err := os.MkdirAll(filepath.Dir(a.artifact), 0o755); err != nil {
		return Outcome{}, fmt.Errorf("creating artifact dir: %w", err)
	}
	if err := os.WriteFile(a.artifact, []byte(diff), 0o644); err != nil {
		return Outcome{}, fmt.Errorf("writing patch artifact: %w", err)
	}

	var attempts []Attempt
	for _, s := range Strategies {
		paths := touchedPaths(files, s)
		attempt := a.try(ctx, s, paths)
		attempts = append(attempts, attempt)
		if attempt.Err == nil {
			a.log.Info().
				Str("strategy", s.String()).
				Int("attempts", len(attempts)).
				Strs("paths", paths).
				Msg("patch applied")
			return Outcome{Strategy: s, Attempts: attempts, Paths: paths}, nil
		}
		a.log.Debug().
			Err(attempt.Err).
			Str("strategy", s.String()).
			Str("output", attempt.Output).
			Msg("patch strategy failed")
	}
	return Outcome{}, &PatchApplyError{Reason: "all strategies failed", Attempts: attempts}
}

// try runs one strategy. paths are the files s would write, so the allow-set
// check happens before git runs. For a normalized diff StrictRoot maps every
// file under a/ or b/, outside any source allow-set, so that attempt is refused
// without invoking git and the ladder moves on to StripOne.
func (a *Applicator) try(ctx context.Context, s Strategy, paths []string) Attempt {
	for _, p := range paths {
		if !a.allow.Permits(p) {
			return Attempt{Strategy: s, Err: fmt.Errorf("path %q outside allow-set", p)}
		}
	}
	a.removeRejects(paths)

	out, err := a.git.Apply(ctx, a.artifact, s.Flags()...)
	if err == nil {
		if rejects := a.removeRejects(paths); len(rejects) > 0 {
			err = fmt.Errorf("%w: %s", errRejects, strings.Join(rejects, ", "))
		}
	}
	if err != nil {
		a.removeRejects(paths)
		a.git.Restore(ctx, paths)
		return Attempt{Strategy: s, Output: out, Err: err}
	}
	return Attempt{Strategy: s, Output: out}
}

// removeRejects deletes .rej sidecars next to paths and returns those found.
func (a *Applicator) removeRejects(paths []string) []string {
	var found []string
	for _, p := range paths {
		rej := filepath.Join(a.git.Dir(), p+".rej")
		if _, err := os.Stat(rej); err == nil {
			found = append(found, p+".rej")
			if err := os.Remove(rej); err != nil {
				a.log.Warn().Err(err).Str("path", rej).Msg("removing reject file failed")
			}
		}
	}
	return found
}

// touchedPaths lists the working tree paths s would write. go-gitdiff strips
// one leading component from git headers, so -p0 sees them with it restored.
func touchedPaths(files []*gitdiff.File, s Strategy) []string {
	set := map[string]bool{}
	add := func(prefix, name string) {
		if name == "" || name == "/dev/null" {
			return
		}
		if s == StrictRoot {
			name = prefix + name
		}
		set[name] = true
	}
	for _, f := range files {
		if !f.IsDelete {
			add("b/", f.NewName)
		}
		if f.IsDelete || f.IsRename {
			add("a/", f.OldName)
		}
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
