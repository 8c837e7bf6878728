package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const Remote = "origin"

// Identity is the author used for commits.
type Identity struct {
	Name  string
	Email string
}

// Git wraps the git commands luce needs for one working tree.
type Git struct {
	runner   Runner
	dir      string
	identity Identity
	log      zerolog.Logger
}

func NewGit(runner Runner, dir string, identity Identity, log zerolog.Logger) *Git {
	return &Git{runner: runner, dir: dir, identity: identity, log: log}
}

// Dir is the working tree root.
func (g *Git) Dir() string { return g.dir }

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	return g.runner.Run(ctx, g.dir, "git", args...)
}

// ListFiles returns tracked paths, filtered by pathspecs when given.
func (g *Git) ListFiles(ctx context.Context, pathspecs []string) ([]string, error) {
	args := []string{"ls-files"}
	if len(pathspecs) > 0 {
		args = append(args, "--")
		args = append(args, pathspecs...)
	}
	out, err := g.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return splitLines(out), nil
}

func (g *Git) Fetch(ctx context.Context, branch string) error {
	if _, err := g.run(ctx, "fetch", Remote, branch); err != nil {
		return fmt.Errorf("fetch %s: %w", branch, err)
	}
	return nil
}

// CheckoutFrom creates or resets branch to start and checks it out. Local
// edits left behind by an earlier failed run are discarded.
func (g *Git) CheckoutFrom(ctx context.Context, branch, start string) error {
	if _, err := g.run(ctx, "checkout", "-f", "-B", branch, start); err != nil {
		return fmt.Errorf("checkout %s from %s: %w", branch, start, err)
	}
	return nil
}

func (g *Git) ResetHard(ctx context.Context, ref string) error {
	if _, err := g.run(ctx, "reset", "--hard", ref); err != nil {
		return fmt.Errorf("reset to %s: %w", ref, err)
	}
	return nil
}

// Apply runs git apply with the given flags against patchPath.
func (g *Git) Apply(ctx context.Context, patchPath string, flags ...string) (string, error) {
	args := append([]string{"apply"}, flags...)
	args = append(args, patchPath)
	return g.run(ctx, args...)
}

// Restore discards working tree and index changes to paths. Paths unknown to
// HEAD are removed from disk.
func (g *Git) Restore(ctx context.Context, paths []string) {
	for _, p := range paths {
		if _, err := g.run(ctx, "cat-file", "-e", "HEAD:"+p); err != nil {
			_, _ = g.run(ctx, "rm", "--cached", "-q", "--ignore-unmatch", "--", p)
			if rmErr := os.Remove(filepath.Join(g.dir, p)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				g.log.Warn().Err(rmErr).Str("path", p).Msg("removing created file failed")
			}
			continue
		}
		if _, err := g.run(ctx, "checkout", "HEAD", "--", p); err != nil {
			g.log.Warn().Err(err).Str("path", p).Msg("restoring path failed")
		}
	}
}

func (g *Git) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := g.run(ctx, args...); err != nil {
		return fmt.Errorf("stage paths: %w", err)
	}
	return nil
}

// StagedPaths lists paths with staged changes.
func (g *Git) StagedPaths(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, fmt.Errorf("list staged paths: %w", err)
	}
	return splitLines(out), nil
}

// Commit records the index as the bot identity.
func (g *Git) Commit(ctx context.Context, message string) error {
	_, err := g.run(ctx,
		"-c", "user.name="+g.identity.Name,
		"-c", "user.email="+g.identity.Email,
		"commit", "-m", message,
	)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (g *Git) Push(ctx context.Context, branch string) error {
	if _, err := g.run(ctx, "push", "--set-upstream", Remote, branch); err != nil {
		return fmt.Errorf("push %s: %w", branch, err)
	}
	return nil
}

// LastCommitMessage returns the full message of HEAD.
func (g *Git) LastCommitMessage(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "log", "-1", "--format=%B")
	if err != nil {
		return "", fmt.Errorf("read last commit: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (g *Git) HeadSHA(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func splitLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
