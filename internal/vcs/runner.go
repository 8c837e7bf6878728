// Package vcs drives the git executable for luce's working-tree operations.
package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Runner executes a command in dir and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// CommandError is returned when a command exits unsuccessfully.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", strings.Join(e.Args, " "), e.Err, out)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs real processes.
type ExecRunner struct {
	Log zerolog.Logger
}

func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	r.Log.Debug().
		Str("cmd", name+" "+strings.Join(args, " ")).
		Dur("took", time.Since(start)).
		Msg("command finished")
	if err != nil {
		r.Log.Debug().
			Err(err).
			Str("output", string(out)).
			Msg("command failed")
		return string(out), &CommandError{Args: append([]string{name}, args...), Output: string(out), Err: err}
	}
	return string(out), nil
}
