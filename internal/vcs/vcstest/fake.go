// Package vcstest provides a scripted vcs.Runner for tests.
package vcstest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/scottymoll/luce/internal/vcs"
)

// Call is one recorded invocation.
type Call struct {
	Dir  string
	Name string
	Args []string
}

func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type stub struct {
	out string
	err error
}

// FakeRunner answers commands from a script keyed by "name args...".
// Unscripted commands succeed with empty output unless Strict is set.
type FakeRunner struct {
	Strict bool

	mu     sync.Mutex
	stubs  map[string][]stub
	prefix map[string]stub
	calls  []Call
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{stubs: map[string][]stub{}, prefix: map[string]stub{}}
}

// Script queues a response for an exact command line. Responses queued for
// the same command are consumed in order; the last one repeats.
func (f *FakeRunner) Script(cmdline, out string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs[cmdline] = append(f.stubs[cmdline], stub{out: out, err: err})
	return f
}

// Set replaces any queued responses for cmdline.
func (f *FakeRunner) Set(cmdline, out string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs[cmdline] = []stub{{out: out, err: err}}
	return f
}

// ScriptPrefix answers every command line starting with prefix.
func (f *FakeRunner) ScriptPrefix(prefix, out string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefix[prefix] = stub{out: out, err: err}
	return f
}

// Fail scripts a command to exit non-zero with output.
func (f *FakeRunner) Fail(cmdline, output string) *FakeRunner {
	return f.Script(cmdline, output, &vcs.CommandError{
		Args:   strings.Fields(cmdline),
		Output: output,
		Err:    fmt.Errorf("exit status 1"),
	})
}

func (f *FakeRunner) Run(_ context.Context, dir, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}
	f.calls = append(f.calls, call)
	key := call.String()

	if queue := f.stubs[key]; len(queue) > 0 {
		s := queue[0]
		if len(queue) > 1 {
			f.stubs[key] = queue[1:]
		}
		return s.out, s.err
	}
	best := ""
	for p := range f.prefix {
		if strings.HasPrefix(key, p) && len(p) > len(best) {
			best = p
		}
	}
	if best != "" {
		s := f.prefix[best]
		return s.out, s.err
	}
	if f.Strict {
		return "", fmt.Errorf("unexpected command: %s", key)
	}
	return "", nil
}

// Calls returns recorded command lines in order.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

// Ran reports whether a command line starting with prefix was executed.
func (f *FakeRunner) Ran(prefix string) bool {
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
