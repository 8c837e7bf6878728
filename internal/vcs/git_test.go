package vcs_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/scottymoll/luce/internal/vcs"
	"github.com/scottymoll/luce/internal/vcs/vcstest"
)

func newGit(r vcs.Runner) *vcs.Git {
	return vcs.NewGit(r, "/repo", vcs.Identity{Name: "luce-bot", Email: "luce-bot@users.noreply.github.com"}, zerolog.Nop())
}

func TestListFilesWithPathspecs(t *testing.T) {
	r := vcstest.NewFakeRunner().
		Script("git ls-files -- src/** public/*", "src/a.ts\n\nsrc/b.ts\npublic/x.png\n", nil)
	files, err := newGit(r).ListFiles(context.Background(), []string{"src/**", "public/*"})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	want := []string{"src/a.ts", "src/b.ts", "public/x.png"}
	if !reflect.DeepEqual(files, want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
}

func TestCommitUsesBotIdentity(t *testing.T) {
	r := vcstest.NewFakeRunner()
	if err := newGit(r).Commit(context.Background(), "feat(luce): auto delta"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	want := "git -c user.name=luce-bot -c user.email=luce-bot@users.noreply.github.com commit -m feat(luce): auto delta"
	if calls := r.Calls(); len(calls) != 1 || calls[0] != want {
		t.Fatalf("calls = %v, want [%s]", calls, want)
	}
}

func TestPushSetsUpstream(t *testing.T) {
	r := vcstest.NewFakeRunner()
	if err := newGit(r).Push(context.Background(), "luce/delta-1"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !r.Ran("git push --set-upstream origin luce/delta-1") {
		t.Fatalf("calls = %v", r.Calls())
	}
}

func TestCommandErrorCarriesOutput(t *testing.T) {
	r := vcstest.NewFakeRunner().Fail("git fetch origin main", "fatal: could not read from remote")
	err := newGit(r).Fetch(context.Background(), "main")
	var ce *vcs.CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *vcs.CommandError", err)
	}
	if ce.Output != "fatal: could not read from remote" {
		t.Fatalf("Output = %q", ce.Output)
	}
}

func TestLastCommitMessageTrimmed(t *testing.T) {
	r := vcstest.NewFakeRunner().Script("git log -1 --format=%B", "feat: x\n\nLuce-Source: abc\n\n", nil)
	msg, err := newGit(r).LastCommitMessage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if msg != "feat: x\n\nLuce-Source: abc" {
		t.Fatalf("msg = %q", msg)
	}
}

func TestRestoreRemovesPathsUnknownToHead(t *testing.T) {
	dir := t.TempDir()
	r := vcstest.NewFakeRunner().
		Fail("git cat-file -e HEAD:new.txt", "fatal: path 'new.txt' does not exist in 'HEAD'")
	g := vcs.NewGit(r, dir, vcs.Identity{}, zerolog.Nop())
	g.Restore(context.Background(), []string{"old.txt", "new.txt"})

	if !r.Ran("git checkout HEAD -- old.txt") {
		t.Errorf("tracked path not restored: %v", r.Calls())
	}
	if r.Ran("git checkout HEAD -- new.txt") {
		t.Errorf("untracked path should not be checked out: %v", r.Calls())
	}
	if !r.Ran("git rm --cached -q --ignore-unmatch -- new.txt") {
		t.Errorf("created path not unstaged: %v", r.Calls())
	}
}
