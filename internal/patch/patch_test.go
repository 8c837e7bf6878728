package patch

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/scottymoll/luce/internal/allowset"
	"github.com/scottymoll/luce/internal/diffnorm"
	"github.com/scottymoll/luce/internal/vcs"
)

func newRepo(t *testing.T, files map[string]string) *vcs.Git {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	g := vcs.NewGit(vcs.ExecRunner{Log: zerolog.Nop()}, dir, vcs.Identity{Name: "test", Email: "test@example.com"}, zerolog.Nop())
	run := func(args ...string) {
		t.Helper()
		if _, err := (vcs.ExecRunner{}).Run(context.Background(), dir, "git", args...); err != nil {
			t.Fatalf("git %v: %v", args, err)
		}
	}
	run("init", "-q")
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	run("add", "-A")
	if err := g.Commit(context.Background(), "init"); err != nil {
		t.Fatal(err)
	}
	return g
}

func readFile(t *testing.T, g *vcs.Git, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(g.Dir(), name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestStrategyFlags(t *testing.T) {
	want := []string{
		"-p0 --reject --whitespace=fix",
		"-p1 --reject --whitespace=fix",
		"--3way --whitespace=fix",
	}
	for i, s := range Strategies {
		if got := strings.Join(s.Flags(), " "); got != want[i] {
			t.Errorf("%s flags = %q, want %q", s, got, want[i])
		}
	}
}

func TestApplyBarePathsFallsBackToStripOne(t *testing.T) {
	g := newRepo(t, map[string]string{"src/x.ts": "export const a = 1;\n"})
	raw := "diff --git src/x.ts src/x.ts\n" +
		"--- src/x.ts\n" +
		"+++ src/x.ts\n" +
		"@@ -1 +1 @@\n" +
		"-export const a = 1;\n" +
		"+export const a = 2;\n"

	a := New(g, allowset.New([]string{"src/**"}, nil), ".luce/artifacts.patch", zerolog.Nop())
	out, err := a.Apply(context.Background(), diffnorm.Normalize(raw))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Strategy != StripOne {
		t.Errorf("strategy = %s, want %s", out.Strategy, StripOne)
	}
	if len(out.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(out.Attempts))
	}
	if first := out.Attempts[0]; first.Strategy != StrictRoot || first.Output != "" || !strings.Contains(first.Err.Error(), "outside allow-set") {
		t.Errorf("strict-root attempt = %+v, want refusal before git", first)
	}
	if got := readFile(t, g, "src/x.ts"); got != "export const a = 2;\n" {
		t.Errorf("file = %q", got)
	}
	if len(out.Paths) != 1 || out.Paths[0] != "src/x.ts" {
		t.Errorf("paths = %v", out.Paths)
	}
	if _, err := os.Stat(filepath.Join(g.Dir(), ".luce", "artifacts.patch")); err != nil {
		t.Errorf("patch artifact not kept: %v", err)
	}
}

func TestApplyNewFileLandsAtStrippedPath(t *testing.T) {
	g := newRepo(t, map[string]string{"src/x.ts": "x\n"})
	diff := "diff --git a/src/new.ts b/src/new.ts\n" +
		"new file mode 100644\n" +
		"--- /dev/null\n" +
		"+++ b/src/new.ts\n" +
		"@@ -0,0 +1 @@\n" +
		"+hello\n"

	a := New(g, allowset.New([]string{"src/**"}, nil), ".luce/artifacts.patch", zerolog.Nop())
	out, err := a.Apply(context.Background(), diff)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Strategy != StripOne {
		t.Errorf("strategy = %s, want %s", out.Strategy, StripOne)
	}
	if got := readFile(t, g, "src/new.ts"); got != "hello\n" {
		t.Errorf("file = %q", got)
	}
	if _, err := os.Stat(filepath.Join(g.Dir(), "b")); !os.IsNotExist(err) {
		t.Errorf("strict-root strategy wrote under b/: %v", err)
	}
}

func TestApplyAllStrategiesFailLeavesTreeClean(t *testing.T) {
	original := "one\ntwo\nthree\nfour\nfive\nsix\nseven\neight\nnine\nten\n"
	g := newRepo(t, map[string]string{"src/list.txt": original})
	// First hunk applies, second does not: --reject would leave a partial
	// file and a .rej sidecar.
	diff := "diff --git a/src/list.txt b/src/list.txt\n" +
		"--- a/src/list.txt\n" +
		"+++ b/src/list.txt\n" +
		"@@ -1,3 +1,3 @@\n" +
		" one\n" +
		"-two\n" +
		"+TWO\n" +
		" three\n" +
		"@@ -8,3 +8,3 @@\n" +
		" eight\n" +
		"-NINE-MISSING\n" +
		"+NINE\n" +
		" ten\n"

	a := New(g, allowset.New(nil, []string{"src/list.txt"}), ".luce/artifacts.patch", zerolog.Nop())
	_, err := a.Apply(context.Background(), diff)
	var pe *PatchApplyError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PatchApplyError", err)
	}
	if len(pe.Attempts) != 3 {
		t.Errorf("attempts = %d, want 3", len(pe.Attempts))
	}
	if got := readFile(t, g, "src/list.txt"); got != original {
		t.Errorf("file mutated after failed apply:\n%s", got)
	}
	if _, err := os.Stat(filepath.Join(g.Dir(), "src/list.txt.rej")); !os.IsNotExist(err) {
		t.Errorf("reject file left behind: %v", err)
	}
}

func TestApplyRefusesPathsOutsideAllowSet(t *testing.T) {
	g := newRepo(t, map[string]string{"src/x.ts": "a\n", "package.json": "{}\n"})
	diff := "diff --git a/package.json b/package.json\n" +
		"--- a/package.json\n" +
		"+++ b/package.json\n" +
		"@@ -1 +1 @@\n" +
		"-{}\n" +
		"+{\"x\":1}\n"

	a := New(g, allowset.New([]string{"src/**"}, nil), ".luce/artifacts.patch", zerolog.Nop())
	_, err := a.Apply(context.Background(), diff)
	var pe *PatchApplyError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PatchApplyError", err)
	}
	if got := readFile(t, g, "package.json"); got != "{}\n" {
		t.Errorf("package.json changed: %q", got)
	}
}

func TestApplyUnparseable(t *testing.T) {
	a := &Applicator{allow: allowset.New(nil, nil), log: zerolog.Nop()}
	_, err := a.Apply(context.Background(), "no diff here")
	var pe *PatchApplyError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PatchApplyError", err)
	}
	if len(pe.Attempts) != 0 {
		t.Errorf("attempts = %d, want 0", len(pe.Attempts))
	}
}

func TestApplyOnlyThreeWayMerges(t *testing.T) {
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, "l"+strconv.Itoa(i))
	}
	original := strings.Join(lines, "\n") + "\n"
	g := newRepo(t, map[string]string{"src/f.txt": original})
	ctx := context.Background()
	git := func(args ...string) string {
		t.Helper()
		out, err := (vcs.ExecRunner{}).Run(ctx, g.Dir(), "git", args...)
		if err != nil {
			t.Fatalf("git %v: %v", args, err)
		}
		return out
	}
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(g.Dir(), "src", "f.txt"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	// the model's diff changes line 9
	write(strings.Replace(original, "l9\n", "NINE\n", 1))
	diff := git("diff", "--full-index")
	git("checkout", "--", "src/f.txt")

	// meanwhile line 6, inside the hunk's context, moved on
	write(strings.Replace(original, "l6\n", "SIX\n", 1))
	git("add", "-A")
	if err := g.Commit(ctx, "six"); err != nil {
		t.Fatal(err)
	}

	a := New(g, allowset.New([]string{"src/**"}, nil), ".luce/artifacts.patch", zerolog.Nop())
	out, err := a.Apply(ctx, diffnorm.Normalize(diff))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Strategy != ThreeWay {
		t.Errorf("strategy = %s, want %s", out.Strategy, ThreeWay)
	}
	if len(out.Attempts) != 3 {
		t.Errorf("attempts = %d, want 3", len(out.Attempts))
	}
	got := readFile(t, g, "src/f.txt")
	if !strings.Contains(got, "SIX\nl7\nl8\nNINE\n") {
		t.Errorf("merged file lost a change: %q", got)
	}
	if _, err := os.Stat(filepath.Join(g.Dir(), "src", "f.txt.rej")); err == nil {
		t.Error("reject file left behind")
	}
}
