package generate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/scottymoll/luce/internal/llm"
)

type fakeLLM struct {
	reply string
	err   error
	reqs  []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, r llm.Request) (string, error) {
	f.reqs = append(f.reqs, r)
	return f.reply, f.err
}

func TestDiffExtractsFencedPatch(t *testing.T) {
	f := &fakeLLM{reply: "```diff\ndiff --git a/x b/x\n--- a/x\n+++ b/x\n```"}
	g := New(f, t.TempDir(), zerolog.Nop())
	out, err := g.Diff(context.Background(), "change x", []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "diff --git a/x b/x\n") {
		t.Errorf("out = %q", out)
	}
	if f.reqs[0].JSON {
		t.Error("diff request must not use JSON mode")
	}
	if !strings.Contains(f.reqs[0].User[0], "change x") {
		t.Errorf("prompt missing instruction: %q", f.reqs[0].User[0])
	}
}

func TestEditsValidReply(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src/Hero.tsx"), []byte("old hero"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := &fakeLLM{reply: `{"edits":[{"path":"src/Hero.tsx","content":"new hero"}]}`}
	g := New(f, root, zerolog.Nop())
	edits, err := g.Edits(context.Background(), EditRequest{
		Instruction: "rewrite hero",
		Files:       []string{"src/Hero.tsx"},
		Context:     []string{"src/Hero.tsx", "src/missing.tsx"},
		Pass:        2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(edits) != 1 || edits[0].Path != "src/Hero.tsx" || edits[0].Content != "new hero" {
		t.Fatalf("edits = %+v", edits)
	}
	prompt := f.reqs[0].User[0]
	if !strings.Contains(prompt, "old hero") {
		t.Error("context file content missing from prompt")
	}
	if !strings.Contains(prompt, "previous pass") {
		t.Error("refinement note missing on pass 2")
	}
	if !f.reqs[0].JSON {
		t.Error("edits request must use JSON mode")
	}
}

func TestEditsMalformedReplyIsEmpty(t *testing.T) {
	for _, reply := range []string{
		`not json`,
		`{"edits": "nope"}`,
		`{"edits":[{"path":"a","content":7}]}`,
		`{"changes":[]}`,
	} {
		g := New(&fakeLLM{reply: reply}, t.TempDir(), zerolog.Nop())
		edits, err := g.Edits(context.Background(), EditRequest{Instruction: "x"})
		if err != nil {
			t.Errorf("reply %q: err = %v, want nil", reply, err)
		}
		if len(edits) != 0 {
			t.Errorf("reply %q: edits = %+v, want none", reply, edits)
		}
	}
}

func TestEditsTransportErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	g := New(&fakeLLM{err: boom}, t.TempDir(), zerolog.Nop())
	if _, err := g.Edits(context.Background(), EditRequest{Instruction: "x"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}
