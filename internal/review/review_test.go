package review

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	intm "github.com/scottymoll/luce/internal"
	"github.com/scottymoll/luce/internal/llm"
)

type fakeLLM struct {
	reply string
	err   error
	req   llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, r llm.Request) (string, error) {
	f.req = r
	return f.reply, f.err
}

func runFor(t *testing.T, preview string, routes ...string) intm.RunContext {
	cfg := intm.DefaultProjectConfig()
	cfg.Preview.Routes = routes
	return intm.RunContext{SourceRef: "abc123", PreviewURL: preview, WorkDir: t.TempDir(), Project: cfg}
}

func TestVisibleText(t *testing.T) {
	in := `<html><head><style>body{color:red}</style><script>var x = "<b>";</script></head>
<body><h1>Hello</h1>
  <!-- hidden comment -->
  <p>World   and<br/>friends</p><noscript>enable js</noscript></body></html>`
	if got, want := visibleText(in), "Hello World and friends"; got != want {
		t.Fatalf("visibleText = %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 2); got != "hé" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}

func TestPageURLAddsCacheBuster(t *testing.T) {
	u, err := pageURL("https://preview.example.com/", "/pricing", time.Unix(0, 42))
	if err != nil {
		t.Fatal(err)
	}
	if u != "https://preview.example.com/pricing?luce_ts=42" {
		t.Fatalf("url = %q", u)
	}
}

func TestReviewFetchesRoutesAndParsesVerdict(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Path)
		if r.URL.Query().Get("luce_ts") == "" {
			t.Errorf("missing cache buster on %s", r.URL)
		}
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("<h1>Cali Drive Kit</h1><script>track()</script>"))
	}))
	defer srv.Close()

	f := &fakeLLM{reply: `{"score":12,"findings":["weak hero"],"requiredFixes":["rewrite hero"],"remediationInstruction":"CHANGES\n- rewrite hero","stop":false}`}
	r := New(f, srv.Client(), zerolog.Nop())
	run := runFor(t, srv.URL, "/", "/broken")

	v, err := r.Review(context.Background(), run)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if v.Score != 12 || v.RemediationInstruction != "CHANGES\n- rewrite hero" {
		t.Errorf("verdict = %+v", v)
	}
	if v.Halts(run.Project.Targets.RubricScore) {
		t.Error("score 12 should not halt at target 18")
	}
	if len(seen) != 2 {
		t.Errorf("fetched %v", seen)
	}

	var p payload
	if err := json.Unmarshal([]byte(f.req.User[0]), &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.Pages[0].Text != "Cali Drive Kit" {
		t.Errorf("page text = %q", p.Pages[0].Text)
	}
	if !strings.HasPrefix(p.Pages[1].Text, "<!-- fetch failed: /broken") {
		t.Errorf("failed page = %q", p.Pages[1].Text)
	}
	if f.req.User[1] != defaultRubric {
		t.Error("built-in rubric not used when file is missing")
	}
	if _, err := os.Stat(ArtifactPath(run)); err != nil {
		t.Errorf("artifact not written: %v", err)
	}
}

func TestReviewInvalidReplyYieldsSentinel(t *testing.T) {
	for _, reply := range []string{`not json`, `{"score":"high"}`, `{"score":20}`} {
		r := New(&fakeLLM{reply: reply}, http.DefaultClient, zerolog.Nop())
		run := runFor(t, "", "/")
		v, err := r.Review(context.Background(), run)
		if err != nil {
			t.Fatalf("reply %q: err = %v", reply, err)
		}
		if v.Score != 0 || v.Stop || len(v.Findings) != 1 || v.Findings[0] != "Invalid JSON from model" {
			t.Errorf("reply %q: verdict = %+v", reply, v)
		}
		if v.Halts(run.Project.Targets.RubricScore) {
			t.Errorf("sentinel verdict must not halt")
		}
	}
}

func TestReviewUsesProjectRubric(t *testing.T) {
	f := &fakeLLM{reply: `{"score":19,"findings":[],"requiredFixes":[],"remediationInstruction":"","stop":false}`}
	run := runFor(t, "", "/")
	path := filepath.Join(run.WorkDir, run.Project.Review.RubricPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("custom rubric"), 0o644); err != nil {
		t.Fatal(err)
	}
	v, err := New(f, http.DefaultClient, zerolog.Nop()).Review(context.Background(), run)
	if err != nil {
		t.Fatal(err)
	}
	if f.req.User[1] != "custom rubric" {
		t.Errorf("rubric = %q", f.req.User[1])
	}
	if !v.Halts(18) {
		t.Error("score 19 should halt at target 18")
	}
}

func TestReviewTransportErrorReturned(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := New(&fakeLLM{err: boom}, http.DefaultClient, zerolog.Nop()).Review(context.Background(), runFor(t, "", "/"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
