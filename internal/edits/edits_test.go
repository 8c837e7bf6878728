package edits

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	intm "github.com/scottymoll/luce/internal"
	"github.com/scottymoll/luce/internal/allowset"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestApplyFiltersAndWrites(t *testing.T) {
	root := t.TempDir()
	write(t, root, "package.json", "{}\n")
	a := New(root, allowset.New([]string{"src/**"}, nil), zerolog.Nop())

	written, err := a.Apply([]intm.EditDirective{
		{Path: "src/components/Hero.tsx", Content: "export const Hero = () => null;\n"},
		{Path: "package.json", Content: "{\"hacked\":true}\n"},
		{Path: "", Content: "x"},
		{Path: "src/../../etc/passwd", Content: "x"},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if want := []string{"src/components/Hero.tsx"}; !reflect.DeepEqual(written, want) {
		t.Fatalf("written = %v, want %v", written, want)
	}
	data, _ := os.ReadFile(filepath.Join(root, "package.json"))
	if string(data) != "{}\n" {
		t.Fatalf("file outside allow-set modified: %q", data)
	}
}

func TestApplyIdenticalIsNoOp(t *testing.T) {
	root := t.TempDir()
	write(t, root, "src/a.ts", "same\n")
	before, err := os.Stat(filepath.Join(root, "src/a.ts"))
	if err != nil {
		t.Fatal(err)
	}
	a := New(root, allowset.New([]string{"src/**"}, nil), zerolog.Nop())

	_, err = a.Apply([]intm.EditDirective{{Path: "src/a.ts", Content: "same\n"}})
	if !errors.Is(err, ErrNoEditsApplied) {
		t.Fatalf("err = %v, want ErrNoEditsApplied", err)
	}
	after, err := os.Stat(filepath.Join(root, "src/a.ts"))
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatal("identical content rewrote the file")
	}
}

func TestApplyEmptyAllowSetLimitsToTracked(t *testing.T) {
	root := t.TempDir()
	a := New(root, allowset.New(nil, []string{"index.html"}), zerolog.Nop())
	written, err := a.Apply([]intm.EditDirective{
		{Path: "index.html", Content: "<h1>hi</h1>\n"},
		{Path: "new.html", Content: "<p>new</p>\n"},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if want := []string{"index.html"}; !reflect.DeepEqual(written, want) {
		t.Fatalf("written = %v, want %v", written, want)
	}
}

func TestReportsDispositions(t *testing.T) {
	root := t.TempDir()
	write(t, root, "src/same.ts", "s\n")
	a := New(root, allowset.New([]string{"src/**"}, nil), zerolog.Nop())
	_, reports, err := a.apply([]intm.EditDirective{
		{Path: "src/same.ts", Content: "s\n"},
		{Path: "src/new.ts", Content: "n\n"},
		{Path: "src/patch.ts", Content: "diff --git a/x b/x\n"},
		{Path: "src/bin.ts", Content: "\xff\xfe"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []Disposition{Identical, Written, Rejected, Rejected}
	if len(reports) != len(want) {
		t.Fatalf("reports = %+v", reports)
	}
	for i, r := range reports {
		if r.Disposition != want[i] {
			t.Errorf("report %d (%s) = %s, want %s", i, r.Path, r.Disposition, want[i])
		}
	}
}
