package tasks

import (
	"reflect"
	"testing"
)

func TestDecompose(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		tasks []string
		hints []string
	}{
		{
			name: "changes and files",
			in: `GOAL
Lift the hero conversion rate.

CHANGES TO MAKE:
- Rewrite the hero headline to state the outcome
2. Add a FAQ section below pricing
3) Compress hero image

FILES TO TOUCH
- ` + "`src/components/Hero.tsx`" + ` (headline)
- public/hero.webp
- README.md
`,
			tasks: []string{
				"Rewrite the hero headline to state the outcome",
				"Add a FAQ section below pricing",
				"Compress hero image",
			},
			hints: []string{"src/components/Hero.tsx", "public/hero.webp", "README.md"},
		},
		{
			name: "files to change before changes",
			in:   "FILES TO CHANGE:\n- src/pages/Index.tsx\n- src/components/Hero.tsx\n\nCHANGES TO MAKE:\n- Rewrite hero headline\n- Add FAQ\n",
			tasks: []string{"Rewrite hero headline", "Add FAQ"},
			hints: []string{"src/pages/Index.tsx", "src/components/Hero.tsx"},
		},
		{
			name: "markdown headings",
			in:   "## STEPS\n* one\n* two\n## NOTES\n- ignored\n",
			tasks: []string{"one", "two"},
		},
		{
			name: "only first change section counts",
			in:   "CHANGES\n- a\nTASKS\n- b\n",
			tasks: []string{"a"},
		},
		{
			name: "no headings",
			in:   "- just a bullet\nplain prose",
		},
		{
			name: "empty",
			in:   "",
		},
		{
			name: "mixed case line is not a heading",
			in:   "Changes to make\n- nope\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Decompose(tc.in)
			if !reflect.DeepEqual(got.Tasks, tc.tasks) {
				t.Errorf("tasks = %q, want %q", got.Tasks, tc.tasks)
			}
			if !reflect.DeepEqual(got.FileHints, tc.hints) {
				t.Errorf("hints = %q, want %q", got.FileHints, tc.hints)
			}
		})
	}
}

func TestHeadingLengthLimit(t *testing.T) {
	long := "THIS HEADING IS FAR TOO LONG TO BE A HEADING BECAUSE IT GOES ON AND ON"
	if _, ok := heading(long); ok {
		t.Fatal("long uppercase line treated as heading")
	}
	if h, ok := heading("### CHANGES TO MAKE:"); !ok || h != "CHANGES TO MAKE" {
		t.Fatalf("heading = %q, %v", h, ok)
	}
}
