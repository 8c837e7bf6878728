// Package generate asks the completion service for concrete source changes.
package generate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	intm "github.com/scottymoll/luce/internal"
	"github.com/scottymoll/luce/internal/diffnorm"
	"github.com/scottymoll/luce/internal/llm"
)

const maxContextFileBytes = 24 << 10

// Completer is the part of llm.Client the generator needs.
type Completer interface {
	Complete(ctx context.Context, r llm.Request) (string, error)
}

var editsSchema = llm.MustSchema("edits.json", `{
  "type": "object",
  "required": ["edits"],
  "properties": {
    "edits": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["path", "content"],
        "properties": {
          "path": {"type": "string", "minLength": 1},
          "content": {"type": "string"}
        }
      }
    }
  }
}`)

const diffSystem = "Output ONLY a unified diff patch (no prose). Use correct a/ and b/ prefixes."

const editsSystem = `Return JSON ONLY with shape:
{"edits":[{"path":"relative/path.ext","content":"<FULL NEW FILE CONTENT>"}]}
Edit only allow-listed files. Provide FULL replacements.
No timestamps, random IDs, or non-deterministic content.
Paths must be relative to the repo root.`

// EditRequest describes one edit-generation call.
type EditRequest struct {
	Instruction string
	Files       []string
	// Context lists files whose current content is included in the prompt.
	Context []string
	// Pass is 1 for the first attempt at a task; later passes refine.
	Pass int
}

// Generator produces diffs and edit lists.
type Generator struct {
	llm  Completer
	root string
	log  zerolog.Logger
}

func New(c Completer, root string, log zerolog.Logger) *Generator {
	return &Generator{llm: c, root: root, log: log}
}

// Diff requests a unified diff. The returned text is extracted from any
// fencing but not normalized.
func (g *Generator) Diff(ctx context.Context, instruction string, files []string) (string, error) {
	user := strings.Join([]string{
		"Files:",
		"```", strings.Join(files, "\n"), "```",
		"",
		"Request:",
		"```", instruction, "```",
	}, "\n")
	reply, err := g.llm.Complete(ctx, llm.Request{System: diffSystem, User: []string{user}, Temperature: 0.2})
	if err != nil {
		return "", fmt.Errorf("diff request: %w", err)
	}
	return diffnorm.Extract(reply), nil
}

// Edits requests whole-file replacements. A reply that fails validation is
// treated as an empty edit list.
func (g *Generator) Edits(ctx context.Context, req EditRequest) ([]intm.EditDirective, error) {
	var b strings.Builder
	b.WriteString("File list (relative to repo root):\n```\n")
	b.WriteString(strings.Join(req.Files, "\n"))
	b.WriteString("\n```\n\n")
	for _, p := range req.Context {
		data, err := os.ReadFile(filepath.Join(g.root, filepath.FromSlash(p)))
		if err != nil || len(data) > maxContextFileBytes {
			continue
		}
		fmt.Fprintf(&b, "Current content of %s:\n```\n%s\n```\n\n", p, data)
	}
	if req.Pass > 1 {
		b.WriteString("A previous pass already applied changes for this request. Return only edits that are still missing; return an empty edits array if the request is fully done.\n\n")
	}
	b.WriteString("Requested change:\n```\n")
	b.WriteString(req.Instruction)
	b.WriteString("\n```\n\nReturn JSON ONLY.")

	reply, err := g.llm.Complete(ctx, llm.Request{System: editsSystem, User: []string{b.String()}, JSON: true})
	if err != nil {
		return nil, fmt.Errorf("edits request: %w", err)
	}

	var out struct {
		Edits []intm.EditDirective `json:"edits"`
	}
	if err := editsSchema.Decode(reply, &out); err != nil {
		g.log.Warn().Err(err).Msg("edit list rejected, treating as empty")
		return nil, nil
	}
	return out.Edits, nil
}
