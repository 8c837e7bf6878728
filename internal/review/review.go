// Package review scores a deployed preview against the project rubric.
package review

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	intm "github.com/scottymoll/luce/internal"
	"github.com/scottymoll/luce/internal/llm"
)

//go:embed prompts/rubric.md
var defaultRubric string

const systemPrompt = `You are Luce, an exacting web supervisor. Output strict JSON ONLY with fields: ` +
	`{"score":number,"findings":string[],"requiredFixes":string[],"remediationInstruction":string,"stop":boolean}`

var verdictSchema = llm.MustSchema("verdict.json", `{
  "type": "object",
  "required": ["score", "findings", "requiredFixes", "remediationInstruction", "stop"],
  "properties": {
    "score": {"type": "number"},
    "findings": {"type": "array", "items": {"type": "string"}},
    "requiredFixes": {"type": "array", "items": {"type": "string"}},
    "remediationInstruction": {"type": "string"},
    "stop": {"type": "boolean"}
  }
}`)

// Completer is the part of llm.Client the reviewer needs.
type Completer interface {
	Complete(ctx context.Context, r llm.Request) (string, error)
}

// Reviewer fetches preview routes and asks the model for a verdict.
type Reviewer struct {
	llm  Completer
	http *http.Client
	log  zerolog.Logger
	now  func() time.Time
}

func New(c Completer, client *http.Client, log zerolog.Logger) *Reviewer {
	return &Reviewer{llm: c, http: client, log: log, now: time.Now}
}

type payload struct {
	PreviewURL string             `json:"previewUrl"`
	Commit     string             `json:"commit"`
	Config     intm.ProjectConfig `json:"config"`
	Pages      []Page             `json:"pages"`
}

// Review returns the model's verdict for run. A reply that fails validation
// yields intm.InvalidVerdict; only transport failures are returned as errors.
func (r *Reviewer) Review(ctx context.Context, run intm.RunContext) (intm.ReviewVerdict, error) {
	pages := r.Pages(ctx, run)

	p, err := json.Marshal(payload{
		PreviewURL: run.PreviewURL,
		Commit:     run.SourceRef,
		Config:     run.Project,
		Pages:      pages,
	})
	if err != nil {
		return intm.ReviewVerdict{}, fmt.Errorf("encode review payload: %w", err)
	}

	reply, err := r.llm.Complete(ctx, llm.Request{
		System:      systemPrompt,
		User:        []string{string(p), r.rubric(run)},
		JSON:        true,
		Temperature: 0.2,
	})
	if err != nil {
		return intm.ReviewVerdict{}, fmt.Errorf("review completion: %w", err)
	}

	var v intm.ReviewVerdict
	if err := verdictSchema.Decode(reply, &v); err != nil {
		r.log.Warn().Err(err).Msg("verdict rejected, using sentinel")
		v = intm.InvalidVerdict()
	}

	r.log.Info().
		Float64("score", v.Score).
		Bool("stop", v.Stop).
		Int("findings", len(v.Findings)).
		Msg("review complete")

	if err := WriteArtifact(run, v); err != nil {
		r.log.Warn().Err(err).Msg("writing review artifact failed")
	}
	return v, nil
}

// Pages fetches and flattens every configured route. Failed routes are
// represented by an inline comment so the model sees the gap.
func (r *Reviewer) Pages(ctx context.Context, run intm.RunContext) []Page {
	var pages []Page
	for _, route := range run.Project.Preview.Routes {
		text, err := r.page(ctx, run, route)
		if err != nil {
			r.log.Warn().Err(err).Str("route", route).Msg("preview fetch failed")
			text = fmt.Sprintf("<!-- fetch failed: %s: %v -->", route, err)
		}
		pages = append(pages, Page{Route: route, Text: text})
	}
	return pages
}

func (r *Reviewer) page(ctx context.Context, run intm.RunContext, route string) (string, error) {
	if run.PreviewURL == "" {
		return "", errors.New("no preview url")
	}
	u, err := pageURL(run.PreviewURL, route, r.now())
	if err != nil {
		return "", err
	}
	markup, err := fetchPage(ctx, r.http, u)
	if err != nil {
		return "", err
	}
	return truncate(visibleText(markup), run.Project.Preview.MaxPageChars), nil
}

func (r *Reviewer) rubric(run intm.RunContext) string {
	path := run.Project.Review.RubricPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(run.WorkDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		r.log.Debug().Str("path", path).Msg("rubric not found, using built-in rubric")
		return defaultRubric
	}
	return string(data)
}

// ArtifactPath is where the verdict for run is written.
func ArtifactPath(run intm.RunContext) string {
	return filepath.Join(run.WorkDir, run.Project.StateDir, "reviews", "review-"+run.SourceRef+".json")
}

// WriteArtifact stores v as indented JSON for later inspection.
func WriteArtifact(run intm.RunContext, v intm.ReviewVerdict) error {
	if run.SourceRef == "" {
		return nil
	}
	path := ArtifactPath(run)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating review dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding verdict: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
