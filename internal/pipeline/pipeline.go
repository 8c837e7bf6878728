// Package pipeline runs luce's review and apply flows end to end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	intm "github.com/scottymoll/luce/internal"
	"github.com/scottymoll/luce/internal/allowset"
	"github.com/scottymoll/luce/internal/diffnorm"
	"github.com/scottymoll/luce/internal/edits"
	"github.com/scottymoll/luce/internal/fingerprint"
	"github.com/scottymoll/luce/internal/generate"
	"github.com/scottymoll/luce/internal/hosting"
	"github.com/scottymoll/luce/internal/patch"
	"github.com/scottymoll/luce/internal/rollingpr"
	"github.com/scottymoll/luce/internal/tasks"
	"github.com/scottymoll/luce/internal/vcs"
)

// Reviewer produces a verdict for a run.
type Reviewer interface {
	Review(ctx context.Context, run intm.RunContext) (intm.ReviewVerdict, error)
}

// Generator turns an instruction into a diff or an edit list.
type Generator interface {
	Diff(ctx context.Context, instruction string, files []string) (string, error)
	Edits(ctx context.Context, req generate.EditRequest) ([]intm.EditDirective, error)
}

// Status classifies how a run ended.
type Status string

const (
	Halted      Status = "halted"
	Skipped     Status = "skipped"
	NothingToDo Status = "nothing-to-do"
	IssueOpened Status = "issue-opened"
	IssueExists Status = "issue-exists"
	Published   Status = "published"
)

// Outcome is the result of a flow.
type Outcome struct {
	Status  Status
	Reason  string
	Verdict *intm.ReviewVerdict
	Branch  string
	Paths   []string
	Via     string
	Action  rollingpr.Action
	PR      *hosting.PullRequest
	Issue   *hosting.Issue
}

// ApplyOptions tune the apply path.
type ApplyOptions struct {
	MultiPass bool
	MaxPasses int
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Reviewer   Reviewer
	Generator  Generator
	Git        *vcs.Git
	Reconciler *rollingpr.Reconciler
	Log        zerolog.Logger
}

type Pipeline struct {
	reviewer Reviewer
	gen      Generator
	git      *vcs.Git
	recon    *rollingpr.Reconciler
	log      zerolog.Logger
	now      func() time.Time
}

func New(d Deps) *Pipeline {
	return &Pipeline{
		reviewer: d.Reviewer,
		gen:      d.Generator,
		git:      d.Git,
		recon:    d.Reconciler,
		log:      d.Log,
		now:      time.Now,
	}
}

// ReviewOnly reviews the preview and opens one tracking issue per source
// revision when the score is below target.
func (p *Pipeline) ReviewOnly(ctx context.Context, run intm.RunContext) (Outcome, error) {
	log := intm.RunLogger(p.log, run)

	v, err := p.reviewer.Review(ctx, run)
	if err != nil {
		return Outcome{}, err
	}
	if v.Halts(run.Project.Targets.RubricScore) {
		log.Info().Float64("score", v.Score).Bool("stop", v.Stop).Msg("target met, nothing to track")
		return Outcome{Status: Halted, Verdict: &v}, nil
	}

	existing, err := p.recon.FindTrackingIssue(ctx, run.SourceRef)
	if err != nil {
		return Outcome{}, err
	}
	if existing != nil {
		log.Info().Int("issue", existing.Number).Msg("tracking issue already open")
		return Outcome{Status: IssueExists, Verdict: &v, Issue: existing}, nil
	}
	is, err := p.recon.OpenTrackingIssue(ctx, IssueTitle(p.now(), v), IssueBody(run, v), run.Project.Review.IssueLabels)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: IssueOpened, Verdict: &v, Issue: &is}, nil
}

// ReviewAndApply reviews the preview and, below target, lands the remediation
// on the rolling branch.
func (p *Pipeline) ReviewAndApply(ctx context.Context, run intm.RunContext, opts ApplyOptions) (Outcome, error) {
	log := intm.RunLogger(p.log, run)

	v, err := p.reviewer.Review(ctx, run)
	if err != nil {
		return Outcome{}, err
	}
	if v.Halts(run.Project.Targets.RubricScore) {
		log.Info().Float64("score", v.Score).Bool("stop", v.Stop).Msg("target met, no changes")
		return Outcome{Status: Halted, Verdict: &v}, nil
	}
	instruction := strings.TrimSpace(v.RemediationInstruction)
	if instruction == "" {
		return Outcome{Status: NothingToDo, Reason: "no remediation instruction", Verdict: &v}, nil
	}

	out, err := p.apply(ctx, log, run, instruction, &v, opts)
	if err != nil {
		p.fallbackIssue(ctx, log, run, v)
		return out, err
	}
	return out, nil
}

// ApplyFromIssue applies the instruction found in the newest open review
// issue and reports back on that issue.
func (p *Pipeline) ApplyFromIssue(ctx context.Context, run intm.RunContext, opts ApplyOptions) (Outcome, error) {
	log := intm.RunLogger(p.log, run)

	is, err := p.recon.LatestReviewIssue(ctx, run.Project.Review.IssueLabels...)
	if err != nil {
		return Outcome{}, err
	}
	if is == nil {
		return Outcome{}, fmt.Errorf("no open review issue labelled %s", strings.Join(run.Project.Review.IssueLabels, " or "))
	}
	instruction := LongestFence(is.Body)
	if instruction == "" || instruction == "(no prompt returned)" {
		return Outcome{}, fmt.Errorf("issue #%d has no fenced instruction", is.Number)
	}
	log.Info().Int("issue", is.Number).Int("instruction_chars", len(instruction)).Msg("applying instruction from issue")

	out, err := p.apply(ctx, log, run, instruction, nil, opts)
	out.Issue = is
	if errors.Is(err, edits.ErrNoEditsApplied) {
		out.Status, out.Reason, err = NothingToDo, "no effective edits", nil
	}
	if err != nil {
		return out, err
	}
	switch out.Status {
	case Published:
		p.recon.CommentOnIssue(ctx, is.Number, fmt.Sprintf("Opened or updated %s applying the prompt.", out.PR.HTMLURL))
	case NothingToDo:
		p.recon.CommentOnIssue(ctx, is.Number, "Luce found no effective changes from the prompt (no diffs).")
	}
	return out, nil
}

func (p *Pipeline) apply(ctx context.Context, log zerolog.Logger, run intm.RunContext, instruction string, v *intm.ReviewVerdict, opts ApplyOptions) (Outcome, error) {
	fp := fingerprint.Compute(run.SourceRef, instruction)
	statePath := filepath.Join(run.Project.StateDir, fingerprint.StateFile)
	tracker := fingerprint.NewTracker(fingerprint.NewFileStore(filepath.Join(run.WorkDir, statePath)), log)
	log = log.With().Str("fingerprint", fp.String()).Logger()

	if tracker.ShouldSkip(fp) {
		log.Info().Msg("instruction already applied for this revision")
		return Outcome{Status: Skipped, Reason: "fingerprint recorded", Verdict: v}, nil
	}

	sel, err := p.recon.Prepare(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("selecting branch: %w", err)
	}
	if tracker.ShouldSkip(fp) {
		log.Info().Str("branch", sel.Branch).Msg("branch state already records this instruction")
		return Outcome{Status: Skipped, Reason: "fingerprint recorded on branch", Verdict: v, Branch: sel.Branch}, nil
	}
	if done, err := p.recon.AlreadyApplied(ctx, sel, run.SourceRef); err != nil {
		log.Warn().Err(err).Msg("branch marker check failed")
	} else if done {
		log.Info().Str("branch", sel.Branch).Msg("branch tip already carries a commit for this revision")
		return Outcome{Status: Skipped, Reason: "commit marker on branch", Verdict: v, Branch: sel.Branch}, nil
	}

	configured := allowset.New(run.Project.Output.AllowPaths, nil)
	files, err := p.git.ListFiles(ctx, configured.Globs())
	if err != nil {
		return Outcome{}, err
	}
	if configured.Empty() {
		configured = allowset.New(nil, files)
	}
	plan := tasks.Decompose(instruction)
	allow := configured.Widen(plan.FileHints)
	log.Debug().
		Strs("allow", allow.Prefixes()).
		Int("files", len(files)).
		Int("tasks", len(plan.Tasks)).
		Msg("allow-set resolved")

	var (
		written []string
		via     string
	)
	if opts.MultiPass {
		if len(plan.Tasks) == 0 {
			return Outcome{Status: NothingToDo, Reason: "no tasks in instruction", Verdict: v, Branch: sel.Branch}, nil
		}
		written, err = p.applyTasks(ctx, log, run, instruction, plan, files, allow, opts.MaxPasses)
		via = fmt.Sprintf("edits (%d tasks)", len(plan.Tasks))
	} else {
		written, via, err = p.applyOnce(ctx, log, run, instruction, plan, files, allow)
	}
	if err != nil {
		return Outcome{Verdict: v, Branch: sel.Branch}, err
	}

	if err := p.git.Add(ctx, written...); err != nil {
		return Outcome{}, err
	}
	staged, err := p.git.StagedPaths(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(staged) == 0 {
		log.Info().Msg("nothing staged, not committing")
		return Outcome{Status: NothingToDo, Reason: "nothing staged", Verdict: v, Branch: sel.Branch}, nil
	}

	if err := tracker.Record(fp); err != nil {
		return Outcome{}, err
	}
	if err := p.git.Add(ctx, filepath.ToSlash(statePath)); err != nil {
		return Outcome{}, err
	}
	if err := p.git.Commit(ctx, CommitMessage(run, fp)); err != nil {
		return Outcome{}, err
	}
	if err := p.git.Push(ctx, sel.Branch); err != nil {
		return Outcome{}, err
	}

	pub, err := p.recon.Publish(ctx, sel,
		run.Project.Output.PRTitle,
		PullBody(run, v, via),
		PushComment(run, written, via),
	)
	if err != nil {
		return Outcome{}, err
	}
	log.Info().
		Str("action", string(pub.Action)).
		Int("pr", pub.PR.Number).
		Strs("paths", written).
		Msg("delta published")
	return Outcome{
		Status:  Published,
		Verdict: v,
		Branch:  sel.Branch,
		Paths:   written,
		Via:     via,
		Action:  pub.Action,
		PR:      &pub.PR,
	}, nil
}

// applyOnce tries the diff path and falls back to an edit list.
func (p *Pipeline) applyOnce(ctx context.Context, log zerolog.Logger, run intm.RunContext, instruction string, plan tasks.Plan, files []string, allow *allowset.Set) ([]string, string, error) {
	diff, err := p.gen.Diff(ctx, instruction, files)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("diff request failed, falling back to edits")
	case !diffnorm.Looks(diff):
		log.Info().Msg("model returned no diff, falling back to edits")
	default:
		artifact := filepath.Join(run.Project.StateDir, "artifacts.patch")
		out, err := patch.New(p.git, allow, artifact, log).Apply(ctx, diffnorm.Normalize(diff))
		if err == nil {
			return out.Paths, "patch/" + out.Strategy.String(), nil
		}
		log.Warn().Err(err).Msg("patch not applied, falling back to edits")
	}

	directives, err := p.gen.Edits(ctx, generate.EditRequest{
		Instruction: instruction,
		Files:       files,
		Context:     plan.FileHints,
		Pass:        1,
	})
	if err != nil {
		return nil, "", err
	}
	written, err := edits.New(run.WorkDir, allow, log).Apply(directives)
	if err != nil {
		return nil, "", err
	}
	return written, "edits", nil
}

// applyTasks runs each task for up to maxPasses edit passes. A task that
// yields nothing on its first pass is abandoned.
func (p *Pipeline) applyTasks(ctx context.Context, log zerolog.Logger, run intm.RunContext, instruction string, plan tasks.Plan, files []string, allow *allowset.Set, maxPasses int) ([]string, error) {
	if maxPasses <= 0 {
		maxPasses = run.Project.Apply.MaxPassesPerTask
	}
	applicator := edits.New(run.WorkDir, allow, log)

	var (
		written []string
		seen    = map[string]bool{}
	)
	for i, task := range plan.Tasks {
		tlog := log.With().Int("task", i+1).Logger()
		req := generate.EditRequest{
			Instruction: fmt.Sprintf("Task %d of %d: %s\n\nFull instruction for context:\n%s", i+1, len(plan.Tasks), task, instruction),
			Files:       files,
		}
		for pass := 1; pass <= maxPasses; pass++ {
			req.Pass = pass
			req.Context = append(append([]string(nil), plan.FileHints...), written...)

			directives, err := p.gen.Edits(ctx, req)
			if err != nil {
				return written, err
			}
			w, err := applicator.Apply(directives)
			if errors.Is(err, edits.ErrNoEditsApplied) {
				if pass == 1 {
					tlog.Info().Str("task", task).Msg("task produced no edits, abandoning")
				}
				break
			}
			if err != nil {
				return written, err
			}
			for _, path := range w {
				if !seen[path] {
					seen[path] = true
					written = append(written, path)
				}
			}
			tlog.Debug().Int("pass", pass).Strs("paths", w).Msg("task pass applied")
		}
	}
	if len(written) == 0 {
		return nil, edits.ErrNoEditsApplied
	}
	return written, nil
}

// fallbackIssue records a failed apply as a tracking issue, best effort.
func (p *Pipeline) fallbackIssue(ctx context.Context, log zerolog.Logger, run intm.RunContext, v intm.ReviewVerdict) {
	existing, err := p.recon.FindTrackingIssue(ctx, run.SourceRef)
	if err != nil {
		log.Warn().Err(err).Msg("fallback issue lookup failed")
		return
	}
	if existing != nil {
		return
	}
	if _, err := p.recon.OpenTrackingIssue(ctx, IssueTitle(p.now(), v), IssueBody(run, v), run.Project.Review.IssueLabels); err != nil {
		log.Warn().Err(err).Msg("fallback issue not opened")
	}
}
