// Package rollingpr keeps a single open pull request for luce's changes and
// decides whether a run extends it or opens a new one.
package rollingpr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scottymoll/luce/internal/fingerprint"
	"github.com/scottymoll/luce/internal/hosting"
	"github.com/scottymoll/luce/internal/vcs"
)

// Host is the code-hosting surface the reconciler needs.
type Host interface {
	ListOpenPulls(ctx context.Context) ([]hosting.PullRequest, error)
	CreatePull(ctx context.Context, np hosting.NewPull) (hosting.PullRequest, error)
	AddLabels(ctx context.Context, number int, labels []string) error
	ListOpenIssues(ctx context.Context) ([]hosting.Issue, error)
	CreateIssue(ctx context.Context, title, body string, labels []string) (hosting.Issue, error)
	CreateComment(ctx context.Context, number int, body string) error
}

// State is the reconciler's view of the remote.
type State string

const (
	NoOpenPR    State = "no-open-pr"
	OpenPRFound State = "open-pr-found"
)

// Action is the terminal step taken by Publish.
type Action string

const (
	CreatePR                 Action = "create-pr"
	CommentAndPushToExisting Action = "comment-and-push"
)

// Options configure branch naming and PR decoration.
type Options struct {
	BranchPrefix string
	TitleMarker  string
	BaseBranch   string
	Labels       []string
}

// Selection is the outcome of Prepare.
type Selection struct {
	State  State
	Branch string
	PR     *hosting.PullRequest
}

// Published is the outcome of Publish.
type Published struct {
	Action Action
	PR     hosting.PullRequest
}

type Reconciler struct {
	host Host
	git  *vcs.Git
	opts Options
	log  zerolog.Logger
	now  func() time.Time
}

func New(host Host, git *vcs.Git, opts Options, log zerolog.Logger) *Reconciler {
	return &Reconciler{host: host, git: git, opts: opts, log: log, now: time.Now}
}

// Matches reports whether pr is luce's rolling pull request.
func (r *Reconciler) Matches(pr hosting.PullRequest) bool {
	if r.opts.BranchPrefix != "" && strings.HasPrefix(pr.HeadRef, r.opts.BranchPrefix) {
		return true
	}
	return r.opts.TitleMarker != "" &&
		strings.Contains(strings.ToLower(pr.Title), strings.ToLower(r.opts.TitleMarker))
}

// Find returns the open rolling PR, or nil. When several match, the oldest
// wins.
func (r *Reconciler) Find(ctx context.Context) (*hosting.PullRequest, error) {
	prs, err := r.host.ListOpenPulls(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding rolling pr: %w", err)
	}
	var found []hosting.PullRequest
	for _, pr := range prs {
		if r.Matches(pr) {
			found = append(found, pr)
		}
	}
	if len(found) == 0 {
		return nil, nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Number < found[j].Number })
	if len(found) > 1 {
		r.log.Warn().Int("count", len(found)).Int("using", found[0].Number).Msg("several rolling pull requests open")
	}
	return &found[0], nil
}

// Prepare checks out the branch the run will commit to. An existing rolling
// PR's branch is synced to its remote tip; otherwise a fresh branch is cut
// from the base branch.
func (r *Reconciler) Prepare(ctx context.Context) (Selection, error) {
	pr, err := r.Find(ctx)
	if err != nil {
		return Selection{}, err
	}
	if pr != nil {
		branch := pr.HeadRef
		remote := vcs.Remote + "/" + branch
		if err := r.git.Fetch(ctx, branch); err != nil {
			return Selection{}, err
		}
		if err := r.git.CheckoutFrom(ctx, branch, remote); err != nil {
			return Selection{}, err
		}
		if err := r.git.ResetHard(ctx, remote); err != nil {
			return Selection{}, err
		}
		r.log.Info().Int("pr", pr.Number).Str("branch", branch).Msg("reusing rolling pull request")
		return Selection{State: OpenPRFound, Branch: branch, PR: pr}, nil
	}

	branch := fmt.Sprintf("%s%d", r.opts.BranchPrefix, r.now().UnixMilli())
	if err := r.git.Fetch(ctx, r.opts.BaseBranch); err != nil {
		return Selection{}, err
	}
	if err := r.git.CheckoutFrom(ctx, branch, vcs.Remote+"/"+r.opts.BaseBranch); err != nil {
		return Selection{}, err
	}
	r.log.Info().Str("branch", branch).Str("base", r.opts.BaseBranch).Msg("starting new delta branch")
	return Selection{State: NoOpenPR, Branch: branch}, nil
}

// AlreadyApplied reports whether the branch tip already carries a commit for
// sourceRef.
func (r *Reconciler) AlreadyApplied(ctx context.Context, sel Selection, sourceRef string) (bool, error) {
	if sel.State != OpenPRFound {
		return false, nil
	}
	msg, err := r.git.LastCommitMessage(ctx)
	if err != nil {
		return false, err
	}
	return fingerprint.HasMarker(msg, sourceRef), nil
}

// Publish opens the pull request or comments on the existing one. Label and
// comment failures are logged and swallowed.
func (r *Reconciler) Publish(ctx context.Context, sel Selection, title, body, comment string) (Published, error) {
	if sel.State == OpenPRFound && sel.PR != nil {
		if err := r.host.CreateComment(ctx, sel.PR.Number, comment); err != nil {
			r.log.Warn().Err(err).Int("pr", sel.PR.Number).Msg("commenting on rolling pull request failed")
		}
		return Published{Action: CommentAndPushToExisting, PR: *sel.PR}, nil
	}

	pr, err := r.host.CreatePull(ctx, hosting.NewPull{
		Title: title,
		Head:  sel.Branch,
		Base:  r.opts.BaseBranch,
		Body:  body,
	})
	if err != nil {
		return Published{}, fmt.Errorf("opening pull request: %w", err)
	}
	if err := r.host.AddLabels(ctx, pr.Number, r.opts.Labels); err != nil {
		r.log.Warn().Err(err).Int("pr", pr.Number).Msg("labelling pull request failed")
	}
	return Published{Action: CreatePR, PR: pr}, nil
}
