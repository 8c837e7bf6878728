package rollingpr

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/scottymoll/luce/internal/hosting"
)

// FindTrackingIssue returns the open issue mentioning sourceRef, or nil.
func (r *Reconciler) FindTrackingIssue(ctx context.Context, sourceRef string) (*hosting.Issue, error) {
	if sourceRef == "" {
		return nil, nil
	}
	issues, err := r.host.ListOpenIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding tracking issue: %w", err)
	}
	for i := range issues {
		if strings.Contains(issues[i].Body, sourceRef) || strings.Contains(issues[i].Title, sourceRef) {
			return &issues[i], nil
		}
	}
	return nil, nil
}

// OpenTrackingIssue creates an issue with labels.
func (r *Reconciler) OpenTrackingIssue(ctx context.Context, title, body string, labels []string) (hosting.Issue, error) {
	is, err := r.host.CreateIssue(ctx, title, body, labels)
	if err != nil {
		return hosting.Issue{}, fmt.Errorf("opening tracking issue: %w", err)
	}
	return is, nil
}

// LatestReviewIssue returns the newest open issue carrying one of labels.
func (r *Reconciler) LatestReviewIssue(ctx context.Context, labels ...string) (*hosting.Issue, error) {
	issues, err := r.host.ListOpenIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing review issues: %w", err)
	}
	var matched []hosting.Issue
	for _, is := range issues {
		if is.HasLabel(labels...) {
			matched = append(matched, is)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return &matched[0], nil
}

// CommentOnIssue posts a comment, logging failures instead of returning them.
func (r *Reconciler) CommentOnIssue(ctx context.Context, number int, body string) {
	if err := r.host.CreateComment(ctx, number, body); err != nil {
		r.log.Warn().Err(err).Int("issue", number).Msg("commenting on issue failed")
	}
}
