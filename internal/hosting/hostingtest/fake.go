// Package hostingtest is an in-memory code host for tests.
package hostingtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scottymoll/luce/internal/hosting"
)

// Comment is a recorded comment.
type Comment struct {
	Number int
	Body   string
}

// FakeHost keeps pull requests and issues in memory. Err fields force the
// corresponding call to fail.
type FakeHost struct {
	mu sync.Mutex

	Pulls    []hosting.PullRequest
	Issues   []hosting.Issue
	Comments []Comment
	Labels   map[int][]string

	ListErr    error
	CreateErr  error
	LabelErr   error
	CommentErr error
	IssueErr   error

	next int
}

func NewFakeHost() *FakeHost {
	return &FakeHost{Labels: map[int][]string{}, next: 100}
}

func (f *FakeHost) ListOpenPulls(context.Context) ([]hosting.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]hosting.PullRequest(nil), f.Pulls...), nil
}

func (f *FakeHost) CreatePull(_ context.Context, np hosting.NewPull) (hosting.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return hosting.PullRequest{}, f.CreateErr
	}
	f.next++
	pr := hosting.PullRequest{
		Number:  f.next,
		Title:   np.Title,
		HeadRef: np.Head,
		HTMLURL: fmt.Sprintf("https://github.test/pull/%d", f.next),
	}
	f.Pulls = append(f.Pulls, pr)
	return pr, nil
}

func (f *FakeHost) AddLabels(_ context.Context, number int, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LabelErr != nil {
		return f.LabelErr
	}
	f.Labels[number] = append(f.Labels[number], labels...)
	return nil
}

func (f *FakeHost) ListOpenIssues(context.Context) ([]hosting.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.IssueErr != nil {
		return nil, f.IssueErr
	}
	return append([]hosting.Issue(nil), f.Issues...), nil
}

func (f *FakeHost) CreateIssue(_ context.Context, title, body string, labels []string) (hosting.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.IssueErr != nil {
		return hosting.Issue{}, f.IssueErr
	}
	f.next++
	is := hosting.Issue{
		Number:    f.next,
		Title:     title,
		Body:      body,
		Labels:    append([]string(nil), labels...),
		HTMLURL:   fmt.Sprintf("https://github.test/issues/%d", f.next),
		CreatedAt: time.Now(),
	}
	f.Issues = append(f.Issues, is)
	return is, nil
}

func (f *FakeHost) CreateComment(_ context.Context, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommentErr != nil {
		return f.CommentErr
	}
	f.Comments = append(f.Comments, Comment{Number: number, Body: body})
	return nil
}

// OpenPulls returns a snapshot of the pull requests.
func (f *FakeHost) OpenPulls() []hosting.PullRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hosting.PullRequest(nil), f.Pulls...)
}
