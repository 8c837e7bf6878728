// Package hosting wraps the GitHub REST API operations luce performs.
package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const perPage = 50

// PullRequest is the subset of a GitHub pull request luce reads.
type PullRequest struct {
	Number  int
	Title   string
	HeadRef string
	HTMLURL string
}

// Issue is the subset of a GitHub issue luce reads.
type Issue struct {
	Number    int
	Title     string
	Body      string
	HTMLURL   string
	Labels    []string
	CreatedAt time.Time
}

// HasLabel reports whether the issue carries any of names.
func (i Issue) HasLabel(names ...string) bool {
	for _, l := range i.Labels {
		for _, n := range names {
			if l == n {
				return true
			}
		}
	}
	return false
}

// NewPull describes a pull request to open.
type NewPull struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// APIError is a failed GitHub call, carrying status and response message.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("github %s: %s", e.Op, e.Body)
	}
	return fmt.Sprintf("github %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Client talks to one repository.
type Client struct {
	gh    *github.Client
	owner string
	repo  string
	log   zerolog.Logger
}

// New builds a client authenticated with a static bearer token. baseURL
// selects a GitHub Enterprise API root; empty means github.com.
func New(ctx context.Context, httpClient *http.Client, token, baseURL, owner, repo string, log zerolog.Logger) (*Client, error) {
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))
	if baseURL != "" && strings.TrimRight(baseURL, "/") != "https://api.github.com" {
		var err error
		if gh, err = gh.WithEnterpriseURLs(baseURL, baseURL); err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
	}
	return wrap(gh, owner, repo, log), nil
}

func wrap(gh *github.Client, owner, repo string, log zerolog.Logger) *Client {
	return &Client{gh: gh, owner: owner, repo: repo, log: log}
}

func apiError(op string, resp *github.Response, err error) error {
	e := &APIError{Op: op, Body: err.Error()}
	if resp != nil && resp.Response != nil {
		e.Status = resp.StatusCode
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) {
		parts := []string{er.Message}
		for _, fe := range er.Errors {
			parts = append(parts, strings.TrimSpace(fe.Resource+" "+fe.Field+" "+fe.Code+" "+fe.Message))
		}
		e.Body = strings.Join(parts, "; ")
	}
	return e
}

// ListOpenPulls returns every open pull request.
func (c *Client) ListOpenPulls(ctx context.Context) ([]PullRequest, error) {
	opts := &github.PullRequestListOptions{State: "open", ListOptions: github.ListOptions{PerPage: perPage}}
	var out []PullRequest
	for {
		prs, resp, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, apiError("list pulls", resp, err)
		}
		for _, pr := range prs {
			out = append(out, toPull(pr))
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) CreatePull(ctx context.Context, np NewPull) (PullRequest, error) {
	pr, resp, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title: github.String(np.Title),
		Head:  github.String(np.Head),
		Base:  github.String(np.Base),
		Body:  github.String(np.Body),
	})
	if err != nil {
		return PullRequest{}, apiError("create pull", resp, err)
	}
	c.log.Info().Int("pr", pr.GetNumber()).Str("url", pr.GetHTMLURL()).Msg("pull request opened")
	return toPull(pr), nil
}

// AddLabels labels an issue or pull request.
func (c *Client) AddLabels(ctx context.Context, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	_, resp, err := c.gh.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, labels)
	if err != nil {
		return apiError("add labels", resp, err)
	}
	return nil
}

// ListOpenIssues returns open issues, excluding pull requests.
func (c *Client) ListOpenIssues(ctx context.Context) ([]Issue, error) {
	opts := &github.IssueListByRepoOptions{State: "open", ListOptions: github.ListOptions{PerPage: perPage}}
	var out []Issue
	for {
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, apiError("list issues", resp, err)
		}
		for _, is := range issues {
			if is.IsPullRequest() {
				continue
			}
			out = append(out, toIssue(is))
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (Issue, error) {
	req := &github.IssueRequest{Title: github.String(title), Body: github.String(body)}
	if len(labels) > 0 {
		req.Labels = &labels
	}
	is, resp, err := c.gh.Issues.Create(ctx, c.owner, c.repo, req)
	if err != nil {
		return Issue{}, apiError("create issue", resp, err)
	}
	c.log.Info().Int("issue", is.GetNumber()).Str("url", is.GetHTMLURL()).Msg("issue opened")
	return toIssue(is), nil
}

// CreateComment comments on an issue or pull request.
func (c *Client) CreateComment(ctx context.Context, number int, body string) error {
	cm, resp, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		return apiError("create comment", resp, err)
	}
	c.log.Debug().Int64("comment_id", cm.GetID()).Int("number", number).Msg("comment posted")
	return nil
}

func toPull(pr *github.PullRequest) PullRequest {
	return PullRequest{
		Number:  pr.GetNumber(),
		Title:   pr.GetTitle(),
		HeadRef: pr.GetHead().GetRef(),
		HTMLURL: pr.GetHTMLURL(),
	}
}

func toIssue(is *github.Issue) Issue {
	out := Issue{
		Number:    is.GetNumber(),
		Title:     is.GetTitle(),
		Body:      is.GetBody(),
		HTMLURL:   is.GetHTMLURL(),
		CreatedAt: is.GetCreatedAt().Time,
	}
	for _, l := range is.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	return out
}
