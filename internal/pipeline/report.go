package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	intm "github.com/scottymoll/luce/internal"
	"github.com/scottymoll/luce/internal/fingerprint"
)

var fencedBlock = regexp.MustCompile("(?s)```([^\n`]*)\n?(.*?)```")

func formatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// IssueTitle names a review tracking issue.
func IssueTitle(at time.Time, v intm.ReviewVerdict) string {
	return fmt.Sprintf("Luce Review - %s - Score %s", at.UTC().Format(time.RFC3339), formatScore(v.Score))
}

// IssueBody renders a verdict as the tracking issue body.
func IssueBody(run intm.RunContext, v intm.ReviewVerdict) string {
	parts := []string{
		"**Preview**: " + run.PreviewURL,
		"**Commit**: `" + run.SourceRef + "`",
		"**Score**: " + formatScore(v.Score),
		"## Findings",
	}
	if len(v.Findings) == 0 {
		parts = append(parts, "- (none)")
	}
	for _, f := range v.Findings {
		parts = append(parts, "- "+f)
	}
	parts = append(parts, "## Required Fixes")
	if len(v.RequiredFixes) == 0 {
		parts = append(parts, "(none)")
	}
	for i, f := range v.RequiredFixes {
		parts = append(parts, fmt.Sprintf("%d) %s", i+1, f))
	}
	instruction := strings.TrimSpace(v.RemediationInstruction)
	if instruction == "" {
		instruction = "(no prompt returned)"
	}
	parts = append(parts,
		"---",
		"## Delta prompt",
		"```\n"+instruction+"\n```",
		"### Notes",
		"- Push a new commit after applying; Luce will re-review automatically.",
	)
	return strings.Join(parts, "\n\n")
}

// LongestFence returns the longest fenced code block in body, trimmed.
func LongestFence(body string) string {
	best := ""
	for _, m := range fencedBlock.FindAllStringSubmatch(body, -1) {
		block := strings.TrimSpace(m[2])
		if m[2] == "" {
			block = strings.TrimSpace(m[1])
		}
		if len(block) > len(best) {
			best = block
		}
	}
	return best
}

// CommitMessage embeds the fingerprint marker as trailers.
func CommitMessage(run intm.RunContext, fp fingerprint.Fingerprint) string {
	return "feat(luce): auto delta\n\nSource commit: " + run.SourceRef + "\n\n" + fingerprint.Marker(fp)
}

// PullBody is the body of a newly opened rolling pull request.
func PullBody(run intm.RunContext, v *intm.ReviewVerdict, how string) string {
	var b strings.Builder
	b.WriteString("Auto changes from Luce.\n\n")
	fmt.Fprintf(&b, "Source commit: `%s`\n", run.SourceRef)
	if run.PreviewURL != "" {
		fmt.Fprintf(&b, "Preview: %s\n", run.PreviewURL)
	}
	if v != nil {
		fmt.Fprintf(&b, "Score: %s\n", formatScore(v.Score))
	}
	fmt.Fprintf(&b, "Applied via: %s\n", how)
	return b.String()
}

// PushComment announces a new commit on an existing rolling pull request.
func PushComment(run intm.RunContext, paths []string, how string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Luce pushed a new delta for `%s` (%s).\n\n", run.SourceRef, how)
	for _, p := range paths {
		fmt.Fprintf(&b, "- `%s`\n", p)
	}
	return b.String()
}
