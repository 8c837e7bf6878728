// Package diffnorm canonicalizes unified diff headers produced by a model so
// that git can apply them with the usual a/ and b/ prefixes.
package diffnorm

import (
	"regexp"
	"strconv"
	"strings"
)

const devNull = "/dev/null"

var (
	gitHeader  = regexp.MustCompile(`^diff --git[ \t]+(\S+)[ \t]+(\S+)[ \t]*$`)
	oldHeader  = regexp.MustCompile(`^---[ \t]+(.+?)[ \t]*$`)
	newHeader  = regexp.MustCompile(`^\+\+\+[ \t]+(.+?)[ \t]*$`)
	hunkHeader = regexp.MustCompile(`^@@ -\d+(?:,(\d+))? \+\d+(?:,(\d+))? @@`)

	fence = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\n(.*?)```")
)

// Normalize rewrites the three diff header forms to carry canonical a/ and b/
// prefixes. Lines inside a hunk are left alone, /dev/null is preserved and the
// result is stable under repeated application. Text that is not a diff
// passes through unchanged.
func Normalize(raw string) string {
	var (
		b                strings.Builder
		oldLeft, newLeft int
	)
	b.Grow(len(raw))
	for _, line := range strings.SplitAfter(raw, "\n") {
		body := strings.TrimRight(line, "\r\n")
		eol := line[len(body):]

		if (oldLeft > 0 || newLeft > 0) && !strings.HasPrefix(body, "diff --git ") {
			switch {
			case strings.HasPrefix(body, "-"):
				oldLeft--
			case strings.HasPrefix(body, "+"):
				newLeft--
			case strings.HasPrefix(body, "\\"):
			default:
				oldLeft--
				newLeft--
			}
			b.WriteString(line)
			continue
		}
		oldLeft, newLeft = 0, 0

		if m := hunkHeader.FindStringSubmatch(body); m != nil {
			oldLeft, newLeft = hunkCount(m[1]), hunkCount(m[2])
			b.WriteString(line)
			continue
		}
		b.WriteString(rewriteHeader(body))
		b.WriteString(eol)
	}
	return b.String()
}

func rewriteHeader(line string) string {
	if m := gitHeader.FindStringSubmatch(line); m != nil {
		return "diff --git " + prefixed("a/", m[1]) + " " + prefixed("b/", m[2])
	}
	if m := oldHeader.FindStringSubmatch(line); m != nil {
		return "--- " + prefixed("a/", m[1])
	}
	if m := newHeader.FindStringSubmatch(line); m != nil {
		return "+++ " + prefixed("b/", m[1])
	}
	return line
}

func hunkCount(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func prefixed(prefix, path string) string {
	if path == devNull {
		return path
	}
	return prefix + strings.TrimPrefix(path, prefix)
}

// Looks reports whether text contains at least one git diff header.
func Looks(text string) bool {
	return strings.Contains(text, "diff --git")
}

// Extract pulls a diff out of a model reply. A fenced block containing a diff
// header wins; otherwise everything from the first header onwards is returned.
// The result always ends with a newline, which git apply requires.
func Extract(reply string) string {
	for _, m := range fence.FindAllStringSubmatch(reply, -1) {
		if Looks(m[1]) {
			return withNewline(m[1])
		}
	}
	if i := strings.Index(reply, "diff --git"); i >= 0 {
		return withNewline(strings.TrimRight(reply[i:], "` \t\n"))
	}
	return reply
}

func withNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
