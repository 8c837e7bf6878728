// Package tasks splits a remediation instruction into independent tasks.
package tasks

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxHeadingRunes = 60

// Plan is the decomposition of one instruction.
type Plan struct {
	Tasks     []string
	FileHints []string
}

var (
	bullet   = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+?)\s*$`)
	backtick = regexp.MustCompile("^`([^`]+)`")
)

// Decompose never fails: text without recognizable sections yields an empty
// plan.
func Decompose(instruction string) Plan {
	var (
		plan      Plan
		inFiles   bool
		haveTasks bool
		inTasks   bool
	)
	for _, line := range strings.Split(instruction, "\n") {
		if h, ok := heading(line); ok {
			// "FILES TO CHANGE" lists hints, not tasks
			inFiles = strings.Contains(h, "FILE")
			inTasks = !inFiles && !haveTasks && isTaskHeading(h)
			if inTasks {
				haveTasks = true
			}
			continue
		}
		m := bullet.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch {
		case inFiles:
			if p := hintPath(m[1]); p != "" {
				plan.FileHints = append(plan.FileHints, p)
			}
		case inTasks:
			plan.Tasks = append(plan.Tasks, m[1])
		}
	}
	return plan
}

func isTaskHeading(h string) bool {
	return strings.Contains(h, "CHANGE") || strings.Contains(h, "TASK") || strings.Contains(h, "STEP")
}

// heading recognizes short lines whose letters are all uppercase, optionally
// prefixed by markdown hashes and suffixed by a colon.
func heading(line string) (string, bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimSpace(strings.TrimLeft(s, "#"))
	s = strings.TrimSpace(strings.TrimSuffix(s, ":"))
	s = strings.Trim(s, "*_")
	if s == "" || utf8.RuneCountInString(s) > maxHeadingRunes {
		return "", false
	}
	if bullet.MatchString(line) {
		return "", false
	}
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return "", false
			}
		}
	}
	if letters < 2 {
		return "", false
	}
	return s, true
}

// hintPath takes the leading path-like token of a bullet such as
// "`src/pages/Index.tsx` (hero copy)".
func hintPath(item string) string {
	if m := backtick.FindStringSubmatch(item); m != nil {
		return strings.TrimSpace(m[1])
	}
	fields := strings.Fields(item)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], "`'\",;:()")
}
