// Package allowset decides which repository paths luce may write.
package allowset

import (
	"path"
	"sort"
	"strings"
)

// Set is the effective write allow-set: directory prefixes derived from the
// configured globs, or, when no glob is configured, the tracked file list.
type Set struct {
	globs    []string
	prefixes []string
	tracked  map[string]struct{}
}

// New builds a Set from glob-like rules such as "src/**", "public/*" or
// "styles/". tracked is consulted only when globs is empty.
func New(globs []string, tracked []string) *Set {
	s := &Set{tracked: make(map[string]struct{}, len(tracked))}
	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		s.globs = append(s.globs, g)
		s.prefixes = append(s.prefixes, Prefix(g))
	}
	for _, p := range tracked {
		s.tracked[p] = struct{}{}
	}
	return s
}

// Prefix strips a trailing "/**" or run of "*" from a glob.
func Prefix(glob string) string {
	if strings.HasSuffix(glob, "/**") {
		return strings.TrimSuffix(glob, "**")
	}
	return strings.TrimRight(glob, "*")
}

// Empty reports whether no glob was configured.
func (s *Set) Empty() bool { return len(s.prefixes) == 0 }

// Globs returns the configured rules, suitable for git ls-files.
func (s *Set) Globs() []string { return append([]string(nil), s.globs...) }

// Prefixes returns the derived directory prefixes.
func (s *Set) Prefixes() []string { return append([]string(nil), s.prefixes...) }

// Widen returns a copy that also admits the top-level directory of every hint.
// Hints without a directory component widen nothing.
func (s *Set) Widen(hints []string) *Set {
	out := &Set{
		globs:    append([]string(nil), s.globs...),
		prefixes: append([]string(nil), s.prefixes...),
		tracked:  s.tracked,
	}
	if s.Empty() {
		return out
	}
	seen := map[string]bool{}
	for _, p := range out.prefixes {
		seen[p] = true
	}
	var added []string
	for _, h := range hints {
		clean, ok := Clean(h)
		if !ok {
			continue
		}
		top, _, found := strings.Cut(clean, "/")
		if !found {
			continue
		}
		p := top + "/"
		if !seen[p] {
			seen[p] = true
			added = append(added, p)
		}
	}
	sort.Strings(added)
	for _, p := range added {
		out.prefixes = append(out.prefixes, p)
		out.globs = append(out.globs, p+"**")
	}
	return out
}

// Permits reports whether rel may be written.
func (s *Set) Permits(rel string) bool {
	clean, ok := Clean(rel)
	if !ok {
		return false
	}
	if s.Empty() {
		_, tracked := s.tracked[clean]
		return tracked
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(clean, p) {
			return true
		}
	}
	return false
}

// Clean normalizes a repository-relative path. It rejects absolute paths and
// paths escaping the repository root.
func Clean(rel string) (string, bool) {
	rel = strings.TrimSpace(strings.ReplaceAll(rel, "\\", "/"))
	if rel == "" || strings.HasPrefix(rel, "/") {
		return "", false
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}
