// Package filter decides which discovered files are excluded by the
// user's skip patterns.
package filter

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// SkipFilter matches paths against shell-style glob patterns.
//
// Patterns are compiled without separators, so `*` also matches `/` and a
// pattern such as `*/thumbs/*` can be applied to a full path. Matching is
// case-sensitive.
type SkipFilter struct {
	patterns []string
	globs    []glob.Glob
}

// New compiles patterns into a SkipFilter. A pattern that is not a valid
// glob is kept and compared literally.
func New(patterns []string) *SkipFilter {
	f := &SkipFilter{
		patterns: append([]string(nil), patterns...),
		globs:    make([]glob.Glob, len(patterns)),
	}
	for i, p := range patterns {
		g, err := glob.Compile(shellPattern(p))
		if err != nil {
			continue
		}
		f.globs[i] = g
	}
	return f
}

// shellPattern escapes the gobwas/glob extensions that plain shell globs
// do not have: `{a,b}` alternation and backslash escapes. Text inside a
// `[...]` class is left alone.
func shellPattern(p string) string {
	var b strings.Builder
	inClass := false
	for i, r := range p {
		switch {
		case inClass:
			if r == ']' && !strings.HasSuffix(p[:i], "[") && !strings.HasSuffix(p[:i], "[!") {
				inClass = false
			}
		case r == '[':
			if strings.ContainsRune(p[i+1:], ']') {
				inClass = true
			}
		case r == '{' || r == '}' || r == '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Patterns returns the patterns the filter was built from.
func (f *SkipFilter) Patterns() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.patterns...)
}

// ShouldSkip reports whether the full path or its final component matches
// any pattern. A nil or empty filter never skips.
func (f *SkipFilter) ShouldSkip(path string) bool {
	if f == nil || len(f.patterns) == 0 {
		return false
	}
	base := filepath.Base(path)
	for i, p := range f.patterns {
		if g := f.globs[i]; g != nil {
			if g.Match(path) || g.Match(base) {
				return true
			}
			continue
		}
		if p == path || p == base {
			return true
		}
	}
	return false
}

// ShouldSkip is a convenience wrapper for one-off checks.
func ShouldSkip(path string, patterns []string) bool {
	return New(patterns).ShouldSkip(path)
}
