// Package ignore implements the GlobFilter include/exclude matcher, the
// default ignore set, and gitignore-style ingestion that the watching and
// one-shot components use to decide which paths are in scope.
package ignore

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter is an ordered pair of include/exclude glob pattern lists. A path
// matches iff at least one include pattern matches and no exclude pattern
// matches. An empty include list is treated as the universal pattern, so a
// Filter constructed with only excludes behaves as "everything except...".
//
// Patterns use doublestar syntax (POSIX glob plus "**" for recursive
// wildcards across path separators), since both operator-supplied
// --include/--exclude flags and ingested .gitignore lines need to express
// patterns like "**/*.py[co]" that path/filepath.Match cannot.
type Filter struct {
	include []string
	exclude []string
}

// New constructs a Filter from include and exclude pattern lists. Patterns
// are not validated until first use; an invalid pattern simply never
// matches (doublestar.Match returns false, nil on most malformed inputs, and
// ErrBadPattern is treated as a non-match here since the filter is a pure
// predicate with no error channel).
func New(include, exclude []string) *Filter {
	return &Filter{include: include, exclude: exclude}
}

// Match reports whether path is in scope: included (or the include list is
// empty) and not excluded.
func (f *Filter) Match(path string) bool {
	if !f.matchesAny(f.include, path, true) {
		return false
	}
	return !f.matchesAny(f.exclude, path, false)
}

// matchesAny reports whether any pattern in patterns matches path. When
// emptyMeansUniversal is true, an empty pattern list matches everything
// (used for the include list per the spec's "empty include is universal"
// rule); otherwise an empty list matches nothing (used for the exclude
// list, where no excludes means nothing is excluded).
func (f *Filter) matchesAny(patterns []string, path string, emptyMeansUniversal bool) bool {
	if len(patterns) == 0 {
		return emptyMeansUniversal
	}
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
		// Also try matching against the path's base name, mirroring shell glob
		// ergonomics: a bare pattern like "*.log" should match regardless of
		// directory depth, not just a file sitting at the filter's root.
		if base := baseName(path); base != path {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
		}
	}
	return false
}

// baseName returns the final path component, without importing path or
// path/filepath just for this one operation (both would pull in OS-specific
// separator handling we don't want here since patterns are always "/"
// delimited per doublestar convention).
func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// EnsurePatternValid reports whether pattern is syntactically valid
// doublestar glob syntax, by attempting a throwaway match. Used to reject
// bad --include/--exclude flags at CLI parse time instead of failing
// silently at match time.
func EnsurePatternValid(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	if _, err := doublestar.Match(pattern, "a"); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return nil
}
