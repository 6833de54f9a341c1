package ignore

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseGitignore reads gitignore-style lines from r and returns the
// resulting exclude patterns. Blank lines and "#"-prefixed comment lines are
// dropped. Negation ("!pattern") is not supported: per the spec's explicit
// open-question resolution, a negated line is a configuration error rather
// than a silently-ignored one, so an operator relying on negation notices
// immediately instead of being surprised by an over-broad exclude.
func ParseGitignore(r io.Reader) ([]string, error) {
	var patterns []string
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "!") {
			return nil, fmt.Errorf("line %d: negated gitignore patterns are not supported: %q", lineNumber, line)
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read gitignore: %w", err)
	}
	return patterns, nil
}

// OverrideEntry pairs a directory prefix with the Filter built from the
// gitignore file found in that directory.
type OverrideEntry struct {
	// Prefix is the absolute, normalized directory the filter applies to and
	// everything beneath it.
	Prefix string
	// Filter is the exclude-only filter built from that directory's
	// gitignore file.
	Filter *Filter
}

// OverrideTable is a list of (prefix, Filter) pairs, one per directory that
// carries its own gitignore-style ignore file, resolved per path by the
// design note in SPEC_FULL.md §9: per-directory overrides are modeled as a
// table rather than a parent-to-child inheritance chain, and a path is
// judged only by the filter of its nearest ancestor entry, so a
// subdirectory's ignore file replaces its parent's for everything beneath
// it.
type OverrideTable struct {
	entries []OverrideEntry
}

// NewOverrideTable builds an OverrideTable from entries. No particular
// order is required: Accepts picks the entry with the longest ancestor
// prefix of the queried path.
func NewOverrideTable(entries []OverrideEntry) *OverrideTable {
	return &OverrideTable{entries: entries}
}

// Accepts reports whether path is accepted by the override filter of its
// nearest ancestor entry (the one with the longest prefix that is an
// ancestor of path), or true if none applies. Filters of entries farther
// up the tree are not consulted.
func (t *OverrideTable) Accepts(path string) bool {
	if t == nil {
		return true
	}
	var nearest *OverrideEntry
	for i := range t.entries {
		e := &t.entries[i]
		if isAncestor(e.Prefix, path) && (nearest == nil || len(e.Prefix) > len(nearest.Prefix)) {
			nearest = e
		}
	}
	return nearest == nil || nearest.Filter.Match(path)
}

// isAncestor reports whether prefix is path itself or a directory ancestor
// of path, using "/"-delimited components so a prefix like "/a/b" does not
// spuriously match "/a/bc".
func isAncestor(prefix, path string) bool {
	if prefix == path {
		return true
	}
	if prefix == "" {
		return true
	}
	if strings.HasPrefix(path, prefix+"/") {
		return true
	}
	return false
}
