package event

import (
	"sort"
	"strings"
)

// Result pairs an event Kind with the canonical path it applies to. For
// Rename the path is the destination; MoveSelf and DeleteSelf refer to the
// watched directory itself.
type Result struct {
	Kind Kind
	Path string
}

// ChangeSet is the set of Results that triggered (or will trigger) a single
// execution. It is treated as a set, not a sequence: cross-directory event
// ordering is unspecified, so nothing downstream may depend on the order in
// which Results were observed.
type ChangeSet map[Result]struct{}

// NewChangeSet builds a ChangeSet from a slice of Results, deduplicating.
func NewChangeSet(results ...Result) ChangeSet {
	cs := make(ChangeSet, len(results))
	for _, r := range results {
		cs[r] = struct{}{}
	}
	return cs
}

// Add inserts a Result into the change-set.
func (cs ChangeSet) Add(r Result) {
	cs[r] = struct{}{}
}

// Merge folds another change-set's members into this one.
func (cs ChangeSet) Merge(other ChangeSet) {
	for r := range other {
		cs[r] = struct{}{}
	}
}

// Sorted returns the change-set's members in a deterministic order (by path,
// then kind), for stable environment encoding and logging.
func (cs ChangeSet) Sorted() []Result {
	out := make([]Result, 0, len(cs))
	for r := range cs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Encode renders the change-set as "kind:path" tuples joined by ";", the
// format used for the WATCHEXEC_EVENT environment variable.
func (cs ChangeSet) Encode() string {
	sorted := cs.Sorted()
	parts := make([]string, len(sorted))
	for i, r := range sorted {
		parts[i] = r.Kind.String() + ":" + r.Path
	}
	return strings.Join(parts, ";")
}
