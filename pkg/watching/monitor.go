//go:build linux

package watching

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joakim-brannstrom/watchexec/pkg/event"
	"github.com/joakim-brannstrom/watchexec/pkg/ignore"
)

// Logger is the minimal logging surface RecursiveMonitor needs: a place to
// report transient, non-fatal conditions (failed sub-watch registration,
// non-UTF-8 names) without making logging a hard dependency of this
// package's tests.
type Logger interface {
	Warn(msg string, args ...any)
}

// nullLogger discards everything; used when no Logger is supplied.
type nullLogger struct{}

func (nullLogger) Warn(string, ...any) {}

// RecursiveMonitor builds and maintains a WatchSet across one or more root
// directories, translating raw kernel events into the typed event.Result
// vocabulary and applying the configured filters. It owns the WatchSet
// exclusively: no other component mutates it.
type RecursiveMonitor struct {
	source *Source
	mask   event.Mask

	primary        *ignore.Filter
	overrides      *ignore.OverrideTable
	followSymlinks bool
	log            Logger

	roots []string

	// dirByDesc and descByDir together form the WatchSet: every directory
	// in the recursive closure of a root that passes shouldWatch appears
	// exactly once in both maps.
	dirByDesc map[Descriptor]string
	descByDir map[string]Descriptor
}

// Config bundles RecursiveMonitor's construction parameters.
type Config struct {
	Roots          []string
	Primary        *ignore.Filter
	Overrides      *ignore.OverrideTable
	FollowSymlinks bool
	Mask           event.Mask
	Log            Logger
}

// NewRecursiveMonitor creates a monitor over cfg.Roots, performing the
// initial recursive walk-and-register pass before returning.
func NewRecursiveMonitor(cfg Config) (*RecursiveMonitor, error) {
	source, err := NewSource()
	if err != nil {
		return nil, fmt.Errorf("unable to create event source: %w", err)
	}

	log := cfg.Log
	if log == nil {
		log = nullLogger{}
	}

	m := &RecursiveMonitor{
		source:         source,
		mask:           cfg.Mask,
		primary:        cfg.Primary,
		overrides:      cfg.Overrides,
		followSymlinks: cfg.FollowSymlinks,
		log:            log,
		dirByDesc:      make(map[Descriptor]string),
		descByDir:      make(map[string]Descriptor),
	}

	for _, root := range cfg.Roots {
		anchor := root
		if !cfg.FollowSymlinks {
			if resolved, err := filepath.EvalSymlinks(root); err == nil {
				anchor = resolved
			}
		}
		abs, err := filepath.Abs(anchor)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve root %q: %w", root, err)
		}
		m.roots = append(m.roots, abs)
		if err := m.registerTree(abs); err != nil {
			return nil, fmt.Errorf("unable to register root %q: %w", root, err)
		}
	}

	return m, nil
}

// shouldWatch reports whether directory p should be registered: the
// primary filter accepts it and, if an override table applies, the
// nearest-ancestor override accepts it too.
func (m *RecursiveMonitor) shouldWatch(p string) bool {
	if m.overrides != nil && !m.overrides.Accepts(p) {
		return false
	}
	if m.primary != nil && !m.primary.Match(p) {
		return false
	}
	return true
}

// registerTree walks root depth-first with an explicit work queue (not
// recursion, per design note: pathological trees must not overflow the
// machine stack) and registers a watch on every directory that passes
// shouldWatch.
func (m *RecursiveMonitor) registerTree(root string) error {
	queue := []string{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		if !m.shouldWatch(dir) {
			continue
		}
		if _, already := m.descByDir[dir]; already {
			continue
		}

		wd, err := m.source.Watch(dir, inotifyMaskFor(m.mask))
		if err != nil {
			// A failure registering one subtree is logged and skipped; the
			// overall monitor continues watching everything else.
			m.log.Warn("unable to watch directory", "path", dir, "error", err)
			continue
		}
		m.dirByDesc[wd] = dir
		m.descByDir[dir] = wd

		entries, err := os.ReadDir(dir)
		if err != nil {
			m.log.Warn("unable to list directory", "path", dir, "error", err)
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			queue = append(queue, filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}

// isUnderRoot reports whether dir is one of the configured roots or a
// descendant of one, via a prefix match on the root strings.
func (m *RecursiveMonitor) isUnderRoot(dir string) bool {
	for _, root := range m.roots {
		if dir == root || strings.HasPrefix(dir, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Wait asks the event source for events up to timeout, translates and
// classifies them, grows the watch set for any newly created directories,
// and returns the deduplicated, filtered set of results. A timeout of zero
// never blocks.
func (m *RecursiveMonitor) Wait(timeout time.Duration) ([]event.Result, error) {
	raw, err := m.source.Poll(timeout)
	if err != nil {
		return nil, fmt.Errorf("poll failed: %w", err)
	}

	seen := make(map[event.Result]struct{}, len(raw))
	var results []event.Result

	for _, re := range raw {
		dir, ok := m.dirByDesc[re.Descriptor]
		if !ok {
			continue
		}

		kind, ok := classifyMask(re.Mask)
		if !ok {
			continue
		}
		if !m.mask.Enabled(kind) && kind != event.DeleteSelf && kind != event.MoveSelf {
			continue
		}

		var path string
		switch kind {
		case event.DeleteSelf, event.MoveSelf:
			path = dir
		default:
			if !utf8.ValidString(re.Name) {
				m.log.Warn("dropping event with non-UTF-8 name", "dir", dir)
				continue
			}
			path = filepath.Join(dir, re.Name)
		}

		switch kind {
		case event.DeleteSelf:
			m.forget(re.Descriptor)
		case event.MoveSelf:
			if m.isUnderRoot(dir) {
				// Re-register: the kernel's own watch survives a rename of
				// the watched directory, but we re-resolve defensively in
				// case the path needs to be treated as new.
				m.forget(re.Descriptor)
				if wd, err := m.source.Watch(dir, inotifyMaskFor(m.mask)); err == nil {
					m.dirByDesc[wd] = dir
					m.descByDir[dir] = wd
				}
			} else {
				m.forget(re.Descriptor)
				continue
			}
		case event.Create, event.Rename:
			if re.IsDir() {
				if err := m.registerTree(path); err != nil {
					m.log.Warn("unable to register new directory", "path", path, "error", err)
				}
			}
		}

		if m.primary != nil && !m.primary.Match(path) {
			continue
		}
		if m.overrides != nil && !m.overrides.Accepts(path) {
			continue
		}

		result := event.Result{Kind: kind, Path: path}
		if _, dup := seen[result]; dup {
			continue
		}
		seen[result] = struct{}{}
		results = append(results, result)
	}

	return results, nil
}

// forget removes a descriptor from the WatchSet, without issuing an
// unwatch syscall: the kernel has already dropped these watches by the
// time DeleteSelf/MoveSelf cleanup runs (DeleteSelf implicitly removes the
// watch; a re-registered MoveSelf target gets a fresh descriptor).
func (m *RecursiveMonitor) forget(wd Descriptor) {
	if dir, ok := m.dirByDesc[wd]; ok {
		delete(m.dirByDesc, wd)
		delete(m.descByDir, dir)
	}
}

// Collect performs an initial Wait, then continues draining for timeout as
// a late-event grace window, merging every result seen. This lets slow
// filesystems (e.g. NFS) catch up before the change-set is finalized.
func (m *RecursiveMonitor) Collect(timeout time.Duration) ([]event.Result, error) {
	initial, err := m.Wait(timeout)
	if err != nil {
		return nil, err
	}

	all := initial
	deadline := time.Now().Add(timeout)
	for remaining := time.Until(deadline); remaining > 0; remaining = time.Until(deadline) {
		more, err := m.Wait(remaining)
		if err != nil {
			return initial, err
		}
		all = append(all, more...)
	}

	seen := make(map[event.Result]struct{}, len(all))
	var out []event.Result
	for _, r := range all {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

// Clear fully drains the source with a zero timeout, discarding events but
// still growing the watch set for any Create-of-directory events observed,
// so that content produced inside a burst of directory creation is not
// missed by the next real Wait.
func (m *RecursiveMonitor) Clear() error {
	for {
		results, err := m.Wait(0)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
	}
}

// Close tears down every registered watch and releases the underlying
// event source.
func (m *RecursiveMonitor) Close() error {
	for wd := range m.dirByDesc {
		_ = m.source.Unwatch(wd)
	}
	m.dirByDesc = make(map[Descriptor]string)
	m.descByDir = make(map[string]Descriptor)
	return m.source.Close()
}
