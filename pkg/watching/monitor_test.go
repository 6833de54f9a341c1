//go:build linux

package watching

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joakim-brannstrom/watchexec/pkg/event"
)

// waitFor polls m.Wait in short increments until results appear or the
// overall deadline passes, since a freshly-written inotify event isn't
// always visible to the very next zero-timeout Wait call.
func waitFor(t *testing.T, m *RecursiveMonitor, deadline time.Duration) []event.Result {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		results, err := m.Wait(20 * time.Millisecond)
		if err != nil {
			t.Fatalf("wait failed: %v", err)
		}
		if len(results) > 0 {
			return results
		}
	}
	return nil
}

// TestRecursiveMonitorReportsCloseWrite tests that writing and closing a
// file under a watched root produces a CloseWrite result for that path.
func TestRecursiveMonitorReportsCloseWrite(t *testing.T) {
	dir := t.TempDir()
	m, err := NewRecursiveMonitor(Config{
		Roots:          []string{dir},
		FollowSymlinks: true,
		Mask:           event.MaskContent,
	})
	if err != nil {
		t.Fatalf("unable to create monitor: %v", err)
	}
	defer m.Close()

	target := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatalf("unable to write fixture: %v", err)
	}

	results := waitFor(t, m, 2*time.Second)
	found := false
	for _, r := range results {
		if r.Kind == event.CloseWrite {
			resolved, _ := filepath.EvalSymlinks(target)
			if r.Path == target || r.Path == resolved {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("expected a CloseWrite result for %s, got %+v", target, results)
	}
}

// TestRecursiveMonitorWatchesNewSubdirectory tests that a directory
// created after startup is registered before content written inside it is
// reported, per the WatchSet's Create-before-report invariant.
func TestRecursiveMonitorWatchesNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	m, err := NewRecursiveMonitor(Config{
		Roots:          []string{dir},
		FollowSymlinks: true,
		Mask:           event.MaskContent,
	})
	if err != nil {
		t.Fatalf("unable to create monitor: %v", err)
	}
	defer m.Close()

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("unable to create subdirectory: %v", err)
	}
	// Drain the Create event for the subdirectory itself so the monitor has
	// a chance to register it before the next write.
	waitFor(t, m, 2*time.Second)

	inner := filepath.Join(sub, "b.txt")
	if err := os.WriteFile(inner, []byte("data"), 0o644); err != nil {
		t.Fatalf("unable to write fixture: %v", err)
	}

	results := waitFor(t, m, 2*time.Second)
	found := false
	for _, r := range results {
		if r.Kind == event.CloseWrite && r.Path == inner {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a CloseWrite result for %s, got %+v", inner, results)
	}
}

// TestRecursiveMonitorFilterHonesty tests that an excluded path never
// surfaces in a result, per the filter-honesty property.
func TestRecursiveMonitorFilterHonesty(t *testing.T) {
	dir := t.TempDir()
	m, err := NewRecursiveMonitor(Config{
		Roots:          []string{dir},
		Primary:        newExcludeFilter(t, "*.log"),
		FollowSymlinks: true,
		Mask:           event.MaskContent,
	})
	if err != nil {
		t.Fatalf("unable to create monitor: %v", err)
	}
	defer m.Close()

	if err := os.WriteFile(filepath.Join(dir, "noisy.log"), []byte("x"), 0o644); err != nil {
		t.Fatalf("unable to write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("unable to write fixture: %v", err)
	}

	results := waitFor(t, m, 2*time.Second)
	for _, r := range results {
		if filepath.Ext(r.Path) == ".log" {
			t.Errorf("excluded path %s should never be reported, got %+v", r.Path, results)
		}
	}
}

// TestRecursiveMonitorCollectMergesLateEvents tests that Collect's grace
// window picks up an event written just after the initial wait returns.
func TestRecursiveMonitorCollectMergesLateEvents(t *testing.T) {
	dir := t.TempDir()
	m, err := NewRecursiveMonitor(Config{
		Roots:          []string{dir},
		FollowSymlinks: true,
		Mask:           event.MaskContent,
	})
	if err != nil {
		t.Fatalf("unable to create monitor: %v", err)
	}
	defer m.Close()

	early := filepath.Join(dir, "early.txt")
	if err := os.WriteFile(early, []byte("x"), 0o644); err != nil {
		t.Fatalf("unable to write fixture: %v", err)
	}

	late := filepath.Join(dir, "late.txt")
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = os.WriteFile(late, []byte("y"), 0o644)
	}()

	results, err := m.Collect(200 * time.Millisecond)
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	seenEarly, seenLate := false, false
	for _, r := range results {
		if r.Kind == event.CloseWrite && r.Path == early {
			seenEarly = true
		}
		if r.Kind == event.CloseWrite && r.Path == late {
			seenLate = true
		}
	}
	if !seenEarly {
		t.Errorf("expected Collect to report the event seen before the initial wait returned, got %+v", results)
	}
	if !seenLate {
		t.Errorf("expected Collect's grace window to pick up the late event, got %+v", results)
	}
}

// TestRecursiveMonitorClearIsIdempotent tests that calling Clear twice in
// succession is a no-op the second time.
func TestRecursiveMonitorClearIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	m, err := NewRecursiveMonitor(Config{
		Roots:          []string{dir},
		FollowSymlinks: true,
		Mask:           event.MaskContent,
	})
	if err != nil {
		t.Fatalf("unable to create monitor: %v", err)
	}
	defer m.Close()

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := m.Clear(); err != nil {
		t.Fatalf("first clear failed: %v", err)
	}
	if err := m.Clear(); err != nil {
		t.Fatalf("second clear failed: %v", err)
	}
}
