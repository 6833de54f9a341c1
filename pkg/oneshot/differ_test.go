package oneshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joakim-brannstrom/watchexec/pkg/process"
)

// TestDifferFirstRunTreatsEveryFileAsChanged tests that a brand-new tree
// with no prior db reports every file as changed and runs the command.
func TestDifferFirstRunTreatsEveryFileAsChanged(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "db.json")

	d := New(Config{
		Roots:          []string{dir},
		DbPath:         dbPath,
		Argv:           []string{"/bin/sh", "-c", "exit 0"},
		Timeout:        5 * time.Second,
		FollowSymlinks: true,
	}, process.NewSupervisor())

	outcome, err := d.Run()
	if err != nil {
		t.Fatalf("unable to run differ: %v", err)
	}
	if !outcome.Changed || !outcome.Ran || outcome.ExitCode != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("db should have been written: %v", err)
	}
}

// TestDifferUnchangedTreeSkipsCommand tests that a second run over an
// unmodified tree reports no changes and never invokes the command,
// per the one-shot diff round-trip property.
func TestDifferUnchangedTreeSkipsCommand(t *testing.T) {
	dir := t.TempDir()
	markerPath := filepath.Join(dir, "ran-marker")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "db.json")

	cfg := Config{
		Roots:          []string{dir},
		DbPath:         dbPath,
		Argv:           []string{"/bin/sh", "-c", "touch " + markerPath},
		Timeout:        5 * time.Second,
		FollowSymlinks: true,
	}

	first, err := New(cfg, process.NewSupervisor()).Run()
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if !first.Changed {
		t.Fatal("first run should report changes")
	}
	if _, err := os.Stat(markerPath); err != nil {
		t.Fatal("first run should have executed the command")
	}
	os.Remove(markerPath)

	second, err := New(cfg, process.NewSupervisor()).Run()
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Changed {
		t.Fatalf("second run over an unchanged tree should report no changes, got %+v", second)
	}
	if _, err := os.Stat(markerPath); err == nil {
		t.Fatal("second run should not have invoked the command")
	}
}

// TestDifferAtomicDbAdvance tests that a non-zero command exit leaves the
// prior db file byte-identical to its pre-run content.
func TestDifferAtomicDbAdvance(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "db.json")

	seedCfg := Config{
		Roots:          []string{dir},
		DbPath:         dbPath,
		Argv:           []string{"/bin/sh", "-c", "exit 0"},
		Timeout:        5 * time.Second,
		FollowSymlinks: true,
	}
	if _, err := New(seedCfg, process.NewSupervisor()).Run(); err != nil {
		t.Fatalf("seed run failed: %v", err)
	}
	before, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v2, longer content"), 0o644); err != nil {
		t.Fatal(err)
	}
	failCfg := seedCfg
	failCfg.Argv = []string{"/bin/sh", "-c", "exit 1"}
	outcome, err := New(failCfg, process.NewSupervisor()).Run()
	if err != nil {
		t.Fatalf("run failed unexpectedly: %v", err)
	}
	if outcome.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", outcome.ExitCode)
	}

	after, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("db file should be unchanged after a non-zero command exit")
	}
}

// TestDifferStoresWorkingDirectoryRelativePaths tests that the persisted db
// records paths relative to the working directory, not absolute paths, per
// the on-disk schema.
func TestDifferStoresWorkingDirectoryRelativePaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "foo"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "db.json")

	owd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(owd)

	cfg := Config{
		Roots:          []string{"."},
		DbPath:         dbPath,
		Argv:           []string{"/bin/sh", "-c", "exit 0"},
		Timeout:        5 * time.Second,
		FollowSymlinks: true,
	}
	if _, err := New(cfg, process.NewSupervisor()).Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	raw, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), dir) {
		t.Errorf("db should not contain the absolute working directory %q, got: %s", dir, raw)
	}
	if !strings.Contains(string(raw), `"p": "foo"`) {
		t.Errorf("db should record the relative path \"foo\", got: %s", raw)
	}
}

// TestDifferDetectsDeletion tests that a file present in the prior db but
// absent from the current scan contributes a Delete result.
func TestDifferDetectsDeletion(t *testing.T) {
	dir := t.TempDir()
	victim := filepath.Join(dir, "victim.txt")
	if err := os.WriteFile(victim, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "db.json")
	cfg := Config{
		Roots:          []string{dir},
		DbPath:         dbPath,
		Argv:           []string{"/bin/sh", "-c", "exit 0"},
		Timeout:        5 * time.Second,
		FollowSymlinks: true,
	}
	if _, err := New(cfg, process.NewSupervisor()).Run(); err != nil {
		t.Fatalf("seed run failed: %v", err)
	}

	if err := os.Remove(victim); err != nil {
		t.Fatal(err)
	}

	outcome, err := New(cfg, process.NewSupervisor()).Run()
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !outcome.Changed {
		t.Fatal("deletion should be reported as a change")
	}
}
