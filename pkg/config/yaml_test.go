package config

import (
	"os"
	"path/filepath"
	"testing"
)

type testDefaults struct {
	Watch    []string `yaml:"watch"`
	Debounce int      `yaml:"debounce_ms"`
}

// TestLoadYAML tests that an on-disk config file is decoded correctly.
func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchexec.yaml")
	contents := "watch:\n  - src\n  - pkg\ndebounce_ms: 500\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	var out testDefaults
	ok, err := LoadYAML(path, &out)
	if err != nil {
		t.Fatalf("unable to load config: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for an existing config file")
	}
	if len(out.Watch) != 2 || out.Watch[0] != "src" || out.Watch[1] != "pkg" {
		t.Errorf("watch roots %v do not match expected [src pkg]", out.Watch)
	}
	if out.Debounce != 500 {
		t.Errorf("debounce (%d) does not match expected (500)", out.Debounce)
	}
}

// TestLoadYAMLMissing tests that a missing config file is reported via
// ok=false rather than an error.
func TestLoadYAMLMissing(t *testing.T) {
	var out testDefaults
	ok, err := LoadYAML(filepath.Join(t.TempDir(), "absent.yaml"), &out)
	if err != nil {
		t.Fatalf("missing config should not be an error: %v", err)
	}
	if ok {
		t.Error("missing config should report ok=false")
	}
}

// TestLoadYAMLStrictRejectsUnknownFields tests that an unrecognized key is
// rejected rather than silently ignored.
func TestLoadYAMLStrictRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchexec.yaml")
	if err := os.WriteFile(path, []byte("not_a_real_field: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out testDefaults
	_, err := LoadYAML(path, &out)
	if err == nil {
		t.Error("expected an error for an unrecognized config field")
	}
}
