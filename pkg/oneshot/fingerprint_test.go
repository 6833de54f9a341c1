package oneshot

import (
	"os"
	"path/filepath"
	"testing"
)

// TestFingerprintZeroSizeChecksum tests that a zero-size file's checksum
// is always 0 without ever opening the file.
func TestFingerprintZeroSizeChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("unable to write fixture: %v", err)
	}

	fp, err := NewFingerprint(path)
	if err != nil {
		t.Fatalf("unable to fingerprint: %v", err)
	}
	sum, err := fp.Checksum()
	if err != nil {
		t.Fatalf("unable to checksum: %v", err)
	}
	if sum != 0 {
		t.Errorf("zero-size checksum (%d) does not match expected (0)", sum)
	}
}

// TestFingerprintChecksumCached tests that Checksum is computed once and
// returns the same value on a second call even if the file changes
// underneath it (cache semantics, not re-stat semantics).
func TestFingerprintChecksumCached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "content")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("unable to write fixture: %v", err)
	}

	fp, err := NewFingerprint(path)
	if err != nil {
		t.Fatalf("unable to fingerprint: %v", err)
	}
	first, err := fp.Checksum()
	if err != nil {
		t.Fatalf("unable to checksum: %v", err)
	}

	if err := os.WriteFile(path, []byte("goodbye"), 0o644); err != nil {
		t.Fatalf("unable to rewrite fixture: %v", err)
	}
	second, err := fp.Checksum()
	if err != nil {
		t.Fatalf("unable to checksum: %v", err)
	}
	if first != second {
		t.Error("checksum should be cached after first computation")
	}
}

// TestFingerprintDifferentContentDifferentChecksum tests that two files
// with different content hash differently.
func TestFingerprintDifferentContentDifferentChecksum(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a")
	pathB := filepath.Join(dir, "b")
	if err := os.WriteFile(pathA, []byte("alpha"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pathB, []byte("beta"), 0o644); err != nil {
		t.Fatal(err)
	}

	fpA, err := NewFingerprint(pathA)
	if err != nil {
		t.Fatal(err)
	}
	fpB, err := NewFingerprint(pathB)
	if err != nil {
		t.Fatal(err)
	}
	sumA, err := fpA.Checksum()
	if err != nil {
		t.Fatal(err)
	}
	sumB, err := fpB.Checksum()
	if err != nil {
		t.Fatal(err)
	}
	if sumA == sumB {
		t.Error("distinct file contents should not share a checksum")
	}
}
