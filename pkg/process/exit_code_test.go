//go:build !plan9

package process

import (
	"os"
	"testing"
)

// TestExitCodeForProcessState tests that ordinary, 126, and 127 exit codes
// round-trip through ExitCodeForProcessState and the two POSIX shell
// classification helpers.
func TestExitCodeForProcessState(t *testing.T) {
	s := NewSupervisor()

	state := mustWait(t, s, "exit 0")
	if IsPOSIXShellInvalidCommand(state) || IsPOSIXShellCommandNotFound(state) {
		t.Error("a clean exit should not classify as a shell error")
	}

	state = mustWait(t, s, "exit 126")
	if !IsPOSIXShellInvalidCommand(state) {
		t.Error("exit 126 should classify as an invalid command")
	}

	state = mustWait(t, s, "exit 127")
	if !IsPOSIXShellCommandNotFound(state) {
		t.Error("exit 127 should classify as command not found")
	}
}

func mustWait(t *testing.T, s *Supervisor, shellExpr string) *os.ProcessState {
	t.Helper()
	handle, err := s.Spawn([]string{"/bin/sh", "-c", shellExpr}, nil)
	if err != nil {
		t.Fatalf("unable to spawn: %v", err)
	}
	return s.Wait(handle)
}
