//go:build !plan9

package process

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

const (
	// posixShellInvalidCommandExitCode is the exit code most POSIX shells
	// return when the given command exists but isn't executable.
	posixShellInvalidCommandExitCode = 126
	// posixShellCommandNotFoundExitCode is the exit code most POSIX shells
	// return when the given command can't be found on PATH.
	posixShellCommandNotFoundExitCode = 127
)

// ExitCodeForProcessState extracts the numeric exit code from a process'
// post-exit state.
func ExitCodeForProcessState(state *os.ProcessState) (int, error) {
	waitStatus, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return 0, errors.New("unable to access wait status")
	}
	return waitStatus.ExitStatus(), nil
}

// IsPOSIXShellInvalidCommand reports whether a process state represents the
// "invalid command" exit code a POSIX shell uses when the target exists but
// lacks execute permission. The run loop surfaces this as a configuration
// warning rather than a generic nonzero-exit report, since it almost always
// means the operator's -- command is wrong, not that the program itself
// failed.
func IsPOSIXShellInvalidCommand(state *os.ProcessState) bool {
	code, err := ExitCodeForProcessState(state)
	return err == nil && code == posixShellInvalidCommandExitCode
}

// IsPOSIXShellCommandNotFound reports whether a process state represents the
// "command not found" exit code a POSIX shell uses when the target can't be
// located on PATH.
func IsPOSIXShellCommandNotFound(state *os.ProcessState) bool {
	code, err := ExitCodeForProcessState(state)
	return err == nil && code == posixShellCommandNotFoundExitCode
}
