//go:build !windows && !plan9

package process

import (
	"syscall"
)

// GroupProcessAttributes returns the process attributes used to start a
// watched command in its own process group, so that a later group-wide
// signal can reach every descendant it spawns without also hitting the
// watchexec process itself.
func GroupProcessAttributes() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		// Setsid creates a new session (and thus a new process group, with
		// the child as its leader) and detaches from any controlling
		// terminal. It's a little heavier-handed than Setpgid, but it's a
		// single, portable syscall that gives us an unambiguous negative-pid
		// target for Kill.
		Setsid: true,
	}
}
