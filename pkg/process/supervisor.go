//go:build !windows && !plan9

// Package process implements ChildSupervisor: spawning a watched command in
// its own process group, waiting for it with both blocking and non-blocking
// semantics, and delivering signals to the whole group so that no
// descendant can outlive the parent.
package process

import (
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// defaultShell is used when the operator's environment has no $SHELL set.
const defaultShell = "/bin/sh"

// State is the lifecycle state of a supervised Handle.
type State uint8

const (
	// Spawned indicates the process is running (or believed to be).
	Spawned State = iota
	// Killing indicates a signal has been sent and the group is being
	// reaped.
	Killing
	// Exited is the terminal state: the process has been reaped and its
	// exit status is available.
	Exited
)

// Handle is an opaque reference to a supervised child process.
type Handle struct {
	cmd *exec.Cmd
	pid int

	mu    sync.Mutex
	state State

	// done is closed exactly once, when the underlying cmd.Wait() returns in
	// the per-child reaper goroutine, mirroring the inherent parallelism the
	// spec attributes to "the child process" itself; TryWait and Wait never
	// spawn additional goroutines of their own (SetTimeout adds a timer and
	// one goroutine that stops it once the child is reaped).
	done       chan struct{}
	exitState  *os.ProcessState
	exitErr    error
	timeoutTmr *time.Timer
}

// Pid returns the process group leader's pid, for logging.
func (h *Handle) Pid() int {
	return h.pid
}

// Supervisor spawns and supervises child processes on behalf of the run
// loop. It holds no state of its own beyond what's needed to construct new
// Handles; each Handle owns its own process lifecycle.
type Supervisor struct{}

// NewSupervisor constructs a Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Spawn joins argv and hands it to the operator's shell as `$SHELL -c
// <joined>`, with env merged over the inherited environment, placed in its
// own process group, with stdio connected to the supervisor's own stdio so
// the watched command's output interleaves naturally with watchexec's own
// log lines. Joining (rather than parsing) argv is deliberate: the core
// does not implement shell parsing, so quoting, globbing, and pipelines in
// the watched command are entirely the shell's doing.
func (s *Supervisor) Spawn(argv []string, env map[string]string) (*Handle, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = defaultShell
	}
	cmd := exec.Command(shell, "-c", strings.Join(argv, " "))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	cmd.SysProcAttr = GroupProcessAttributes()
	cmd.Env = mergeEnv(os.Environ(), env)

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "unable to start command")
	}

	h := &Handle{
		cmd:   cmd,
		pid:   cmd.Process.Pid,
		state: Spawned,
		done:  make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.exitErr = err
		h.exitState = cmd.ProcessState
		h.state = Exited
		h.mu.Unlock()
		close(h.done)
	}()

	return h, nil
}

// mergeEnv overlays overrides onto base, in "KEY=VALUE" form, with
// overrides taking precedence over any base entry sharing a key.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for key := range overrides {
		seen[key] = true
	}
	for _, kv := range base {
		if k, _, ok := splitEnv(kv); ok && seen[k] {
			continue
		}
		merged = append(merged, kv)
	}
	for k, v := range overrides {
		merged = append(merged, k+"="+v)
	}
	return merged
}

func splitEnv(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

// TryWait reports whether the process has exited, never blocking. It
// returns (state, true) once the process has been reaped, and (nil, false)
// while it is still running.
func (s *Supervisor) TryWait(h *Handle) (*os.ProcessState, bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitState, true
	default:
		return nil, false
	}
}

// Wait blocks until the process has been reaped and returns its final
// state.
func (s *Supervisor) Wait(h *Handle) *os.ProcessState {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitState
}

// Kill sends sig to the handle's entire process group, so that grandchildren
// ignoring the signal directly still lose their process group leader's
// session and any children spawned via the same group inherit the
// delivery. The negative pid form of kill(2) targets the whole group.
func (s *Supervisor) Kill(h *Handle, sig syscall.Signal) error {
	h.mu.Lock()
	if h.state == Exited {
		h.mu.Unlock()
		return nil
	}
	h.state = Killing
	h.mu.Unlock()

	if err := syscall.Kill(-h.pid, sig); err != nil {
		// ESRCH means the group is already gone; that's not an error for our
		// purposes, since the net effect (no group survives) was achieved.
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return errors.Wrap(err, "unable to signal process group")
	}
	return nil
}

// SetTimeout arranges for sig to be sent to the handle's group if it has
// not exited within d. Calling SetTimeout on an already-exited handle is a
// no-op. The timer is automatically stopped once the process is reaped.
func (s *Supervisor) SetTimeout(h *Handle, d time.Duration, sig syscall.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Exited {
		return
	}
	h.timeoutTmr = time.AfterFunc(d, func() {
		_ = s.Kill(h, sig)
	})
	go func() {
		<-h.done
		h.mu.Lock()
		if h.timeoutTmr != nil {
			h.timeoutTmr.Stop()
		}
		h.mu.Unlock()
	}()
}
