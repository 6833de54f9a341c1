//go:build linux

// Package runloop implements the RunLoop state machine: debouncing a burst
// of filesystem events into a single trigger, and deciding whether a live
// child should be killed and restarted or left to run to completion.
package runloop

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joakim-brannstrom/watchexec/pkg/event"
	"github.com/joakim-brannstrom/watchexec/pkg/process"
	"github.com/joakim-brannstrom/watchexec/pkg/watching"
)

// pollGranularity bounds how long a single idle-state Wait call blocks, so
// the loop can notice context cancellation promptly.
const pollGranularity = 200 * time.Millisecond

// restartPollPeriod is the alternation period used while Executing with
// restart=true, per the design note against promoting this alternation to
// real threads.
const restartPollPeriod = 10 * time.Millisecond

// harvestGrace is the late-event drain window given to Collect after a
// non-restarting execution finishes, so events from a slow filesystem that
// land just after the child exits still seed the next trigger.
const harvestGrace = 50 * time.Millisecond

// Logger is the minimal structured logging surface RunLoop needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config carries every operator-facing knob that shapes RunLoop behavior.
type Config struct {
	// Argv is the watched command; Argv[0] is resolved via PATH.
	Argv []string
	// Debounce is the event-coalescing window. Zero disables debouncing:
	// the first event triggers execution immediately.
	Debounce time.Duration
	// Timeout is the per-run wall-clock limit; zero means no timeout.
	Timeout time.Duration
	// Restart, when true, kills and restarts the child on a new event
	// instead of letting it run to completion.
	Restart bool
	// Signal is sent on timeout expiry and on restart eviction.
	Signal syscall.Signal
	// Postpone, when true, starts Idle instead of synthesizing a startup
	// trigger.
	Postpone bool
	// ClearScreen, when true, emits the terminal reset sequence before each
	// execution.
	ClearScreen bool
	// ClearEvents, when true, discards events observed during execution
	// instead of carrying them forward as the seed of the next trigger.
	ClearEvents bool
	// SetEnv, when true, populates WATCHEXEC_EVENT in the child's
	// environment.
	SetEnv bool
	// OnExit, if set, is invoked after each reaped execution (restart
	// evictions excluded) with the exit code. It's the seam cmd/watchexec
	// uses to wire in desktop notification without the core importing it
	// directly.
	OnExit func(exitCode int)
}

// RunLoop drives one monitor/supervisor pair through the Idle → Debouncing
// → Executing state machine described in the design.
type RunLoop struct {
	monitor    *watching.RecursiveMonitor
	supervisor *process.Supervisor
	cfg        Config
	log        Logger
}

// New constructs a RunLoop over an already-configured monitor and
// supervisor.
func New(monitor *watching.RecursiveMonitor, supervisor *process.Supervisor, cfg Config, log Logger) *RunLoop {
	return &RunLoop{monitor: monitor, supervisor: supervisor, cfg: cfg, log: log}
}

// Run drives the state machine until ctx is canceled. It always returns nil
// on a clean cancellation; any other error is a monitor or spawn failure
// that the caller should treat as fatal.
func (r *RunLoop) Run(ctx context.Context) error {
	pending := event.NewChangeSet()

	if !r.cfg.Postpone {
		if err := r.execute(ctx, pending); err != nil {
			return err
		}
		pending = event.NewChangeSet()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		changeSet, err := r.awaitTrigger(ctx, pending)
		if err != nil {
			return err
		}
		if changeSet == nil {
			// Context was canceled while waiting.
			return nil
		}

		if err := r.execute(ctx, changeSet); err != nil {
			return err
		}
		pending = event.NewChangeSet()
	}
}

// awaitTrigger blocks (Idle, then Debouncing) until a quiescent burst of
// events is ready to become the next trigger's change-set, merging in
// anything already pending from a prior run (see Config.ClearEvents).
func (r *RunLoop) awaitTrigger(ctx context.Context, seed event.ChangeSet) (event.ChangeSet, error) {
	changeSet := event.NewChangeSet()
	changeSet.Merge(seed)

	// Idle: block until the first event arrives.
	for len(changeSet) == 0 {
		if ctx.Err() != nil {
			return nil, nil
		}
		results, err := r.monitor.Wait(pollGranularity)
		if err != nil {
			return nil, fmt.Errorf("monitor wait failed: %w", err)
		}
		for _, res := range results {
			changeSet.Add(res)
		}
	}

	if r.cfg.Debounce <= 0 {
		return changeSet, nil
	}

	// Debouncing: keep draining for the debounce window, measured from the
	// first event, so every event of a burst inside that window coalesces
	// into exactly one trigger.
	deadline := time.Now().Add(r.cfg.Debounce)
	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return changeSet, nil
		}
		step := remaining
		if step > pollGranularity {
			step = pollGranularity
		}
		results, err := r.monitor.Wait(step)
		if err != nil {
			return nil, fmt.Errorf("monitor wait failed: %w", err)
		}
		for _, res := range results {
			changeSet.Add(res)
		}
	}
}

// execute spawns the child for changeSet and drives it through Executing,
// looping internally on restart eviction so a chain of restarts never
// recurses.
func (r *RunLoop) execute(ctx context.Context, changeSet event.ChangeSet) error {
	for {
		runID := uuid.New()

		if r.cfg.ClearScreen {
			fmt.Print("\033c")
		}

		env := map[string]string{}
		if r.cfg.SetEnv {
			env["WATCHEXEC_EVENT"] = changeSet.Encode()
		}

		r.log.Info("spawning command", "run_id", runID, "argv", r.cfg.Argv)
		handle, err := r.supervisor.Spawn(r.cfg.Argv, env)
		if err != nil {
			return fmt.Errorf("spawn failed: %w", err)
		}

		if r.cfg.Timeout > 0 {
			r.supervisor.SetTimeout(handle, r.cfg.Timeout, r.cfg.Signal)
		}

		if r.cfg.Restart {
			next, restarted, err := r.runWithRestart(ctx, handle, runID)
			if err != nil {
				return err
			}
			if restarted {
				changeSet = next
				continue
			}
			return nil
		}

		var state *os.ProcessState
		for {
			if s, exited := r.supervisor.TryWait(handle); exited {
				state = s
				break
			}
			if ctx.Err() != nil {
				_ = r.supervisor.Kill(handle, r.cfg.Signal)
				r.supervisor.Wait(handle)
				return nil
			}
			time.Sleep(restartPollPeriod)
		}
		r.reportExit(runID, state)

		carried, err := r.harvestDuringExecution()
		if err != nil {
			return err
		}
		if r.cfg.ClearEvents || len(carried) == 0 {
			return nil
		}
		// Events observed during this execution seed the next trigger.
		next, err := r.awaitTrigger(ctx, carried)
		if err != nil || next == nil {
			return err
		}
		changeSet = next
	}
}

// runWithRestart alternates tryWait and a short monitor poll, per the
// design note against promoting this alternation to real threads. It
// returns the change-set that should seed the next execution and whether a
// restart (as opposed to a natural exit) occurred.
func (r *RunLoop) runWithRestart(ctx context.Context, handle *process.Handle, runID fmt.Stringer) (event.ChangeSet, bool, error) {
	next := event.NewChangeSet()
	for {
		// Tie-break: check for exit first on every tick, so a child that
		// completes in the same tick as a new event is reported as exited,
		// never restarted.
		if state, exited := r.supervisor.TryWait(handle); exited {
			r.reportExit(runID, state)
			return nil, false, nil
		}

		if ctx.Err() != nil {
			_ = r.supervisor.Kill(handle, r.cfg.Signal)
			r.supervisor.Wait(handle)
			return nil, false, nil
		}

		results, err := r.monitor.Wait(restartPollPeriod)
		if err != nil {
			return nil, false, fmt.Errorf("monitor wait failed: %w", err)
		}
		if len(results) == 0 {
			continue
		}
		for _, res := range results {
			next.Add(res)
		}

		r.log.Info("restarting", "run_id", runID)
		if err := r.supervisor.Kill(handle, r.cfg.Signal); err != nil {
			return nil, false, fmt.Errorf("unable to kill for restart: %w", err)
		}
		r.supervisor.Wait(handle)
		return next, true, nil
	}
}

// harvestDuringExecution drains whatever the kernel queued while the core
// was blocked waiting for a non-restarting child, plus a short grace
// window for late events from slow filesystems, so those events can seed
// the next trigger unless ClearEvents discards them.
func (r *RunLoop) harvestDuringExecution() (event.ChangeSet, error) {
	results, err := r.monitor.Collect(harvestGrace)
	if err != nil {
		return nil, fmt.Errorf("monitor wait failed: %w", err)
	}
	return event.NewChangeSet(results...), nil
}

// reportExit logs the child's terminal status, calling out the two POSIX
// shell exit codes that almost always mean a misconfigured -- command
// rather than a failure in the command itself.
func (r *RunLoop) reportExit(runID fmt.Stringer, state *os.ProcessState) {
	code := state.ExitCode()
	switch {
	case process.IsPOSIXShellInvalidCommand(state):
		r.log.Warn("command exited 126 (not executable); check the -- command", "run_id", runID)
	case process.IsPOSIXShellCommandNotFound(state):
		r.log.Warn("command exited 127 (not found on PATH); check the -- command", "run_id", runID)
	case code == 0:
		r.log.Info("command succeeded", "run_id", runID, "exit_code", code)
	default:
		r.log.Warn("command failed", "run_id", runID, "exit_code", code)
	}
	if r.cfg.OnExit != nil {
		r.cfg.OnExit(code)
	}
}
