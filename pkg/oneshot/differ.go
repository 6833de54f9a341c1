package oneshot

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joakim-brannstrom/watchexec/pkg/event"
	"github.com/joakim-brannstrom/watchexec/pkg/ignore"
	"github.com/joakim-brannstrom/watchexec/pkg/process"
)

// Logger is the minimal logging surface Differ needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// nullLogger discards everything; used when no Logger is supplied.
type nullLogger struct{}

func (nullLogger) Info(string, ...any) {}
func (nullLogger) Warn(string, ...any) {}

// Config bundles Differ's construction parameters.
type Config struct {
	// Roots is a mix of directories (walked recursively) and individual
	// file paths (taken as-is).
	Roots          []string
	Primary        *ignore.Filter
	FollowSymlinks bool
	DbPath         string
	Argv           []string
	Timeout        time.Duration
	Signal         syscall.Signal
	Log            Logger
}

// Differ is OneShotDiffer: it replaces the live watcher for a single
// invocation with a content-addressed scan against a persisted FileDb.
type Differ struct {
	cfg Config
	sup *process.Supervisor
	log Logger
}

// New constructs a Differ.
func New(cfg Config, sup *process.Supervisor) *Differ {
	log := cfg.Log
	if log == nil {
		log = nullLogger{}
	}
	return &Differ{cfg: cfg, sup: sup, log: log}
}

// Outcome reports what a single Run call observed and, if the command ran,
// how it exited.
type Outcome struct {
	Changed      bool
	ChangeSet    event.ChangeSet
	Ran          bool
	ExitCode     int
	BytesScanned int64
}

// Run executes the scan-diff-maybe-run algorithm once.
func (d *Differ) Run() (Outcome, error) {
	prior, _, err := LoadFileDb(d.cfg.DbPath)
	if err != nil {
		d.log.Warn("ignoring unreadable db, starting from an empty baseline", "path", d.cfg.DbPath, "error", err)
		prior = NewFileDb(d.cfg.Argv)
	}

	candidates, err := d.enumerate()
	if err != nil {
		return Outcome{}, fmt.Errorf("unable to enumerate candidates: %w", err)
	}

	newDb := NewFileDb(d.cfg.Argv)
	changeSet := event.NewChangeSet()
	var bytesScanned int64

	for _, path := range candidates {
		fp, err := NewFingerprint(path)
		if err != nil {
			// Vanished between enumeration and stat; treat as no-op rather
			// than a hard failure, the next invocation will see it as a
			// deletion if it's really gone.
			continue
		}

		priorFp, known := prior.Files[path]
		changed, err := d.hasChanged(priorFp, known, &fp)
		if err != nil {
			return Outcome{}, fmt.Errorf("unable to checksum %q: %w", path, err)
		}

		if changed {
			kind := event.Modify
			if !known {
				kind = event.Create
			}
			changeSet.Add(event.Result{Kind: kind, Path: path})
			// Resolve the checksum now so the staged entry carries the real
			// content hash.
			if _, err := fp.Checksum(); err != nil {
				return Outcome{}, fmt.Errorf("unable to checksum %q: %w", path, err)
			}
			newDb.Files[path] = fp
			bytesScanned += fp.Size
		} else {
			// Unchanged: carry the prior entry (with its cached checksum)
			// forward so the next run doesn't recompute it.
			newDb.Files[path] = priorFp
		}
	}

	candidateSet := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		candidateSet[c] = struct{}{}
	}
	for path := range prior.Files {
		if _, still := candidateSet[path]; !still {
			changeSet.Add(event.Result{Kind: event.Delete, Path: path})
		}
	}

	if len(changeSet) == 0 {
		return Outcome{Changed: false, ChangeSet: changeSet}, nil
	}

	tmpPath, err := newDb.WriteTemp(d.cfg.DbPath)
	if err != nil {
		// The command still runs; only the db is left where it was.
		d.log.Warn("unable to stage db; it will not be advanced", "path", d.cfg.DbPath, "error", err)
		tmpPath = ""
	}

	state, err := d.runCommand()
	if err != nil {
		os.Remove(tmpPath)
		return Outcome{}, fmt.Errorf("unable to run command: %w", err)
	}

	if state.ExitCode() != 0 {
		// Non-zero exit: the db is not advanced, so the same files are
		// reported as changed again on the next invocation.
		os.Remove(tmpPath)
		return Outcome{Changed: true, ChangeSet: changeSet, Ran: true, ExitCode: state.ExitCode(), BytesScanned: bytesScanned}, nil
	}

	if tmpPath == "" {
		return Outcome{Changed: true, ChangeSet: changeSet, Ran: true, ExitCode: 0, BytesScanned: bytesScanned}, nil
	}
	if err := CommitTemp(tmpPath, d.cfg.DbPath); err != nil {
		return Outcome{}, err
	}
	return Outcome{Changed: true, ChangeSet: changeSet, Ran: true, ExitCode: 0, BytesScanned: bytesScanned}, nil
}

// hasChanged applies the mtime+size trust-shortcut, falling back to
// checksum comparison only when size matches but mtime does not, per the
// spec's explicit decision table.
func (d *Differ) hasChanged(prior Fingerprint, known bool, current *Fingerprint) (bool, error) {
	if !known {
		return true, nil
	}
	if prior.Size != current.Size {
		return true, nil
	}
	if prior.Mtime == current.Mtime {
		return false, nil
	}
	priorSum, err := prior.Checksum()
	if err != nil {
		return false, err
	}
	currentSum, err := current.Checksum()
	if err != nil {
		return false, err
	}
	return priorSum != currentSum, nil
}

// enumerate walks every root (directories recursively, files as-is) and
// returns the paths passing the primary filter, relative to the working
// directory, per the persisted schema's "paths are stored relative to the
// working directory" rule. The db file itself is always excluded, even if
// it lives under a watched root, so writing it never shows up as a change
// on the next invocation.
func (d *Differ) enumerate() ([]string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("unable to determine working directory: %w", err)
	}

	var dbAbs string
	if d.cfg.DbPath != "" {
		if abs, err := filepath.Abs(d.cfg.DbPath); err == nil {
			dbAbs = abs
		}
	}

	toRel := func(abs string) string {
		rel, err := filepath.Rel(cwd, abs)
		if err != nil {
			return abs
		}
		return rel
	}

	var out []string
	for _, root := range d.cfg.Roots {
		anchor := root
		if !d.cfg.FollowSymlinks {
			if resolved, err := filepath.EvalSymlinks(root); err == nil {
				anchor = resolved
			}
		}
		abs, err := filepath.Abs(anchor)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve root %q: %w", root, err)
		}

		info, err := os.Stat(abs)
		if err != nil {
			d.log.Warn("skipping unreachable root", "path", root, "error", err)
			continue
		}
		if !info.IsDir() {
			if abs != dbAbs && (d.cfg.Primary == nil || d.cfg.Primary.Match(abs)) {
				out = append(out, toRel(abs))
			}
			continue
		}

		queue := []string{abs}
		for len(queue) > 0 {
			dir := queue[0]
			queue = queue[1:]

			entries, err := os.ReadDir(dir)
			if err != nil {
				d.log.Warn("unable to list directory", "path", dir, "error", err)
				continue
			}
			for _, entry := range entries {
				p := filepath.Join(dir, entry.Name())
				if entry.IsDir() {
					queue = append(queue, p)
					continue
				}
				if p == dbAbs {
					continue
				}
				if d.cfg.Primary == nil || d.cfg.Primary.Match(p) {
					out = append(out, toRel(p))
				}
			}
		}
	}
	return out, nil
}

// runCommand spawns the configured command synchronously, applying the
// configured timeout.
func (d *Differ) runCommand() (*os.ProcessState, error) {
	handle, err := d.sup.Spawn(d.cfg.Argv, nil)
	if err != nil {
		return nil, err
	}
	if d.cfg.Timeout > 0 {
		sig := d.cfg.Signal
		if sig == 0 {
			sig = process.DefaultSignal
		}
		d.sup.SetTimeout(handle, d.cfg.Timeout, sig)
	}
	return d.sup.Wait(handle), nil
}
