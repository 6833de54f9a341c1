// Command watchexec runs a command whenever files under one or more
// watched directories change.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/joakim-brannstrom/watchexec/cmd"
	"github.com/joakim-brannstrom/watchexec/pkg/config"
	"github.com/joakim-brannstrom/watchexec/pkg/event"
	"github.com/joakim-brannstrom/watchexec/pkg/ignore"
	"github.com/joakim-brannstrom/watchexec/pkg/notify"
	"github.com/joakim-brannstrom/watchexec/pkg/oneshot"
	"github.com/joakim-brannstrom/watchexec/pkg/process"
	"github.com/joakim-brannstrom/watchexec/pkg/runloop"
	"github.com/joakim-brannstrom/watchexec/pkg/watching"
)

// progName is used both for the notify-send "-a" application name and for
// log identification.
const progName = "watchexec"

var rootConfiguration struct {
	watch            []string
	ext              []string
	include          []string
	exclude          []string
	noVCSIgnore      bool
	noDefaultIgnore  bool
	noFollowSymlink  bool
	clear            bool
	debounceMS       int
	timeoutSeconds   int
	restart          bool
	signal           string
	meta             bool
	env              bool
	notify           string
	postpone         bool
	clearEvents      bool
	oneshot          bool
	oneshotDb        string
	verbose          int
	shell            string
	configPath       string
}

// fileDefaults is the shape of an optional --config YAML file: defaults for
// flags the operator didn't pass explicitly on the command line. Fields use
// the same names and units as their flag counterparts.
type fileDefaults struct {
	Watch      []string `yaml:"watch"`
	Ext        []string `yaml:"ext"`
	Include    []string `yaml:"include"`
	Exclude    []string `yaml:"exclude"`
	DebounceMS int      `yaml:"debounce_ms"`
	Timeout    int      `yaml:"timeout_seconds"`
	Restart    bool     `yaml:"restart"`
	Signal     string   `yaml:"signal"`
}

// applyFileDefaults loads --config (if given) and copies each of its values
// into rootConfiguration, but only for flags the operator did not pass
// explicitly, so the command line always wins over the file.
func applyFileDefaults(command *cobra.Command) error {
	if rootConfiguration.configPath == "" {
		return nil
	}
	var defaults fileDefaults
	ok, err := config.LoadYAML(rootConfiguration.configPath, &defaults)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("--config %q not found", rootConfiguration.configPath)
	}

	changed := command.Flags().Changed
	if !changed("watch") {
		rootConfiguration.watch = defaults.Watch
	}
	if !changed("ext") {
		rootConfiguration.ext = defaults.Ext
	}
	if !changed("include") {
		rootConfiguration.include = defaults.Include
	}
	if !changed("exclude") {
		rootConfiguration.exclude = defaults.Exclude
	}
	if !changed("debounce") && defaults.DebounceMS > 0 {
		rootConfiguration.debounceMS = defaults.DebounceMS
	}
	if !changed("timeout") && defaults.Timeout > 0 {
		rootConfiguration.timeoutSeconds = defaults.Timeout
	}
	if !changed("restart") {
		rootConfiguration.restart = defaults.Restart
	}
	if !changed("signal") && defaults.Signal != "" {
		rootConfiguration.signal = defaults.Signal
	}
	return nil
}

var rootCommand = &cobra.Command{
	Use:           progName + " [flags] -- command [args...]",
	Short:         "Run a command whenever watched files change",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          rootMain,
}

func init() {
	flags := rootCommand.Flags()
	flags.StringArrayVarP(&rootConfiguration.watch, "watch", "w", nil, "add a watch root (repeatable, default: current directory)")
	flags.StringArrayVarP(&rootConfiguration.ext, "ext", "e", nil, "shorthand for --include \"*.EXT\" (repeatable)")
	flags.StringArrayVar(&rootConfiguration.include, "include", nil, "glob pattern to include (repeatable)")
	flags.StringArrayVar(&rootConfiguration.exclude, "exclude", nil, "glob pattern to exclude (repeatable)")
	flags.BoolVar(&rootConfiguration.noVCSIgnore, "no-vcs-ignore", false, "do not consume .gitignore files")
	flags.BoolVar(&rootConfiguration.noDefaultIgnore, "no-default-ignore", false, "skip the built-in ignore patterns")
	flags.BoolVar(&rootConfiguration.noFollowSymlink, "no-follow-symlink", false, "resolve each watch root through symlinks once and watch the resolved path")
	flags.BoolVarP(&rootConfiguration.clear, "clear", "c", false, "clear the screen before each run")
	flags.IntVarP(&rootConfiguration.debounceMS, "debounce", "d", 200, "debounce window, in milliseconds")
	flags.IntVarP(&rootConfiguration.timeoutSeconds, "timeout", "t", 3600, "per-run wall-clock timeout, in seconds")
	flags.BoolVarP(&rootConfiguration.restart, "restart", "r", false, "kill and restart the command on a new event instead of waiting")
	flags.StringVarP(&rootConfiguration.signal, "signal", "s", "KILL", "signal to send on timeout or restart eviction")
	flags.BoolVar(&rootConfiguration.meta, "meta", false, "also observe metadata events (access, attribute, open, close-no-write)")
	flags.BoolVar(&rootConfiguration.env, "env", false, "populate WATCHEXEC_EVENT in the command's environment")
	flags.StringVar(&rootConfiguration.notify, "notify", "", "send a desktop notification with this message and the exit status after each run")
	flags.BoolVarP(&rootConfiguration.postpone, "postpone", "p", false, "do not run at startup; wait for the first event")
	flags.BoolVar(&rootConfiguration.clearEvents, "clear-events", false, "discard events observed during a run instead of carrying them into the next trigger")
	flags.BoolVarP(&rootConfiguration.oneshot, "oneshot", "o", false, "one-shot mode: diff against a persisted database instead of watching live")
	flags.StringVar(&rootConfiguration.oneshotDb, "oneshot-db", "", "path to the one-shot database (required with --oneshot)")
	flags.IntVarP(&rootConfiguration.verbose, "verbose", "v", 0, "verbosity level (0: warnings, 1: info, 2+: debug)")
	flags.StringVar(&rootConfiguration.shell, "shell", "", "ignored; the command always runs through $SHELL -c")
	flags.MarkDeprecated("shell", "the command is always joined and run through $SHELL -c now")
	flags.StringVar(&rootConfiguration.configPath, "config", "", "YAML file of flag defaults (explicit flags still win)")
}

func rootMain(command *cobra.Command, arguments []string) error {
	if err := applyFileDefaults(command); err != nil {
		return errors.Wrap(err, "invalid --config")
	}

	dashAt := command.ArgsLenAtDash()
	var argv []string
	if dashAt >= 0 {
		argv = arguments[dashAt:]
	} else {
		argv = arguments
	}
	if len(argv) == 0 {
		return errors.New("no command given; invoke as `watchexec [flags] -- command [args...]`")
	}

	log := cmd.NewHumanLogger(os.Stderr, cmd.Verbosity(rootConfiguration.verbose))

	roots := rootConfiguration.watch
	if len(roots) == 0 {
		roots = []string{"."}
	}

	primary, err := buildPrimaryFilter()
	if err != nil {
		return errors.Wrap(err, "invalid filter configuration")
	}

	sig, err := process.ParseSignal(rootConfiguration.signal)
	if err != nil {
		return errors.Wrap(err, "invalid --signal")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	supervisor := process.NewSupervisor()

	if rootConfiguration.oneshot {
		return runOneshot(roots, primary, argv, sig, log)
	}
	return runLive(ctx, roots, primary, argv, sig, supervisor, log)
}

func runOneshot(roots []string, primary *ignore.Filter, argv []string, sig syscall.Signal, log *slog.Logger) error {
	if rootConfiguration.oneshotDb == "" {
		return errors.New("--oneshot requires --oneshot-db PATH")
	}

	differ := oneshot.New(oneshot.Config{
		Roots:          roots,
		Primary:        primary,
		FollowSymlinks: !rootConfiguration.noFollowSymlink,
		DbPath:         rootConfiguration.oneshotDb,
		Argv:           argv,
		Timeout:        time.Duration(rootConfiguration.timeoutSeconds) * time.Second,
		Signal:         sig,
		Log:            log,
	}, process.NewSupervisor())

	outcome, err := differ.Run()
	if err != nil {
		return errors.Wrap(err, "one-shot run failed")
	}
	if !outcome.Changed {
		log.Info("no changes detected")
		return nil
	}
	if outcome.ExitCode != 0 {
		log.Warn("command failed; database not advanced", "exit_code", outcome.ExitCode)
		os.Exit(1)
	}
	log.Info("command succeeded; database advanced",
		"changed_files", len(outcome.ChangeSet),
		"changed_bytes", humanize.Bytes(uint64(outcome.BytesScanned)))
	return nil
}

func runLive(ctx context.Context, roots []string, primary *ignore.Filter, argv []string, sig syscall.Signal, supervisor *process.Supervisor, log *slog.Logger) error {
	overrides, err := buildOverrideTable(roots)
	if err != nil {
		return errors.Wrap(err, "unable to ingest .gitignore files")
	}

	mask := event.MaskContent
	if rootConfiguration.meta {
		mask |= event.MaskMetadata
	}

	monitor, err := watching.NewRecursiveMonitor(watching.Config{
		Roots:          roots,
		Primary:        primary,
		Overrides:      overrides,
		FollowSymlinks: !rootConfiguration.noFollowSymlink,
		Mask:           mask,
		Log:            log,
	})
	if err != nil {
		return errors.Wrap(err, "unable to start watching")
	}
	defer monitor.Close()

	status := &cmd.StatusLinePrinter{UseStandardError: true}
	status.Print("watchexec: watching for changes...")

	loop := runloop.New(monitor, supervisor, runloop.Config{
		Argv:        argv,
		Debounce:    time.Duration(rootConfiguration.debounceMS) * time.Millisecond,
		Timeout:     time.Duration(rootConfiguration.timeoutSeconds) * time.Second,
		Restart:     rootConfiguration.restart,
		Signal:      sig,
		Postpone:    rootConfiguration.postpone,
		ClearScreen: rootConfiguration.clear,
		ClearEvents: rootConfiguration.clearEvents,
		SetEnv:      rootConfiguration.env,
		OnExit: func(exitCode int) {
			status.BreakIfNonEmpty()
			if exitCode == 0 {
				fmt.Fprintln(color.Error, color.GreenString("✓ exit status 0"))
			} else {
				fmt.Fprintln(color.Error, color.RedString("✗ exit status %d", exitCode))
			}
			if rootConfiguration.notify != "" {
				notify.Send(progName, fmt.Sprintf("%s (exit status %d)", rootConfiguration.notify, exitCode))
			}
		},
	}, log)

	return loop.Run(ctx)
}

// buildPrimaryFilter assembles the operator's --include/--ext/--exclude
// flags plus the built-in ignore set (unless disabled) into a single
// Filter.
func buildPrimaryFilter() (*ignore.Filter, error) {
	include := append([]string{}, rootConfiguration.include...)
	for _, ext := range rootConfiguration.ext {
		include = append(include, "*."+ext)
	}
	for _, pattern := range include {
		if err := ignore.EnsurePatternValid(pattern); err != nil {
			return nil, err
		}
	}

	exclude := append([]string{}, rootConfiguration.exclude...)
	if !rootConfiguration.noDefaultIgnore {
		exclude = append(exclude, ignore.DefaultPatterns...)
	}
	for _, pattern := range rootConfiguration.exclude {
		if err := ignore.EnsurePatternValid(pattern); err != nil {
			return nil, err
		}
	}

	return ignore.New(include, exclude), nil
}

// buildOverrideTable walks each root looking for .gitignore files and
// builds a per-directory OverrideTable, unless --no-vcs-ignore was given.
func buildOverrideTable(roots []string) (*ignore.OverrideTable, error) {
	if rootConfiguration.noVCSIgnore {
		return nil, nil
	}

	var entries []ignore.OverrideEntry
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		err = filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
			if err != nil || !info.IsDir() {
				return nil
			}
			gitignorePath := filepath.Join(path, ".gitignore")
			f, err := os.Open(gitignorePath)
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return fmt.Errorf("%s: %w", gitignorePath, err)
			}
			defer f.Close()

			patterns, err := ignore.ParseGitignore(f)
			if err != nil {
				return fmt.Errorf("%s: %w", gitignorePath, err)
			}
			entries = append(entries, ignore.OverrideEntry{
				Prefix: path,
				Filter: ignore.New(nil, patterns),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return ignore.NewOverrideTable(entries), nil
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
