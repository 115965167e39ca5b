package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"tbr/config"
	"tbr/misc"
	"tbr/state"
)

// initializeAppContext prepares application context before command execution
// but after command line has been parsed
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error

	if cmd.NArg() == 0 {
		// nothing to do, just return
		return ctx, nil
	}

	env := state.EnvFromContext(ctx)

	configFile := cmd.String("config")
	if env.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		env.Cfg.Logging.ConsoleLogger.Level = "debug"
	}
	if env.Log, err = env.Cfg.Logging.Prepare(); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.RedirectStdLog()

	if cmd.Bool("vertical") {
		env.Vertical = true
	}
	if name := cmd.String("force-zip-cp"); len(name) > 0 {
		enc, err := ianaindex.IANA.Encoding(name)
		if err != nil || enc == nil {
			return ctx, fmt.Errorf("unsupported zip file names encoding '%s': %w", name, err)
		}
		env.CodePage = enc
	}

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", misc.GetVersion()), zap.String("runtime", runtime.Version()), zap.String("hash", misc.GetGitHash()))

	if len(configFile) == 0 && env.Log != nil {
		env.Log.Info("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	}

	// close logging
	env.RestoreStdLog()

	// log is synced now, errors must be reported directly to stderr from now on
	if env.Cfg != nil && len(env.Cfg.Logging.FileLogger.Destination) > 0 {
		debug.SetCrashOutput(nil, debug.CrashOptions{})
		fname := filepath.Join(filepath.Dir(env.Cfg.Logging.FileLogger.Destination), misc.GetAppName()+"-panic.log")
		if fi, er := os.Stat(fname); er == nil && fi.Size() == 0 {
			if er := os.Remove(fname); er != nil {
				err = multierr.Append(err, fmt.Errorf("unable to remove empty panic log file '%s': %w", fname, er))
			}
		}
	}
	return
}

// Ignore urfave/cli default error handling - cli.Exit() looks non-transparent
// and unnecessary. Subcommands return regular errors.
var errWasHandled bool

// this is called before appContext is destroyed, so we have a chance to
// properly log any error from subcommand
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	// do nothing special, error is reported either by exitErrHandler or on
	// exit directly to stderr.
	return err
}

func subcommandNotFoundHandler(ctx context.Context, _ *cli.Command, name string) {
	state.EnvFromContext(ctx).Log.Warn("Unknown command, nothing to do", zap.String("command", name))
}

func main() {

	// allow graceful shutdown on interrupt so background search scans and
	// the state database close cleanly
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            misc.GetAppName(),
		Usage:           "terminal book reader for TXT, HTML, EPUB and Haodoo files",
		Version:         misc.GetVersion() + " (" + runtime.Version() + ") : " + misc.GetGitHash(),
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		CommandNotFound: subcommandNotFoundHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, DefaultText: "", Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "verbose console logging to help troubleshooting"},
			&cli.BoolFlag{Name: "vertical", Usage: "lay text out top-to-bottom, right-to-left"},
			&cli.StringFlag{Name: "force-zip-cp",
				Usage: "Force `ENCODING` for ALL non UTF-8 file names in processed archives (see IANA.org for character set names)"},
		},
		Commands: []*cli.Command{
			{
				Name:         "info",
				Usage:        "Prints book metadata, chapter list and table of contents",
				OnUsageError: usageErrorHandler,
				Action:       runInfo,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "index", Value: -1, Usage: "book `NUMBER` to pick when the archive holds several"},
					&cli.BoolFlag{Name: "outline", Usage: "also print the parsed block and run structure of every chapter"},
				},
				ArgsUsage: "FILE",
			},
			{
				Name:         "dump",
				Usage:        "Paginates the book and writes pages to stdout or a file",
				OnUsageError: usageErrorHandler,
				Action:       runDump,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "width", Usage: "viewport width in `CELLS` (0 takes the configured value)"},
					&cli.IntFlag{Name: "height", Usage: "viewport height in `CELLS` (0 takes the configured value)"},
					&cli.IntFlag{Name: "index", Value: -1, Usage: "book `NUMBER` to pick when the archive holds several"},
					&cli.IntFlag{Name: "chapter", Value: -1, Usage: "dump a single chapter `NUMBER` instead of the whole book"},
					&cli.IntFlag{Name: "pages", Usage: "stop after `N` pages (0 dumps everything)"},
					&cli.BoolFlag{Name: "resume", Usage: "start from the position saved in the state database"},
				},
				ArgsUsage: "FILE [DESTINATION]",
			},
			{
				Name:         "search",
				Usage:        "Finds pattern occurrences and prints positions with snippets",
				OnUsageError: usageErrorHandler,
				Action:       runSearch,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "regex", Aliases: []string{"e"}, Usage: "treat PATTERN as a regular expression instead of a literal"},
					&cli.BoolFlag{Name: "case", Usage: "match case exactly"},
					&cli.BoolFlag{Name: "word", Aliases: []string{"w"}, Usage: "match whole words only"},
					&cli.BoolFlag{Name: "backward", Usage: "scan from the end of the book"},
					&cli.IntFlag{Name: "index", Value: -1, Usage: "book `NUMBER` to pick when the archive holds several"},
					&cli.IntFlag{Name: "limit", Value: 0, Usage: "stop after `N` matches (0 reports everything)"},
				},
				ArgsUsage: "FILE PATTERN",
			},
			{
				Name:         "recent",
				Usage:        "Lists recently opened books with saved positions",
				OnUsageError: usageErrorHandler,
				Action:       runRecent,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "show at most `N` entries"},
				},
			},
			{
				Name:  "dumpconfig",
				Usage: "Dumps either default or actual configuration (YAML)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
				},
				OnUsageError: usageErrorHandler,
				Action:       outputConfiguration,
				ArgsUsage:    "DESTINATION",
			},
		},
	}

	var err error
	// NOTE: os.Exit is called at the end of main to set exit code, make sure
	// there are no other deferred functions after that
	defer func() {
		stop()
		if err != nil {
			// It may happen that log is either not set yet (argument parsing)
			// or already closed, report errors to stderr directly
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) error {

	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	fname := cmd.Args().Get(0)

	var (
		err   error
		data  []byte
		state string
	)

	out := os.Stdout
	if len(fname) > 0 {
		out, err = os.Create(fname)
		if err != nil {
			return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
		}
		defer out.Close()
	}

	if cmd.Bool("default") {
		state = "default"
		data, err = config.Prepare()
	} else {
		state = "actual"
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	if len(fname) == 0 {
		fname = "STDOUT"
	}
	env.Log.Info("Outputing configuration", zap.String("state", state), zap.String("file", fname))

	if _, err = out.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
