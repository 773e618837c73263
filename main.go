package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-tflite/delegates"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tflitebridge/capi"
	"tflitebridge/core"
	"tflitebridge/logging"
	"tflitebridge/metrics"
	"tflitebridge/shutdown"
	"tflitebridge/status"
	"tflitebridge/tflite"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// globalFlags are accepted before the command name and override the
// configuration file and environment.
type globalFlags struct {
	configPath string
	envFile    string
	model      string
	threads    int
	format     string
	logLevel   string
	dev        bool
}

func parseGlobalFlags(args []string, stderr io.Writer) (*globalFlags, *flag.FlagSet, error) {
	g := &globalFlags{}
	fs := flag.NewFlagSet("tflitebridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", "", "YAML config file (default $"+core.ConfigPathEnv+")")
	fs.StringVar(&g.envFile, "env", core.DefaultEnvFile, "dotenv file loaded before the environment is read")
	fs.StringVar(&g.model, "model", "", "path to a .tflite model")
	fs.IntVar(&g.threads, "threads", core.DefaultNumThreads, "CPU threads, -1 lets the engine decide")
	fs.StringVar(&g.format, "format", "", "output format: text, json or yaml")
	fs.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&g.dev, "dev", false, "human-readable debug logging")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return g, fs, nil
}

// apply copies every flag that was set on the command line into cfg.
func (g *globalFlags) apply(fs *flag.FlagSet, cfg *core.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.ModelPath = g.model
		case "threads":
			cfg.NumThreads = g.threads
		case "format":
			cfg.OutputFormat = g.format
		case "log-level":
			cfg.LogLevel = g.logLevel
		case "dev":
			cfg.DevMode = g.dev
		}
	})
}

// app is everything a command needs.
type app struct {
	cfg      *core.Config
	logger   *logging.Logger
	runtime  *tflite.Runtime
	metrics  *metrics.Store
	shutdown *shutdown.Manager
	delegate delegates.Delegater
	out      io.Writer
}

// interpreterOptions are the options every command builds interpreters with.
func (a *app) interpreterOptions() tflite.InterpreterOptions {
	o := tflite.InterpreterOptions{}
	if a.delegate != nil {
		o.Delegates = []delegates.Delegater{a.delegate}
	}
	return o
}

func run(args []string, stdout, stderr io.Writer) int {
	g, fs, err := parseGlobalFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return core.ExitCodeSuccess
		}
		return core.ExitCodeUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr, fs)
		return core.ExitCodeUsage
	}
	cmd, ok := lookupCommand(rest[0])
	if !ok {
		printError(stderr, fmt.Errorf("unknown command %q", rest[0]))
		printUsage(stderr, fs)
		return core.ExitCodeUsage
	}
	if cmd.name == "version" {
		fmt.Fprintln(stdout, core.GetFullVersion(capi.Version()))
		return core.ExitCodeSuccess
	}

	cfg, err := core.LoadConfig(g.configPath, g.envFile)
	if err != nil {
		printError(stderr, err)
		return core.ExitCodeUsage
	}
	g.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		printError(stderr, err)
		return core.ExitCodeUsage
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		printError(stderr, fmt.Errorf("initialize logger: %w", err))
		return core.ExitCodeError
	}
	defer func() {
		_ = logger.Sync()
	}()

	if !capi.Available() {
		printError(stderr, status.New("startup", status.KindUnavailable, status.ReasonUnavailable))
		return core.ExitCodeUnavailable
	}

	a, err := newApp(cfg, logger, stdout)
	if err != nil {
		printError(stderr, err)
		return core.ExitCodeError
	}
	a.shutdown.Start()

	cmdErr := cmd.run(a, rest[1:])
	if err := a.shutdown.Shutdown(); err != nil {
		logger.Warn("Cleanup failed", zap.Error(err))
	}

	var code int
	switch {
	case errors.Is(cmdErr, flag.ErrHelp):
		return core.ExitCodeSuccess
	case isUsageError(cmdErr):
		printError(stderr, cmdErr)
		code = core.ExitCodeUsage
	case cmdErr != nil:
		if cfg.OutputFormat == core.FormatText {
			printError(stderr, cmdErr)
		}
		code = a.shutdown.ExitCode(core.ExitCodeError)
	default:
		code = a.shutdown.ExitCode(core.ExitCodeSuccess)
	}
	logExit(logger, code, cmdErr)
	return code
}

// logExit records the exit code. Signal exits are logged as warnings.
func logExit(logger *logging.Logger, code int, err error) {
	fields := []zap.Field{zap.Int("code", code), zap.String("exit", core.ExitCodeName(code))}
	if c := core.GetErrorCode(err); c != "" {
		fields = append(fields, zap.String("error_code", c))
	}
	if core.IsSignalExit(code) {
		logger.Warn("Interrupted", fields...)
		return
	}
	logger.Debug("Exiting", fields...)
}

func newLogger(cfg *core.Config, console io.Writer) (*logging.Logger, error) {
	level := logging.ParseLogLevelString(cfg.LogLevel, zapcore.InfoLevel)
	if cfg.DevMode {
		level = zapcore.DebugLevel
	}
	return logging.NewLoggerWithConfig(logging.Config{
		Level:       level,
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
		File:        logging.DefaultFileWriterConfig(),
		Console:     console,
	})
}

// newApp initializes the engine and registers cleanup. Interpreters are
// released by the runtime before the delegate they use is deleted.
func newApp(cfg *core.Config, logger *logging.Logger, out io.Writer) (*app, error) {
	capi.Init()
	logger.Info("TensorFlow Lite ready",
		zap.String("version", capi.Version()),
		zap.String("model", cfg.ModelPath),
		zap.Int("threads", cfg.NumThreads),
	)

	store := metrics.NewStore(metrics.StoreConfig{HistoryCapacity: cfg.HistoryCapacity}, time.Now())
	rt := tflite.NewRuntime(capi.NewEngine(),
		tflite.WithLogger(logger.Zap().Named("tflite")),
		tflite.WithMetrics(store),
		tflite.WithDefaultThreads(cfg.NumThreads),
	)

	mgr := shutdown.NewManager(context.Background(), logger.Zap().Named("shutdown"))
	mgr.Register("runtime", shutdown.PriorityRuntime, func(context.Context) error {
		stats := rt.Stats()
		logger.Debug("Releasing runtime",
			zap.Int("models", stats.Models),
			zap.Int("interpreters", stats.Interpreters),
			zap.Int("tensors", stats.Tensors),
		)
		return rt.Close()
	})

	a := &app{
		cfg:      cfg,
		logger:   logger,
		runtime:  rt,
		metrics:  store,
		shutdown: mgr,
		out:      out,
	}

	if cfg.Delegate.Library != "" {
		d, err := capi.NewExternalDelegate(cfg.Delegate.Library, cfg.Delegate.Options)
		if err != nil {
			_ = mgr.Shutdown()
			return nil, err
		}
		a.delegate = d
		mgr.Register("delegate", shutdown.PriorityRuntime, func(context.Context) error {
			d.Delete()
			return nil
		})
		logger.Info("External delegate loaded", zap.String("library", cfg.Delegate.Library))
	}

	mgr.Register("metrics", shutdown.PriorityReport, func(context.Context) error {
		sum := store.Summary()
		if sum.Total > 0 {
			logger.Info("Invocation summary",
				zap.Int64("total", sum.Total),
				zap.Int64("errors", sum.Errors),
				zap.Duration("p50", sum.P50),
				zap.Duration("p95", sum.P95),
			)
		}
		return nil
	})
	return a, nil
}

// usageError marks errors caused by bad command line input.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func isUsageError(err error) bool {
	var u usageError
	if errors.As(err, &u) {
		return true
	}
	_, ok := core.IsConfigError(err)
	return ok
}

func printError(w io.Writer, err error) {
	cfgErr, ok := core.IsConfigError(err)
	if !ok {
		color.New(color.FgRed).Fprintf(w, "✗ %s\n", err)
		return
	}
	color.New(color.FgRed).Fprintf(w, "✗ %s\n", cfgErr.Message)
	if cfgErr.Action != "" {
		color.New(color.FgHiBlack).Fprintf(w, "    └─ %s\n", cfgErr.Action)
	}
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "Usage: tflitebridge [flags] <command> [command flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-11s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nFlags:\n")
	fs.PrintDefaults()
}
