package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tonimelisma/tripletsync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagLocalRoot  string
	flagRemoteRoot string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// CLIFlags is a snapshot of the global flags for one invocation.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext carries everything a subcommand needs. It is built once in
// PersistentPreRunE and stored in the command context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger

	logFile io.Closer
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// cliContextFrom returns the CLIContext stored in ctx, or nil.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext returns the CLIContext or panics. Every RunE runs after
// PersistentPreRunE, so a missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not set; PersistentPreRunE did not run")
	}

	return cc
}

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tripletsync",
		Short:   "Reconcile a local folder with a remote repository",
		Long:    "Keep a local folder and a remote repository in sync by comparing every item with its last synced state.",
		Version: version,
		// Errors and usage are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupCLIContext(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if cc := cliContextFrom(cmd.Context()); cc != nil && cc.logFile != nil {
				return cc.logFile.Close()
			}

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "config file path")
	pf.StringVar(&flagLocalRoot, "local", "", "local sync root (overrides sync.local_root)")
	pf.StringVar(&flagRemoteRoot, "remote", "", "remote repository root (overrides sync.remote_root)")
	pf.BoolVar(&flagJSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable info logging")
	pf.BoolVar(&flagDebug, "debug", false, "enable debug logging")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "only log errors")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	cmd.MarkFlagsMutuallyExclusive("debug", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConflictsCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func currentFlags() CLIFlags {
	return CLIFlags{
		ConfigPath: flagConfigPath,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Debug:      flagDebug,
		Quiet:      flagQuiet,
	}
}

// setupCLIContext resolves the configuration, builds the final logger and
// stores the CLIContext in the command context.
func setupCLIContext(cmd *cobra.Command) error {
	flags := currentFlags()
	cc := &CLIContext{Flags: flags, Logger: bootstrapLogger(flags)}

	resolved, err := loadConfig(cmd, cc.Logger)
	if err != nil {
		return err
	}

	cc.Cfg = resolved

	logger, closer, err := buildLogger(&resolved.Logging, flags)
	if err != nil {
		return err
	}

	cc.Logger, cc.logFile = logger, closer

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(withCLIContext(ctx, cc))

	return nil
}

// loadConfig resolves the effective configuration from the four-layer
// override chain. Only flags the user actually set take part.
func loadConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Resolved, error) {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}
	flags := cmd.Flags()

	if flags.Changed("local") {
		cli.LocalRoot = &flagLocalRoot
	}

	if flags.Changed("remote") {
		cli.RemoteRoot = &flagRemoteRoot
	}

	if flags.Changed("direction") {
		v, err := flags.GetString("direction")
		if err != nil {
			return nil, err
		}

		cli.Direction = &v
	}

	if flags.Changed("concurrency") {
		v, err := flags.GetInt("concurrency")
		if err != nil {
			return nil, err
		}

		cli.Concurrency = &v
	}

	if flags.Changed("dry-run") {
		v, err := flags.GetBool("dry-run")
		if err != nil {
			return nil, err
		}

		cli.DryRun = &v
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(logger), cli, logger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// flagLevel returns the level requested on the command line, if any.
func flagLevel(flags CLIFlags) (slog.Level, bool) {
	switch {
	case flags.Debug:
		return slog.LevelDebug, true
	case flags.Verbose:
		return slog.LevelInfo, true
	case flags.Quiet:
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// bootstrapLogger is used until the configuration is loaded. It logs
// warnings and above unless a flag asks for something else.
func bootstrapLogger(flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn
	if l, ok := flagLevel(flags); ok {
		level = l
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildLogger creates the logger for a command. The config file provides
// the baseline level; CLI flags always win. With log_file set, output goes
// to a rotating file and the returned closer must be closed.
func buildLogger(cfg *config.LoggingConfig, flags CLIFlags) (*slog.Logger, io.Closer, error) {
	if cfg == nil {
		def := config.DefaultConfig().Logging
		cfg = &def
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	if l, ok := flagLevel(flags); ok {
		level = l
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer
		tty    = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	)

	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogRetentionDays,
		}

		w, closer, tty = rotating, rotating, false
	}

	return slog.New(newLogHandler(w, cfg.LogFormat, tty, level)), closer, nil
}

// newLogHandler picks the handler for format; "auto" means text on a
// terminal and JSON otherwise.
func newLogHandler(w io.Writer, format string, tty bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	switch {
	case format == "json", format == "auto" && !tty:
		return slog.NewJSONHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
