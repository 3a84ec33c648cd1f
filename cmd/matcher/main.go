package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crossref-matcher/internal/audit"
	"github.com/crossref-matcher/internal/config"
	"github.com/crossref-matcher/internal/db"
	"github.com/crossref-matcher/internal/debug"
	"github.com/crossref-matcher/internal/match"
	"github.com/crossref-matcher/internal/matcher"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath  string
	profilePath string
	envPath     string

	cfg    config.Config
	logger *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command with every subcommand attached
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "matcher",
		Short: "ERP item catalogue cross-reference matcher",
		Long: `Matches item descriptions between two ERP catalogues (for example Protheus and Tasy)
with a weighted blend of string similarity algorithms, and keeps an audit trail of
every run and reviewer decision.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "Matching profile written by 'config save' (overrides the config file's matching section)")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", ".env file to load (default: search .env upwards)")

	// Add subcommands
	rootCmd.AddCommand(createMatchCmd())
	rootCmd.AddCommand(createMatchIDsCmd())
	rootCmd.AddCommand(createCompareCmd())
	rootCmd.AddCommand(createServeCmd())
	rootCmd.AddCommand(createDBCmd())
	rootCmd.AddCommand(createRunsCmd())
	rootCmd.AddCommand(createConfigCmd())
	rootCmd.AddCommand(createVersionCmd())
	return rootCmd
}

// setup loads the environment, configuration and logger shared by every command.
func setup(cmd *cobra.Command, args []string) error {
	var paths []string
	if envPath != "" {
		paths = []string{envPath}
	}
	if _, err := config.LoadEnv(paths...); err != nil {
		return err
	}

	var err error
	if cfg, err = config.Load(configPath); err != nil {
		return err
	}
	if profilePath != "" {
		if cfg.Matching, err = config.LoadMatching(profilePath); err != nil {
			return err
		}
	}

	if logger, err = debug.NewLogger(cfg.Logging.Level, cfg.Logging.Development); err != nil {
		return err
	}
	debug.SetLogger(logger)
	return nil
}

// openTracker connects to the configured database and makes sure the audit
// schema exists.
func openTracker(ctx context.Context) (*audit.Tracker, func(), error) {
	conn, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxConnections)
	if err != nil {
		return nil, nil, err
	}
	tracker := audit.NewTracker(conn, logger)
	tracker.SetDebug(cfg.Matching.Debug)
	if err := tracker.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return tracker, func() { conn.Close() }, nil
}

// newProcessor builds the engine and, when withStore is set, the audit tracker.
func newProcessor(ctx context.Context, withStore bool) (*matcher.BatchProcessor, func(), error) {
	engine, err := match.NewEngine(cfg.EngineConfig(), match.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	if !withStore {
		return matcher.NewBatchProcessor(engine, nil, logger), func() {}, nil
	}
	tracker, closeFn, err := openTracker(ctx)
	if err != nil {
		return nil, nil, err
	}
	return matcher.NewBatchProcessor(engine, tracker, logger), closeFn, nil
}

func createVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "matcher %s\n", version)
		},
	}
}
