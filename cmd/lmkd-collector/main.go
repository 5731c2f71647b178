// lmkd-collector enumerates /proc once per second and publishes the
// resulting task snapshot to the shared task table read by lmkd-enforcer.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	lmkderrors "lmkd-go/errors"
	"lmkd-go/logging"
	"lmkd-go/tasktable"
)

const progName = "lmkd-collector"

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

var (
	flagTableDir  string
	flagLogFormat string
	flagDebug     bool
	flagOnce      bool
)

var rootCmd = &cobra.Command{
	Use:   "lmkd-collector",
	Short: "Publishes a per-second /proc task snapshot to the shared task table",
	Long: `lmkd-collector walks /proc once per second, reads each task's
activity state, last activity time and controlling terminal, and writes
them to the shared task table that lmkd-enforcer reads to make kill
decisions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
	RunE: runCollect,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagTableDir, "table-dir", "", "directory in which to create the shared task table (default: tasktable.DefaultDir)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "log output format (text or json)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagOnce, "once", false, "take a single scan pass and exit, for smoke-testing")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		os.Stdout.WriteString(progName + " version " + Version + "\n")
	},
}

func setupLogging() {
	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	logging.SetDefault(logging.NewLogger(logging.Config{
		Level:  level,
		Format: flagLogFormat,
		Output: os.Stderr,
	}))
}

func getContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString(progName + ": " + err.Error() + "\n")
		os.Exit(1)
	}
}

func runCollect(cmd *cobra.Command, args []string) error {
	logger := logging.Default()

	tableDir := flagTableDir
	if tableDir == "" {
		tableDir = tasktable.DefaultDir
	}
	table, err := tasktable.Create(tableDir, tasktable.DefaultName)
	if err != nil {
		lmkderrors.Abort(progName, "create_table", err)
	}
	defer table.Close()

	if flagOnce {
		if err := tasktable.CollectOnce(table); err != nil {
			return err
		}
		logger.Info("collected one pass")
		return nil
	}

	logger.Info("starting collector", "table_dir", tableDir)
	ctx := getContext()
	if err := tasktable.RunCollector(ctx, table, logger); err != nil {
		if ctx.Err() != nil {
			logger.Info("shutting down")
			return nil
		}
		lmkderrors.Abort(progName, "run_collector", err)
	}
	return nil
}
