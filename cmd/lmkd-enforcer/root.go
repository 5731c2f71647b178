// lmkd-enforcer reads the shared task table and kills background tasks that
// overstay their timeout or push a cgroup class over its memory threshold.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lmkd-go/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// Persistent flags.
var (
	flagAppsPercent    int
	flagDaemonsPercent int
	flagCgroups        bool
	flagTimeoutSecs    int
	flagExemptionsPath string
	flagTableDir       string
	flagLogFormat      string
	flagDebug          bool
)

var rootCmd = &cobra.Command{
	Use:   "lmkd-enforcer",
	Short: "Low-memory enforcer: kills background tasks under memory pressure",
	Long: `lmkd-enforcer reads the task table published by lmkd-collector and
kills background tasks that have overstayed their timeout, or — in cgroup
mode — that push a task class over its configured memory threshold.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
	RunE: runEnforce,
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&flagAppsPercent, "apps", "a", 90, "percent of total RAM allotted to the apps cgroup")
	rootCmd.PersistentFlags().IntVarP(&flagDaemonsPercent, "daemons", "d", 10, "percent of total RAM allotted to the daemons cgroup")
	rootCmd.PersistentFlags().BoolVarP(&flagCgroups, "cgroups", "c", false, "enable cgroup-based memory pressure enforcement")
	rootCmd.PersistentFlags().IntVarP(&flagTimeoutSecs, "timeout", "t", 60, "seconds a background task may go idle before it is killed")
	rootCmd.PersistentFlags().StringVar(&flagExemptionsPath, "exemptions", "/etc/lmkd/exemptions.cfg", "path to the task-name exemption list")
	rootCmd.PersistentFlags().StringVar(&flagTableDir, "table-dir", "", "directory containing the shared task table (default: tasktable.DefaultDir)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "log output format (text or json)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func setupLogging() {
	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	logger := logging.NewLogger(logging.Config{
		Level:  level,
		Format: flagLogFormat,
		Output: os.Stderr,
	})
	logging.SetDefault(logger)
}

// getContext returns a context cancelled on SIGINT/SIGTERM.
func getContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}
