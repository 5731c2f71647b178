package main

import (
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"lmkd-go/cgroupctl"
	"lmkd-go/classifier"
	lmkderrors "lmkd-go/errors"
	"lmkd-go/killloop"
	"lmkd-go/logging"
	"lmkd-go/tasktable"
)

const progName = "lmkd-enforcer"

func main() {
	if err := Execute(); err != nil {
		os.Stderr.WriteString(progName + ": " + err.Error() + "\n")
		os.Exit(1)
	}
}

func runEnforce(cmd *cobra.Command, args []string) error {
	ctx := getContext()
	logger := logging.Default()

	logger.Info("starting enforcer",
		"apps_percent", flagAppsPercent,
		"daemons_percent", flagDaemonsPercent,
		"cgroups", flagCgroups,
		"timeout_secs", flagTimeoutSecs)

	exemptions, err := classifier.LoadExemptions(afero.NewOsFs(), flagExemptionsPath)
	if err != nil {
		return lmkderrors.Wrap(err, lmkderrors.ErrInvalidConfig, "load_exemptions")
	}
	logger.Info("loaded exemption list", "count", exemptions.Len())
	exemptions.DebugDump(logger)

	tableDir := flagTableDir
	if tableDir == "" {
		tableDir = tasktable.DefaultDir
	}
	table, err := tasktable.Open(tableDir, tasktable.DefaultName)
	if err != nil {
		lmkderrors.Abort(progName, "open_table", err)
	}
	defer table.Close()

	var cgroups *cgroupctl.Controller
	if flagCgroups {
		cgroups, err = cgroupctl.New(afero.NewOsFs(), flagDaemonsPercent, flagAppsPercent)
		if err != nil {
			return lmkderrors.Wrap(err, lmkderrors.ErrInvalidConfig, "new_cgroup_controller")
		}
		if err := cgroups.Init(); err != nil {
			lmkderrors.Abort(progName, "init_cgroups", err)
		}
		defer cgroups.Teardown()
	}

	if err := killloop.LockMemory(); err != nil {
		logger.Warn("mlockall failed, continuing unlocked", "err", err)
	}

	loop := &killloop.KillLoop{
		Table:      table,
		Exemptions: exemptions,
		Cgroups:    cgroups,
		Timeout:    time.Duration(flagTimeoutSecs) * time.Second,
		Logger:     logger,
	}

	if err := loop.Run(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info("shutting down")
			return nil
		}
		lmkderrors.Abort(progName, "kill_loop", err)
	}
	return nil
}
