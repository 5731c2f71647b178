package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"lmkd-go/classifier"
	"lmkd-go/procprobe"
	"lmkd-go/tasktable"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Dump the shared task table",
	Long:  `Take one read-only pass over the shared task table and print each task's classification and liveness, without applying any kill policy.`,
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	tableDir := flagTableDir
	if tableDir == "" {
		tableDir = tasktable.DefaultDir
	}
	table, err := tasktable.Open(tableDir, tasktable.DefaultName)
	if err != nil {
		return err
	}
	defer table.Close()

	exemptions, err := classifier.LoadExemptions(afero.NewOsFs(), flagExemptionsPath)
	if err != nil {
		return err
	}

	now := time.Now()

	return table.WithLock(func(v *tasktable.View) error {
		slots := v.Slots()

		var win classifier.BgWindow
		for _, s := range slots {
			if s.Activity == 0 {
				win.Insert(s.Pid, s.ActivityTime)
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "PID\tNAME\tCLASS\tACTIVE\tLIVE\tIDLE_SECS\tRSS_MIB\tEXEMPT")
		for _, s := range slots {
			ti, err := procprobe.ProbeStat(int(s.Pid))
			name := "?"
			rssMiB := uint64(0)
			if err == nil {
				name = ti.Name
				rssMiB = ti.RSSBytes / 1024 / 1024
			}

			fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\t%d\t%d\t%t\n",
				s.Pid, name, classifier.Classify(int(s.TTYNr)),
				s.Activity == 1, win.IsLive(s.Pid),
				now.Unix()-s.ActivityTime, rssMiB, exemptions.Contains(name))
		}
		return w.Flush()
	})
}
