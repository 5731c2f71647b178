// Package killloop implements the Enforcer's top-level state machine: the
// per-second timeout-kill scan over the shared task table, and — in
// cgroup mode — the pressure-triggered RSS-maximizing kill path.
package killloop

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"lmkd-go/cgroupctl"
	"lmkd-go/classifier"
	lmkderrors "lmkd-go/errors"
	"lmkd-go/procprobe"
	"lmkd-go/tasktable"
)

// Kill delivers SIGKILL to pid. A package-level var so tests can swap in
// a recording stub instead of signalling a real process.
var Kill = func(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

// LockMemory pins all of the Enforcer's future allocations in RAM so the
// killer itself can never be paged out during a low-memory event. Call
// once at startup, before entering Run.
func LockMemory() error {
	if err := unix.Mlockall(unix.MCL_FUTURE); err != nil {
		return lmkderrors.Wrap(err, lmkderrors.ErrMissingInfra, "mlockall")
	}
	return nil
}

// KillLoop holds everything one Enforcer run needs: the shared table, the
// exemption safe-list, the timeout, and — when non-nil — the cgroup
// controller that puts the loop in pressure mode.
type KillLoop struct {
	Table      *tasktable.Table
	Exemptions *classifier.ExemptionList
	Cgroups    *cgroupctl.Controller
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Run executes the KillLoop forever: one timeout-scan iteration, then
// either the cgroup PressureLoop or a plain one-second sleep, until ctx
// is cancelled or an infrastructure error aborts the loop.
func (k *KillLoop) Run(ctx context.Context) error {
	for {
		if err := k.RunIteration(time.Now()); err != nil {
			return err
		}

		if k.Cgroups != nil {
			if err := k.PressureLoop(ctx); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
}

// RunIteration performs one pass of the outer loop body: acquire the
// table lock, rebuild the BgWindow, then walk every slot applying (in
// order) cgroup assignment, the active-task check, the safe-list check,
// the timeout check, the kernel-thread check, and the exemption check,
// killing whatever survives all of them.
func (k *KillLoop) RunIteration(now time.Time) error {
	return k.Table.WithLock(func(v *tasktable.View) error {
		slots := v.Slots()

		var win classifier.BgWindow
		for _, s := range slots {
			if s.Activity == 0 {
				win.Insert(s.Pid, s.ActivityTime)
			}
		}
		win.DebugDump(k.Logger)

		timeoutSecs := int64(k.Timeout / time.Second)

		for _, s := range slots {
			pid := int(s.Pid)

			if k.Cgroups != nil {
				class := classifier.Classify(int(s.TTYNr))
				if err := k.Cgroups.AddPID(class, pid); err != nil {
					// A pid can die between enumeration and
					// assignment; log and keep scanning rather
					// than abort (documented behavior change).
					k.Logger.Debug("cgroup assignment failed", "pid", pid, "err", err)
				}
			}

			if s.Activity == 1 {
				continue
			}
			if win.IsLive(s.Pid) {
				continue
			}

			idle := now.Unix() - s.ActivityTime
			if idle <= timeoutSecs {
				continue
			}

			ti, err := procprobe.ProbeStat(pid)
			if err != nil {
				if lmkderrors.IsKind(err, lmkderrors.ErrParsePerTask) {
					lmkderrors.Abort("lmkd-enforcer", "parse_stat", err)
				}
				continue
			}
			if ti.RSSBytes == 0 {
				continue
			}
			if k.Exemptions.Contains(ti.Name) {
				k.Logger.Debug("skipping exempted task", "pid", pid, "name", ti.Name)
				continue
			}

			rssMiB := ti.RSSBytes / 1024 / 1024
			fmt.Printf("[timeout] killing %d timeout %d secs rss %dMiB (%s)\n", pid, idle, rssMiB, ti.Name)
			k.Logger.Info("timeout kill", "pid", pid, "timeout_secs", idle, "rss_mib", rssMiB, "name", ti.Name)

			if err := Kill(pid); err != nil {
				k.Logger.Debug("kill failed", "pid", pid, "err", err)
			}
		}

		return nil
	})
}
