package tasktable

import (
	"context"
	"log/slog"
	"time"

	lmkderrors "lmkd-go/errors"
	"lmkd-go/procprobe"
)

// CollectOnce performs one Collector scan pass: enumerate /proc, probe
// each task, and overwrite the shared table under the whole-table lock.
// Ordering is preserved relative to /proc enumeration order within this
// pass; across passes the table is not guaranteed stable, by design (the
// Enforcer keys off pid, never slot position).
func CollectOnce(t *Table) error {
	pids, err := procprobe.ListPIDs()
	if err != nil {
		return err
	}

	return t.WithLock(func(v *View) error {
		i := 0
		for _, pid := range pids {
			ti, err := procprobe.ProbeFull(pid)
			if err != nil {
				if lmkderrors.IsKind(err, lmkderrors.ErrParsePerTask) {
					lmkderrors.Abort("lmkd-collector", "parse_stat", err)
				}
				// Non-fatal: the task vanished or never exposed
				// activity tracking. Skip it and keep scanning.
				continue
			}
			if i >= MaxNrTasks {
				break
			}
			v.Set(i, TaskSlot{
				Pid:          int32(ti.PID),
				Activity:     int32(ti.Activity),
				TTYNr:        int32(ti.TTYNr),
				ActivityTime: ti.ActivityTime,
			})
			i++
		}
		if i < MaxNrTasks {
			v.SetSentinel(i)
		}
		return nil
	})
}

// RunCollector runs CollectOnce once per second until ctx is cancelled or
// a pass returns a fatal error (an unopenable /proc is infrastructure
// failure, not a per-task one — see errors.ErrMissingInfra).
func RunCollector(ctx context.Context, t *Table, logger *slog.Logger) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		if err := CollectOnce(t); err != nil {
			return err
		}
		logger.Debug("collector pass complete")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
