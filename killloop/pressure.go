package killloop

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"lmkd-go/cgroupctl"
	"lmkd-go/classifier"
	lmkderrors "lmkd-go/errors"
	"lmkd-go/procprobe"
	"lmkd-go/tasktable"
)

// PollTimeoutMillis is how long PressureLoop waits on the two class
// eventfds before treating the absence of activity as a quiet period and
// returning control to the outer loop.
const PollTimeoutMillis = 1000

// PressureLoop registers the memory-threshold eventfd watch for both
// classes, then polls until a full PollTimeoutMillis window passes with
// no event: for every class that signalled, it drains the eventfd and
// kills the RSS-maximizing candidate of that class repeatedly, sleeping a
// second between kills, until usage drops back under the threshold.
func (k *KillLoop) PressureLoop(ctx context.Context) error {
	classes := []classifier.Class{classifier.Daemons, classifier.Apps}

	thresholds := make(map[classifier.Class]*cgroupctl.MemThreshold, len(classes))
	for _, class := range classes {
		th, err := k.Cgroups.SetupEvents(class)
		if err != nil {
			return err
		}
		thresholds[class] = th
	}
	defer func() {
		for _, th := range thresholds {
			cgroupctl.CleanupEvents(th)
		}
	}()

	pollfds := make([]unix.PollFd, len(classes))
	for i, class := range classes {
		pollfds[i] = unix.PollFd{Fd: int32(thresholds[class].EventFd), Events: unix.POLLIN}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := unix.Poll(pollfds, PollTimeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return lmkderrors.Wrap(err, lmkderrors.ErrPressureIO, "poll")
		}
		if n == 0 {
			return nil
		}

		for i, pfd := range pollfds {
			if pfd.Revents&unix.POLLIN == 0 {
				continue
			}
			class := classes[i]
			th := thresholds[class]

			if err := cgroupctl.ProcessEvent(th); err != nil {
				return err
			}

			if err := k.drainPressure(class, th); err != nil {
				return err
			}
		}
	}
}

// drainPressure kills the heaviest task of class, one at a time with a
// one-second pause between kills, until usage falls back under the
// class's threshold.
func (k *KillLoop) drainPressure(class classifier.Class, th *cgroupctl.MemThreshold) error {
	for {
		usage, err := k.Cgroups.MemUsageBytes(class)
		if err != nil {
			return err
		}
		if usage < th.MemLimitBytes {
			return nil
		}

		pid, rss := k.selectRSSMax(class)
		if pid == 0 {
			continue
		}

		ti, err := procprobe.ProbeStat(pid)
		if err != nil {
			if lmkderrors.IsKind(err, lmkderrors.ErrParsePerTask) {
				lmkderrors.Abort("lmkd-enforcer", "parse_stat", err)
			}
			continue
		}

		rssMiB := rss / 1024 / 1024
		fmt.Printf("[cgroups] killing %d rss %dMiB (%s)\n", pid, rssMiB, ti.Name)
		k.Logger.Info("pressure kill", "pid", pid, "rss_mib", rssMiB, "name", ti.Name, "class", class.String())

		if err := Kill(pid); err != nil {
			k.Logger.Debug("kill failed", "pid", pid, "err", err)
		}

		time.Sleep(1 * time.Second)
	}
}

// selectRSSMax scans the table under lock for the RSS-maximizing
// candidate of class, skipping tasks of the other class. Ties keep the
// first pid seen, matching table order.
func (k *KillLoop) selectRSSMax(class classifier.Class) (pid int, rssBytes uint64) {
	_ = k.Table.WithLock(func(v *tasktable.View) error {
		for _, s := range v.Slots() {
			if classifier.Classify(int(s.TTYNr)) != class {
				continue
			}
			ti, err := procprobe.ProbeStat(int(s.Pid))
			if err != nil {
				if lmkderrors.IsKind(err, lmkderrors.ErrParsePerTask) {
					lmkderrors.Abort("lmkd-enforcer", "parse_stat", err)
				}
				continue
			}
			if ti.RSSBytes > rssBytes {
				rssBytes = ti.RSSBytes
				pid = int(s.Pid)
			}
		}
		return nil
	})
	return pid, rssBytes
}
