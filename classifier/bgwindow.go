package classifier

import "log/slog"

// MaxLiveBgTasks is the size of the rolling "most recently active
// background tasks" safe-list window (BgWindow).
const MaxLiveBgTasks = 6

type bgEntry struct {
	pid          int32
	activityTime int64
}

// BgWindow is the bounded, descending-by-activity_time window of the
// MaxLiveBgTasks most recently active background tasks. It is rebuilt
// from scratch at the start of every scan: construct a zero-value
// BgWindow and call Insert once per background slot in table order.
type BgWindow struct {
	entries [MaxLiveBgTasks]bgEntry
}

// Insert offers one background task's (pid, activityTime) to the window.
// It scans from index 0 and, at the first position where activityTime is
// strictly greater than the entry already there, shifts the remaining
// entries right by one and writes the new entry in place — an insertion
// sort that keeps the window sorted descending on activityTime and
// retains only the top MaxLiveBgTasks. Foreground tasks (activity == 1)
// must not be passed to Insert; the window only ever tracks background
// candidates.
func (w *BgWindow) Insert(pid int32, activityTime int64) {
	for j := 0; j < MaxLiveBgTasks; j++ {
		if activityTime <= w.entries[j].activityTime {
			continue
		}
		for k := MaxLiveBgTasks - 1; k > j; k-- {
			w.entries[k] = w.entries[k-1]
		}
		w.entries[j] = bgEntry{pid: pid, activityTime: activityTime}
		break
	}
}

// IsLive reports whether pid currently occupies a slot in the window —
// i.e. whether it is immune to timeout kill this iteration.
func (w *BgWindow) IsLive(pid int32) bool {
	for _, e := range w.entries {
		if e.pid == pid {
			return true
		}
	}
	return false
}

// DebugDump logs each slot of the window at debug level, mirroring the
// source's DEBUG-gated print_bg_tasks. Intended to be called once per scan
// iteration, right after the window is rebuilt.
func (w *BgWindow) DebugDump(logger *slog.Logger) {
	logger.Debug("live background tasks")
	for i, e := range w.entries {
		logger.Debug("bg task slot", "index", i, "pid", e.pid, "activity_time", e.activityTime)
	}
}
