package cgroupctl

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"

	"lmkd-go/classifier"
	lmkderrors "lmkd-go/errors"
)

// ThresholdMargin is subtracted from memory.limit_in_bytes to compute the
// eventfd trigger threshold, giving the Enforcer a chance to react before
// the cgroup is completely exhausted.
const ThresholdMargin = 6 << 20 // 6 MiB

// MemThreshold holds the file descriptors backing one class's
// memory-pressure notification: the read-only usage file, the write-only
// event_control file used to register the watch, and the eventfd the
// kernel signals on crossing MemLimitBytes.
type MemThreshold struct {
	Class        classifier.Class
	MemLimitBytes int64
	UsageFd       int
	CtrlFd        int
	EventFd       int
}

// SetupEvents registers a memory-threshold watch for class: it computes
// the trigger threshold (limit − ThresholdMargin), opens usage_in_bytes
// and cgroup.event_control, creates a non-blocking eventfd, and writes
// the "<eventfd> <usage_fd> <threshold>\0" registration string — the
// exact wire format the kernel's cgroup v1 memory controller expects.
func (c *Controller) SetupEvents(class classifier.Class) (*MemThreshold, error) {
	limit, err := c.MemLimitBytes(class)
	if err != nil {
		return nil, err
	}
	threshold := limit - ThresholdMargin

	usagePath := filepath.Join(classPath(class), "memory.usage_in_bytes")
	usageFd, err := unix.Open(usagePath, unix.O_RDONLY, 0)
	if err != nil {
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrPressureIO, "open usage_in_bytes")
	}

	ctrlPath := filepath.Join(classPath(class), "cgroup.event_control")
	ctrlFd, err := unix.Open(ctrlPath, unix.O_WRONLY, 0)
	if err != nil {
		unix.Close(usageFd)
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrPressureIO, "open event_control")
	}

	evtFd, err := unix.Eventfd(0, 0)
	if err != nil {
		unix.Close(usageFd)
		unix.Close(ctrlFd)
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrPressureIO, "eventfd")
	}
	if err := unix.SetNonblock(evtFd, true); err != nil {
		unix.Close(usageFd)
		unix.Close(ctrlFd)
		unix.Close(evtFd)
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrPressureIO, "fcntl eventfd nonblock")
	}

	ctl := fmt.Sprintf("%d %d %d", evtFd, usageFd, threshold)
	// The kernel's registration parser requires the trailing NUL, so the
	// write must cover strlen(ctl)+1 bytes, not just the string itself.
	if _, err := unix.Write(ctrlFd, append([]byte(ctl), 0)); err != nil {
		unix.Close(usageFd)
		unix.Close(ctrlFd)
		unix.Close(evtFd)
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrPressureIO, "write event_control")
	}

	return &MemThreshold{
		Class:         class,
		MemLimitBytes: threshold,
		UsageFd:       usageFd,
		CtrlFd:        ctrlFd,
		EventFd:       evtFd,
	}, nil
}

// CleanupEvents closes the three descriptors opened by SetupEvents.
func CleanupEvents(t *MemThreshold) {
	unix.Close(t.EventFd)
	unix.Close(t.CtrlFd)
	unix.Close(t.UsageFd)
}

// ProcessEvent drains the 8-byte counter the kernel wrote to t.EventFd on
// a threshold crossing. The counter's value carries no information beyond
// "at least one crossing happened" and is discarded.
func ProcessEvent(t *MemThreshold) error {
	var buf [8]byte
	if _, err := unix.Read(t.EventFd, buf[:]); err != nil {
		return lmkderrors.Wrap(err, lmkderrors.ErrPressureIO, "read eventfd")
	}
	return nil
}
