// Package cgroupctl builds and tears down the cgroup v1 memory-controller
// hierarchy used in cgroup (pressure) mode, assigns tasks to it, and
// registers the memory-threshold eventfd notification protocol that
// drives the Enforcer's PressureLoop.
//
// This package targets cgroup v1's dedicated memory subsystem —
// memory.limit_in_bytes, memory.oom_control, cgroup.event_control, tasks —
// rather than the unified cgroup v2 hierarchy.
package cgroupctl

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	lmkderrors "lmkd-go/errors"
	"lmkd-go/classifier"
	"lmkd-go/procprobe"
)

// Root is the tmpfs mount point the whole hierarchy lives under.
const Root = "/sys/fs/cgroup"

// MemoryRoot is where the memory controller is mounted.
const MemoryRoot = Root + "/memory"

// DefaultDaemonsPercent and DefaultAppsPercent are the memory.limit_in_bytes
// defaults, expressed as a percent of MemTotal, overridable by CLI flags.
const (
	DefaultDaemonsPercent = 10
	DefaultAppsPercent    = 90
)

// Controller owns the cgroup v1 hierarchy for the lifetime of one
// Enforcer run in cgroup mode. It is the Enforcer's sole writer of the
// cgroup filesystem.
type Controller struct {
	fs             afero.Fs
	daemonsPercent int
	appsPercent    int
}

// New returns a Controller that will size the daemons/apps limits at the
// given percentages of MemTotal.
func New(fs afero.Fs, daemonsPercent, appsPercent int) (*Controller, error) {
	if daemonsPercent <= 0 || daemonsPercent > 100 {
		return nil, lmkderrors.ErrInvalidPercent
	}
	if appsPercent <= 0 || appsPercent > 100 {
		return nil, lmkderrors.ErrInvalidPercent
	}
	return &Controller{fs: fs, daemonsPercent: daemonsPercent, appsPercent: appsPercent}, nil
}

// classPath returns /sys/fs/cgroup/memory/<class>.
func classPath(class classifier.Class) string {
	return filepath.Join(MemoryRoot, class.String())
}

// Teardown unwinds the hierarchy in reverse of Init: rmdir the class
// directories, unmount and rmdir the memory controller, unmount the
// tmpfs. It is idempotent — Init calls it first, unconditionally, to
// clean up a stale prior run, so every step tolerates "already gone."
func (c *Controller) Teardown() {
	_ = c.fs.Remove(classPath(classifier.Apps))
	_ = c.fs.Remove(classPath(classifier.Daemons))
	_ = unix.Unmount(MemoryRoot, 0)
	_ = c.fs.Remove(MemoryRoot)
	_ = unix.Unmount(Root, 0)
}

// Init mounts the tmpfs and memory controller, creates the daemons/apps
// child cgroups, sizes their memory.limit_in_bytes off MemTotal, and
// disables the in-kernel OOM killer for both. Teardown runs first,
// unconditionally, matching the source's idempotent "tear down, then
// build" protocol.
func (c *Controller) Init() error {
	c.Teardown()

	memTotal, err := procprobe.MemTotalBytes()
	if err != nil {
		return err
	}

	if err := unix.Mount("none", Root, "tmpfs", 0, ""); err != nil {
		return lmkderrors.Wrap(err, lmkderrors.ErrCgroupSetup, "mount tmpfs")
	}

	// The directory may already exist from a stale run; only a mount
	// failure below is fatal.
	_ = c.fs.MkdirAll(MemoryRoot, 0755)

	if err := unix.Mount("none", MemoryRoot, "cgroup", 0, "memory"); err != nil {
		return lmkderrors.Wrap(err, lmkderrors.ErrCgroupSetup, "mount memory controller")
	}

	// mkdir failures for the class directories are ignored: they may
	// already exist from a stale run (source behavior).
	_ = c.fs.MkdirAll(classPath(classifier.Daemons), 0755)
	_ = c.fs.MkdirAll(classPath(classifier.Apps), 0755)

	if err := c.writeLimit(classifier.Daemons, memTotal, c.daemonsPercent); err != nil {
		return err
	}
	if err := c.writeLimit(classifier.Apps, memTotal, c.appsPercent); err != nil {
		return err
	}

	if err := c.disableOOM(classifier.Daemons); err != nil {
		return err
	}
	if err := c.disableOOM(classifier.Apps); err != nil {
		return err
	}

	return nil
}

func (c *Controller) writeLimit(class classifier.Class, memTotal uint64, percent int) error {
	limit := uint64(float64(percent) / 100 * float64(memTotal))
	path := filepath.Join(classPath(class), "memory.limit_in_bytes")
	if err := afero.WriteFile(c.fs, path, []byte(strconv.FormatUint(limit, 10)), 0644); err != nil {
		return lmkderrors.WrapWithDetail(err, lmkderrors.ErrCgroupSetup, "write memory.limit_in_bytes", class.String())
	}
	return nil
}

func (c *Controller) disableOOM(class classifier.Class) error {
	path := filepath.Join(classPath(class), "memory.oom_control")
	if err := afero.WriteFile(c.fs, path, []byte("1"), 0644); err != nil {
		return lmkderrors.WrapWithDetail(err, lmkderrors.ErrCgroupSetup, "write memory.oom_control", class.String())
	}
	return nil
}

// AddPID writes pid to the class's tasks file. The kernel rejects a dead
// pid with an error; the source treats that as fatal, but per the
// design's documented behavior change the caller here is expected to log
// and continue rather than abort — AddPID simply reports the error.
func (c *Controller) AddPID(class classifier.Class, pid int) error {
	path := filepath.Join(classPath(class), "tasks")
	if err := afero.WriteFile(c.fs, path, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return lmkderrors.WrapWithDetail(err, lmkderrors.ErrCgroupPerTask, "add_pid", fmt.Sprintf("pid %d to %s", pid, class))
	}
	return nil
}

// MemLimitBytes reads memory.limit_in_bytes for the class.
func (c *Controller) MemLimitBytes(class classifier.Class) (int64, error) {
	return c.readInt64(filepath.Join(classPath(class), "memory.limit_in_bytes"))
}

// MemUsageBytes reads memory.usage_in_bytes for the class.
func (c *Controller) MemUsageBytes(class classifier.Class) (int64, error) {
	return c.readInt64(filepath.Join(classPath(class), "memory.usage_in_bytes"))
}

func (c *Controller) readInt64(path string) (int64, error) {
	raw, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return 0, lmkderrors.Wrap(err, lmkderrors.ErrPressureIO, "read "+path)
	}
	var v int64
	if _, err := fmt.Sscanf(string(raw), "%d", &v); err != nil {
		return 0, lmkderrors.Wrap(err, lmkderrors.ErrPressureIO, "parse "+path)
	}
	return v, nil
}
