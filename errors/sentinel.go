// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Per-task errors. A missing per-task file is non-fatal: the caller skips
// the task and continues. A malformed stat record (ErrParsePerTask) makes
// the caller abort the process.
var (
	// ErrTaskGone indicates a task's /proc entry disappeared between
	// enumeration and probe.
	ErrTaskGone = &DaemonError{
		Kind:   ErrMissingPerTask,
		Detail: "task no longer present in /proc",
	}

	// ErrNoActivityFile indicates /proc/<pid>/activity_time could not be
	// opened, meaning the task does not participate in activity tracking
	// (e.g. init or a kernel thread).
	ErrNoActivityFile = &DaemonError{
		Kind:   ErrMissingPerTask,
		Detail: "activity_time file not present",
	}

	// ErrStatParse indicates /proc/<pid>/stat could not be parsed into
	// the expected field layout.
	ErrStatParse = &DaemonError{
		Kind:   ErrParsePerTask,
		Detail: "malformed /proc/<pid>/stat record",
	}
)

// Infrastructure errors (fatal; abort the process).
var (
	// ErrProcUnavailable indicates /proc itself could not be opened.
	ErrProcUnavailable = &DaemonError{
		Kind:   ErrMissingInfra,
		Detail: "/proc not available",
	}

	// ErrMeminfoUnavailable indicates /proc/meminfo could not be read or
	// did not contain a MemTotal line.
	ErrMeminfoUnavailable = &DaemonError{
		Kind:   ErrMissingInfra,
		Detail: "/proc/meminfo unavailable or missing MemTotal",
	}

	// ErrSharedMemUnavailable indicates the task table's shared-memory
	// segment could not be created, opened, or mapped.
	ErrSharedMemUnavailable = &DaemonError{
		Kind:   ErrMissingInfra,
		Detail: "shared task table unavailable",
	}
)

// Cgroup errors.
var (
	// ErrCgroupMount indicates the tmpfs or memory controller mount
	// failed during hierarchy setup.
	ErrCgroupMount = &DaemonError{
		Kind:   ErrCgroupSetup,
		Detail: "failed to mount cgroup hierarchy",
	}

	// ErrCgroupLimit indicates memory.limit_in_bytes or memory.oom_control
	// could not be written during hierarchy setup.
	ErrCgroupLimit = &DaemonError{
		Kind:   ErrCgroupSetup,
		Detail: "failed to configure cgroup memory limit",
	}

	// ErrCgroupAssign indicates a pid could not be written to a class's
	// tasks file (commonly because the task already exited).
	ErrCgroupAssign = &DaemonError{
		Kind:   ErrCgroupPerTask,
		Detail: "failed to assign pid to cgroup class",
	}
)

// Pressure-event errors.
var (
	// ErrEventSetup indicates eventfd/cgroup.event_control registration
	// failed.
	ErrEventSetup = &DaemonError{
		Kind:   ErrPressureIO,
		Detail: "failed to register memory-pressure event",
	}

	// ErrEventRead indicates a read of the usage file or an eventfd
	// failed during the pressure poll.
	ErrEventRead = &DaemonError{
		Kind:   ErrPressureIO,
		Detail: "failed to read memory-pressure signal",
	}
)

// Config errors.
var (
	// ErrInvalidTimeout indicates a non-positive timeout was configured.
	ErrInvalidTimeout = &DaemonError{
		Kind:   ErrInvalidConfig,
		Detail: "timeout must be positive",
	}

	// ErrInvalidPercent indicates a cgroup memory percent outside (0,100].
	ErrInvalidPercent = &DaemonError{
		Kind:   ErrInvalidConfig,
		Detail: "memory percent must be in (0, 100]",
	}
)
