// Package tasktable implements the cross-process task registry shared
// between the Collector and the Enforcer: a fixed-capacity table of
// TaskSlot records backed by a memory-mapped file under /dev/shm, guarded
// by a single whole-table lock.
//
// The source's cross-process synchronization primitive is a POSIX
// process-shared semaphore (sem_init(&sem, 1, 1)) embedded at the head of
// the shared-memory region. That ABI is glibc-specific and has no portable
// Go binding, so this package substitutes golang.org/x/sys/unix.Flock over
// a companion lock file: the semaphore here is only ever used as a binary
// mutex around "the whole table," so flock's whole-file exclusive lock is
// an equivalent substitute, not a behavior change.
package tasktable

import (
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"

	lmkderrors "lmkd-go/errors"
)

// MaxNrTasks is the fixed capacity of the shared task table.
const MaxNrTasks = 1000

// DefaultDir is where the shared-memory-backed table file lives — the
// real Linux backing store for POSIX shm objects.
const DefaultDir = "/dev/shm"

// DefaultName is the table's file name, carried over from the source's
// shm_open("/tbulmkd_tasklist", ...) object name.
const DefaultName = "tbulmkd_tasklist"

// TaskSlot is the fixed-size, shared-memory record for one task. Its
// layout is read and written via unsafe pointer arithmetic over the
// mapped region, matching the source's "no portable on-disk format, both
// processes must be built for the same target" contract — here, both
// binaries are built from the same Go module, so the layout is implicitly
// consistent between them.
type TaskSlot struct {
	Pid          int32
	Activity     int32
	TTYNr        int32
	ActivityTime int64
}

var slotSize = int(unsafe.Sizeof(TaskSlot{}))

func tableSize() int { return MaxNrTasks * slotSize }

// Table is a handle onto the mapped shared task table plus its companion
// lock file. It is the "opaque table handle" the design notes call for:
// construction performs the open/ftruncate/mmap sequence, and every read
// or write of slot data must go through WithLock, which releases the lock
// on every exit path, including a panic unwinding through the callback.
type Table struct {
	mem      []byte
	lockFile *os.File
	shmPath  string
	lockPath string
}

// Create unlinks any pre-existing table at dir/name, creates it fresh,
// truncates it to exactly MaxNrTasks slots, maps it, and writes the
// initial sentinel at slot 0. This is the Collector's entry point; the
// Collector is the table's sole writer and sole owner of its lifecycle.
func Create(dir, name string) (*Table, error) {
	shmPath := filepath.Join(dir, name)
	lockPath := shmPath + ".lock"

	_ = os.Remove(shmPath)

	fd, err := unix.Open(shmPath, unix.O_RDWR|unix.O_CREAT, 0600)
	if err != nil {
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrMissingInfra, "shm_open")
	}
	defer unix.Close(fd)

	size := tableSize()
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrMissingInfra, "ftruncate")
	}

	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_LOCKED)
	if err != nil {
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrMissingInfra, "mmap tasklist")
	}

	lockFile, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		_ = unix.Munmap(mem)
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrMissingInfra, "open lock file")
	}

	t := &Table{mem: mem, lockFile: lockFile, shmPath: shmPath, lockPath: lockPath}
	if err := t.WithLock(func(v *View) error {
		v.SetSentinel(0)
		return nil
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// Open maps an existing table created by Create; this is the Enforcer's
// entry point. It never creates or truncates the backing file — the
// Enforcer maps the table read/write but is never its writer.
func Open(dir, name string) (*Table, error) {
	shmPath := filepath.Join(dir, name)
	lockPath := shmPath + ".lock"

	fd, err := unix.Open(shmPath, unix.O_RDWR, 0)
	if err != nil {
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrMissingInfra, "shm_open")
	}
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, 0, tableSize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_LOCKED)
	if err != nil {
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrMissingInfra, "mmap tasklist")
	}

	lockFile, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		_ = unix.Munmap(mem)
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrMissingInfra, "open lock file")
	}

	return &Table{mem: mem, lockFile: lockFile, shmPath: shmPath, lockPath: lockPath}, nil
}

// Close unmaps the table and releases the lock file descriptor. It does
// not remove either backing file; teardown of /dev/shm state is a
// Collector-lifecycle concern, not something every handle closer should
// trigger.
func (t *Table) Close() error {
	err := unix.Munmap(t.mem)
	if cerr := t.lockFile.Close(); err == nil {
		err = cerr
	}
	return err
}

// View is the scoped accessor handed to a WithLock callback. It is only
// valid for the duration of that callback.
type View struct {
	mem []byte
}

func (v *View) slot(i int) *TaskSlot {
	return (*TaskSlot)(unsafe.Pointer(&v.mem[i*slotSize]))
}

// Get returns a copy of slot i.
func (v *View) Get(i int) TaskSlot {
	return *v.slot(i)
}

// Set overwrites slot i.
func (v *View) Set(i int, s TaskSlot) {
	*v.slot(i) = s
}

// SetSentinel marks slot i as the end-of-list sentinel (pid == 0).
func (v *View) SetSentinel(i int) {
	v.slot(i).Pid = 0
}

// Slots returns the logical list of live slots: everything before the
// first pid == 0 sentinel. Per invariant I1, this never exceeds
// MaxNrTasks entries.
func (v *View) Slots() []TaskSlot {
	out := make([]TaskSlot, 0, MaxNrTasks)
	for i := 0; i < MaxNrTasks; i++ {
		s := v.Get(i)
		if s.Pid == 0 {
			break
		}
		out = append(out, s)
	}
	return out
}

// WithLock acquires the whole-table lock, invokes fn with a scoped View,
// and releases the lock unconditionally — including when fn panics, so a
// panicking caller never leaves the table permanently locked.
func (t *Table) WithLock(fn func(v *View) error) error {
	if err := unix.Flock(int(t.lockFile.Fd()), unix.LOCK_EX); err != nil {
		return lmkderrors.Wrap(err, lmkderrors.ErrMissingInfra, "table_lock")
	}
	defer unix.Flock(int(t.lockFile.Fd()), unix.LOCK_UN)

	v := &View{mem: t.mem}
	return fn(v)
}
