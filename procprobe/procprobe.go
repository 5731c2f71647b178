// Package procprobe reads per-task identity, accounting, and activity state
// out of the /proc pseudo-filesystem.
//
// Every read goes through FS, an afero.Fs, so callers can substitute an
// afero.NewMemMapFs() in tests instead of touching the real kernel-backed
// /proc. Production code never changes FS; it stays afero.NewOsFs().
package procprobe

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	lmkderrors "lmkd-go/errors"
)

// FS is the filesystem /proc is read through. Tests may replace it with an
// afero.NewMemMapFs() populated with synthetic /proc/<pid>/* entries.
var FS afero.Fs = afero.NewOsFs()

// Root is the path /proc is mounted at. Overridable in tests so a MemMapFs
// layout doesn't have to mirror the real kernel mount point.
var Root = "/proc"

// pageSize is sysconf(_SC_PAGESIZE) on this system; rss is reported by the
// kernel in pages and must be scaled to bytes.
var pageSize = unix.Getpagesize()

// TaskInfo is a transient, per-scan snapshot of one task's identity and
// accounting, as reconstructed from /proc/<pid>/{stat,activity,activity_time}.
type TaskInfo struct {
	// PID is the process ID this record describes.
	PID int
	// Name is the task's image name as reported by the kernel, with the
	// stat record's wrapping parentheses stripped.
	Name string
	// TTYNr is the controlling terminal's device number; 0 means none.
	TTYNr int
	// RSSBytes is the resident set size, in bytes (rss pages × page size).
	RSSBytes uint64
	// Activity is 1 for foreground, 0 for background.
	Activity int
	// ActivityTime is the epoch-seconds timestamp of the last activity
	// transition.
	ActivityTime int64
}

// ProbeFull reads all three files for pid and returns a complete TaskInfo.
// It returns a wrapped errors.ErrTaskGone (ErrMissingPerTask) if
// activity_time cannot be opened — the task is not participating in
// activity tracking (init, a kernel thread, or a task that simply exited).
// If activity_time opens but stat or activity is then missing, that
// violates the kernel's contract that a task exposing activity_time also
// exposes the other two files, and is reported as ErrStatParse rather than
// silently skipped.
func ProbeFull(pid int) (TaskInfo, error) {
	dir := Root + "/" + strconv.Itoa(pid)

	activityTimeRaw, err := afero.ReadFile(FS, dir+"/activity_time")
	if err != nil {
		return TaskInfo{}, lmkderrors.WrapWithDetail(err, lmkderrors.ErrMissingPerTask, "probe_full", "activity_time not present")
	}
	activityTime, err := parseInt(activityTimeRaw)
	if err != nil {
		return TaskInfo{}, lmkderrors.WrapWithDetail(err, lmkderrors.ErrParsePerTask, "probe_full", "malformed activity_time")
	}

	activityRaw, err := afero.ReadFile(FS, dir+"/activity")
	if err != nil {
		return TaskInfo{}, lmkderrors.WrapWithDetail(err, lmkderrors.ErrParsePerTask, "probe_full", "activity_time present but activity missing")
	}
	activity, err := parseInt(activityRaw)
	if err != nil {
		return TaskInfo{}, lmkderrors.WrapWithDetail(err, lmkderrors.ErrParsePerTask, "probe_full", "malformed activity")
	}

	statRaw, err := afero.ReadFile(FS, dir+"/stat")
	if err != nil {
		return TaskInfo{}, lmkderrors.WrapWithDetail(err, lmkderrors.ErrParsePerTask, "probe_full", "activity_time present but stat missing")
	}
	name, ttyNr, rssPages, err := parseStat(statRaw)
	if err != nil {
		return TaskInfo{}, lmkderrors.Wrap(err, lmkderrors.ErrParsePerTask, "probe_full")
	}

	return TaskInfo{
		PID:          pid,
		Name:         name,
		TTYNr:        ttyNr,
		RSSBytes:     rssPages * uint64(pageSize),
		Activity:     activity,
		ActivityTime: activityTime,
	}, nil
}

// ProbeStat reads only /proc/<pid>/stat, leaving Activity and ActivityTime
// zero. Used on the pressure path, where only name/tty/rss are needed.
func ProbeStat(pid int) (TaskInfo, error) {
	dir := Root + "/" + strconv.Itoa(pid)

	statRaw, err := afero.ReadFile(FS, dir+"/stat")
	if err != nil {
		return TaskInfo{}, lmkderrors.WrapWithDetail(err, lmkderrors.ErrMissingPerTask, "probe_stat", "task no longer present")
	}
	name, ttyNr, rssPages, err := parseStat(statRaw)
	if err != nil {
		return TaskInfo{}, lmkderrors.Wrap(err, lmkderrors.ErrParsePerTask, "probe_stat")
	}

	return TaskInfo{
		PID:      pid,
		Name:     name,
		TTYNr:    ttyNr,
		RSSBytes: rssPages * uint64(pageSize),
	}, nil
}

func parseInt(raw []byte) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
}

// parseStat extracts the command name (field 2), tty_nr (field 7), and rss
// in pages (field 24) from a raw /proc/<pid>/stat record.
//
// Field 2 is parenthesized and may itself contain spaces or parentheses
// (e.g. a thread named "(bash (test))"), so the name boundary is found by
// locating the first '(' and the *last* ')' in the line, rather than
// splitting naively on whitespace. Everything after the closing paren is
// then tokenized by whitespace to reach the fixed-offset numeric fields.
func parseStat(raw []byte) (name string, ttyNr int, rssPages uint64, err error) {
	line := string(raw)

	open := strings.IndexByte(line, '(')
	shut := strings.LastIndexByte(line, ')')
	if open < 0 || shut < 0 || shut < open {
		return "", 0, 0, lmkderrors.ErrStatParse
	}
	name = line[open+1 : shut]

	rest := strings.Fields(line[shut+1:])
	// rest[0] is field 3 (state); field 7 is rest[4], field 24 is rest[21].
	const (
		ttyField = 4
		rssField = 21
	)
	if len(rest) <= rssField {
		return "", 0, 0, lmkderrors.ErrStatParse
	}

	ttyNr, err = strconv.Atoi(rest[ttyField])
	if err != nil {
		return "", 0, 0, lmkderrors.ErrStatParse
	}
	rssPages, err = strconv.ParseUint(rest[rssField], 10, 64)
	if err != nil {
		return "", 0, 0, lmkderrors.ErrStatParse
	}

	return name, ttyNr, rssPages, nil
}

// MemTotalBytes reads /proc/meminfo and returns the MemTotal value in
// bytes. MemTotal is reported by the kernel in kibibytes.
func MemTotalBytes() (uint64, error) {
	f, err := FS.Open(Root + "/meminfo")
	if err != nil {
		return 0, lmkderrors.Wrap(err, lmkderrors.ErrMissingInfra, "mem_total")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, lmkderrors.New(lmkderrors.ErrMissingInfra, "mem_total", "malformed MemTotal line")
		}
		kib, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, lmkderrors.WrapWithDetail(err, lmkderrors.ErrMissingInfra, "mem_total", "malformed MemTotal value")
		}
		return kib * 1024, nil
	}
	return 0, lmkderrors.New(lmkderrors.ErrMissingInfra, "mem_total", "MemTotal not found in /proc/meminfo")
}

// ListPIDs enumerates /proc and returns the numeric pids present, excluding
// "1" and "self" per the collector's scan contract.
func ListPIDs() ([]int, error) {
	entries, err := afero.ReadDir(FS, Root)
	if err != nil {
		return nil, lmkderrors.Wrap(err, lmkderrors.ErrMissingInfra, "list_pids")
	}

	pids := make([]int, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if name == "1" || name == "self" {
			continue
		}
		pid, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
