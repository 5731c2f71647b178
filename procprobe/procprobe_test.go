package procprobe

import (
	"testing"

	"github.com/spf13/afero"

	lmkderrors "lmkd-go/errors"
)

func withMemFS(t *testing.T) {
	t.Helper()
	origFS, origRoot := FS, Root
	FS = afero.NewMemMapFs()
	Root = "/proc"
	t.Cleanup(func() {
		FS = origFS
		Root = origRoot
	})
}

func writeTask(t *testing.T, pid int, stat string, activity int, activityTime int64) {
	t.Helper()
	dir := "/proc/" + itoa(pid)
	if err := afero.WriteFile(FS, dir+"/stat", []byte(stat), 0644); err != nil {
		t.Fatalf("write stat: %v", err)
	}
	if err := afero.WriteFile(FS, dir+"/activity", []byte(itoa(activity)), 0644); err != nil {
		t.Fatalf("write activity: %v", err)
	}
	if err := afero.WriteFile(FS, dir+"/activity_time", []byte(itoa64(activityTime)), 0644); err != nil {
		t.Fatalf("write activity_time: %v", err)
	}
}

func itoa(v int) string   { return itoa64(int64(v)) }
func itoa64(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func statLine(pid int, name string, ttyNr int, rssPages uint64) string {
	// Fields: pid (name) state ppid pgrp session tty_nr ... (field 24=rss)
	fields := make([]string, 0, 52)
	fields = append(fields, itoa(pid), "("+name+")", "S", "1", "1", "1", itoa(ttyNr))
	for len(fields) < 23 {
		fields = append(fields, "0")
	}
	fields = append(fields, itoa64(int64(rssPages)))
	for len(fields) < 52 {
		fields = append(fields, "0")
	}
	s := fields[0] + " " + fields[1]
	for _, f := range fields[2:] {
		s += " " + f
	}
	return s
}

func TestProbeFull(t *testing.T) {
	withMemFS(t)
	writeTask(t, 4242, statLine(4242, "app_x", 3, 1000), 0, 1234)

	ti, err := ProbeFull(4242)
	if err != nil {
		t.Fatalf("ProbeFull: %v", err)
	}
	if ti.Name != "app_x" {
		t.Errorf("Name = %q, want app_x", ti.Name)
	}
	if ti.TTYNr != 3 {
		t.Errorf("TTYNr = %d, want 3", ti.TTYNr)
	}
	if ti.RSSBytes != 1000*uint64(pageSize) {
		t.Errorf("RSSBytes = %d, want %d", ti.RSSBytes, 1000*uint64(pageSize))
	}
	if ti.Activity != 0 {
		t.Errorf("Activity = %d, want 0", ti.Activity)
	}
	if ti.ActivityTime != 1234 {
		t.Errorf("ActivityTime = %d, want 1234", ti.ActivityTime)
	}
}

func TestProbeFull_NotFound(t *testing.T) {
	withMemFS(t)
	_, err := ProbeFull(9999)
	if !lmkderrors.IsKind(err, lmkderrors.ErrMissingPerTask) {
		t.Errorf("expected ErrMissingPerTask, got %v", err)
	}
}

func TestProbeFull_NameWithSpacesAndParens(t *testing.T) {
	withMemFS(t)
	// A thread name containing both spaces and nested parens; the last
	// ')' in the line must be used as the boundary, not the first.
	writeTask(t, 55, statLine(55, "bash (test)", 0, 2000), 1, 5)

	ti, err := ProbeFull(55)
	if err != nil {
		t.Fatalf("ProbeFull: %v", err)
	}
	if ti.Name != "bash (test)" {
		t.Errorf("Name = %q, want %q", ti.Name, "bash (test)")
	}
}

func TestProbeFull_ActivityTimePresentStatMissing(t *testing.T) {
	withMemFS(t)
	dir := "/proc/77"
	afero.WriteFile(FS, dir+"/activity_time", []byte("10"), 0644)
	afero.WriteFile(FS, dir+"/activity", []byte("1"), 0644)
	// stat deliberately absent

	_, err := ProbeFull(77)
	if !lmkderrors.IsKind(err, lmkderrors.ErrParsePerTask) {
		t.Errorf("expected ErrParsePerTask, got %v", err)
	}
}

func TestProbeStat(t *testing.T) {
	withMemFS(t)
	afero.WriteFile(FS, "/proc/17/stat", []byte(statLine(17, "kthreadd", 0, 0)), 0644)

	ti, err := ProbeStat(17)
	if err != nil {
		t.Fatalf("ProbeStat: %v", err)
	}
	if ti.RSSBytes != 0 {
		t.Errorf("RSSBytes = %d, want 0", ti.RSSBytes)
	}
	if ti.Name != "kthreadd" {
		t.Errorf("Name = %q, want kthreadd", ti.Name)
	}
}

func TestProbeStat_Gone(t *testing.T) {
	withMemFS(t)
	_, err := ProbeStat(123456)
	if !lmkderrors.IsKind(err, lmkderrors.ErrMissingPerTask) {
		t.Errorf("expected ErrMissingPerTask, got %v", err)
	}
}

func TestMemTotalBytes(t *testing.T) {
	withMemFS(t)
	afero.WriteFile(FS, "/proc/meminfo", []byte("MemTotal:        8000000 kB\nMemFree: 100 kB\n"), 0644)

	got, err := MemTotalBytes()
	if err != nil {
		t.Fatalf("MemTotalBytes: %v", err)
	}
	want := uint64(8000000) * 1024
	if got != want {
		t.Errorf("MemTotalBytes() = %d, want %d", got, want)
	}
}

func TestListPIDs(t *testing.T) {
	withMemFS(t)
	for _, p := range []string{"1", "self", "42", "4242", "notapid"} {
		afero.WriteFile(FS, "/proc/"+p+"/stat", []byte("x"), 0644)
	}

	pids, err := ListPIDs()
	if err != nil {
		t.Fatalf("ListPIDs: %v", err)
	}
	seen := map[int]bool{}
	for _, p := range pids {
		seen[p] = true
	}
	if seen[1] {
		t.Error("pid 1 should be excluded")
	}
	if !seen[42] || !seen[4242] {
		t.Errorf("expected 42 and 4242 in %v", pids)
	}
	if len(pids) != 2 {
		t.Errorf("len(pids) = %d, want 2", len(pids))
	}
}
