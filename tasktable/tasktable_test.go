package tasktable

import (
	"testing"

	"github.com/spf13/afero"

	"lmkd-go/procprobe"
)

func TestCreateThenOpen_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	table, err := Create(dir, "test_tasklist")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer table.Close()

	err = table.WithLock(func(v *View) error {
		v.Set(0, TaskSlot{Pid: 42, Activity: 1, TTYNr: 3, ActivityTime: 100})
		v.SetSentinel(1)
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock write: %v", err)
	}

	other, err := Open(dir, "test_tasklist")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer other.Close()

	var slots []TaskSlot
	err = other.WithLock(func(v *View) error {
		slots = v.Slots()
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock read: %v", err)
	}

	if len(slots) != 1 {
		t.Fatalf("len(slots) = %d, want 1", len(slots))
	}
	if slots[0].Pid != 42 || slots[0].TTYNr != 3 || slots[0].ActivityTime != 100 {
		t.Errorf("slots[0] = %+v, want {Pid:42 TTYNr:3 ActivityTime:100 ...}", slots[0])
	}
}

func TestSentinelAlwaysPresent(t *testing.T) {
	dir := t.TempDir()
	table, err := Create(dir, "sentinel_test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer table.Close()

	var slots []TaskSlot
	err = table.WithLock(func(v *View) error {
		slots = v.Slots()
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("fresh table should have zero live slots, got %d", len(slots))
	}
}

func TestCollectOnce(t *testing.T) {
	origFS, origRoot := procprobe.FS, procprobe.Root
	procprobe.FS = afero.NewMemMapFs()
	procprobe.Root = "/proc"
	defer func() {
		procprobe.FS = origFS
		procprobe.Root = origRoot
	}()

	writeSyntheticTask(t, 4242, 3, 0, 500)
	writeSyntheticTask(t, 17, 0, 1, 900)

	dir := t.TempDir()
	table, err := Create(dir, "collect_test")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer table.Close()

	if err := CollectOnce(table); err != nil {
		t.Fatalf("CollectOnce: %v", err)
	}

	var slots []TaskSlot
	err = table.WithLock(func(v *View) error {
		slots = v.Slots()
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	if len(slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2", len(slots))
	}
	byPid := map[int32]TaskSlot{}
	for _, s := range slots {
		byPid[s.Pid] = s
	}
	if s, ok := byPid[4242]; !ok || s.TTYNr != 3 || s.Activity != 0 {
		t.Errorf("pid 4242 slot = %+v, ok=%v", s, ok)
	}
	if s, ok := byPid[17]; !ok || s.TTYNr != 0 || s.Activity != 1 {
		t.Errorf("pid 17 slot = %+v, ok=%v", s, ok)
	}
}

func writeSyntheticTask(t *testing.T, pid, ttyNr, activity int, activityTime int64) {
	t.Helper()
	dir := "/proc/" + itoaHelper(pid)
	fields := []string{itoaHelper(pid), "(task)", "S", "1", "1", "1", itoaHelper(ttyNr)}
	for len(fields) < 23 {
		fields = append(fields, "0")
	}
	fields = append(fields, "100")
	for len(fields) < 52 {
		fields = append(fields, "0")
	}
	line := fields[0]
	for _, f := range fields[1:] {
		line += " " + f
	}
	if err := afero.WriteFile(procprobe.FS, dir+"/stat", []byte(line), 0644); err != nil {
		t.Fatalf("write stat: %v", err)
	}
	if err := afero.WriteFile(procprobe.FS, dir+"/activity", []byte(itoaHelper(activity)), 0644); err != nil {
		t.Fatalf("write activity: %v", err)
	}
	if err := afero.WriteFile(procprobe.FS, dir+"/activity_time", []byte(itoaHelper(int(activityTime))), 0644); err != nil {
		t.Fatalf("write activity_time: %v", err)
	}
}

func itoaHelper(v int) string {
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
