package cgroupctl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"lmkd-go/classifier"
)

func TestNew_InvalidPercent(t *testing.T) {
	fs := afero.NewMemMapFs()
	if _, err := New(fs, 0, 90); err == nil {
		t.Error("expected error for 0%% daemons limit")
	}
	if _, err := New(fs, 10, 101); err == nil {
		t.Error("expected error for 101%% apps limit")
	}
	if _, err := New(fs, DefaultDaemonsPercent, DefaultAppsPercent); err != nil {
		t.Errorf("unexpected error for default percents: %v", err)
	}
}

func TestAddPID(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := New(fs, DefaultDaemonsPercent, DefaultAppsPercent)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := fs.MkdirAll(classPath(classifier.Apps), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	if err := c.AddPID(classifier.Apps, 4242); err != nil {
		t.Fatalf("AddPID: %v", err)
	}

	raw, err := afero.ReadFile(fs, filepath.Join(classPath(classifier.Apps), "tasks"))
	if err != nil {
		t.Fatalf("ReadFile tasks: %v", err)
	}
	if string(raw) != "4242" {
		t.Errorf("tasks file = %q, want %q", raw, "4242")
	}
}

func TestMemLimitAndUsageBytes(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := New(fs, DefaultDaemonsPercent, DefaultAppsPercent)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir := classPath(classifier.Daemons)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	afero.WriteFile(fs, filepath.Join(dir, "memory.limit_in_bytes"), []byte("104857600"), 0644)
	afero.WriteFile(fs, filepath.Join(dir, "memory.usage_in_bytes"), []byte("52428800"), 0644)

	limit, err := c.MemLimitBytes(classifier.Daemons)
	if err != nil {
		t.Fatalf("MemLimitBytes: %v", err)
	}
	if limit != 104857600 {
		t.Errorf("MemLimitBytes = %d, want 104857600", limit)
	}

	usage, err := c.MemUsageBytes(classifier.Daemons)
	if err != nil {
		t.Fatalf("MemUsageBytes: %v", err)
	}
	if usage != 52428800 {
		t.Errorf("MemUsageBytes = %d, want 52428800", usage)
	}
}

// TestInit_RequiresRoot exercises the real mount/mkdir sequence against
// the live cgroup v1 hierarchy. It is skipped unless running as root with
// /sys/fs/cgroup present; it does not check that a v1 memory controller
// is available.
func TestInit_RequiresRoot(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("skipping cgroup test: requires root")
	}
	if _, err := os.Stat("/sys/fs/cgroup"); os.IsNotExist(err) {
		t.Skip("skipping cgroup test: cgroup not mounted")
	}

	c, err := New(afero.NewOsFs(), DefaultDaemonsPercent, DefaultAppsPercent)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer c.Teardown()

	if _, err := c.MemLimitBytes(classifier.Apps); err != nil {
		t.Errorf("MemLimitBytes(apps): %v", err)
	}
}
