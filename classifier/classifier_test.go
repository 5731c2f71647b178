package classifier

import (
	"testing"

	"github.com/spf13/afero"
)

func TestClassify(t *testing.T) {
	if got := Classify(0); got != Daemons {
		t.Errorf("Classify(0) = %v, want Daemons", got)
	}
	if got := Classify(3); got != Apps {
		t.Errorf("Classify(3) = %v, want Apps", got)
	}
}

func TestLoadExemptions_MissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	e, err := LoadExemptions(fs, "/does/not/exist.cfg")
	if err != nil {
		t.Fatalf("LoadExemptions: %v", err)
	}
	if e.Len() != 0 {
		t.Errorf("expected empty exemption set, got %d entries", e.Len())
	}
}

func TestLoadExemptions_Grammar(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "# a comment\n" +
		"exemption system_server\n" +
		"garbage line\n" +
		"exemption com.android.launcher\n" +
		"\n"
	afero.WriteFile(fs, "/tbulmkd.cfg", []byte(content), 0644)

	e, err := LoadExemptions(fs, "/tbulmkd.cfg")
	if err != nil {
		t.Fatalf("LoadExemptions: %v", err)
	}
	if e.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", e.Len())
	}
	if !e.Contains("system_server") || !e.Contains("com.android.launcher") {
		t.Errorf("missing expected exemption names")
	}
	if e.Contains("garbage") {
		t.Errorf("exemption set should not contain unrelated names")
	}
}

func TestBgWindow_TopK(t *testing.T) {
	var w BgWindow

	// Seven background tasks; only the six with the largest activityTime
	// survive.
	times := []int64{100, 200, 300, 400, 500, 600, 700}
	for i, tm := range times {
		w.Insert(int32(i+1), tm)
	}

	// pid 1 had the smallest activityTime (100) and should be evicted.
	if w.IsLive(1) {
		t.Error("pid 1 (oldest) should have been evicted from the window")
	}
	for pid := int32(2); pid <= 7; pid++ {
		if !w.IsLive(pid) {
			t.Errorf("pid %d should be live in the window", pid)
		}
	}
}

func TestBgWindow_Empty(t *testing.T) {
	var w BgWindow
	if w.IsLive(42) {
		t.Error("empty window should not report any pid as live")
	}
}
