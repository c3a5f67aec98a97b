package shm

import (
	"os"
	"testing"

	"github.com/google/uuid"
)

// testName returns a name no other test run can be using and removes
// whatever ends up bound to it.
func testName(t *testing.T) string {
	t.Helper()

	if info, err := os.Stat(Dir); err != nil || !info.IsDir() {
		t.Skipf("%s not available", Dir)
	}

	name := "/shm-test-" + uuid.NewString()
	t.Cleanup(func() {
		Unlink(name)
		UnlinkSemaphore(name)
	})

	return name
}

func TestValidName(t *testing.T) {
	for name, want := range map[string]bool{
		"/buffer_seg1": true,
		"buffer_seg1":  true,
		"/":            false,
		"":             false,
		"/a/b":         false,
		"/..":          false,
		"/a\x00b":      false,
	} {
		if got := ValidName(name); got != want {
			t.Errorf("ValidName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestPaths(t *testing.T) {
	if p, err := segmentPath("/buffer_seg1"); err != nil || p != "/dev/shm/buffer_seg1" {
		t.Errorf("segmentPath = %q, %v", p, err)
	}

	if p, err := semaphorePath("/buffer_rsem1"); err != nil || p != "/dev/shm/sem.buffer_rsem1" {
		t.Errorf("semaphorePath = %q, %v", p, err)
	}
}
