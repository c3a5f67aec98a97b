package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	shm "github.com/risingape/producer-consumer"
	"github.com/risingape/producer-consumer/internal/slot"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testNames(t *testing.T) Names {
	t.Helper()

	if info, err := os.Stat(shm.Dir); err != nil || !info.IsDir() {
		t.Skipf("%s not available", shm.Dir)
	}

	names := DefaultNames(NewNamespace(), 2)
	t.Cleanup(func() { Release(names, discard) })

	return names
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func objectPaths(names Names) []string {
	var paths []string
	for _, n := range names {
		paths = append(paths,
			shm.Dir+"/"+strings.TrimPrefix(n.Segment, "/"),
			shm.Dir+"/sem."+strings.TrimPrefix(n.EmptyGate, "/"),
			shm.Dir+"/sem."+strings.TrimPrefix(n.FullGate, "/"),
		)
	}

	return paths
}

func TestDefaultNames(t *testing.T) {
	names := DefaultNames("", 2)

	want := Names{
		{Segment: "/buffer_seg1", EmptyGate: "/buffer_wsem1", FullGate: "/buffer_rsem1"},
		{Segment: "/buffer_seg2", EmptyGate: "/buffer_wsem2", FullGate: "/buffer_rsem2"},
	}

	for i := range want {
		if names[i] != want[i] {
			t.Errorf("slot %d = %+v, want %+v", i, names[i], want[i])
		}
	}

	prefixed := DefaultNames("/run42", 1)
	if prefixed[0].Segment != "/run42_buffer_seg1" {
		t.Errorf("prefixed segment = %q", prefixed[0].Segment)
	}
}

func TestNewNamespaceUnique(t *testing.T) {
	a, b := NewNamespace(), NewNamespace()
	if a == b {
		t.Fatalf("NewNamespace returned %q twice", a)
	}

	if err := DefaultNames(a, 2).Validate(); err != nil {
		t.Fatalf("names in %q: %v", a, err)
	}
}

func TestNamesValidate(t *testing.T) {
	dup := DefaultNames("", 2)
	dup[1].Segment = dup[0].Segment

	gate := DefaultNames("", 2)
	gate[1].FullGate = gate[0].EmptyGate

	bad := DefaultNames("", 1)
	bad[0].EmptyGate = "/a/b"

	for name, names := range map[string]Names{
		"empty":        nil,
		"dup segment":  dup,
		"dup gate":     gate,
		"invalid name": bad,
	} {
		if err := names.Validate(); err == nil {
			t.Errorf("%s: Validate succeeded", name)
		}
	}
}

func TestAcquireCreatesEverything(t *testing.T) {
	names := testNames(t)

	s, err := Acquire(names, 100, slot.Consumer, discard)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer s.Close()

	for _, p := range objectPaths(names) {
		if !exists(p) {
			t.Errorf("%s missing after Acquire", p)
		}
	}

	if s.Len() != 2 || s.Segment(0).Size() != 400 {
		t.Fatalf("Len = %d, segment size = %d", s.Len(), s.Segment(0).Size())
	}

	if s.Segment(1).Mode() != shm.ReadOnly {
		t.Fatalf("consumer segment mode = %v", s.Segment(1).Mode())
	}

	for i, p := range s.Pairs() {
		if v := p.Empty.(*shm.Semaphore).Value(); v != EmptyInitial {
			t.Errorf("slot %d empty gate = %d, want %d", i, v, EmptyInitial)
		}

		if v := p.Full.(*shm.Semaphore).Value(); v != FullInitial {
			t.Errorf("slot %d full gate = %d, want %d", i, v, FullInitial)
		}
	}
}

func TestAcquireOpensExisting(t *testing.T) {
	names := testNames(t)

	producer, err := Acquire(names, 100, slot.Producer, discard)
	if err != nil {
		t.Fatalf("Acquire(producer): %v", err)
	}
	defer producer.Close()

	if err := producer.Pairs()[0].Full.Post(); err != nil {
		t.Fatalf("Post: %v", err)
	}

	consumer, err := Acquire(names, 100, slot.Consumer, discard)
	if err != nil {
		t.Fatalf("Acquire(consumer): %v", err)
	}
	defer consumer.Close()

	if v := consumer.Pairs()[0].Full.(*shm.Semaphore).Value(); v != 1 {
		t.Fatalf("consumer sees full gate %d, want 1", v)
	}
}

func TestAcquireSizeMismatch(t *testing.T) {
	names := testNames(t)

	s, err := Acquire(names, 100, slot.Producer, discard)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	s.Close()

	_, err = Acquire(names, 50, slot.Consumer, discard)

	var rerr *shm.ResourceError
	if !errors.As(err, &rerr) {
		t.Fatalf("Acquire with other frame count = %v, want *shm.ResourceError", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	names := testNames(t)

	s, err := Acquire(names, 100, slot.Consumer, discard)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer s.Close()

	if err := s.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	for _, p := range objectPaths(names) {
		if exists(p) {
			t.Errorf("%s still bound after Release", p)
		}
	}

	if err := s.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	// Open handles survive the unlink.
	if err := s.Pairs()[0].Full.Post(); err != nil {
		t.Fatalf("Post after Release: %v", err)
	}
}

func TestReleaseReportsFailures(t *testing.T) {
	err := Release(Names{{Segment: "/a/b", EmptyGate: "/c/d", FullGate: "/e/f"}}, discard)

	var terr *shm.TeardownError
	if !errors.As(err, &terr) {
		t.Fatalf("Release = %v, want *shm.TeardownError", err)
	}

	if len(terr.Errs) != 3 {
		t.Fatalf("TeardownError has %d errors, want 3 (every unlink attempted)", len(terr.Errs))
	}
}

func TestTrap(t *testing.T) {
	ctx, stop := Trap(context.Background(), unix.SIGUSR1)
	defer stop()

	if err := unix.Kill(unix.Getpid(), unix.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled by signal")
	}

	var serr *SignalError
	if !errors.As(context.Cause(ctx), &serr) || serr.Signal != unix.SIGUSR1 {
		t.Fatalf("cause = %v, want SignalError for SIGUSR1", context.Cause(ctx))
	}
}

var sink float32

func TestCatchFault(t *testing.T) {
	names := testNames(t)

	seg, err := shm.OpenSegment(names[0].Segment, 4096, shm.ReadOnly)
	if err != nil {
		t.Fatalf("OpenSegment: %v", err)
	}
	defer seg.Close()

	// A peer shrinking the object under our mapping.
	if err := os.Truncate(shm.Dir+"/"+strings.TrimPrefix(names[0].Segment, "/"), 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	err = CatchFault(func() error {
		sink = seg.Floats()[0]
		return nil
	})

	var serr *SignalError
	if !errors.As(err, &serr) || serr.Fault == 0 {
		t.Fatalf("CatchFault = %v, want SignalError with fault address", err)
	}
}

func TestCatchFaultPassesErrors(t *testing.T) {
	want := errors.New("boom")
	if err := CatchFault(func() error { return want }); err != want {
		t.Fatalf("CatchFault = %v, want %v", err, want)
	}
}
