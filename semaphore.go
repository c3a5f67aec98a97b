package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// PollInterval bounds how long a cancellable Wait sleeps before it looks at
// its context again.
var PollInterval = 50 * time.Millisecond

const maxOpenAttempts = 16

// Semaphore is a named, process-shared counting semaphore stored where
// sem_open(3) keeps it, with the same layout, so Go and C processes can share
// it by name.
type Semaphore struct {
	name string
	mem  []byte
	sem  *sharedSem
}

// OpenSemaphore opens the semaphore called name, creating it with the given
// initial count if it does not exist. The count of an existing semaphore is
// left untouched.
func OpenSemaphore(name string, initial uint32) (*Semaphore, error) {
	if !futexSupported {
		return nil, &ResourceError{Op: "sem_open", Name: name, Err: ErrUnsupported}
	}

	if initial > semValueMax {
		return nil, &ResourceError{Op: "sem_open", Name: name, Err: ErrOverflow}
	}

	path, err := semaphorePath(name)
	if err != nil {
		return nil, &ResourceError{Op: "sem_open", Name: name, Err: err}
	}

	for i := 0; i < maxOpenAttempts; i++ {
		s, err := openSemaphore(name, path)
		if err == nil {
			return s, nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return nil, &ResourceError{Op: "sem_open", Name: name, Err: err}
		}

		s, err = createSemaphore(name, path, initial)
		if err == nil {
			return s, nil
		}

		// Another process linked its semaphore first; open that one.
		if !errors.Is(err, fs.ErrExist) {
			return nil, &ResourceError{Op: "sem_open", Name: name, Err: err}
		}
	}

	return nil, &ResourceError{Op: "sem_open", Name: name, Err: fmt.Errorf("name kept changing after %d attempts", maxOpenAttempts)}
}

func openSemaphore(name, path string) (*Semaphore, error) {
	file, err := shmOpen(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if info.Size() < semaphoreSize {
		return nil, ErrInvalidObject
	}

	return mapSemaphore(name, file.Fd())
}

// createSemaphore initialises a semaphore under a private name and links it
// into place, so no process can observe a half-initialised object.
func createSemaphore(name, path string, initial uint32) (*Semaphore, error) {
	tmp := Dir + "/sem.tmp-" + uuid.NewString()

	file, err := shmOpen(tmp, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, semaphorePerm)
	if err != nil {
		return nil, err
	}

	defer file.Close()
	defer unix.Unlink(tmp)

	if err = file.Truncate(semaphoreSize); err != nil {
		return nil, err
	}

	s, err := mapSemaphore(name, file.Fd())
	if err != nil {
		return nil, err
	}

	atomic.StoreUint64(&s.sem.Data, uint64(initial))
	s.sem.Private = futexShared

	if err = unix.Link(tmp, path); err != nil {
		s.Close()
		return nil, &fs.PathError{Op: "link", Path: path, Err: err}
	}

	return s, nil
}

func mapSemaphore(name string, fd uintptr) (*Semaphore, error) {
	mem, err := unix.Mmap(int(fd), 0, semaphoreSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	return &Semaphore{
		name: name,
		mem:  mem,
		sem:  (*sharedSem)(unsafe.Pointer(&mem[0])),
	}, nil
}

func (s *Semaphore) Name() string { return s.name }

// Value returns the current count.
func (s *Semaphore) Value() uint32 {
	if s.sem == nil {
		return 0
	}

	return uint32(atomic.LoadUint64(&s.sem.Data) & semValueMask)
}

// TryWait takes a permit if one is available without blocking.
func (s *Semaphore) TryWait() bool {
	if s.sem == nil {
		return false
	}

	d := atomic.LoadUint64(&s.sem.Data)
	for d&semValueMask != 0 {
		if atomic.CompareAndSwapUint64(&s.sem.Data, d, d-1) {
			return true
		}

		d = atomic.LoadUint64(&s.sem.Data)
	}

	return false
}

// Wait blocks until a permit is available and takes it.
//
// With a background context Wait sleeps in the kernel until posted. With a
// cancellable context it wakes every PollInterval (or at the deadline) to
// check ctx, and returns context.Cause(ctx) once ctx is done, even when a
// permit is available. No permit is taken in that case.
func (s *Semaphore) Wait(ctx context.Context) error {
	if s.sem == nil {
		return ErrClosed
	}

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}

	if s.TryWait() {
		return nil
	}

	// Register as a waiter so Post knows to wake us.
	d := atomic.AddUint64(&s.sem.Data, semWaiter)
	defer atomic.AddUint64(&s.sem.Data, ^(semWaiter - 1))

	for {
		if d&semValueMask != 0 {
			if atomic.CompareAndSwapUint64(&s.sem.Data, d, d-1) {
				return nil
			}

			d = atomic.LoadUint64(&s.sem.Data)
			continue
		}

		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		err := futexWait(s.sem.valueWord(), 0, sleepFor(ctx))
		if err != nil && !errors.Is(err, errFutexTimeout) {
			return fmt.Errorf("sem_wait %s: %w", s.name, err)
		}

		d = atomic.LoadUint64(&s.sem.Data)
	}
}

func sleepFor(ctx context.Context) time.Duration {
	if ctx.Done() == nil {
		return 0
	}

	d := PollInterval
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = max(left, time.Millisecond)
		}
	}

	return d
}

// Post releases a permit, waking one waiter if any. It never blocks.
func (s *Semaphore) Post() error {
	if s.sem == nil {
		return ErrClosed
	}

	d := atomic.LoadUint64(&s.sem.Data)
	for {
		if d&semValueMask == semValueMax {
			return ErrOverflow
		}

		if atomic.CompareAndSwapUint64(&s.sem.Data, d, d+1) {
			break
		}

		d = atomic.LoadUint64(&s.sem.Data)
	}

	if d>>semWaitersShift == 0 {
		return nil
	}

	if _, err := futexWake(s.sem.valueWord(), 1); err != nil {
		return fmt.Errorf("sem_post %s: %w", s.name, err)
	}

	return nil
}

// Close unmaps the semaphore. The name stays bound until UnlinkSemaphore.
func (s *Semaphore) Close() error {
	if s.mem == nil {
		return nil
	}

	mem := s.mem
	s.mem, s.sem = nil, nil

	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("munmap %s: %w", s.name, err)
	}

	return nil
}
