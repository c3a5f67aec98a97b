package shm

import "unsafe"

// sharedSem is the in-memory layout of a glibc sem_t on 64-bit targets
// (struct new_sem). The value occupies the low 32 bits of data and the
// number of blocked waiters the high 32 bits; waiters sleep on the value
// word. Private is FUTEX_PRIVATE or 0 (FUTEX_SHARED); named semaphores are
// always shared.
type sharedSem struct {
	Data    uint64
	Private int32
	Pad     int32
	_       [16]uint8
}

const (
	semaphoreSize = 0x20

	semValueMask    = 0xffffffff
	semWaitersShift = 32
	semWaiter       = uint64(1) << semWaitersShift

	// SEM_VALUE_MAX
	semValueMax = 0x7fffffff

	futexShared = 0
)

var _ [semaphoreSize - unsafe.Sizeof(sharedSem{})]struct{}

// valueWord is the futex word; little-endian targets keep the low half of
// Data first.
func (s *sharedSem) valueWord() *uint32 {
	return (*uint32)(unsafe.Pointer(&s.Data))
}
