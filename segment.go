package shm

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FloatSize is the size in bytes of one frame element.
const FloatSize = 4

// Mode selects how a segment is mapped.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}

	return "read-only"
}

// Segment is a named shared memory object holding one frame of float32
// values, mapped into this process.
//
// A Segment is not safe for concurrent Close; access to its contents must be
// gated by the caller.
type Segment struct {
	name string
	mode Mode
	data []byte
}

// OpenSegment opens the segment called name, creating it if it does not
// exist, and maps exactly size bytes of it.
//
// A freshly created (zero length) object is truncated to size. An object of
// any other size is rejected with ErrSizeMismatch rather than resized, since
// resizing would fault a peer that already mapped it.
func OpenSegment(name string, size int, mode Mode) (*Segment, error) {
	if size <= 0 || size%FloatSize != 0 {
		return nil, &ResourceError{Op: "shm_open", Name: name, Err: ErrInvalidSize}
	}

	path, err := segmentPath(name)
	if err != nil {
		return nil, &ResourceError{Op: "shm_open", Name: name, Err: err}
	}

	file, err := shmOpen(path, unix.O_CREAT|unix.O_RDWR, segmentPerm)
	if err != nil {
		return nil, &ResourceError{Op: "shm_open", Name: name, Err: err}
	}

	defer file.Close()

	if err = sizeSegment(file, int64(size)); err != nil {
		return nil, &ResourceError{Op: "ftruncate", Name: name, Err: err}
	}

	prot := unix.PROT_READ
	if mode == ReadWrite {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(int(file.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, &MappingError{Name: name, Err: err}
	}

	return &Segment{
		name: name,
		mode: mode,
		data: data,
	}, nil
}

func sizeSegment(file *os.File, size int64) error {
	info, err := file.Stat()
	if err != nil {
		return err
	}

	switch info.Size() {
	case size:
		return nil
	case 0:
		return file.Truncate(size)
	default:
		return fmt.Errorf("%w: have %d bytes, want %d", ErrSizeMismatch, info.Size(), size)
	}
}

func (s *Segment) Name() string { return s.name }

func (s *Segment) Mode() Mode { return s.mode }

// Size returns the mapped size in bytes, or zero once closed.
func (s *Segment) Size() int { return len(s.data) }

// Floats views the mapping as float32 values. The slice aliases shared
// memory: it must only be touched while the segment's gate is held, and
// must not be written through a ReadOnly mapping.
func (s *Segment) Floats() []float32 {
	if len(s.data) == 0 {
		return nil
	}

	return unsafe.Slice((*float32)(unsafe.Pointer(&s.data[0])), len(s.data)/FloatSize)
}

// Close unmaps the segment. The name stays bound until Unlink.
func (s *Segment) Close() error {
	if s.data == nil {
		return nil
	}

	data := s.data
	s.data = nil

	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap %s: %w", s.name, err)
	}

	return nil
}
