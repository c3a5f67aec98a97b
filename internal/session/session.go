// Package session owns the named objects of one producer/consumer run: a
// frame-sized segment and an empty/full semaphore pair per slot. Acquire and
// Release are the only places that touch the shared namespace; everything
// else works through the *Session handle.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	shm "github.com/risingape/producer-consumer"
	"github.com/risingape/producer-consumer/internal/slot"
)

// Initial gate counts: every slot starts writable by the producer.
const (
	EmptyInitial = 1
	FullInitial  = 0
)

// Session is the set of mapped segments and open gates of one run.
type Session struct {
	names      Names
	role       slot.Role
	frameCount int
	log        *slog.Logger

	segments []*shm.Segment
	empty    []*shm.Semaphore
	full     []*shm.Semaphore
}

// Acquire opens (creating when missing) and sizes every segment, maps it
// read-only for the consumer or read-write for the producer, and opens
// (creating when missing) every gate with its initial count.
//
// Errors are *shm.ResourceError or *shm.MappingError. Whatever was opened
// before the failure is closed again; nothing is unlinked.
func Acquire(names Names, frameCount int, role slot.Role, log *slog.Logger) (*Session, error) {
	if err := names.Validate(); err != nil {
		return nil, err
	}

	if frameCount <= 0 {
		return nil, fmt.Errorf("session: frame count %d must be positive", frameCount)
	}

	if log == nil {
		log = slog.Default()
	}

	s := &Session{
		names:      names,
		role:       role,
		frameCount: frameCount,
		log:        log,
	}

	if err := s.open(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) open() error {
	mode := shm.ReadOnly
	if s.role == slot.Producer {
		mode = shm.ReadWrite
	}

	size := s.frameCount * shm.FloatSize

	segments := make([]string, 0, len(s.names))
	for _, n := range s.names {
		seg, err := shm.OpenSegment(n.Segment, size, mode)
		if err != nil {
			return err
		}

		s.segments = append(s.segments, seg)
		segments = append(segments, n.Segment)
	}

	s.log.Info("created shared memory segments", "segments", segments, "bytes", size, "mode", mode)

	for _, n := range s.names {
		empty, err := shm.OpenSemaphore(n.EmptyGate, EmptyInitial)
		if err != nil {
			return err
		}
		s.empty = append(s.empty, empty)

		full, err := shm.OpenSemaphore(n.FullGate, FullInitial)
		if err != nil {
			return err
		}
		s.full = append(s.full, full)
	}

	s.log.Info("created semaphores", "count", len(s.empty)+len(s.full))

	return nil
}

func (s *Session) Names() Names { return s.names }

func (s *Session) Role() slot.Role { return s.role }

func (s *Session) FrameCount() int { return s.frameCount }

// Len returns the number of slots.
func (s *Session) Len() int { return len(s.segments) }

// Segment returns the mapped segment of slot i.
func (s *Session) Segment(i int) *shm.Segment { return s.segments[i] }

// Pairs returns the gate pair of every slot, in hand-off order.
func (s *Session) Pairs() []slot.Pair {
	pairs := make([]slot.Pair, len(s.names))
	for i, n := range s.names {
		pairs[i] = slot.Pair{
			Name:  n.Segment,
			Empty: s.empty[i],
			Full:  s.full[i],
		}
	}

	return pairs
}

// Release removes every name of the session from the namespace.
func (s *Session) Release() error {
	return Release(s.names, s.log)
}

// Close unmaps the segments and closes the gates. Names stay bound.
func (s *Session) Close() error {
	var errs []error

	for _, seg := range s.segments {
		errs = append(errs, seg.Close())
	}

	for _, sem := range s.empty {
		errs = append(errs, sem.Close())
	}

	for _, sem := range s.full {
		errs = append(errs, sem.Close())
	}

	return errors.Join(errs...)
}

// Release unlinks every segment and semaphore named in names. Every unlink
// is attempted; names that are already gone are not errors, so Release can
// be called any number of times by either side. Other failures are
// returned together as a *shm.TeardownError.
//
// Peers that still have the objects mapped or open keep using them until
// they exit.
func Release(names Names, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	var errs []error

	for _, n := range names {
		errs = appendUnlink(errs, shm.Unlink(n.Segment))
	}

	if len(errs) == 0 {
		log.Info("unlinked shared memory segments")
	}

	failed := len(errs)

	for _, n := range names {
		errs = appendUnlink(errs, shm.UnlinkSemaphore(n.EmptyGate))
		errs = appendUnlink(errs, shm.UnlinkSemaphore(n.FullGate))
	}

	if len(errs) == failed {
		log.Info("unlinked semaphores")
	}

	if len(errs) > 0 {
		return &shm.TeardownError{Errs: errs}
	}

	return nil
}

func appendUnlink(errs []error, err error) []error {
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return errs
	}

	return append(errs, err)
}
