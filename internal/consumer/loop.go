// Package consumer drains frames from the slots of a session in round-robin
// order.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	shm "github.com/risingape/producer-consumer"
	"github.com/risingape/producer-consumer/internal/session"
	"github.com/risingape/producer-consumer/internal/slot"
)

// Loop is the consumption loop. Iteration i waits for slot i mod N, copies
// the frame out while holding the slot, releases it, then hands the copy to
// Sink.
type Loop struct {
	Ring     *slot.Ring
	Segments []*shm.Segment
	Sink     Sink

	// Iterations is the number of frames to consume; zero runs until ctx is
	// done.
	Iterations int

	Log *slog.Logger
}

// New builds a loop over every slot of s, which must have been acquired
// with the consumer role.
func New(s *session.Session, sink Sink, iterations int, opts ...slot.Option) (*Loop, error) {
	if s.Role() != slot.Consumer {
		return nil, fmt.Errorf("consumer: session acquired as %v", s.Role())
	}

	ring, err := slot.NewConsumer(s.Pairs(), opts...)
	if err != nil {
		return nil, err
	}

	segments := make([]*shm.Segment, s.Len())
	for i := range segments {
		segments[i] = s.Segment(i)
	}

	return &Loop{
		Ring:       ring,
		Segments:   segments,
		Sink:       sink,
		Iterations: iterations,
	}, nil
}

// Run consumes frames until Iterations is reached, ctx is done, or an
// error occurs. Cancellation is observed before every frame and while
// waiting for a slot; it returns context.Cause(ctx).
func (l *Loop) Run(ctx context.Context) error {
	if l.Ring.Len() != len(l.Segments) {
		return fmt.Errorf("consumer: %d gate pairs for %d segments", l.Ring.Len(), len(l.Segments))
	}

	log := l.Log
	if log == nil {
		log = slog.Default()
	}

	for i := 0; l.Iterations == 0 || i < l.Iterations; i++ {
		// A full slot never blocks, so a busy producer would hide
		// cancellation from the gate wait.
		if err := context.Cause(ctx); err != nil {
			return err
		}

		f, err := l.next(ctx, i)
		if err != nil {
			return err
		}

		if err := l.Sink.Consume(f); err != nil {
			return fmt.Errorf("consumer: iteration %d: %w", i, err)
		}

		log.Debug("end of loop body", "iteration", i, "slot", f.Slot)
	}

	return nil
}

func (l *Loop) next(ctx context.Context, i int) (Frame, error) {
	idx, err := l.Ring.Acquire(ctx)
	if err != nil {
		return Frame{}, err
	}

	seg := l.Segments[idx]

	// The mapping is only read between Acquire and Release.
	values := make([]float32, len(seg.Floats()))
	err = session.CatchFault(func() error {
		copy(values, seg.Floats())
		return nil
	})
	if err != nil {
		return Frame{}, err
	}

	if err := l.Ring.Release(idx); err != nil {
		return Frame{}, err
	}

	return Frame{
		Iteration: i,
		Slot:      idx,
		Segment:   seg.Name(),
		Values:    values,
	}, nil
}
