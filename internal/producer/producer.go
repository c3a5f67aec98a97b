// Package producer is a reference implementation of the producer side of
// the hand-off: take a slot's empty gate, write the whole frame, post its
// full gate, move to the next slot.
package producer

import (
	"context"
	"fmt"
	"log/slog"

	shm "github.com/risingape/producer-consumer"
	"github.com/risingape/producer-consumer/internal/session"
	"github.com/risingape/producer-consumer/internal/slot"
)

// Fill writes the frame for one iteration into dst.
type Fill func(iteration int, dst []float32)

// Ramp writes 1, 2, ..., N into every frame.
func Ramp(_ int, dst []float32) {
	for i := range dst {
		dst[i] = float32(i + 1)
	}
}

// Stamp writes the iteration number into every element, so a reader can
// tell frames from different writes apart.
func Stamp(iteration int, dst []float32) {
	for i := range dst {
		dst[i] = float32(iteration)
	}
}

// Producer writes frames into the slots of a session in round-robin order.
type Producer struct {
	Ring       *slot.Ring
	Segments   []*shm.Segment
	Fill       Fill
	Iterations int // zero writes until ctx is done

	Log *slog.Logger
}

// New builds a producer over every slot of s, which must have been acquired
// with the producer role.
func New(s *session.Session, fill Fill, iterations int, opts ...slot.Option) (*Producer, error) {
	if s.Role() != slot.Producer {
		return nil, fmt.Errorf("producer: session acquired as %v", s.Role())
	}

	ring, err := slot.NewProducer(s.Pairs(), opts...)
	if err != nil {
		return nil, err
	}

	segments := make([]*shm.Segment, s.Len())
	for i := range segments {
		segments[i] = s.Segment(i)
	}

	return &Producer{
		Ring:       ring,
		Segments:   segments,
		Fill:       fill,
		Iterations: iterations,
	}, nil
}

// Run writes frames until Iterations is reached, ctx is done, or an error
// occurs.
func (p *Producer) Run(ctx context.Context) error {
	if p.Ring.Len() != len(p.Segments) {
		return fmt.Errorf("producer: %d gate pairs for %d segments", p.Ring.Len(), len(p.Segments))
	}

	fill := p.Fill
	if fill == nil {
		fill = Ramp
	}

	log := p.Log
	if log == nil {
		log = slog.Default()
	}

	for i := 0; p.Iterations == 0 || i < p.Iterations; i++ {
		if err := context.Cause(ctx); err != nil {
			return err
		}

		idx, err := p.Ring.Acquire(ctx)
		if err != nil {
			return err
		}

		fill(i, p.Segments[idx].Floats())

		if err := p.Ring.Release(idx); err != nil {
			return err
		}

		log.Debug("wrote frame", "iteration", i, "slot", idx)
	}

	return nil
}
