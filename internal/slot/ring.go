// Package slot implements the hand-off protocol between one producer and one
// consumer over a fixed ring of single-frame slots.
//
// Every slot has a gate pair: an empty gate (initial count 1) that the
// producer takes before writing, and a full gate (initial count 0) that the
// consumer takes before reading. Each side visits the slots in the same fixed
// order 0, 1, ..., N-1, 0, ... and releases the opposite gate once it is done
// with the slot, so a slot is always either writable by the producer or
// readable by the consumer, never both.
package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	shm "github.com/risingape/producer-consumer"
)

var (
	ErrNoSlots     = errors.New("slot: ring needs at least one gate pair")
	ErrAlreadyHeld = errors.New("slot: previous slot not released")
	ErrNotHeld     = errors.New("slot: slot is not held")
)

// Gate is a counting semaphore as seen by one side of the hand-off.
type Gate interface {
	// Wait blocks until a permit is available and takes it, or returns the
	// cause of ctx once ctx is done.
	Wait(ctx context.Context) error
	// Post releases a permit without blocking.
	Post() error
}

var _ Gate = (*shm.Semaphore)(nil)

// Pair is the gate pair guarding one slot.
type Pair struct {
	Name  string
	Empty Gate
	Full  Gate
}

// Role selects which gate of each pair a ring waits on.
type Role int

const (
	Consumer Role = iota
	Producer
)

func (r Role) String() string {
	if r == Producer {
		return "producer"
	}

	return "consumer"
}

// Option configures a Ring.
type Option func(*Ring)

// WithWaitTimeout bounds every Acquire. When no permit arrives in time
// Acquire returns a *shm.TimeoutError. Zero waits forever.
func WithWaitTimeout(d time.Duration) Option {
	return func(r *Ring) { r.timeout = d }
}

// Ring walks the slots in round-robin order for one role. It is used from a
// single goroutine.
type Ring struct {
	role    Role
	pairs   []Pair
	timeout time.Duration

	next   int
	held   bool
	cycles []uint64
}

// NewConsumer returns a ring that takes full gates and posts empty gates.
func NewConsumer(pairs []Pair, opts ...Option) (*Ring, error) {
	return newRing(Consumer, pairs, opts)
}

// NewProducer returns a ring that takes empty gates and posts full gates.
func NewProducer(pairs []Pair, opts ...Option) (*Ring, error) {
	return newRing(Producer, pairs, opts)
}

func newRing(role Role, pairs []Pair, opts []Option) (*Ring, error) {
	if len(pairs) == 0 {
		return nil, ErrNoSlots
	}

	for i, p := range pairs {
		if p.Empty == nil || p.Full == nil {
			return nil, fmt.Errorf("slot: pair %d is missing a gate", i)
		}
	}

	r := &Ring{
		role:   role,
		pairs:  pairs,
		cycles: make([]uint64, len(pairs)),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

func (r *Ring) Role() Role { return r.role }

// Len returns the number of slots.
func (r *Ring) Len() int { return len(r.pairs) }

// Next returns the slot the next Acquire waits on.
func (r *Ring) Next() int { return r.next }

// Acquire waits for the next slot in order and returns its index. The slot
// is held until Release; no other slot can be acquired meanwhile.
func (r *Ring) Acquire(ctx context.Context) (int, error) {
	if r.held {
		return -1, ErrAlreadyHeld
	}

	p := r.pairs[r.next]
	gate := p.Full
	if r.role == Producer {
		gate = p.Empty
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.timeout, &shm.TimeoutError{Name: p.Name, After: r.timeout})
		defer cancel()
	}

	if err := gate.Wait(ctx); err != nil {
		return -1, err
	}

	r.held = true
	return r.next, nil
}

// Release hands the held slot to the other side and advances to the next
// slot. It must be called exactly once per Acquire, after the slot's
// contents are no longer touched.
func (r *Ring) Release(slot int) error {
	if !r.held || slot != r.next {
		return ErrNotHeld
	}

	p := r.pairs[slot]
	gate := p.Empty
	if r.role == Producer {
		gate = p.Full
	}

	if err := gate.Post(); err != nil {
		return fmt.Errorf("slot %d (%s): %w", slot, p.Name, err)
	}

	r.held = false
	r.cycles[slot]++
	r.next = (r.next + 1) % len(r.pairs)

	return nil
}

// Cycles returns the completed acquire/release cycles per slot.
func (r *Ring) Cycles() []uint64 {
	return append([]uint64(nil), r.cycles...)
}
