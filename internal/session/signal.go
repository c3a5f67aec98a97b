package session

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// DefaultSignals are the termination signals that trigger cleanup:
// interrupt, terminate, and the two invalid memory access signals.
var DefaultSignals = []os.Signal{os.Interrupt, unix.SIGTERM, unix.SIGBUS, unix.SIGSEGV}

// SignalError is the cause of a run ended by a termination signal.
type SignalError struct {
	Signal os.Signal
	// Fault is the faulting address when the signal was a memory fault
	// raised by the run itself rather than delivered from outside.
	Fault uintptr
}

func (e *SignalError) Error() string {
	if e.Fault != 0 {
		return fmt.Sprintf("memory fault at %#x (%v)", e.Fault, e.Signal)
	}

	return "terminated by signal: " + e.Signal.String()
}

// Trap returns a context that is cancelled with a *SignalError cause when one
// of sigs (DefaultSignals if none) arrives. Nothing else happens on delivery:
// cleanup is left to whoever observes the context, at a point where it is
// safe to run. The returned stop function stops signal delivery.
func Trap(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	if len(sigs) == 0 {
		sigs = DefaultSignals
	}

	ctx, cancel := context.WithCancelCause(parent)

	c := make(chan os.Signal, 1)
	signal.Notify(c, sigs...)

	go func() {
		select {
		case sig := <-c:
			cancel(&SignalError{Signal: sig})
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(c)
		cancel(nil)
	}
}

// CatchFault runs fn and turns a memory fault inside it, typically a peer
// truncating a mapped segment, into a *SignalError instead of a crash.
func CatchFault(fn func() error) (err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))

	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if f, ok := r.(interface{ Addr() uintptr }); ok {
			err = &SignalError{Signal: unix.SIGBUS, Fault: f.Addr()}
			return
		}

		panic(r)
	}()

	return fn()
}
