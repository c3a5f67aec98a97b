// Copyright 2016 Tom Thorogood. All rights reserved.
// Use of this source code is governed by a
// Modified BSD License license that can be found in
// the LICENSE file.

package shm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidName   = errors.New("invalid shared memory name")
	ErrInvalidSize   = errors.New("invalid segment size")
	ErrSizeMismatch  = errors.New("segment size mismatch")
	ErrInvalidObject = errors.New("invalid semaphore object")
	ErrOverflow      = errors.New("semaphore value overflow")
	ErrClosed        = errors.New("shared memory object closed")
	ErrUnsupported   = errors.New("process-shared semaphores not supported on this platform")
)

var errFutexTimeout = errors.New("futex timeout")

// ResourceError reports a segment or semaphore that could not be created,
// opened or sized.
type ResourceError struct {
	Op   string
	Name string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// MappingError reports a segment that could not be mapped.
type MappingError struct {
	Name string
	Err  error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mmap %s: %v", e.Name, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// TeardownError collects every unlink that failed. It is only built after
// all unlinks have been attempted.
type TeardownError struct {
	Errs []error
}

func (e *TeardownError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}

	return "teardown: " + strings.Join(msgs, "; ")
}

func (e *TeardownError) Unwrap() []error { return e.Errs }

// TimeoutError is returned by a bounded wait that received no permit.
type TimeoutError struct {
	Name  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sem_wait %s: no permit after %v", e.Name, e.After)
}

func (e *TimeoutError) Timeout() bool { return true }
