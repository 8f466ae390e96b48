// Package sbxtask provides the uniform handler-dispatch abstraction shared
// by the code-interpreter demultiplexer and the two public façades. A
// Scheduler decides whether a callback runs inline (blocking façade) or is
// handed to a task group (cooperative façade); either way, Go is called in
// frame-arrival order, so per-stream ordering of *dispatch* is preserved
// even when the scheduled work itself completes out of order.
package sbxtask

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Scheduler runs a unit of handler work, possibly asynchronously.
type Scheduler interface {
	Go(func() error)
	// Wait blocks until every previously scheduled unit has completed and
	// returns the first error, if any.
	Wait() error
}

// Inline runs every unit synchronously on the calling goroutine. This is
// what the blocking façade uses: handler callbacks fire on the same
// goroutine as Wait/RunCode.
type Inline struct {
	err error
}

func (s *Inline) Go(fn func() error) {
	if s.err != nil {
		return
	}
	if err := fn(); err != nil {
		s.err = err
	}
}

func (s *Inline) Wait() error { return s.err }

// Group hands every scheduled unit to a single background worker, run under
// an errgroup.Group, used by the cooperative façade for task-returning
// handlers so the demultiplexer does not wait on slow user code; Go blocks
// only once 256 units are queued and not yet run. The worker
// drains units from a buffered channel one at a time in the order Go was
// called, so handler dispatch for a given stream stays in frame-arrival
// order even though it runs off the caller's goroutine; spawning one
// goroutine per frame instead (as errgroup.Go would on its own) would let
// the Go runtime interleave handler execution within a single stream.
type Group struct {
	g       *errgroup.Group
	units   chan func() error
	closeCh sync.Once
}

// NewGroup builds a Group-backed Scheduler.
func NewGroup() *Group {
	s := &Group{g: &errgroup.Group{}, units: make(chan func() error, 256)}
	s.g.Go(func() error {
		var firstErr error
		for fn := range s.units {
			if err := fn(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
	return s
}

func (s *Group) Go(fn func() error) { s.units <- fn }

func (s *Group) Wait() error {
	s.closeCh.Do(func() { close(s.units) })
	return s.g.Wait()
}
