package sbxrpc

import (
	"context"

	"connectrpc.com/connect"

	"github.com/scalebox/sbx-go/sbxerr"
)

// Stream is the single-pass, cancellable iterator returned by ServerStream.
// Receive advances to the next frame; Msg returns the frame most recently
// received; Err returns the terminal error (nil on a clean end-of-stream).
// Cancelling the stream closes the underlying HTTP/2 connection and makes
// the next Receive return false with a cancellation error from Err.
type Stream[Frame any] struct {
	raw    *connect.ServerStreamForClient[Frame]
	cancel context.CancelFunc
	err    error
	closed bool
	done   bool
}

// Receive advances the stream. It returns false at end-of-stream or on
// error; callers must check Err afterward to distinguish the two.
func (s *Stream[Frame]) Receive() bool {
	if s.closed {
		return false
	}
	if !s.raw.Receive() {
		s.done = true
		if err := s.raw.Err(); err != nil {
			s.err = WrapError(context.Background(), err)
		}
		return false
	}
	return true
}

// Msg returns the most recently received frame.
func (s *Stream[Frame]) Msg() *Frame { return s.raw.Msg() }

// Err returns the terminal status observed after Receive returned false,
// or the cancellation error recorded by a mid-stream Close.
func (s *Stream[Frame]) Err() error { return s.err }

// Close cancels the stream and releases the underlying connection. A
// stream closed before its terminal frame records a cancellation error,
// so Err distinguishes "cancelled mid-stream" from a clean end. Safe to
// call more than once.
func (s *Stream[Frame]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.done && s.err == nil {
		s.err = sbxerr.New(sbxerr.KindTimeout, "stream cancelled")
	}
	s.cancel()
	return s.raw.Close()
}
