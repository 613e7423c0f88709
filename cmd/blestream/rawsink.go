package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
)

const (
	defaultRawSinkCap = 64 * 1024
	rawFlushChunk     = 4096
)

// rawSink stages characteristic payloads in a byte ring and copies them to out
// from a single writer goroutine. Push never blocks; payloads that do not fit are dropped.
type rawSink struct {
	ring    *ringbuffer.RingBuffer
	out     io.Writer
	wake    chan struct{}
	dropped atomic.Int64
	logger  *logrus.Logger
}

func newRawSink(out io.Writer, capacity int, logger *logrus.Logger) *rawSink {
	if capacity <= 0 {
		capacity = defaultRawSinkCap
	}
	return &rawSink{
		ring:   ringbuffer.New(capacity),
		out:    out,
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Push stages p whole and returns the number of bytes accepted. A payload that
// does not fit is dropped entirely so the output never carries a cut-off value.
// Push is called from a single observer goroutine.
func (s *rawSink) Push(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	if s.ring.Free() < len(p) {
		s.dropped.Add(int64(len(p)))
		return 0
	}
	n, err := s.ring.Write(p)
	if err != nil {
		if !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
			s.logger.WithError(err).Warn("Raw sink write failed")
		}
		s.dropped.Add(int64(len(p) - n))
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return n
}

// Flush copies everything staged so far to out
func (s *rawSink) Flush() error {
	buf := make([]byte, rawFlushChunk)
	for {
		n, err := s.ring.TryRead(buf)
		if n > 0 {
			if _, werr := s.out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("raw output failed: %w", werr)
			}
		}
		if err != nil {
			if errors.Is(err, ringbuffer.ErrIsEmpty) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// Run flushes on every Push until ctx is done, then flushes what is left
func (s *rawSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return s.Flush()
		case <-s.wake:
			if err := s.Flush(); err != nil {
				return err
			}
		}
	}
}

// Dropped returns the number of payload bytes lost to a full ring
func (s *rawSink) Dropped() int64 {
	return s.dropped.Load()
}

// Staged returns the number of bytes waiting to be written
func (s *rawSink) Staged() int {
	return s.ring.Length()
}
