package stream

import (
	"context"
	"errors"
	"io"
	"iter"
	"net"
)

const (
	// DefaultChunkSize is the read size used when ReadChunks gets size <= 0.
	DefaultChunkSize = 4 * 1024

	maxConsecutiveReadErrors = 3
)

// ReadChunks exposes r as a sequence of raw chunks. A failed read is yielded
// as an error and reading resumes; the sequence ends at io.EOF, on a closed
// or cancelled transport, or after repeated consecutive failures. Each chunk
// is only valid until the next iteration.
func ReadChunks(r io.Reader, size int) iter.Seq2[[]byte, error] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return func(yield func([]byte, error) bool) {
		buf := make([]byte, size)
		failures := 0
		for {
			n, err := r.Read(buf)
			if n > 0 {
				failures = 0
				if !yield(buf[:n], nil) {
					return
				}
			}
			if err == nil {
				continue
			}
			if errors.Is(err, io.EOF) {
				return
			}

			failures++
			if !yield(nil, err) {
				return
			}
			if isClosed(err) || failures >= maxConsecutiveReadErrors {
				return
			}
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}
