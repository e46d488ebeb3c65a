package stream

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"unicode/utf8"

	"ask/internal/models"
	"ask/internal/translator"
)

var (
	// ErrMalformedChunk indicates a data line that could not be decoded.
	// The line is skipped and decoding continues.
	ErrMalformedChunk = errors.New("malformed stream chunk")

	// ErrChunkRead indicates the transport failed while reading a chunk.
	ErrChunkRead = errors.New("stream read failed")
)

const (
	dataPrefix = "data:"

	// Sentinel marks the end of a streamed response.
	Sentinel = "[DONE]"
)

// Option configures a Decoder.
type Option func(*Decoder)

// WithErrorHandler routes non-fatal decoding errors to fn.
func WithErrorHandler(fn func(error)) Option {
	return func(d *Decoder) {
		if fn != nil {
			d.onError = fn
		}
	}
}

// WithLogger reports non-fatal decoding errors as warnings on logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) {
		if logger != nil {
			d.onError = logError(logger)
		}
	}
}

// Decoder turns raw byte chunks of an event stream into content fragments.
// It keeps the trailing partial line between calls so that lines split
// across chunks are decoded exactly once. A Decoder is not safe for
// concurrent use and cannot be restarted once Done.
type Decoder struct {
	buf     []byte
	usage   *models.Usage
	done    bool
	err     error
	onError func(error)
}

// NewDecoder constructs a decoder. Without options, errors are logged on the
// default slog logger.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{onError: logError(slog.Default())}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func logError(logger *slog.Logger) func(error) {
	return func(err error) {
		logger.Warn("skipping stream input", "error", err)
	}
}

// Feed appends chunk to the buffer and returns the fragments of every line
// it completes, in stream order. Once the sentinel is seen Feed returns nil.
func (d *Decoder) Feed(chunk []byte) []string {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var fragments []string
	start := 0
	for !d.done {
		idx := bytes.IndexByte(d.buf[start:], '\n')
		if idx < 0 {
			break
		}
		line := d.buf[start : start+idx]
		start += idx + 1
		if fragment, ok := d.processLine(line); ok {
			fragments = append(fragments, fragment)
		}
	}

	if d.done {
		d.buf = d.buf[:0]
		return fragments
	}
	n := copy(d.buf, d.buf[start:])
	d.buf = d.buf[:n]
	return fragments
}

// Finish processes whatever is left in the buffer as a final line. It is
// called when the input ends without a sentinel.
func (d *Decoder) Finish() []string {
	if d.done {
		return nil
	}
	var fragments []string
	if len(d.buf) > 0 {
		if fragment, ok := d.processLine(d.buf); ok {
			fragments = append(fragments, fragment)
		}
	}
	d.buf = d.buf[:0]
	d.done = true
	return fragments
}

// Done reports whether the sentinel or the end of input was reached.
func (d *Decoder) Done() bool {
	return d.done
}

// Usage returns the last usage record seen on the stream, if any.
func (d *Decoder) Usage() *models.Usage {
	if d.usage == nil {
		return nil
	}
	usage := *d.usage
	return &usage
}

// Err returns the read error that ended the chunk sequence, if the sequence
// ended on one. The buffered partial line is discarded in that case.
func (d *Decoder) Err() error {
	return d.err
}

// Fragments consumes chunks lazily and yields content fragments until the
// sentinel, the end of chunks or the consumer stops. Read errors carried by
// chunks are reported and skipped; when the last item of the sequence is an
// error, decoding stops and Err reports it.
func (d *Decoder) Fragments(chunks iter.Seq2[[]byte, error]) iter.Seq[string] {
	return func(yield func(string) bool) {
		var lastErr error
		for chunk, err := range chunks {
			if err != nil {
				lastErr = err
				d.onError(fmt.Errorf("%w: %v", ErrChunkRead, err))
				continue
			}
			lastErr = nil
			for _, fragment := range d.Feed(chunk) {
				if !yield(fragment) {
					return
				}
			}
			if d.done {
				return
			}
		}
		if lastErr != nil {
			d.err = fmt.Errorf("%w: %w", ErrChunkRead, lastErr)
			d.buf = d.buf[:0]
			d.done = true
			return
		}
		for _, fragment := range d.Finish() {
			if !yield(fragment) {
				return
			}
		}
	}
}

func (d *Decoder) processLine(line []byte) (string, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))

	payload, isData := bytes.CutPrefix(line, []byte(dataPrefix))
	if !isData {
		if string(bytes.TrimSpace(line)) == Sentinel {
			d.done = true
		}
		return "", false
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return "", false
	}
	if string(payload) == Sentinel {
		d.done = true
		return "", false
	}
	if !utf8.Valid(payload) {
		d.onError(fmt.Errorf("%w: invalid utf-8", ErrMalformedChunk))
		return "", false
	}

	chunk, err := translator.DecodeChunk(payload)
	if err != nil {
		d.onError(fmt.Errorf("%w: %v", ErrMalformedChunk, err))
		return "", false
	}

	if usage, ok := chunk.UsageRecord(); ok {
		d.usage = &usage
	}

	content := chunk.Content()
	if content == "" {
		return "", false
	}
	return content, true
}
