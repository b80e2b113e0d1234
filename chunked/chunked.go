// Package chunked writes byte streams using the HTTP/1.1 chunked
// transfer-coding.
//
// An Encoder wraps any io.Writer. Bytes written to it are buffered and emitted
// as fixed-size chunk frames as soon as enough data has accumulated; Close
// emits the remainder followed by the zero-length terminating chunk:
//
//	enc := chunked.New(conn)
//	defer enc.Close()
//	io.Copy(enc, src)
//
// Decoding, headers and trailers are left to the owner of the writer.
package chunked

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// DefaultChunkSize is the number of payload bytes per emitted chunk unless
// configured otherwise.
const DefaultChunkSize = 8192

var (
	// ErrInvalidChunkSize is returned when an Encoder is configured with a
	// chunk size below one byte.
	ErrInvalidChunkSize = errors.New("chunked: chunk size must be at least 1")
	// ErrClosed is returned by Write and Flush after Close.
	ErrClosed = errors.New("chunked: encoder closed")
)

// Config configures an Encoder built by NewWithConfig.
type Config struct {
	// ChunkSize is the payload size of every chunk except the last one.
	ChunkSize int
	// FlushAfterWrite emits whatever is buffered at the end of every Write,
	// even when it is shorter than ChunkSize.
	FlushAfterWrite bool
	// Logger receives errors that happen while closing. Nil disables logging.
	Logger *zap.Logger
}

// DefaultConfig emits DefaultChunkSize chunks without flushing after writes.
var DefaultConfig = Config{
	ChunkSize: DefaultChunkSize,
}

func (c Config) validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	return nil
}

// Encoder frames everything written to it as HTTP chunks.
//
// An Encoder is owned by a single caller and is not safe for concurrent use.
// After a failed Write or Flush the state of the stream is undefined and the
// Encoder should not be reused.
type Encoder struct {
	w      io.Writer
	logger *zap.Logger

	chunkSize       int
	flushAfterWrite bool

	// bytes not yet emitted; always shorter than chunkSize between calls
	buf []byte
	hdr [maxHeaderLen]byte

	closed bool
}

// New returns an Encoder emitting DefaultChunkSize chunks to w.
func New(w io.Writer) *Encoder {
	return newEncoder(w, DefaultConfig)
}

// NewWithChunkSize returns an Encoder emitting chunks of exactly size bytes
// until fewer than size bytes remain buffered.
func NewWithChunkSize(w io.Writer, size int) (*Encoder, error) {
	cfg := DefaultConfig
	cfg.ChunkSize = size
	return NewWithConfig(w, cfg)
}

// NewFlushAfterWrite returns an Encoder that emits everything it was given at
// the end of each Write. Useful when downstream consumers should see data as
// soon as it is produced.
func NewFlushAfterWrite(w io.Writer) *Encoder {
	cfg := DefaultConfig
	cfg.FlushAfterWrite = true
	return newEncoder(w, cfg)
}

// NewWithConfig returns an Encoder configured by cfg. It is the only
// constructor that rejects a nil writer.
func NewWithConfig(w io.Writer, cfg Config) (*Encoder, error) {
	if w == nil {
		return nil, fmt.Errorf("chunked: writer is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newEncoder(w, cfg), nil
}

func newEncoder(w io.Writer, cfg Config) *Encoder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Encoder{
		w:               w,
		logger:          logger,
		chunkSize:       cfg.ChunkSize,
		flushAfterWrite: cfg.FlushAfterWrite,
	}
}

// ChunkSize reports the configured payload size per chunk.
func (e *Encoder) ChunkSize() int { return e.chunkSize }

// Buffered reports how many bytes are waiting to be emitted.
func (e *Encoder) Buffered() int { return len(e.buf) }

// Write buffers p and emits every complete chunk. It reports len(p) on
// success; errors come from the underlying writer.
func (e *Encoder) Write(p []byte) (int, error) {
	if e.closed {
		return 0, ErrClosed
	}

	e.buf = append(e.buf, p...)

	off := 0
	for len(e.buf)-off >= e.chunkSize {
		if err := e.writeFrame(e.buf[off : off+e.chunkSize]); err != nil {
			e.discard(off)
			return 0, err
		}
		off += e.chunkSize
	}
	e.discard(off)

	if e.flushAfterWrite {
		if err := e.Flush(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush emits the buffered bytes as a single chunk, however short. It is a
// no-op when nothing is buffered. The underlying writer is not flushed.
func (e *Encoder) Flush() error {
	if e.closed {
		return ErrClosed
	}
	if len(e.buf) == 0 {
		return nil
	}
	if err := e.writeFrame(e.buf); err != nil {
		return err
	}
	e.buf = e.buf[:0]
	return nil
}

// Close flushes the remaining bytes and writes the terminating zero-length
// chunk. It runs once; later calls do nothing.
//
// Close never returns an error. Failures are logged and dropped, so callers
// that must know the payload reached the writer should call Flush first and
// check its result.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}

	if len(e.buf) > 0 {
		if err := e.writeFrame(e.buf); err != nil {
			e.logger.Warn("chunked: flush on close failed",
				zap.Int("buffered", len(e.buf)),
				zap.Error(err),
			)
		}
		e.buf = e.buf[:0]
	}
	if err := e.writeFrame(nil); err != nil {
		e.logger.Warn("chunked: writing terminating chunk failed", zap.Error(err))
	}

	e.closed = true
	e.buf = nil
	return nil
}

// discard drops the first n buffered bytes, moving the remainder to the front.
func (e *Encoder) discard(n int) {
	if n == 0 {
		return
	}
	e.buf = e.buf[:copy(e.buf, e.buf[n:])]
}

func (e *Encoder) writeFrame(p []byte) error {
	hdr := AppendFrameHeader(e.hdr[:0], len(p))
	if err := writeFull(e.w, hdr); err != nil {
		return fmt.Errorf("write chunk size: %w", err)
	}
	if err := writeFull(e.w, p); err != nil {
		return fmt.Errorf("write chunk data: %w", err)
	}
	if err := writeFull(e.w, crlf); err != nil {
		return fmt.Errorf("write chunk end: %w", err)
	}
	return nil
}

func writeFull(w io.Writer, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := w.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}
