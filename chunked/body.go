package chunked

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrNotReplayable is returned when a Body built from a reader that cannot
// be rewound is written a second time.
var ErrNotReplayable = errors.New("chunked: body reader cannot be replayed")

// Body is a chunked payload that can be replayed into any writer. Each call to
// WriteTo wraps the destination in a new Encoder, runs Produce against it and
// closes the stream.
//
// Produce may be called more than once (for example by a retrying sink), so it
// must be able to regenerate its output.
type Body struct {
	Config  Config
	Produce func(w io.Writer) error
}

// Bytes returns a Body encoding p.
func Bytes(p []byte, cfg Config) Body {
	return Body{
		Config: cfg,
		Produce: func(w io.Writer) error {
			_, err := w.Write(p)
			return err
		},
	}
}

// Reader returns a Body copying r. Readers that implement io.Seeker are
// rewound before every copy; other readers can only be encoded once, later
// attempts fail with ErrNotReplayable.
func Reader(r io.Reader, cfg Config) Body {
	used := false
	return Body{
		Config: cfg,
		Produce: func(w io.Writer) error {
			if s, ok := r.(io.Seeker); ok {
				if _, err := s.Seek(0, io.SeekStart); err != nil {
					return fmt.Errorf("rewind body: %w", err)
				}
			} else if used {
				return ErrNotReplayable
			} else {
				used = true
			}
			_, err := io.Copy(w, r)
			return err
		},
	}
}

// WriteTo implements io.WriterTo. The returned count includes framing.
//
// The remainder is flushed explicitly so that write errors are reported;
// the terminating chunk is still best effort, as with Close.
func (b Body) WriteTo(w io.Writer) (int64, error) {
	if b.Produce == nil {
		return 0, fmt.Errorf("chunked: body has no producer")
	}

	cw := &countingWriter{w: w}
	enc, err := NewWithConfig(cw, b.Config)
	if err != nil {
		return 0, err
	}
	defer enc.Close()

	if err := b.Produce(enc); err != nil {
		return cw.n, fmt.Errorf("produce body: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return cw.n, err
	}
	enc.Close()
	return cw.n, nil
}

// Encode returns the full encoding of the body.
func (b Body) Encode() ([]byte, error) {
	var out bytes.Buffer
	if _, err := b.WriteTo(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
