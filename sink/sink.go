package sink

import (
	"context"
	"io"
)

type WriteRequest struct {
	Key         string
	Data        []byte
	ContentType string
}

type StreamWriteRequest struct {
	Key         string
	ContentType string
	// Body streams the payload to the destination. Sinks that retry call
	// WriteTo once per attempt.
	Body io.WriterTo
}

type Sinkr interface {
	Write(ctx context.Context, req WriteRequest) error
}

// StreamSinkr is an optional interface implemented by sinks that can stream data directly
// to the destination without buffering the full payload in memory.
type StreamSinkr interface {
	WriteStream(ctx context.Context, req StreamWriteRequest) error
}

// Flusher is implemented by sinks that buffer writes and need an explicit
// push to the destination.
type Flusher interface {
	Flush() error
}
