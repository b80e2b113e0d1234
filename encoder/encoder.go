package encoder

import (
	"context"
	"io"
)

// Encoder converts a slice of typed records into a binary payload.
//
// Implementations must be safe for concurrent use unless documented otherwise.
type Encoder[iType any] interface {
	Encode(ctx context.Context, items []iType) (data []byte, contentType string, err error)
	FileExtension() string
	ContentType() string
}

// StreamEncoder is an optional interface for encoders that can write directly
// to an io.Writer to avoid buffering the full output in memory. Writing into a
// chunked.Encoder lets the payload leave the process before it is complete.
type StreamEncoder[iType any] interface {
	EncodeTo(ctx context.Context, items []iType, w io.Writer) error
	FileExtension() string
	ContentType() string
}

// Producer adapts a stream encoder to the func(io.Writer) error shape used by
// chunked.Body. The items are encoded again on every call.
func Producer[iType any](ctx context.Context, enc StreamEncoder[iType], items []iType) func(w io.Writer) error {
	return func(w io.Writer) error {
		return enc.EncodeTo(ctx, items, w)
	}
}
