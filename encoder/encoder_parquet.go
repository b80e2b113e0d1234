package encoder

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

type ParquetCompression string

const (
	ParquetCompressionNone   ParquetCompression = ""
	ParquetCompressionSnappy ParquetCompression = "snappy"
	ParquetCompressionGzip   ParquetCompression = "gzip"
	ParquetCompressionZstd   ParquetCompression = "zstd"
)

const parquetContentType = "application/vnd.apache.parquet"

type ParquetEncoder[iType any] struct {
	Compression ParquetCompression
}

func NewParquetEncoder[iType any](c ParquetCompression) ParquetEncoder[iType] {
	return ParquetEncoder[iType]{Compression: c}
}

func (e ParquetEncoder[iType]) FileExtension() string { return ".parquet" }

func (e ParquetEncoder[iType]) ContentType() string { return parquetContentType }

func (e ParquetEncoder[iType]) Encode(ctx context.Context, items []iType) ([]byte, string, error) {
	var output bytes.Buffer
	if err := e.EncodeTo(ctx, items, &output); err != nil {
		return nil, "", err
	}
	return output.Bytes(), parquetContentType, nil
}

// EncodeTo writes items as a parquet file to w. The footer is written last,
// so w sees the row groups before encoding finishes.
func (e ParquetEncoder[iType]) EncodeTo(ctx context.Context, items []iType, w io.Writer) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	options, err := e.writerOptions()
	if err != nil {
		return err
	}

	pw := parquet.NewGenericWriter[iType](w, options...)
	if _, err := pw.Write(items); err != nil {
		_ = pw.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}

	return ctxErr(ctx)
}

func (e ParquetEncoder[iType]) writerOptions() ([]parquet.WriterOption, error) {
	switch e.Compression {
	case ParquetCompressionNone:
		return nil, nil
	case ParquetCompressionSnappy:
		return []parquet.WriterOption{parquet.Compression(&parquet.Snappy)}, nil
	case ParquetCompressionGzip:
		return []parquet.WriterOption{parquet.Compression(&parquet.Gzip)}, nil
	case ParquetCompressionZstd:
		return []parquet.WriterOption{parquet.Compression(&parquet.Zstd)}, nil
	default:
		return nil, fmt.Errorf("unsupported parquet compression: %q", e.Compression)
	}
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
