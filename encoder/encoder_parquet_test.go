package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httputil"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"

	"github.com/baldanca/chunked-transfer/chunked"
)

type testItem struct {
	ID    int64   `parquet:"name=id"`
	Name  string  `parquet:"name=name"`
	Value float64 `parquet:"name=value"`
}

func readAllParquet[T any](t *testing.T, b []byte) ([]T, error) {
	t.Helper()

	r := parquet.NewGenericReader[T](bytes.NewReader(b))
	defer r.Close()

	const batchSize = 256
	buf := make([]T, batchSize)

	out := make([]T, 0, batchSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
	}

	return out, nil
}

func TestParquetEncoder_FileExtension(t *testing.T) {
	e := ParquetEncoder[testItem]{}
	if got := e.FileExtension(); got != ".parquet" {
		t.Fatalf("FileExtension() = %q; want %q", got, ".parquet")
	}
}

func TestParquetEncoder_UnsupportedCompression(t *testing.T) {
	e := ParquetEncoder[testItem]{Compression: "brotli"} // não suportado
	_, _, err := e.Encode(context.Background(), []testItem{{ID: 1}})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestParquetEncoder_ContextCanceledBefore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := ParquetEncoder[testItem]{}
	_, _, err := e.Encode(ctx, []testItem{{ID: 1}})
	if err == nil {
		t.Fatal("expected context error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParquetEncoder_EncodeRoundTrip_NoCompression(t *testing.T) {
	items := []testItem{
		{ID: 1, Name: "a", Value: 1.25},
		{ID: 2, Name: "b", Value: 2.50},
		{ID: 3, Name: "c", Value: 3.75},
	}

	e := ParquetEncoder[testItem]{Compression: ""}
	data, ct, err := e.Encode(context.Background(), items)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if ct != "application/vnd.apache.parquet" {
		t.Fatalf("contentType = %q; want %q", ct, "application/vnd.apache.parquet")
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty parquet bytes")
	}

	got, err := readAllParquet[testItem](t, data)
	if err != nil {
		t.Fatalf("read parquet error: %v", err)
	}
	if len(got) != len(items) {
		t.Fatalf("expected %d rows back, got %d", len(items), len(got))
	}

	for i := range items {
		if got[i] != items[i] {
			t.Fatalf("row %d mismatch: got=%+v want=%+v", i, got[i], items[i])
		}
	}
}

func TestParquetEncoder_EncodeRoundTrip_WithCompression_Snappy(t *testing.T) {
	items := []testItem{
		{ID: 10, Name: "x", Value: 10},
		{ID: 11, Name: "y", Value: 11},
	}

	e := ParquetEncoder[testItem]{Compression: "snappy"}
	data, ct, err := e.Encode(context.Background(), items)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if ct != "application/vnd.apache.parquet" {
		t.Fatalf("contentType = %q; want %q", ct, "application/vnd.apache.parquet")
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty parquet bytes")
	}

	got, err := readAllParquet[testItem](t, data)
	if err != nil {
		t.Fatalf("read parquet error: %v", err)
	}
	if len(got) != len(items) {
		t.Fatalf("expected %d rows back, got %d", len(items), len(got))
	}
}

func TestParquetEncoder_EncodeToChunkedStream(t *testing.T) {
	items := make([]testItem, 0, 500)
	for i := 0; i < cap(items); i++ {
		items = append(items, testItem{ID: int64(i), Name: fmt.Sprintf("row-%d", i), Value: float64(i) / 4})
	}

	e := NewParquetEncoder[testItem](ParquetCompressionZstd)
	want, _, err := e.Encode(context.Background(), items)
	require.NoError(t, err)

	var framed bytes.Buffer
	enc, err := chunked.NewWithChunkSize(&framed, 1024)
	require.NoError(t, err)
	require.NoError(t, e.EncodeTo(context.Background(), items, enc))
	require.NoError(t, enc.Close())

	got, err := io.ReadAll(httputil.NewChunkedReader(&framed))
	require.NoError(t, err)
	require.Equal(t, want, got)

	rows, err := readAllParquet[testItem](t, got)
	require.NoError(t, err)
	require.Equal(t, items, rows)
}

func TestProducer_FeedsChunkedBody(t *testing.T) {
	items := []testItem{{ID: 1, Name: "a", Value: 1}}
	e := NewParquetEncoder[testItem](ParquetCompressionSnappy)

	body := chunked.Body{
		Config:  chunked.DefaultConfig,
		Produce: Producer[testItem](context.Background(), e, items),
	}
	first, err := body.Encode()
	require.NoError(t, err)
	second, err := body.Encode()
	require.NoError(t, err)
	require.Equal(t, first, second)

	raw, err := io.ReadAll(httputil.NewChunkedReader(bytes.NewReader(first)))
	require.NoError(t, err)
	rows, err := readAllParquet[testItem](t, raw)
	require.NoError(t, err)
	require.Equal(t, items, rows)
}

func TestParquetEncoder_ContextDeadlineExceededBefore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	time.Sleep(1 * time.Millisecond)

	e := ParquetEncoder[testItem]{}
	_, _, err := e.Encode(ctx, []testItem{{ID: 1, Name: "late", Value: 1}})
	if err == nil {
		t.Fatal("expected context deadline error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

// -------------------- Benchmarks --------------------

type benchItem struct {
	ID    int64   `parquet:"name=id"`
	Name  string  `parquet:"name=name"`
	Value float64 `parquet:"name=value"`
}

func makeBenchItems(n int) []benchItem {
	items := make([]benchItem, n)
	for i := 0; i < n; i++ {
		items[i] = benchItem{
			ID:    int64(i),
			Name:  fmt.Sprintf("item-%d", i),
			Value: float64(i) * 1.337,
		}
	}
	return items
}

func benchmarkParquetEncode(b *testing.B, n int, compression ParquetCompression) {
	b.Helper()

	items := makeBenchItems(n)
	enc := ParquetEncoder[benchItem]{Compression: compression}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		data, ct, err := enc.Encode(ctx, items)
		if err != nil {
			b.Fatalf("Encode error: %v", err)
		}
		if ct == "" || len(data) == 0 {
			b.Fatalf("invalid result: ct=%q len=%d", ct, len(data))
		}
		_ = data[len(data)-1]
	}
}

func BenchmarkParquetEncoder_NoCompression(b *testing.B) {
	for _, n := range []int{10, 100, 1_000, 10_000} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			benchmarkParquetEncode(b, n, "")
		})
	}
}

