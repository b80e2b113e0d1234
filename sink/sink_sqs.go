package sink

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned when the writer is used after Close.
	ErrClosed = errors.New("sqs writer closed")
	// ErrMessageTooLarge is returned by Write when the pending message would
	// no longer fit in a single SQS message.
	ErrMessageTooLarge = errors.New("sqs message too large")
)

// SQS message bodies are limited to 256 KiB; base64 grows the payload by 4/3.
const maxSQSRawBytes = 256 * 1024 * 3 / 4

const (
	attrTransferEncoding = "Content-Transfer-Encoding"
	attrSequence         = "Sequence"
	attrStreamID         = "Stream-Id"
)

// Deduplication ids are limited to 128 characters: stream id, '-', sequence.
const maxStreamIDLen = 100

type SQSConfig struct {
	// MaxMessageBytes bounds the raw (pre-base64) size of one message.
	MaxMessageBytes int
	// GroupID is required for FIFO queues. Deduplication ids are derived from
	// StreamID and the sequence number.
	GroupID string
	// StreamID names the stream in every message. Empty means a random UUID
	// per writer, so separate streams never share deduplication ids.
	StreamID string

	Logger *zap.Logger
}

func (c *SQSConfig) validate() {
	if c.MaxMessageBytes < 1 || c.MaxMessageBytes > maxSQSRawBytes {
		panic("max message bytes must be between 1 and " + strconv.Itoa(maxSQSRawBytes))
	}
	if len(c.StreamID) > maxStreamIDLen {
		panic("stream id must be at most " + strconv.Itoa(maxStreamIDLen) + " characters")
	}
}

var DefaultSQSConfig = SQSConfig{
	MaxMessageBytes: maxSQSRawBytes,
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSWriter is an io.Writer that delivers its bytes to an SQS queue. Writes
// accumulate in memory; each Flush sends them as one message, so a chunked
// encoder in flush-after-write mode followed by SQSWriter.Flush publishes one
// message per write.
//
// Message bodies are base64 encoded and carry Stream-Id and Sequence
// attributes so that consumers can tell streams apart and restore their order.
//
// SQSWriter is not safe for concurrent use.
type SQSWriter struct {
	ctx context.Context
	cfg SQSConfig

	client      sqsAPI
	queueURL    string
	queueURLPtr *string
	logger      *zap.Logger

	buf    []byte
	seq    int64
	closed bool
}

func NewSQSWriter(ctx context.Context, client sqsAPI, queueURL string, cfg SQSConfig) *SQSWriter {
	if client == nil {
		panic("sqs client is required")
	}
	if queueURL == "" {
		panic("queue url is required")
	}
	cfg.validate()
	if cfg.StreamID == "" {
		cfg.StreamID = uuid.NewString()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &SQSWriter{
		ctx:      ctx,
		cfg:      cfg,
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
	w.queueURLPtr = &w.queueURL
	return w
}

func (w *SQSWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if len(w.buf)+len(p) > w.cfg.MaxMessageBytes {
		return 0, fmt.Errorf("%w: %d bytes pending, limit %d", ErrMessageTooLarge, len(w.buf)+len(p), w.cfg.MaxMessageBytes)
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Buffered reports the number of bytes waiting for the next Flush.
func (w *SQSWriter) Buffered() int { return len(w.buf) }

// StreamID reports the id carried by every message of this writer.
func (w *SQSWriter) StreamID() string { return w.cfg.StreamID }

// Sent reports how many messages have been delivered.
func (w *SQSWriter) Sent() int64 { return w.seq }

// Flush sends the pending bytes as one message. Nothing is sent when no bytes
// are pending. The buffer is kept on failure so the call can be repeated.
func (w *SQSWriter) Flush() error {
	if w.closed {
		return ErrClosed
	}
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}

	body := base64.StdEncoding.EncodeToString(w.buf)
	seq := strconv.FormatInt(w.seq, 10)

	in := sqs.SendMessageInput{
		QueueUrl:    w.queueURLPtr,
		MessageBody: &body,
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			attrTransferEncoding: {DataType: ptr("String"), StringValue: ptr("chunked")},
			attrSequence:         {DataType: ptr("Number"), StringValue: &seq},
			attrStreamID:         {DataType: ptr("String"), StringValue: &w.cfg.StreamID},
		},
	}
	if w.cfg.GroupID != "" {
		in.MessageGroupId = &w.cfg.GroupID
		in.MessageDeduplicationId = ptr(w.cfg.StreamID + "-" + seq)
	}

	if _, err := w.client.SendMessage(w.ctx, &in); err != nil {
		return fmt.Errorf("send sqs message seq=%s: %w", seq, err)
	}

	w.logger.Debug("sent sqs message",
		zap.String("queue", w.queueURL),
		zap.String("stream", w.cfg.StreamID),
		zap.Int64("seq", w.seq),
		zap.Int("bytes", len(w.buf)),
	)
	w.seq++
	w.buf = w.buf[:0]
	return nil
}

// Close flushes pending bytes. Later calls do nothing.
func (w *SQSWriter) Close() error {
	if w.closed {
		return nil
	}
	err := w.Flush()
	w.closed = true
	w.buf = nil
	return err
}

func ptr[T any](v T) *T { return &v }
