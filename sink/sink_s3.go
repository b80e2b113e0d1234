package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ErrStreamingUnsupported is returned by WriteStream when the sink was built
// without an uploader.
var ErrStreamingUnsupported = errors.New("sink: streaming upload not configured")

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type uploaderAPI interface {
	UploadObject(ctx context.Context, input *transfermanager.UploadObjectInput, opts ...func(*transfermanager.Options)) (*transfermanager.UploadObjectOutput, error)
}

type Sink struct {
	client   s3API
	uploader uploaderAPI
	logger   *zap.Logger

	bucket    string
	bucketPtr *string
	prefix    string
}

type Option func(*Sink)

// WithUploader enables WriteStream. Uploads of unknown length go through the
// transfer manager, which splits them into multipart parts.
func WithUploader(u uploaderAPI) Option {
	return func(s *Sink) { s.uploader = u }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(client s3API, bucket, prefix string, opts ...Option) *Sink {
	if client == nil {
		panic("s3 client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		panic("bucket is required")
	}

	s := &Sink{
		client: client,
		logger: zap.NewNop(),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
	// Pointer estável (sem aws.String que aloca).
	s.bucketPtr = &s.bucket
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromClient builds a Sink able to both put and stream objects.
func NewFromClient(client *s3.Client, bucket, prefix string, opts ...Option) *Sink {
	opts = append([]Option{WithUploader(transfermanager.New(client))}, opts...)
	return New(client, bucket, prefix, opts...)
}

// objectKey keeps S3 semantics: the key is not path-cleaned.
func (s *Sink) objectKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	key = strings.TrimLeft(key, "/")
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return key, nil
}

func (s *Sink) Write(ctx context.Context, req WriteRequest) error {
	key, err := s.objectKey(req.Key)
	if err != nil {
		return err
	}

	// Evita aws.String/aws.Int64 (alocam).
	keyVar := key
	cl := int64(len(req.Data))

	var ct string
	if req.ContentType != "" {
		ct = req.ContentType
	}

	// Evita alocação do bytes.NewReader.
	var body bytes.Reader
	body.Reset(req.Data)

	input := s3.PutObjectInput{
		Bucket:        s.bucketPtr,
		Key:           &keyVar,
		Body:          &body,
		ContentLength: &cl,
	}
	if ct != "" {
		input.ContentType = &ct
	}

	_, err = s.client.PutObject(ctx, &input)
	if err != nil {
		return fmt.Errorf("put s3 object key=%q: %w", key, err)
	}
	return nil
}

// WriteStream uploads whatever req.Body writes, without knowing its length
// up front. The body runs in its own goroutine, connected to the upload by a
// pipe.
func (s *Sink) WriteStream(ctx context.Context, req StreamWriteRequest) error {
	if s.uploader == nil {
		return ErrStreamingUnsupported
	}
	if req.Body == nil {
		return fmt.Errorf("nil stream body")
	}
	key, err := s.objectKey(req.Key)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	type result struct {
		n   int64
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := req.Body.WriteTo(pw)
		// nil err closes the pipe with io.EOF
		pw.CloseWithError(err)
		done <- result{n: n, err: err}
	}()

	keyVar := key
	input := transfermanager.UploadObjectInput{
		Bucket: s.bucketPtr,
		Key:    &keyVar,
		Body:   pr,
	}
	if req.ContentType != "" {
		ct := req.ContentType
		input.ContentType = &ct
	}

	_, upErr := s.uploader.UploadObject(ctx, &input)
	// unblock the producer if the upload stopped reading early
	pr.CloseWithError(upErr)
	res := <-done

	if res.err != nil {
		return fmt.Errorf("stream s3 object key=%q: %w", key, res.err)
	}
	if upErr != nil {
		return fmt.Errorf("upload s3 object key=%q: %w", key, upErr)
	}

	s.logger.Debug("streamed object",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int64("bytes", res.n),
	)
	return nil
}
