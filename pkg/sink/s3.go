package sink

import (
	"bytes"
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3 snapshot sink.
type S3Config struct {
	// Bucket holds the snapshot object.
	Bucket string

	// Key is the snapshot object key. Default: "latest.json".
	Key string

	// Region is the bucket region. Default: "us-east-1".
	Region string

	// Endpoint overrides the service endpoint for S3-compatible stores
	// (MinIO, LocalStack). Path-style addressing is used when set.
	Endpoint string
}

func (c S3Config) withDefaults() S3Config {
	if c.Key == "" {
		c.Key = "latest.json"
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	return c
}

// ObjectPutter is the subset of *s3.Client used by the sink.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client for config. Credentials come from the
// standard AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN
// environment variables.
func NewS3Client(config S3Config) *s3.Client {
	config = config.withDefaults()
	opts := s3.Options{
		Region: config.Region,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "sprout environment",
			}, nil
		}),
	}
	if config.Endpoint != "" {
		opts.BaseEndpoint = aws.String(config.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// S3Snapshot mirrors the latest payload to a single object. Heartbeat
// re-broadcasts of an unchanged payload are skipped.
type S3Snapshot struct {
	counters
	client ObjectPutter
	config S3Config
	logger *slog.Logger

	// last is only touched by Send, which the hub never calls concurrently.
	last []byte
}

// NewS3Snapshot wraps client. Pass NewS3Client(config) for a real bucket.
func NewS3Snapshot(client ObjectPutter, config S3Config, opts ...Option) *S3Snapshot {
	config = config.withDefaults()
	o := buildOptions("sink.s3", opts)
	return &S3Snapshot{
		client: client,
		config: config,
		logger: o.logger.With("bucket", config.Bucket, "key", config.Key),
	}
}

// Send uploads msg unless it equals the last uploaded payload.
func (s *S3Snapshot) Send(ctx context.Context, msg []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}

	if bytes.Equal(s.last, msg) {
		s.skipped.Add(1)
		return nil
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.config.Bucket),
		Key:          aws.String(s.config.Key),
		Body:         bytes.NewReader(msg),
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return s.drop(s.logger, err)
	}

	s.last = append(s.last[:0], msg...)
	s.delivered.Add(1)
	return nil
}

// Close stops further uploads. The last snapshot stays in the bucket.
func (s *S3Snapshot) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.logger.Info("s3 sink closed", "uploads", s.delivered.Load(), "skipped", s.skipped.Load())
	return nil
}
