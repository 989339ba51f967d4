// Package s3 saves artifacts to an S3-compatible bucket.
package s3

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/vitwang05/lexreview/internal/logging"
	"github.com/vitwang05/lexreview/internal/metrics"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Config holds S3 sink settings. Endpoint is optional; set it for MinIO and
// other S3-compatible stores.
type Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string
}

// Sink uploads artifacts to a bucket.
type Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// New creates an S3 sink. Static credentials are used when both keys are set,
// otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Sink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *Sink) key(name string) string {
	if s.prefix == "" {
		return path.Base(name)
	}
	return path.Join(s.prefix, path.Base(name))
}

// Save uploads body as one object. S3 writes are all-or-nothing.
func (s *Sink) Save(ctx context.Context, name string, body io.Reader, size int64) (string, error) {
	start := time.Now()
	key := s.key(name)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(docxContentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		metrics.RecordSinkWrite("s3", time.Since(start), false)
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	metrics.RecordSinkWrite("s3", time.Since(start), true)
	logging.Debug("S3 put object", zap.String("bucket", s.bucket), zap.String("key", key), zap.Int64("size", size))
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Type returns "s3".
func (s *Sink) Type() string { return "s3" }
