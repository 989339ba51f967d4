// Package sink defines where exported documents are saved and builds the
// configured destination.
package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/vitwang05/lexreview/internal/config"
	"github.com/vitwang05/lexreview/internal/sink/local"
	s3sink "github.com/vitwang05/lexreview/internal/sink/s3"
)

// Sink stores finished artifacts.
type Sink interface {
	// Save stores body under name and returns where it landed. A failed save
	// leaves nothing behind under name.
	Save(ctx context.Context, name string, body io.Reader, size int64) (string, error)

	// Type returns the sink type identifier ("local", "s3").
	Type() string
}

// New creates the sink selected by cfg.SinkBackend.
func New(ctx context.Context, cfg *config.Config) (Sink, error) {
	switch cfg.SinkBackend {
	case "", "local":
		return local.New(local.Config{Dir: cfg.DownloadDir, CreateDirs: true})
	case "s3":
		return s3sink.New(ctx, s3sink.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
	default:
		return nil, fmt.Errorf("unknown sink backend: %s", cfg.SinkBackend)
	}
}
