// Package local saves artifacts into a directory on the local filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitwang05/lexreview/internal/logging"
	"github.com/vitwang05/lexreview/internal/metrics"
)

// Config holds local sink settings.
type Config struct {
	Dir        string
	CreateDirs bool
}

// Sink writes artifacts into Dir.
type Sink struct {
	dir string
}

// New creates a local sink.
func New(cfg Config) (*Sink, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("download directory is required")
	}

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(cfg.Dir, 0755); mkErr != nil {
				return nil, fmt.Errorf("create download dir %s: %w", cfg.Dir, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat download dir %s: %w", cfg.Dir, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("download dir %s is not a directory", cfg.Dir)
	}

	return &Sink{dir: cfg.Dir}, nil
}

// Save writes body to Dir/name atomically: the content goes to a temp file
// that is renamed into place only once fully written.
func (s *Sink) Save(_ context.Context, name string, body io.Reader, _ int64) (string, error) {
	start := time.Now()
	path, err := s.save(name, body)
	metrics.RecordSinkWrite("local", time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	logging.Debug("artifact saved", zap.String("path", path))
	return path, nil
}

func (s *Sink) save(name string, body io.Reader) (string, error) {
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == string(filepath.Separator) || strings.HasPrefix(base, "..") {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	path := filepath.Join(s.dir, base)

	tmp, err := os.CreateTemp(s.dir, ".lexreview-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp for %s: %w", base, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", base, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp for %s: %w", base, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("chmod %s: %w", base, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename temp to %s: %w", base, err)
	}
	return path, nil
}

// Dir returns the target directory.
func (s *Sink) Dir() string { return s.dir }

// Type returns "local".
func (s *Sink) Type() string { return "local" }
