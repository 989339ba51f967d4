// Package upload sends batches of local files to the backend one at a time.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/vitwang05/lexreview/internal/apperr"
	"github.com/vitwang05/lexreview/internal/events"
	"github.com/vitwang05/lexreview/internal/logging"
	"github.com/vitwang05/lexreview/internal/metrics"
	"github.com/vitwang05/lexreview/pkg/client"
	"github.com/vitwang05/lexreview/pkg/protocol"
)

// Uploader is the part of the API client the coordinator needs.
type Uploader interface {
	Upload(ctx context.Context, endpoint, name string, content io.Reader, size int64, progress client.ProgressFunc) (*protocol.UploadResponse, error)
}

// Target is an upload endpoint and the file category it fills.
type Target struct {
	Endpoint string
	Category string
}

var (
	// Subject uploads documents to be analysed.
	Subject = Target{Endpoint: protocol.PathUploadSubject, Category: "temp"}
	// Corpus uploads reference documents. Admin only.
	Corpus = Target{Endpoint: protocol.PathUploadCorpus, Category: "vbpl"}
)

// ErrBusy is returned when a batch is started while another is running.
var ErrBusy = errors.New("an upload is already in progress")

// File is a local file selected for upload.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// LocalFile selects the file at path.
func LocalFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Task tracks one file of the running batch.
type Task struct {
	File     File
	Progress int
	Status   Status
}

// Status is the state of a file within a batch.
type Status int

const (
	StatusPending Status = iota
	StatusUploading
	StatusUploaded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUploading:
		return "uploading"
	case StatusUploaded:
		return "uploaded"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Report is the outcome of a batch. Files before Failed were uploaded and
// files after it were never attempted.
type Report struct {
	Uploaded     []string
	Failed       string
	NotAttempted []string
	// Paths maps uploaded subject documents to the backend path they got.
	Paths map[string]string
}

// ProgressFunc receives per-file progress in percent.
type ProgressFunc func(name string, percent int)

// Coordinator runs upload batches against one target.
type Coordinator struct {
	api    Uploader
	target Target
	bus    *events.Broadcaster

	mu      sync.Mutex
	running bool
	tasks   []*Task
}

// New creates a coordinator. bus may be nil.
func New(api Uploader, target Target, bus *events.Broadcaster) *Coordinator {
	return &Coordinator{api: api, target: target, bus: bus}
}

// Target returns the endpoint the coordinator uploads to.
func (c *Coordinator) Target() Target {
	return c.target
}

// UploadBatch uploads files strictly in order. Each upload resolves before the
// next starts. The first failure stops the batch and is returned as an
// UploadError naming the file; earlier uploads are not rolled back. The report
// is returned in both cases.
func (c *Coordinator) UploadBatch(ctx context.Context, files []File, onProgress ProgressFunc) (*Report, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, apperr.New(apperr.KindUpload, "upload", "", ErrBusy.Error())
	}
	c.running = true
	c.tasks = make([]*Task, len(files))
	for i, f := range files {
		c.tasks[i] = &Task{File: f}
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	report := &Report{Paths: make(map[string]string)}
	for i, f := range files {
		path, err := c.uploadOne(ctx, i, f, onProgress)
		if err != nil {
			report.Failed = f.Name
			for _, rest := range files[i+1:] {
				report.NotAttempted = append(report.NotAttempted, rest.Name)
			}
			return report, err
		}
		report.Uploaded = append(report.Uploaded, f.Name)
		if path != "" {
			report.Paths[f.Name] = path
		}
	}

	logging.Info("upload batch complete",
		zap.String("category", c.target.Category),
		zap.Int("files", len(report.Uploaded)),
	)
	return report, nil
}

func (c *Coordinator) uploadOne(ctx context.Context, idx int, f File, onProgress ProgressFunc) (string, error) {
	c.setStatus(idx, StatusUploading)

	rc, err := f.Open()
	if err != nil {
		return "", c.fail(idx, f, err)
	}
	defer rc.Close()

	resp, err := c.api.Upload(ctx, c.target.Endpoint, f.Name, rc, f.Size, func(sent, total int64) {
		if total <= 0 {
			return
		}
		pct := int(sent * 100 / total)
		// 100 is reserved for a confirmed response.
		if pct > 99 {
			pct = 99
		}
		if c.advance(idx, pct) {
			c.notify(f.Name, pct, onProgress)
		}
	})
	if err != nil {
		return "", c.fail(idx, f, err)
	}

	c.advance(idx, 100)
	c.setStatus(idx, StatusUploaded)
	c.notify(f.Name, 100, onProgress)
	metrics.RecordUpload(true)
	c.bus.Publish(events.Event{Type: events.UploadDone, Subject: f.Name, Progress: 100})
	logging.Debug("file uploaded", zap.String("name", f.Name), zap.Int64("size", f.Size))
	return resp.FilePath, nil
}

func (c *Coordinator) fail(idx int, f File, err error) error {
	c.setStatus(idx, StatusFailed)
	metrics.RecordUpload(false)
	logging.Warn("upload failed", zap.String("name", f.Name), zap.Error(err))

	// A batch started without a session is an AuthError. A rejection from
	// the server partway through stays an UploadError naming the file.
	wrap := apperr.WrapAs
	if errors.Is(err, client.ErrNoSession) {
		wrap = apperr.Wrap
	}
	wrapped := wrap(apperr.KindUpload, "upload", f.Name, err)
	c.bus.Publish(events.Event{Type: events.UploadFailed, Subject: f.Name, Detail: apperr.Message(wrapped)})
	return wrapped
}

func (c *Coordinator) notify(name string, pct int, onProgress ProgressFunc) {
	if onProgress != nil {
		onProgress(name, pct)
	}
	c.bus.Publish(events.Event{Type: events.UploadProgress, Subject: name, Progress: pct})
}

// advance raises the task's progress and reports whether it changed. Progress
// never moves backwards.
func (c *Coordinator) advance(idx, pct int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[idx]
	if pct <= t.Progress {
		return false
	}
	t.Progress = pct
	return true
}

func (c *Coordinator) setStatus(idx int, s Status) {
	c.mu.Lock()
	c.tasks[idx].Status = s
	c.mu.Unlock()
}

// Tasks returns a snapshot of the current or last batch.
func (c *Coordinator) Tasks() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Task, len(c.tasks))
	for i, t := range c.tasks {
		out[i] = *t
	}
	return out
}

// Running reports whether a batch is in progress.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
