// Package view holds the user workspace and the admin corpus view. Each view
// owns its listings, upload queue and banner; nothing is shared between views.
package view

import (
	"context"
	"slices"
	"sync"

	"github.com/vitwang05/lexreview/internal/apperr"
	"github.com/vitwang05/lexreview/internal/events"
	"github.com/vitwang05/lexreview/internal/registry"
	"github.com/vitwang05/lexreview/internal/session"
	"github.com/vitwang05/lexreview/internal/sink"
	"github.com/vitwang05/lexreview/internal/upload"
	"github.com/vitwang05/lexreview/pkg/client"
	"github.com/vitwang05/lexreview/pkg/models"
)

// Deps are the collaborators a view is built from.
type Deps struct {
	Client  *client.Client
	Session *session.Store
	Sink    sink.Sink
	Bus     *events.Broadcaster

	SubjectCategory string
	CorpusCategory  string
}

func (d Deps) subject() string {
	if d.SubjectCategory == "" {
		return upload.Subject.Category
	}
	return d.SubjectCategory
}

func (d Deps) corpus() string {
	if d.CorpusCategory == "" {
		return upload.Corpus.Category
	}
	return d.CorpusCategory
}

// ConfirmFunc asks the user to confirm a destructive action.
type ConfirmFunc func(path string) bool

// base carries the state both views share in shape: a registry, an upload
// queue and a single dismissible banner.
type base struct {
	registry *registry.Registry
	uploads  *upload.Coordinator

	mu       sync.Mutex
	selected []upload.File
	banner   string
}

// Banner returns the current error message, "" when none.
func (b *base) Banner() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.banner
}

// DismissBanner clears the banner.
func (b *base) DismissBanner() {
	b.mu.Lock()
	b.banner = ""
	b.mu.Unlock()
}

// fail shows err in the banner and returns it.
func (b *base) fail(err error) error {
	if err != nil {
		b.mu.Lock()
		b.banner = apperr.Summary(err)
		b.mu.Unlock()
	}
	return err
}

// Select queues files for the next upload. A file with the name of one already
// queued replaces it.
func (b *base) Select(files ...upload.File) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range files {
		if i := slices.IndexFunc(b.selected, func(s upload.File) bool { return s.Name == f.Name }); i >= 0 {
			b.selected[i] = f
			continue
		}
		b.selected = append(b.selected, f)
	}
}

// Unselect drops a queued file before it is uploaded.
func (b *base) Unselect(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selected = slices.DeleteFunc(b.selected, func(f upload.File) bool { return f.Name == name })
}

// Selected returns the upload queue.
func (b *base) Selected() []upload.File {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.selected)
}

// UploadTasks returns per-file progress of the running or last batch.
func (b *base) UploadTasks() []upload.Task {
	return b.uploads.Tasks()
}

// uploadQueue sends the queue, then clears it and refreshes category whether
// or not the batch failed, so files uploaded before a failure show up.
func (b *base) uploadQueue(ctx context.Context, category string, onProgress upload.ProgressFunc) (*upload.Report, error) {
	files := b.Selected()
	if len(files) == 0 {
		return &upload.Report{}, b.fail(apperr.New(apperr.KindUpload, "upload", "", "no files selected"))
	}

	report, err := b.uploads.UploadBatch(ctx, files, onProgress)
	if report == nil {
		return nil, b.fail(err)
	}

	b.mu.Lock()
	b.selected = nil
	b.mu.Unlock()

	if _, lerr := b.registry.ListSourceFiles(ctx, category); lerr != nil && err == nil {
		err = lerr
	}
	return report, b.fail(err)
}

// deleteFile removes path after confirmation. It reports whether a delete was
// issued.
func (b *base) deleteFile(ctx context.Context, path string, confirm ConfirmFunc) (bool, error) {
	if confirm != nil && !confirm(path) {
		return false, nil
	}
	return true, b.fail(b.registry.DeleteFile(ctx, path))
}

func (b *base) files(category string) []models.FileRecord {
	return b.registry.SourceFiles(category)
}
