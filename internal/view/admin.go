package view

import (
	"context"

	"github.com/vitwang05/lexreview/internal/apperr"
	"github.com/vitwang05/lexreview/internal/processing"
	"github.com/vitwang05/lexreview/internal/registry"
	"github.com/vitwang05/lexreview/internal/upload"
	"github.com/vitwang05/lexreview/pkg/models"
)

// Admin manages the reference corpus. Only an admin session may mount it.
type Admin struct {
	base
	processing *processing.Coordinator
	session    interface{ IsAdmin() bool }
	category   string
}

// NewAdmin builds the corpus view from d.
func NewAdmin(d Deps) *Admin {
	a := &Admin{
		base: base{
			registry: registry.New(d.Client, d.Bus),
			uploads:  upload.New(d.Client, upload.Target{Endpoint: upload.Corpus.Endpoint, Category: d.corpus()}, d.Bus),
		},
		processing: processing.New(d.Client, d.Bus),
		category:   d.corpus(),
	}
	if d.Session != nil {
		a.session = d.Session
	}
	return a
}

// Mount checks the role and loads the corpus listing.
func (a *Admin) Mount(ctx context.Context) error {
	if a.session == nil || !a.session.IsAdmin() {
		return a.fail(apperr.New(apperr.KindAuth, "admin", "", "admin access required"))
	}
	return a.Refresh(ctx)
}

// Refresh re-lists the corpus.
func (a *Admin) Refresh(ctx context.Context) error {
	_, err := a.registry.ListSourceFiles(ctx, a.category)
	return a.fail(err)
}

// Files returns the corpus documents last listed.
func (a *Admin) Files() []models.FileRecord {
	return a.files(a.category)
}

// Upload sends the queued files into the corpus.
func (a *Admin) Upload(ctx context.Context, onProgress upload.ProgressFunc) (*upload.Report, error) {
	return a.uploadQueue(ctx, a.category, onProgress)
}

// Delete removes a corpus document once confirm approves.
func (a *Admin) Delete(ctx context.Context, path string, confirm ConfirmFunc) (bool, error) {
	return a.deleteFile(ctx, path, confirm)
}

// Learn has the backend index a corpus document.
func (a *Admin) Learn(ctx context.Context, path string) error {
	return a.fail(a.processing.Learn(ctx, path))
}
