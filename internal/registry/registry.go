// Package registry holds the file and result-set listings owned by one view.
package registry

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vitwang05/lexreview/internal/apperr"
	"github.com/vitwang05/lexreview/internal/events"
	"github.com/vitwang05/lexreview/internal/logging"
	"github.com/vitwang05/lexreview/pkg/models"
)

// Backend is the part of the API client the registry needs.
type Backend interface {
	ListFiles(ctx context.Context, category string) ([]models.FileRecord, error)
	DeleteFile(ctx context.Context, path string) error
	ListResults(ctx context.Context) ([]models.ResultFileRecord, error)
	GetResult(ctx context.Context, name string) (*models.ResultSet, error)
}

// Registry caches the latest listing per category. Every successful listing
// replaces the held one wholesale; a failed listing leaves it untouched.
type Registry struct {
	api Backend
	bus *events.Broadcaster

	mu      sync.RWMutex
	files   map[string][]models.FileRecord
	results []models.ResultFileRecord
}

// New creates an empty registry. bus may be nil.
func New(api Backend, bus *events.Broadcaster) *Registry {
	return &Registry{
		api:   api,
		bus:   bus,
		files: make(map[string][]models.FileRecord),
	}
}

// ListSourceFiles fetches the files of category and replaces the held list.
func (r *Registry) ListSourceFiles(ctx context.Context, category string) ([]models.FileRecord, error) {
	files, err := r.api.ListFiles(ctx, category)
	if err != nil {
		logging.Warn("list files failed", zap.String("category", category), zap.Error(err))
		return r.SourceFiles(category), apperr.Wrap(apperr.KindFetch, "list files", category, err)
	}

	r.mu.Lock()
	r.files[category] = files
	r.mu.Unlock()

	r.bus.Publish(events.Event{Type: events.FilesRefreshed, Subject: category})
	return slices.Clone(files), nil
}

// DeleteFile removes path on the backend, then re-lists the category the path
// belongs to. The held list only changes through that re-list.
func (r *Registry) DeleteFile(ctx context.Context, path string) error {
	if err := r.api.DeleteFile(ctx, path); err != nil {
		logging.Warn("delete file failed", zap.String("path", path), zap.Error(err))
		return apperr.Wrap(apperr.KindFetch, "delete file", path, err)
	}
	logging.Info("file deleted", zap.String("path", path))

	_, err := r.ListSourceFiles(ctx, r.categoryOf(path))
	return err
}

// ListResultFiles fetches the persisted result sets and replaces the held list.
func (r *Registry) ListResultFiles(ctx context.Context) ([]models.ResultFileRecord, error) {
	results, err := r.api.ListResults(ctx)
	if err != nil {
		logging.Warn("list results failed", zap.Error(err))
		return r.ResultFiles(), apperr.Wrap(apperr.KindFetch, "list results", "", err)
	}

	r.mu.Lock()
	r.results = results
	r.mu.Unlock()
	return slices.Clone(results), nil
}

// GetResultFile fetches one persisted result set. A name the backend does not
// know yields a NotFoundError.
func (r *Registry) GetResultFile(ctx context.Context, name string) (*models.ResultSet, error) {
	set, err := r.api.GetResult(ctx, name)
	if err != nil {
		return nil, apperr.WrapNotFound(apperr.KindFetch, "get result", name, err)
	}
	return set, nil
}

// SourceFiles returns a copy of the held list for category.
func (r *Registry) SourceFiles(category string) []models.FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.files[category])
}

// ResultFiles returns a copy of the held result-set list.
func (r *Registry) ResultFiles() []models.ResultFileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.results)
}

// Lookup finds a held file by path in any category.
func (r *Registry) Lookup(path string) (models.FileRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, files := range r.files {
		for _, f := range files {
			if f.Path == path {
				return f, true
			}
		}
	}
	return models.FileRecord{}, false
}

// categoryOf returns the category holding path, falling back to the first
// path segment ("temp/doc1.pdf" is in "temp").
func (r *Registry) categoryOf(path string) string {
	r.mu.RLock()
	for category, files := range r.files {
		for _, f := range files {
			if f.Path == path {
				r.mu.RUnlock()
				return category
			}
		}
	}
	r.mu.RUnlock()

	p := strings.TrimPrefix(strings.ReplaceAll(path, "\\", "/"), "/")
	if i := strings.Index(p, "/"); i > 0 {
		return p[:i]
	}
	return p
}
