package view

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitwang05/lexreview/internal/apperr"
	"github.com/vitwang05/lexreview/internal/export"
	"github.com/vitwang05/lexreview/internal/logging"
	"github.com/vitwang05/lexreview/internal/processing"
	"github.com/vitwang05/lexreview/internal/registry"
	"github.com/vitwang05/lexreview/internal/render"
	"github.com/vitwang05/lexreview/internal/upload"
	"github.com/vitwang05/lexreview/pkg/models"
)

// Tab is a pane of the workspace.
type Tab int

const (
	TabFiles Tab = iota
	TabResults
)

func (t Tab) String() string {
	if t == TabResults {
		return "results"
	}
	return "files"
}

// FileStatus is the processing state shown next to a file.
type FileStatus int

const (
	StatusIdle FileStatus = iota
	StatusProcessing
	StatusDone
	StatusFailed
)

func (s FileStatus) String() string {
	switch s {
	case StatusProcessing:
		return "processing"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Workspace is the user's view: subject documents, their analyses and the
// persisted result sets.
type Workspace struct {
	base
	processing *processing.Coordinator
	exporter   *export.Exporter
	category   string

	wg sync.WaitGroup

	// guarded by base.mu
	tab      Tab
	ranges   map[string]*processing.PageRange
	modes    map[string]processing.Mode
	statuses map[string]FileStatus
	failures map[string]error
	current  *render.Tree
	viewing  string
}

// NewWorkspace builds a workspace from d.
func NewWorkspace(d Deps) *Workspace {
	return &Workspace{
		base: base{
			registry: registry.New(d.Client, d.Bus),
			uploads:  upload.New(d.Client, upload.Target{Endpoint: upload.Subject.Endpoint, Category: d.subject()}, d.Bus),
		},
		processing: processing.New(d.Client, d.Bus),
		exporter:   export.New(d.Client, d.Sink, d.Bus),
		category:   d.subject(),
		ranges:     make(map[string]*processing.PageRange),
		modes:      make(map[string]processing.Mode),
		statuses:   make(map[string]FileStatus),
		failures:   make(map[string]error),
	}
}

// Mount loads the file list and the result-set list concurrently. A failure
// shows in the banner; whichever list loaded is kept.
func (w *Workspace) Mount(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		_, err := w.registry.ListSourceFiles(ctx, w.category)
		return err
	})
	g.Go(func() error {
		_, err := w.registry.ListResultFiles(ctx)
		return err
	})
	return w.fail(g.Wait())
}

// Tab returns the active pane.
func (w *Workspace) Tab() Tab {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tab
}

// SwitchTab activates t and refreshes its list. Whichever listing resolves
// last replaces the held list.
func (w *Workspace) SwitchTab(ctx context.Context, t Tab) error {
	w.mu.Lock()
	w.tab = t
	w.mu.Unlock()
	return w.Refresh(ctx)
}

// Refresh re-lists the active pane.
func (w *Workspace) Refresh(ctx context.Context) error {
	var err error
	if w.Tab() == TabResults {
		_, err = w.registry.ListResultFiles(ctx)
	} else {
		_, err = w.registry.ListSourceFiles(ctx, w.category)
	}
	return w.fail(err)
}

// Files returns the subject documents last listed.
func (w *Workspace) Files() []models.FileRecord {
	return w.files(w.category)
}

// Results returns the result sets last listed.
func (w *Workspace) Results() []models.ResultFileRecord {
	return w.registry.ResultFiles()
}

// Upload sends the queued files as subject documents.
func (w *Workspace) Upload(ctx context.Context, onProgress upload.ProgressFunc) (*upload.Report, error) {
	return w.uploadQueue(ctx, w.category, onProgress)
}

// Delete removes a subject document once confirm approves.
func (w *Workspace) Delete(ctx context.Context, path string, confirm ConfirmFunc) (bool, error) {
	return w.deleteFile(ctx, path, confirm)
}

// PageRange returns the editable page range for path.
func (w *Workspace) PageRange(path string) *processing.PageRange {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.ranges[path]
	if !ok {
		r = processing.NewPageRange()
		w.ranges[path] = r
	}
	return r
}

// SetPages sets the page range for path. Edits are clamped so the range never
// inverts.
func (w *Workspace) SetPages(path string, start, end int) (int, int) {
	r := w.PageRange(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	r.SetStart(start)
	r.SetEnd(end)
	return r.Start(), r.End()
}

// SetMode chooses the analysis mode for path.
func (w *Workspace) SetMode(path string, m processing.Mode) {
	w.mu.Lock()
	w.modes[path] = m
	w.mu.Unlock()
}

// Mode returns the analysis mode for path, detailed clause review by default.
func (w *Workspace) Mode(path string) processing.Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	if m, ok := w.modes[path]; ok {
		return m
	}
	return processing.ModeClauseReview
}

// Status returns the processing state of path.
func (w *Workspace) Status(path string) FileStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.statuses[path]
}

// Failure returns the error of the last failed submission for path.
func (w *Workspace) Failure(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures[path]
}

// CanProcess reports whether path may be submitted now.
func (w *Workspace) CanProcess(path string) bool {
	return !w.processing.InFlight(path)
}

// Process submits path with its page range and mode and returns at once. When
// the analysis resolves the returned result set becomes the current tree and
// the result-set list is refreshed; a failure shows in the banner. Other files
// stay usable meanwhile.
func (w *Workspace) Process(ctx context.Context, path string) error {
	r := w.PageRange(path)
	w.mu.Lock()
	req := r.Request(path, w.modeLocked(path))

	prev := w.statuses[path]
	w.statuses[path] = StatusProcessing
	w.mu.Unlock()

	w.wg.Add(1)
	err := w.processing.Start(ctx, req, func(set *models.ResultSet, err error) {
		defer w.wg.Done()
		w.finishProcessing(ctx, path, set, err)
	})
	if err != nil {
		w.wg.Done()
		w.mu.Lock()
		if !w.processing.InFlight(path) {
			w.statuses[path] = prev
		}
		w.mu.Unlock()
		return w.fail(err)
	}
	return nil
}

func (w *Workspace) modeLocked(path string) processing.Mode {
	if m, ok := w.modes[path]; ok {
		return m
	}
	return processing.ModeClauseReview
}

func (w *Workspace) finishProcessing(ctx context.Context, path string, set *models.ResultSet, err error) {
	if err != nil {
		w.mu.Lock()
		w.statuses[path] = StatusFailed
		w.failures[path] = err
		w.mu.Unlock()
		w.fail(err)
		return
	}

	w.mu.Lock()
	w.statuses[path] = StatusDone
	delete(w.failures, path)
	w.current = render.NewTree(set)
	w.viewing = path
	w.mu.Unlock()

	if _, lerr := w.registry.ListResultFiles(ctx); lerr != nil {
		logging.Debug("result list refresh after processing failed", zap.Error(lerr))
	}
}

// Wait blocks until every submission started by Process has resolved.
func (w *Workspace) Wait() {
	w.wg.Wait()
}

// ViewResult loads a persisted result set and makes it the current tree.
func (w *Workspace) ViewResult(ctx context.Context, name string) (*render.Tree, error) {
	set, err := w.registry.GetResultFile(ctx, name)
	if err != nil {
		return nil, w.fail(err)
	}
	tree := render.NewTree(set)

	w.mu.Lock()
	w.current = tree
	w.viewing = name
	w.mu.Unlock()
	return tree, nil
}

// Current returns the tree on display and the file or result set it came
// from. The tree is nil before anything was processed or opened.
func (w *Workspace) Current() (*render.Tree, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, w.viewing
}

// CloseResult drops the current tree.
func (w *Workspace) CloseResult() {
	w.mu.Lock()
	w.current, w.viewing = nil, ""
	w.mu.Unlock()
}

// Export saves the document for a persisted result set and returns where it
// was saved.
func (w *Workspace) Export(ctx context.Context, name string) (string, error) {
	loc, err := w.exporter.Export(ctx, name)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			logging.Debug("export failed", zap.String("name", name), zap.Error(err))
		}
		return "", w.fail(err)
	}
	return loc, nil
}
