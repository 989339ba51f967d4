// Package export turns persisted result sets into downloadable documents.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/vitwang05/lexreview/internal/apperr"
	"github.com/vitwang05/lexreview/internal/events"
	"github.com/vitwang05/lexreview/internal/logging"
	"github.com/vitwang05/lexreview/internal/metrics"
	"github.com/vitwang05/lexreview/internal/sink"
)

// ArtifactExt is the extension of generated documents.
const ArtifactExt = ".docx"

// Generator is the part of the API client the exporter needs.
type Generator interface {
	GenerateDocx(ctx context.Context, name string) (io.ReadCloser, error)
}

// Exporter requests documents and hands them to a sink.
type Exporter struct {
	api  Generator
	sink sink.Sink
	bus  *events.Broadcaster
	// TempDir holds spooled downloads; empty means os.TempDir.
	TempDir string
}

// New creates an exporter. bus may be nil.
func New(api Generator, s sink.Sink, bus *events.Broadcaster) *Exporter {
	return &Exporter{api: api, sink: s, bus: bus}
}

// ArtifactName derives the document name from a result set name: the
// extension is replaced, so "report.json" becomes "report.docx".
func ArtifactName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base + ArtifactExt
}

// Export generates the document for the named result set and saves it. The
// whole stream is received before the sink sees any of it, so a failure at any
// point saves nothing. An unknown name is a NotFoundError; other failures are
// ExportErrors.
func (e *Exporter) Export(ctx context.Context, name string) (string, error) {
	loc, err := e.export(ctx, name)
	metrics.RecordExport(err == nil)
	if err != nil {
		logging.Warn("export failed", zap.String("name", name), zap.Error(err))
		return "", err
	}

	e.bus.Publish(events.Event{Type: events.ExportCompleted, Subject: name, Detail: loc})
	logging.Info("export saved", zap.String("name", name), zap.String("location", loc))
	return loc, nil
}

func (e *Exporter) export(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", apperr.New(apperr.KindExport, "export", "", "no result set selected")
	}

	stream, err := e.api.GenerateDocx(ctx, name)
	if err != nil {
		return "", apperr.WrapNotFound(apperr.KindExport, "export", name, err)
	}
	defer stream.Close()

	spool, err := os.CreateTemp(e.TempDir, "lexreview-export-*"+ArtifactExt)
	if err != nil {
		return "", apperr.Wrap(apperr.KindExport, "export", name, fmt.Errorf("create spool file: %w", err))
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	size, err := io.Copy(spool, stream)
	if err != nil {
		return "", apperr.Wrap(apperr.KindExport, "export", name, fmt.Errorf("download document: %w", err))
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return "", apperr.Wrap(apperr.KindExport, "export", name, err)
	}

	loc, err := e.sink.Save(ctx, ArtifactName(name), spool, size)
	if err != nil {
		return "", apperr.Wrap(apperr.KindExport, "export", name, fmt.Errorf("save document: %w", err))
	}
	return loc, nil
}
