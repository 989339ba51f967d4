// Package processing submits uploaded documents for analysis and tracks which
// files are in flight.
package processing

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitwang05/lexreview/internal/apperr"
	"github.com/vitwang05/lexreview/internal/events"
	"github.com/vitwang05/lexreview/internal/logging"
	"github.com/vitwang05/lexreview/internal/metrics"
	"github.com/vitwang05/lexreview/pkg/client"
	"github.com/vitwang05/lexreview/pkg/models"
	"github.com/vitwang05/lexreview/pkg/resulttree"
)

// Mode selects the kind of analysis.
type Mode string

const (
	ModeClauseReview   Mode = "1"
	ModeClassification Mode = "2"
	ModeSpelling       Mode = "3"
)

// Modes lists the analysis modes in menu order.
var Modes = []Mode{ModeClauseReview, ModeClassification, ModeSpelling}

// Label is the human-readable name of the mode.
func (m Mode) Label() string {
	switch m {
	case ModeClauseReview:
		return "detailed clause review"
	case ModeClassification:
		return "document classification"
	case ModeSpelling:
		return "spelling review"
	default:
		return "unknown mode " + string(m)
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return slices.Contains(Modes, m)
}

// Request is one analysis submission.
type Request struct {
	FilePath  string
	StartPage int
	EndPage   int
	Mode      Mode
}

// Validate checks the request before anything reaches the network.
func (r Request) Validate() error {
	switch {
	case r.FilePath == "":
		return fmt.Errorf("no file selected")
	case r.StartPage < 1:
		return fmt.Errorf("start page must be at least 1, got %d", r.StartPage)
	case r.EndPage < r.StartPage:
		return fmt.Errorf("end page %d is before start page %d", r.EndPage, r.StartPage)
	case !r.Mode.Valid():
		return fmt.Errorf("unknown analysis mode %q", r.Mode)
	}
	return nil
}

// Processor is the part of the API client the coordinator needs.
type Processor interface {
	Process(ctx context.Context, p client.ProcessParams) (*models.ResultSet, error)
	Learn(ctx context.Context, path string) error
}

// Coordinator submits analyses. Submissions for different paths run
// independently; each path carries its own in-flight flag.
type Coordinator struct {
	api Processor
	bus *events.Broadcaster

	mu       sync.Mutex
	inFlight map[string]time.Time
}

// New creates a coordinator. bus may be nil.
func New(api Processor, bus *events.Broadcaster) *Coordinator {
	return &Coordinator{
		api:      api,
		bus:      bus,
		inFlight: make(map[string]time.Time),
	}
}

// Submit validates req, sends exactly one analysis request and waits for the
// result. The in-flight flag for req.FilePath is set for the duration and is
// cleared on success and on failure. Failures are ProcessingErrors.
func (c *Coordinator) Submit(ctx context.Context, req Request) (*models.ResultSet, error) {
	if err := c.begin(req); err != nil {
		return nil, err
	}
	return c.run(ctx, req)
}

// Start is Submit in the background. Validation and duplicate-path errors are
// returned immediately; otherwise done is called from another goroutine once
// the request resolves.
func (c *Coordinator) Start(ctx context.Context, req Request, done func(*models.ResultSet, error)) error {
	if err := c.begin(req); err != nil {
		return err
	}
	go func() {
		set, err := c.run(ctx, req)
		if done != nil {
			done(set, err)
		}
	}()
	return nil
}

func (c *Coordinator) begin(req Request) error {
	if err := req.Validate(); err != nil {
		return apperr.New(apperr.KindProcessing, "process", req.FilePath, err.Error())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[req.FilePath]; busy {
		return apperr.New(apperr.KindProcessing, "process", req.FilePath, "this file is already being processed")
	}
	c.inFlight[req.FilePath] = time.Now()
	return nil
}

func (c *Coordinator) run(ctx context.Context, req Request) (*models.ResultSet, error) {
	start := time.Now()
	metrics.ProcessingStarted()
	c.bus.Publish(events.Event{Type: events.ProcessStarted, Subject: req.FilePath})
	logging.Info("processing started",
		zap.String("path", req.FilePath),
		zap.Int("start_page", req.StartPage),
		zap.Int("end_page", req.EndPage),
		zap.String("mode", string(req.Mode)),
	)

	set, err := c.api.Process(ctx, client.ProcessParams{
		FilePath:  req.FilePath,
		StartPage: req.StartPage,
		EndPage:   req.EndPage,
		Mode:      string(req.Mode),
	})

	c.mu.Lock()
	delete(c.inFlight, req.FilePath)
	c.mu.Unlock()

	if err != nil {
		metrics.ProcessingFinished(time.Since(start), 0, false)
		wrapped := apperr.Wrap(apperr.KindProcessing, "process", req.FilePath, err)
		c.bus.Publish(events.Event{Type: events.ProcessFailed, Subject: req.FilePath, Detail: apperr.Message(wrapped)})
		logging.Warn("processing failed", zap.String("path", req.FilePath), zap.Error(err))
		return nil, wrapped
	}

	nodes := resulttree.CountNodes(set.Nodes)
	metrics.ProcessingFinished(time.Since(start), nodes, true)
	c.bus.Publish(events.Event{Type: events.ProcessDone, Subject: req.FilePath, Nodes: nodes})
	logging.Info("processing finished",
		zap.String("path", req.FilePath),
		zap.Int("nodes", nodes),
		zap.Duration("duration", time.Since(start)),
	)
	return set, nil
}

// InFlight reports whether a submission for path is outstanding.
func (c *Coordinator) InFlight(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[path]
	return ok
}

// Active returns the paths with outstanding submissions, sorted.
func (c *Coordinator) Active() []string {
	c.mu.Lock()
	paths := make([]string, 0, len(c.inFlight))
	for p := range c.inFlight {
		paths = append(paths, p)
	}
	c.mu.Unlock()
	slices.Sort(paths)
	return paths
}

// Learn asks the backend to index a corpus file.
func (c *Coordinator) Learn(ctx context.Context, path string) error {
	if path == "" {
		return apperr.New(apperr.KindProcessing, "learn", "", "no file selected")
	}
	if err := c.api.Learn(ctx, path); err != nil {
		logging.Warn("learn failed", zap.String("path", path), zap.Error(err))
		return apperr.Wrap(apperr.KindProcessing, "learn", path, err)
	}
	logging.Info("learning started", zap.String("path", path))
	return nil
}
