// lexreview is a terminal client for the legal-document analysis backend.
//
// Sub-commands:
//
//	lexreview login                     Log in and save the session
//	lexreview logout                    Forget the saved session
//	lexreview whoami                    Show the active session
//	lexreview files [-corpus]           List subject documents or the corpus
//	lexreview upload [-corpus] <file>…  Upload files in order
//	lexreview rm [-corpus] [-y] <path>  Delete a file
//	lexreview process [flags] <path>    Analyse a subject document
//	lexreview results                   List persisted result sets
//	lexreview view [-expand] <name>     Print a result set
//	lexreview browse <name>             Browse a result set interactively
//	lexreview export <name>             Save a result set as a document
//	lexreview learn <path>              Index a corpus document (admin)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vitwang05/lexreview/internal/apperr"
	"github.com/vitwang05/lexreview/internal/config"
	"github.com/vitwang05/lexreview/internal/events"
	"github.com/vitwang05/lexreview/internal/logging"
	"github.com/vitwang05/lexreview/internal/metrics"
	"github.com/vitwang05/lexreview/internal/session"
	"github.com/vitwang05/lexreview/internal/sink"
	"github.com/vitwang05/lexreview/internal/view"
	"github.com/vitwang05/lexreview/pkg/client"
	"github.com/vitwang05/lexreview/pkg/retry"
)

var commands = map[string]func(ctx context.Context, a *app, args []string) error{
	"login":   cmdLogin,
	"logout":  cmdLogout,
	"whoami":  cmdWhoami,
	"files":   cmdFiles,
	"upload":  cmdUpload,
	"rm":      cmdRemove,
	"process": cmdProcess,
	"results": cmdResults,
	"view":    cmdView,
	"browse":  cmdBrowse,
	"export":  cmdExport,
	"learn":   cmdLearn,
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		usage()
		return
	}
	run, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", name)
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	if err := run(ctx, a, os.Args[2:]); err != nil {
		logging.Debug("command failed", zap.String("command", name), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %s\n", apperr.Summary(err))
		a.close()
		os.Exit(exitCode(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: lexreview <command> [flags] [args]

Commands:
  login     Log in and save the session
  logout    Forget the saved session
  whoami    Show the active session
  files     List subject documents (-corpus for the reference corpus)
  upload    Upload files in order
  rm        Delete a file
  process   Analyse a subject document
  results   List persisted result sets
  view      Print a result set
  browse    Browse a result set interactively
  export    Save a result set as a document
  learn     Index a corpus document (admin)

Configuration comes from LEXREVIEW_CONFIG (YAML), .env and environment variables.`)
}

func exitCode(err error) int {
	if apperr.Is(err, apperr.KindAuth) {
		return 3
	}
	if apperr.Is(err, apperr.KindNotFound) {
		return 4
	}
	return 1
}

// app holds everything a command needs, built once from configuration.
type app struct {
	cfg     *config.Config
	session *session.Store
	client  *client.Client
	bus     *events.Broadcaster
	sink    sink.Sink

	stopEvents func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputPath: cfg.LogOutput}); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				logging.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	store := session.New(cfg.TokenFile, cfg.ServerURL)
	if err := store.Open(); err != nil {
		logging.Warn("could not restore session", zap.Error(err))
	}

	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.RetryAttempts
	c := client.New(client.Config{
		BaseURL:     cfg.ServerURL,
		Timeout:     cfg.Timeout,
		LongTimeout: cfg.LongTimeout,
		RetryConfig: rc,
		Tokens:      store,
	})

	s, err := sink.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, session: store, client: c, bus: events.NewBroadcaster(), sink: s}
	a.stopEvents = logEvents(a.bus)
	return a, nil
}

func (a *app) deps() view.Deps {
	return view.Deps{
		Client:          a.client,
		Session:         a.session,
		Sink:            a.sink,
		Bus:             a.bus,
		SubjectCategory: a.cfg.SubjectCategory,
		CorpusCategory:  a.cfg.CorpusCategory,
	}
}

func (a *app) close() {
	if a.stopEvents != nil {
		a.stopEvents()
		a.stopEvents = nil
	}
	logging.Sync()
}

// logEvents mirrors bus events into the debug log until the returned func is
// called.
func logEvents(bus *events.Broadcaster) func() {
	ch := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			logging.Debug("event",
				zap.String("type", e.Type),
				zap.String("subject", e.Subject),
				zap.Int("progress", e.Progress),
				zap.String("detail", e.Detail),
			)
		}
	}()
	return func() {
		bus.Unsubscribe(ch)
		<-done
	}
}

var errUsage = errors.New("invalid arguments")
