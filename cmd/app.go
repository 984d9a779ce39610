package cmd

import (
	"fmt"
	"log/slog"

	"github.com/teemow/bulkmail/internal/config"
	"github.com/teemow/bulkmail/internal/credential"
	"github.com/teemow/bulkmail/internal/deliverylog"
	"github.com/teemow/bulkmail/internal/dispatch"
	"github.com/teemow/bulkmail/internal/gmail"
	"github.com/teemow/bulkmail/internal/google"
	"github.com/teemow/bulkmail/internal/instrumentation"
	"github.com/teemow/bulkmail/internal/logging"
)

// app holds the collaborators shared by serve and the CLI commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	auth       *google.Manager
	sink       deliverylog.Sink
	dispatcher *dispatch.Dispatcher

	closers []func()
}

// newApp opens the credential store and delivery log described by cfg and
// wires the dispatcher. provider may be nil.
func newApp(cfg *config.Config, logger *slog.Logger, provider *instrumentation.Provider) (*app, error) {
	var (
		metrics *instrumentation.Metrics
		audit   *instrumentation.AuditLogger
	)
	if provider != nil {
		metrics = provider.Metrics()
		audit = provider.AuditLogger(logger)
	}

	a := &app{cfg: cfg, logger: logger}

	store, err := credential.Open(cfg.CredentialOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	if c, ok := store.(interface{ Close() }); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.auth = google.NewManager(google.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
	}, store, google.WithMetrics(metrics), google.WithLogger(logger))

	logOpts, err := cfg.DeliveryLogOptions()
	if err != nil {
		a.Close()
		return nil, err
	}
	sink, closeSink, err := deliverylog.Open(logOpts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open delivery log: %w", err)
	}
	a.sink = sink
	a.closers = append(a.closers, func() {
		if err := closeSink(); err != nil {
			logger.Warn("failed to close delivery log", logging.Err(err))
		}
	})

	client := gmail.NewClient(gmail.WithMetrics(metrics), gmail.WithLogger(logger))
	a.dispatcher = dispatch.New(a.auth, client, sink,
		dispatch.WithMetrics(metrics),
		dispatch.WithAuditLogger(audit),
		dispatch.WithLogger(logger))

	return a, nil
}

// Close releases the store and sink, last opened first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
