package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/bulkmail/internal/config"
	"github.com/teemow/bulkmail/internal/instrumentation"
	"github.com/teemow/bulkmail/internal/logging"
	"github.com/teemow/bulkmail/internal/server"
	"github.com/teemow/bulkmail/internal/session"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API used by the browser front end.

The server runs the Google consent flow (/auth/*), sends single messages
(/send), parses recipient lists (/upload) and lists the delivery log (/logs).
Kubernetes style health probes are served on /healthz and /readyz.

Prometheus metrics are served on a separate listener (--metrics-addr).
Set it to an empty string to disable the metrics listener.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runServe(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().String("http-addr", "", "HTTP listen address (default :5173)")
	cmd.Flags().String("metrics-addr", "", "Metrics listen address (default :9090)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := instrumentation.NewProvider(ctx, cfg.InstrumentationConfig(version))
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	metricsServer, err := startMetricsServer(cfg.Server.MetricsAddr, provider, logger)
	if err != nil {
		return err
	}
	if metricsServer != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	a, err := newApp(cfg, logger, provider)
	if err != nil {
		return err
	}
	defer a.Close()

	sessions := session.NewManager(
		session.WithTimeout(cfg.Server.SessionTimeout),
		session.WithSecureCookie(cfg.Server.SecureCookie),
		session.WithMetrics(provider.Metrics()),
		session.WithLogger(logger))
	defer sessions.Stop()

	srv, err := server.New(server.Config{
		Auth:           a.auth,
		Dispatcher:     a.dispatcher,
		Log:            a.sink,
		Sessions:       sessions,
		Routes:         cfg.Routes,
		Account:        cfg.Google.Account,
		RedirectURL:    cfg.Google.RedirectURL,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Metrics:        provider.Metrics(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.HTTPAddr, err)
	}

	if !a.auth.Status(ctx).Authenticated {
		logger.Warn("no stored credential, open /auth/login in a browser to authorize",
			logging.Account(cfg.Google.Account))
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error during server shutdown: %w", err)
		}
		return nil
	}
}

// startMetricsServer starts the metrics listener and waits until it is
// accepting connections. It returns nil when addr is empty or
// instrumentation is disabled.
func startMetricsServer(addr string, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	if addr == "" || !provider.Enabled() {
		return nil, nil
	}

	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}
