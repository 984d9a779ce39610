package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/teemow/bulkmail/internal/credential"
	"github.com/teemow/bulkmail/internal/deliverylog"
	"github.com/teemow/bulkmail/internal/dispatch"
	"github.com/teemow/bulkmail/internal/gate"
	"github.com/teemow/bulkmail/internal/google"
	"github.com/teemow/bulkmail/internal/instrumentation"
	"github.com/teemow/bulkmail/internal/mime"
	"github.com/teemow/bulkmail/internal/session"
)

const (
	// DefaultMaxUploadBytes bounds multipart bodies of /send and /upload.
	DefaultMaxUploadBytes = 25 << 20

	defaultReadHeaderTimeout = 10 * time.Second
	defaultWriteTimeout      = 60 * time.Second
	defaultIdleTimeout       = 120 * time.Second
)

// Authenticator runs the OAuth credential lifecycle.
type Authenticator interface {
	ConsentURL(state string) string
	Exchange(ctx context.Context, code string) (*credential.TokenSet, error)
	Refresh(ctx context.Context) (*credential.TokenSet, error)
	Status(ctx context.Context) google.Status
}

// Dispatcher sends one message.
type Dispatcher interface {
	Send(ctx context.Context, msg mime.OutgoingMessage) (dispatch.Outcome, error)
}

// Config holds the server's collaborators.
type Config struct {
	Auth       Authenticator
	Dispatcher Dispatcher
	Log        deliverylog.Sink
	Sessions   *session.Manager
	Routes     gate.Routes

	// Account is the Gmail address mail is sent from.
	Account string

	// RedirectURL is the OAuth callback URL registered with Google. It must
	// use HTTPS unless it points at a loopback host.
	RedirectURL string

	// MaxUploadBytes defaults to DefaultMaxUploadBytes.
	MaxUploadBytes int64

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Server is the bulkmail HTTP API.
type Server struct {
	auth       Authenticator
	dispatcher Dispatcher
	log        deliverylog.Sink
	sessions   *session.Manager
	gate       *gate.Gate
	health     *HealthChecker

	account   string
	maxUpload int64

	metrics *instrumentation.Metrics
	logger  *slog.Logger

	httpServer *http.Server
}

// New validates cfg and builds a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.Log == nil {
		return nil, errors.New("delivery log is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if err := validateHTTPSRequirement(cfg.RedirectURL); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	s := &Server{
		auth:       cfg.Auth,
		dispatcher: cfg.Dispatcher,
		log:        cfg.Log,
		sessions:   cfg.Sessions,
		gate: gate.New(cfg.Routes, cfg.Sessions,
			gate.WithMetrics(cfg.Metrics),
			gate.WithLogger(logger)),
		account:   cfg.Account,
		maxUpload: maxUpload,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
	s.health = NewHealthChecker(func(ctx context.Context) bool {
		return s.auth.Status(ctx).Authenticated
	})
	return s, nil
}

// Handler returns the complete routing tree. Health endpoints bypass the
// gate; everything else passes through it.
func (s *Server) Handler() http.Handler {
	app := http.NewServeMux()
	s.route(app, "GET /{$}", s.handleIndex)
	s.route(app, "GET /login", s.handleLoginPage)
	s.route(app, "GET /auth/login", s.handleAuthLogin)
	s.route(app, "GET /auth/callback", s.handleAuthCallback)
	s.route(app, "GET /auth/status", s.handleAuthStatus)
	s.route(app, "POST /auth/refresh", s.handleAuthRefresh)
	s.route(app, "POST /auth/logout", s.handleAuthLogout)
	s.route(app, "POST /send", s.handleSend)
	s.route(app, "POST /upload", s.handleUpload)
	s.route(app, "GET /logs", s.handleLogs)

	root := http.NewServeMux()
	s.health.RegisterHealthEndpoints(root)
	root.Handle("/", s.gate.Middleware(app))
	return root
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, h))
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	s.logger.Info("starting http server", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown marks the server unready and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	s.health.SetShuttingDown()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// validateHTTPSRequirement rejects an OAuth redirect URL that would carry
// authorization codes over plain HTTP to a non-loopback host.
func validateHTTPSRequirement(redirectURL string) error {
	if redirectURL == "" {
		return fmt.Errorf("redirect URL cannot be empty")
	}

	u, err := url.Parse(redirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth redirect URL requires HTTPS (got: %s). Use HTTPS or localhost for development", redirectURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
