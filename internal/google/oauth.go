package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/bulkmail/internal/credential"
	"github.com/teemow/bulkmail/internal/instrumentation"
	"github.com/teemow/bulkmail/internal/logging"
)

// Config identifies the OAuth client.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Scopes defaults to DefaultOAuthScopes.
	Scopes []string

	// Endpoint defaults to Google's. Tests point it at an httptest server.
	Endpoint oauth2.Endpoint

	// HTTPClient is used for token endpoint calls. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Validate checks that the client identity is complete.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("google client id is required")
	}
	if c.ClientSecret == "" {
		return errors.New("google client secret is required")
	}
	if c.RedirectURL == "" {
		return errors.New("google redirect uri is required")
	}
	return nil
}

// Status describes the stored credential without exposing it.
type Status struct {
	Authenticated bool
	CanRefresh    bool
	Expiry        time.Time
}

// Manager runs the credential lifecycle against one Store.
type Manager struct {
	conf       *oauth2.Config
	store      credential.Store
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger

	refreshGroup singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records exchange and refresh results.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(mgr *Manager) { mgr.logger = l }
}

// NewManager creates a Manager for cfg writing through store.
func NewManager(cfg Config, store credential.Store, opts ...Option) *Manager {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}

	m := &Manager{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		store:      store,
		httpClient: cfg.HTTPClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.WithService(m.logger, instrumentation.ServiceOAuth)
	return m
}

// ConsentURL returns the Google consent page URL. It always asks for offline
// access and forces the consent prompt so a refresh token is issued even when
// the account has authorized the client before.
func (m *Manager) ConsentURL(state string) string {
	return m.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token set and stores it.
func (m *Manager) Exchange(ctx context.Context, code string) (*credential.TokenSet, error) {
	start := time.Now()
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange)
	defer span.End()

	tok, err := m.conf.Exchange(m.clientContext(ctx), code)
	if err != nil {
		m.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, instrumentation.StatusError, time.Since(start))
		m.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		instrumentation.SetSpanError(span, err)
		m.logger.Warn("authorization code exchange failed", logging.Err(err))
		return nil, &ExchangeError{Err: err}
	}
	m.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, instrumentation.StatusSuccess, time.Since(start))

	ts := credential.FromOAuth2Token(tok)
	if err := m.store.Save(ctx, ts); err != nil {
		m.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	m.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	instrumentation.SetSpanSuccess(span)
	m.logger.Info("credential stored",
		slog.Bool("has_refresh_token", ts.RefreshToken != ""),
		slog.String("access_token", logging.SanitizeToken(ts.AccessToken)))
	return &ts, nil
}

// FreshCredential returns a token set whose access token can be used now.
//
// A stored set without a refresh token fails with ErrNoRefreshToken even if
// its access token is still valid: such a credential would stop working
// silently at expiry, so it is surfaced before the first send.
func (m *Manager) FreshCredential(ctx context.Context) (*credential.TokenSet, error) {
	ts, ok := m.store.Load(ctx)
	if !ok {
		return nil, ErrNoCredential
	}
	if !ts.CanRefresh() {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultNoRefresh)
		return nil, ErrNoRefreshToken
	}
	if ts.OAuth2Token().Valid() {
		return ts, nil
	}
	return m.refresh(ctx)
}

// Refresh obtains a new access token regardless of the current expiry.
func (m *Manager) Refresh(ctx context.Context) (*credential.TokenSet, error) {
	ts, ok := m.store.Load(ctx)
	if !ok {
		return nil, ErrNoCredential
	}
	if !ts.CanRefresh() {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultNoRefresh)
		return nil, ErrNoRefreshToken
	}
	return m.refresh(ctx)
}

// Status reports whether a credential is stored.
func (m *Manager) Status(ctx context.Context) Status {
	ts, ok := m.store.Load(ctx)
	if !ok {
		return Status{}
	}
	return Status{
		Authenticated: true,
		CanRefresh:    ts.CanRefresh(),
		Expiry:        ts.Expiry,
	}
}

// refreshTimeout bounds a refresh once it no longer follows any caller's ctx.
const refreshTimeout = 30 * time.Second

// refresh collapses concurrent callers into one token endpoint call and one
// save. The flight runs detached from the caller that started it, so that
// caller going away does not fail the others; each caller still stops
// waiting when its own ctx is done.
func (m *Manager) refresh(ctx context.Context) (*credential.TokenSet, error) {
	ch := m.refreshGroup.DoChan("refresh", func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.doRefresh(flightCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			m.logger.Debug("joined in-flight token refresh")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		ts := res.Val.(credential.TokenSet)
		return &ts, nil
	}
}

func (m *Manager) doRefresh(ctx context.Context) (credential.TokenSet, error) {
	// Reload inside the flight so a refresh that completed just before this
	// one started is the base for the merge.
	prev, ok := m.store.Load(ctx)
	if !ok {
		return credential.TokenSet{}, ErrNoCredential
	}
	if !prev.CanRefresh() {
		return credential.TokenSet{}, ErrNoRefreshToken
	}

	start := time.Now()
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh)
	defer span.End()

	expired := prev.OAuth2Token()
	expired.Expiry = time.Unix(1, 0)

	newTok, err := m.conf.TokenSource(m.clientContext(ctx), expired).Token()
	if err != nil {
		m.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh, instrumentation.StatusError, time.Since(start))
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		instrumentation.SetSpanError(span, err)
		m.logger.Warn("token refresh failed", logging.Err(err))
		return credential.TokenSet{}, &RefreshError{Err: err}
	}
	m.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh, instrumentation.StatusSuccess, time.Since(start))

	merged := credential.Merge(*prev, newTok)
	if err := m.store.Save(ctx, merged); err != nil {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		instrumentation.SetSpanError(span, err)
		return credential.TokenSet{}, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	instrumentation.SetSpanSuccess(span)
	m.logger.Info("access token refreshed",
		slog.Time("expiry", merged.Expiry),
		slog.Bool("refresh_token_rotated", newTok.RefreshToken != "" && newTok.RefreshToken != prev.RefreshToken))
	return merged, nil
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}
