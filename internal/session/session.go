package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/bulkmail/internal/instrumentation"
	"github.com/teemow/bulkmail/internal/logging"
)

// CookieName is the cookie carrying the session id.
const CookieName = "session_id"

// DefaultTimeout is how long an idle session survives.
const DefaultTimeout = 24 * time.Hour

// Principal is the signed-in user.
type Principal struct {
	Email string `json:"email"`
}

// Session is the per-request view of a session. User is nil for anonymous
// callers.
type Session struct {
	ID   string
	User *Principal
}

// Authenticated reports whether a user is attached.
func (s Session) Authenticated() bool {
	return s.User != nil
}

type entry struct {
	principal  Principal
	lastAccess time.Time
}

// Manager is an in-memory session store.
type Manager struct {
	sessions map[string]*entry
	mu       sync.RWMutex

	timeout       time.Duration
	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	stopOnce      sync.Once

	secureCookie bool
	now          func() time.Time
	metrics      *instrumentation.Metrics
	logger       *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the idle timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithSecureCookie marks issued cookies Secure.
func WithSecureCookie(secure bool) Option {
	return func(m *Manager) { m.secureCookie = secure }
}

// WithMetrics records the active session gauge.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager and starts its cleanup goroutine. Call Stop
// when done.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:    make(map[string]*entry),
		timeout:     DefaultTimeout,
		cleanupDone: make(chan struct{}),
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.cleanupTicker = time.NewTicker(cleanupInterval(m.timeout))
	go m.cleanupLoop()

	return m
}

func cleanupInterval(timeout time.Duration) time.Duration {
	if interval := timeout / 4; interval < 10*time.Minute {
		if interval <= 0 {
			return time.Minute
		}
		return interval
	}
	return 10 * time.Minute
}

// Create stores a new session for p and returns its id.
func (m *Manager) Create(ctx context.Context, p Principal) string {
	id := uuid.NewString()

	m.mu.Lock()
	m.sessions[id] = &entry{principal: p, lastAccess: m.now()}
	m.mu.Unlock()

	m.metrics.IncrementActiveSessions(ctx)
	m.logger.Debug("session created", logging.UserHash(p.Email))
	return id
}

// Get returns the session with the given id. Unknown or expired ids give an
// anonymous session.
func (m *Manager) Get(ctx context.Context, id string) Session {
	if id == "" {
		return Session{}
	}

	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok && m.now().Sub(e.lastAccess) > m.timeout {
		delete(m.sessions, id)
		m.mu.Unlock()
		m.metrics.DecrementActiveSessions(ctx)
		return Session{}
	}
	if !ok {
		m.mu.Unlock()
		return Session{}
	}
	e.lastAccess = m.now()
	p := e.principal
	m.mu.Unlock()

	return Session{ID: id, User: &p}
}

// GetSession resolves the session from a request's cookies.
func (m *Manager) GetSession(ctx context.Context, cookies []*http.Cookie) Session {
	for _, c := range cookies {
		if c.Name == CookieName {
			return m.Get(ctx, c.Value)
		}
	}
	return Session{}
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		m.metrics.DecrementActiveSessions(ctx)
	}
}

// Len returns the number of stored sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cookie builds the cookie for a session id.
func (m *Manager) Cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.timeout / time.Second),
	}
}

// ExpiredCookie builds a cookie that clears the session cookie.
func (m *Manager) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
}

// PruneExpired removes idle sessions and returns how many were dropped.
func (m *Manager) PruneExpired(ctx context.Context) int {
	m.mu.Lock()
	now := m.now()
	expired := 0
	for id, e := range m.sessions {
		if now.Sub(e.lastAccess) > m.timeout {
			delete(m.sessions, id)
			expired++
		}
	}
	m.mu.Unlock()

	for range expired {
		m.metrics.DecrementActiveSessions(ctx)
	}
	return expired
}

func (m *Manager) cleanupLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			if n := m.PruneExpired(context.Background()); n > 0 {
				m.logger.Info("Cleaned up expired sessions", "count", n)
			}
		case <-m.cleanupDone:
			return
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.cleanupTicker.Stop()
		close(m.cleanupDone)
	})
}
