package gate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/teemow/bulkmail/internal/instrumentation"
	"github.com/teemow/bulkmail/internal/logging"
	"github.com/teemow/bulkmail/internal/session"
)

// Decision results reported to metrics.
const (
	DecisionAllow         = "allow"
	DecisionRedirectLogin = "redirect_login"
	DecisionRedirectHome  = "redirect_home"
	DecisionPreflight     = "preflight"
)

// SessionProvider resolves the session for a request's cookies.
type SessionProvider interface {
	GetSession(ctx context.Context, cookies []*http.Cookie) session.Session
}

// Gate is the authorization middleware.
type Gate struct {
	routes   Routes
	sessions SessionProvider
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithMetrics records gate decisions.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Gate.
func New(routes Routes, sessions SessionProvider, opts ...Option) *Gate {
	g := &Gate{
		routes:   routes,
		sessions: sessions,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type sessionKey struct{}

// SessionFromContext returns the session the gate resolved for the request.
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(session.Session)
	return s, ok
}

// ContextWithSession stores s on ctx.
func ContextWithSession(ctx context.Context, s session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// Middleware wraps next with the gate.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := g.sessions.GetSession(r.Context(), r.Cookies())
		r = r.WithContext(ContextWithSession(r.Context(), sess))

		if r.Method == http.MethodOptions {
			g.record(r, ClassPublic, DecisionPreflight)
			SetCORSHeaders(w.Header())
			w.WriteHeader(http.StatusNoContent)
			return
		}

		class := g.routes.Classify(r.URL.Path)

		switch {
		case class == ClassProtected && !sess.Authenticated():
			g.record(r, class, DecisionRedirectLogin)
			target := r.URL.EscapedPath()
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			redirect(w, g.routes.loginPath()+"?redirect="+EncodeURIComponent(target))
			return
		case class == ClassGuestOnly && sess.Authenticated():
			g.record(r, class, DecisionRedirectHome)
			redirect(w, "/")
			return
		}

		g.record(r, class, DecisionAllow)
		SetCORSHeaders(w.Header())
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) record(r *http.Request, class Class, decision string) {
	g.metrics.RecordGateDecision(r.Context(), string(class), decision)
	g.logger.Debug("gate decision",
		logging.Path(r.URL.Path),
		logging.RouteClass(string(class)),
		slog.String("decision", decision))
}

// SetCORSHeaders sets the permissive CORS headers.
func SetCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func redirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}

// EncodeURIComponent percent-encodes s the way browsers encode a URI
// component: only letters, digits and -_.!~*'() are left as is.
func EncodeURIComponent(s string) string {
	escaped := url.QueryEscape(s)
	return componentUnescaper.Replace(escaped)
}

var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)
