package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/bulkmail/internal/session"
)

type stubSessions struct {
	user  *session.Principal
	calls int
}

func (s *stubSessions) GetSession(_ context.Context, _ []*http.Cookie) session.Session {
	s.calls++
	return session.Session{User: s.user}
}

func signedIn() *stubSessions {
	return &stubSessions{user: &session.Principal{Email: "ops@example.com"}}
}

type recordingHandler struct {
	called  bool
	session session.Session
	found   bool
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.session, h.found = SessionFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

// pageRoutes is a page-style table, unlike the API defaults.
var pageRoutes = Routes{
	Protected: []string{"/", "/profile", "/settings"},
	GuestOnly: []string{"/login"},
}

func serve(t *testing.T, sessions *stubSessions, method, target string) (*httptest.ResponseRecorder, *recordingHandler) {
	t.Helper()
	return serveRoutes(t, pageRoutes, sessions, method, target)
}

func serveRoutes(t *testing.T, routes Routes, sessions *stubSessions, method, target string) (*httptest.ResponseRecorder, *recordingHandler) {
	t.Helper()
	next := &recordingHandler{}
	g := New(routes, sessions)

	rec := httptest.NewRecorder()
	g.Middleware(next).ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec, next
}

func assertCORS(t *testing.T, h http.Header) {
	t.Helper()
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, GET, OPTIONS", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", h.Get("Access-Control-Allow-Headers"))
}

func TestMiddleware_ProtectedAnonymousRedirectsToLogin(t *testing.T) {
	sessions := &stubSessions{}
	rec, next := serve(t, sessions, http.MethodGet, "/profile")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/login?redirect=%2Fprofile")
	assert.False(t, next.called)
	assert.Equal(t, 1, sessions.calls)
}

func TestMiddleware_RedirectKeepsQuery(t *testing.T) {
	rec, _ := serve(t, &stubSessions{}, http.MethodGet, "/settings/mail?tab=smtp&x=1")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect=%2Fsettings%2Fmail%3Ftab%3Dsmtp%26x%3D1", rec.Header().Get("Location"))
}

func TestMiddleware_RedirectKeepsPercentEncoding(t *testing.T) {
	rec, _ := serve(t, &stubSessions{}, http.MethodGet, "/profile/a%20b?q=%2F")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect=%2Fprofile%2Fa%2520b%3Fq%3D%252F", rec.Header().Get("Location"))
}

func TestMiddleware_DefaultRoutesGuardSending(t *testing.T) {
	for _, target := range []string{"/send", "/upload", "/logs", "/auth/refresh"} {
		t.Run(target, func(t *testing.T) {
			rec, next := serveRoutes(t, DefaultRoutes(), &stubSessions{}, http.MethodPost, target)

			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, "/login?redirect="+EncodeURIComponent(target), rec.Header().Get("Location"))
			assert.False(t, next.called)
		})
	}

	rec, next := serveRoutes(t, DefaultRoutes(), signedIn(), http.MethodPost, "/send")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, next.called)
}

func TestMiddleware_ProtectedWithUserPasses(t *testing.T) {
	rec, next := serve(t, signedIn(), http.MethodGet, "/profile")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, next.called)
	require.True(t, next.found)
	assert.Equal(t, "ops@example.com", next.session.User.Email)
	assertCORS(t, rec.Header())
}

func TestMiddleware_GuestOnlyWithUserRedirectsHome(t *testing.T) {
	rec, next := serve(t, signedIn(), http.MethodGet, "/login")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.False(t, next.called)
}

func TestMiddleware_GuestOnlyAnonymousPasses(t *testing.T) {
	rec, next := serve(t, &stubSessions{}, http.MethodGet, "/login?redirect=%2F")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, next.called)
	assert.True(t, next.found)
	assert.False(t, next.session.Authenticated())
}

func TestMiddleware_PublicPassesWithCORS(t *testing.T) {
	rec, next := serve(t, &stubSessions{}, http.MethodGet, "/auth/callback?code=abc")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, next.called)
	assertCORS(t, rec.Header())
}

func TestMiddleware_Preflight(t *testing.T) {
	for _, path := range []string{"/profile", "/login", "/auth/status"} {
		t.Run(path, func(t *testing.T) {
			sessions := signedIn()
			rec, next := serve(t, sessions, http.MethodOptions, path)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.False(t, next.called)
			assert.Empty(t, rec.Body.String())
			assertCORS(t, rec.Header())
			assert.Equal(t, 1, sessions.calls)
		})
	}
}

func TestMiddleware_CustomLoginPath(t *testing.T) {
	routes := Routes{Protected: []string{"/admin"}, LoginPath: "/auth/login"}
	g := New(routes, &stubSessions{})

	rec := httptest.NewRecorder()
	g.Middleware(&recordingHandler{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?redirect=%2Fadmin", rec.Header().Get("Location"))
}

func TestSessionFromContext_Missing(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)
}
