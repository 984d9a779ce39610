package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/bulkmail/internal/credential"
	"github.com/teemow/bulkmail/internal/deliverylog"
	"github.com/teemow/bulkmail/internal/dispatch"
	"github.com/teemow/bulkmail/internal/gate"
	"github.com/teemow/bulkmail/internal/gmail"
	"github.com/teemow/bulkmail/internal/google"
	"github.com/teemow/bulkmail/internal/mime"
	"github.com/teemow/bulkmail/internal/session"
)

const testRedirectURL = "http://localhost:5173/auth/callback"

type fakeAuth struct {
	status      google.Status
	exchangeErr error
	refreshErr  error
	codes       []string
	lastState   string
}

func (f *fakeAuth) ConsentURL(state string) string {
	f.lastState = state
	return "https://accounts.google.com/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (f *fakeAuth) Exchange(_ context.Context, code string) (*credential.TokenSet, error) {
	f.codes = append(f.codes, code)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &credential.TokenSet{AccessToken: "a", RefreshToken: "r"}, nil
}

func (f *fakeAuth) Refresh(context.Context) (*credential.TokenSet, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &credential.TokenSet{AccessToken: "a2", RefreshToken: "r"}, nil
}

func (f *fakeAuth) Status(context.Context) google.Status {
	return f.status
}

type fakeDispatcher struct {
	mu   sync.Mutex
	msgs []mime.OutgoingMessage
	err  error
}

func (f *fakeDispatcher) Send(_ context.Context, msg mime.OutgoingMessage) (dispatch.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	if f.err != nil {
		return dispatch.Outcome{Recipient: msg.To, Err: f.err}, f.err
	}
	return dispatch.Outcome{Recipient: msg.To, MessageID: "id-1"}, nil
}

type testEnv struct {
	server     *Server
	handler    http.Handler
	auth       *fakeAuth
	dispatcher *fakeDispatcher
	sessions   *session.Manager
	logPath    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sessions := session.NewManager()
	t.Cleanup(sessions.Stop)

	logPath := filepath.Join(t.TempDir(), "email-logs.txt")
	env := &testEnv{
		auth:       &fakeAuth{},
		dispatcher: &fakeDispatcher{},
		sessions:   sessions,
		logPath:    logPath,
	}

	srv, err := New(Config{
		Auth:        env.auth,
		Dispatcher:  env.dispatcher,
		Log:         deliverylog.NewFileSink(logPath, time.UTC),
		Sessions:    sessions,
		Routes:      gate.DefaultRoutes(),
		Account:     "ops@example.com",
		RedirectURL: testRedirectURL,
	})
	require.NoError(t, err)

	env.server = srv
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signedInCookie() *http.Cookie {
	id := e.sessions.Create(context.Background(), session.Principal{Email: "ops@example.com"})
	return e.sessions.Cookie(id)
}

// signedIn attaches a fresh session cookie to req.
func (e *testEnv) signedIn(req *http.Request) *http.Request {
	req.AddCookie(e.signedInCookie())
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile(name, name+".bin")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestNew_Validation(t *testing.T) {
	sessions := session.NewManager()
	t.Cleanup(sessions.Stop)
	sink := deliverylog.NewFileSink(filepath.Join(t.TempDir(), "log.txt"), time.UTC)

	base := Config{
		Auth:        &fakeAuth{},
		Dispatcher:  &fakeDispatcher{},
		Log:         sink,
		Sessions:    sessions,
		RedirectURL: testRedirectURL,
	}

	_, err := New(base)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no auth", func(c *Config) { c.Auth = nil }},
		{"no dispatcher", func(c *Config) { c.Dispatcher = nil }},
		{"no log", func(c *Config) { c.Log = nil }},
		{"no sessions", func(c *Config) { c.Sessions = nil }},
		{"plain http redirect", func(c *Config) { c.RedirectURL = "http://mail.example.com/auth/callback" }},
		{"bad scheme", func(c *Config) { c.RedirectURL = "ftp://localhost/cb" }},
		{"empty redirect", func(c *Config) { c.RedirectURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestValidateHTTPSRequirement(t *testing.T) {
	assert.NoError(t, validateHTTPSRequirement("https://mail.example.com/auth/callback"))
	assert.NoError(t, validateHTTPSRequirement("http://127.0.0.1:5173/auth/callback"))
	assert.NoError(t, validateHTTPSRequirement("http://[::1]:5173/auth/callback"))
	assert.Error(t, validateHTTPSRequirement("http://10.0.0.1/auth/callback"))
}

func TestIndex_RequiresSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect=%2F", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(env.signedInCookie())
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "ops@example.com", body["user"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/login?redirect=%2Fsettings%3Ftab%3D1", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?redirect=%2Fsettings%3Ftab%3D1", rec.Header().Get("Location"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/auth/login?redirect=%2Fsettings%3Ftab%3D1", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://accounts.google.com/"))
	assert.Equal(t, "/settings?tab=1", env.auth.lastState)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=%2Fsettings%3Ftab%3D1", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/settings?tab=1", rec.Header().Get("Location"))
	assert.Equal(t, []string{"abc"}, env.auth.codes)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(cookies[0])
	rec = env.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"), "signed-in users skip the login page")
}

func TestAuthLogin_IgnoresForeignRedirect(t *testing.T) {
	env := newTestEnv(t)

	for _, redirect := range []string{"https://evil.example.com/", "//evil.example.com", `/\evil.example.com`} {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/login?redirect="+url.QueryEscape(redirect), nil))
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Empty(t, env.auth.lastState, redirect)
	}
}

func TestAuthCallback(t *testing.T) {
	t.Run("missing code", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/callback", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Missing code")
	})

	t.Run("exchange rejected", func(t *testing.T) {
		env := newTestEnv(t)
		env.auth.exchangeErr = &google.ExchangeError{Err: errors.New("invalid_grant")}

		rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=stale", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "Authentication failed: ")
		assert.Contains(t, rec.Body.String(), "invalid_grant")
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("unsafe state falls back to root", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=https%3A%2F%2Fevil.example.com", nil))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})
}

func TestAuthStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, "ops@example.com", body["account"])

	env.auth.status = google.Status{Authenticated: true, CanRefresh: true, Expiry: time.Now().Add(time.Hour)}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/auth/status", nil))
	body = decodeJSON(t, rec)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, true, body["canRefresh"])
	assert.Contains(t, body, "expiry")
}

func TestAuthStatus_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	env.server.account = ""

	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/status", nil))
	assert.Equal(t, "Unknown", decodeJSON(t, rec)["account"])
}

func TestAuthRefresh(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"success", nil, http.StatusOK},
		{"never authorized", google.ErrNoCredential, http.StatusUnauthorized},
		{"no refresh token", google.ErrNoRefreshToken, http.StatusUnauthorized},
		{"revoked", &google.RefreshError{Err: &oauth2.RetrieveError{ErrorCode: "invalid_grant"}}, http.StatusUnauthorized},
		{"transient", &google.RefreshError{Err: errors.New("connection reset")}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.auth.refreshErr = tt.err

			rec := env.do(env.signedIn(httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.err == nil {
				assert.Equal(t, "Success", decodeJSON(t, rec)["message"])
			} else {
				assert.Equal(t, tt.err.Error(), decodeJSON(t, rec)["message"])
			}
		})
	}
}

func TestAuthLogout(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signedInCookie()

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.sessions.Len())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	assert.Equal(t, http.StatusFound, env.do(req).Code)
}

func TestSend(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/send", map[string]string{
		"to":          "jane@example.com",
		"name":        "Jane",
		"subject":     "Hello",
		"content":     `<img src="{{image}}">`,
		"contentType": "html",
	}, map[string][]byte{"image": {0xff, 0xd8}})

	rec := env.do(env.signedIn(req))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	assert.Equal(t, "Success", body["message"])
	assert.Equal(t, "id-1", body["messageId"])

	require.Len(t, env.dispatcher.msgs, 1)
	msg := env.dispatcher.msgs[0]
	assert.Equal(t, "jane@example.com", msg.To)
	assert.Equal(t, "Jane", msg.DisplayName)
	assert.Equal(t, mime.ContentHTML, msg.ContentType)
	assert.Equal(t, []byte{0xff, 0xd8}, msg.InlineImage)
}

func TestProtectedEndpoints_RequireSession(t *testing.T) {
	tests := []struct {
		method, target, wantLocation string
	}{
		{http.MethodPost, "/send", "/login?redirect=%2Fsend"},
		{http.MethodPost, "/upload", "/login?redirect=%2Fupload"},
		{http.MethodGet, "/logs", "/login?redirect=%2Flogs"},
		{http.MethodPost, "/auth/refresh", "/login?redirect=%2Fauth%2Frefresh"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			env := newTestEnv(t)

			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.method == http.MethodPost {
				req = multipartRequest(t, tt.target, map[string]string{
					"to": "jane@example.com", "subject": "Hi", "content": "x", "contentType": "text",
				}, nil)
			}
			rec := env.do(req)

			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			assert.Empty(t, env.dispatcher.msgs, "nothing may be sent without a session")
		})
	}
}

func TestSend_URLEncoded(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{"to": {"jane@example.com"}, "subject": {"Hi"}, "content": {"plain"}, "contentType": {"text"}}
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := env.do(env.signedIn(req))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, env.dispatcher.msgs, 1)
	assert.Nil(t, env.dispatcher.msgs[0].InlineImage)
}

func TestSend_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no credential", google.ErrNoCredential, http.StatusUnauthorized},
		{"no refresh token", google.ErrNoRefreshToken, http.StatusUnauthorized},
		{"compose", &mime.ComposeError{Field: "to", Reason: "invalid address"}, http.StatusBadRequest},
		{"provider", &gmail.SendError{StatusCode: 400, Message: "Invalid To header"}, http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.dispatcher.err = tt.err

			req := multipartRequest(t, "/send", map[string]string{
				"to": "jane@example.com", "subject": "Hi", "content": "x", "contentType": "text",
			}, nil)
			rec := env.do(env.signedIn(req))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.err.Error(), decodeJSON(t, rec)["message"])
		})
	}
}

func TestSend_BadContentType(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/send", map[string]string{"to": "jane@example.com", "contentType": "markdown"}, nil)
	rec := env.do(env.signedIn(req))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.dispatcher.msgs)
}

func TestSend_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(env.signedIn(httptest.NewRequest(http.MethodGet, "/send", nil)))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/upload", nil, map[string][]byte{
		"csv": []byte("Name,Email\nJane,jane@example.com\nBroken,nope\n"),
	})
	rec := env.do(env.signedIn(req))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body recipientsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Recipients, 1)
	assert.Equal(t, "jane@example.com", body.Recipients[0].Email)
}

func TestUpload_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(env.signedIn(multipartRequest(t, "/upload", map[string]string{"x": "y"}, nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(env.signedIn(httptest.NewRequest(http.MethodGet, "/logs", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"logs":[]}`, rec.Body.String())

	sink := deliverylog.NewFileSink(env.logPath, time.UTC)
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Append(context.Background(), deliverylog.Sent(at, "jane@example.com", "id")))

	rec = env.do(env.signedIn(httptest.NewRequest(http.MethodGet, "/logs", nil)))
	assert.JSONEq(t, `{"logs":["2026-10-19 09:00:00 - jane@example.com - sent"]}`, rec.Body.String())
}

func TestPreflight(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodOptions, "/send", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "POST, GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Empty(t, env.dispatcher.msgs)
}

func TestHealthBypassesGate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
	assert.Equal(t, "missing", decodeJSON(t, rec)["credential"])

	require.NoError(t, env.server.Shutdown(context.Background()))
	rec = env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// TestSend_EndToEnd wires the real credential manager, dispatcher, Gmail
// client and delivery log against fake Google endpoints.
func TestSend_EndToEnd(t *testing.T) {
	var (
		mu      sync.Mutex
		gotRaw  string
		gotAuth string
	)
	gmailSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var msg struct {
			Raw string `json:"raw"`
		}
		_ = json.Unmarshal(body, &msg)

		mu.Lock()
		gotRaw, gotAuth = msg.Raw, r.Header.Get("Authorization")
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg-42"}`)
	}))
	t.Cleanup(gmailSrv.Close)

	store := credential.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), credential.TokenSet{
		AccessToken:  "live-token",
		RefreshToken: "refresh-token",
		Expiry:       time.Now().Add(time.Hour),
	}))
	manager := google.NewManager(google.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  testRedirectURL,
		Endpoint:     oauth2.Endpoint{AuthURL: "http://unused/auth", TokenURL: "http://unused/token"},
	}, store)

	logPath := filepath.Join(t.TempDir(), "email-logs.txt")
	sink := deliverylog.NewFileSink(logPath, time.UTC)
	client := gmail.NewClient(gmail.WithEndpoint(gmailSrv.URL+"/"), gmail.WithHTTPClient(gmailSrv.Client()))
	dispatcher := dispatch.New(manager, client, sink)

	sessions := session.NewManager()
	t.Cleanup(sessions.Stop)

	srv, err := New(Config{
		Auth:        manager,
		Dispatcher:  dispatcher,
		Log:         sink,
		Sessions:    sessions,
		Routes:      gate.DefaultRoutes(),
		Account:     "ops@example.com",
		RedirectURL: testRedirectURL,
	})
	require.NoError(t, err)
	handler := srv.Handler()

	image := bytes.Repeat([]byte{0xff, 0xd8, 0xff, 0xe0}, 40)
	req := multipartRequest(t, "/send", map[string]string{
		"to":          "jane@example.com",
		"name":        "김민수",
		"subject":     "포스터 안내",
		"content":     `<p>Hi</p><img src="{{image}}"><img src="{{image}}">`,
		"contentType": "html",
	}, map[string][]byte{"image": image})
	req.AddCookie(sessions.Cookie(sessions.Create(context.Background(), session.Principal{Email: "ops@example.com"})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "msg-42", decodeJSON(t, rec)["messageId"])

	mu.Lock()
	raw, auth := gotRaw, gotAuth
	mu.Unlock()
	assert.Equal(t, "Bearer live-token", auth)

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	composed := string(decoded)

	assert.Contains(t, composed, "To: =?UTF-8?B?")
	assert.Contains(t, composed, "Subject: =?UTF-8?B?")
	assert.Contains(t, composed, `Content-Type: multipart/related; boundary="foo_bar_baz"`)
	assert.Equal(t, 2, strings.Count(composed, `src="cid:image1"`))
	assert.NotContains(t, composed, "{{image}}")
	assert.Contains(t, composed, "Content-ID: <image1>")
	for _, line := range strings.Split(composed, "\r\n") {
		assert.LessOrEqual(t, len(line), 998)
	}

	lines, err := sink.Lines(context.Background())
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], " - jane@example.com - sent"))
}

func TestSend_EndToEnd_NoCredential(t *testing.T) {
	store := credential.NewMemoryStore()
	manager := google.NewManager(google.Config{ClientID: "c", ClientSecret: "s", RedirectURL: testRedirectURL}, store)

	logPath := filepath.Join(t.TempDir(), "email-logs.txt")
	sink := deliverylog.NewFileSink(logPath, time.UTC)
	dispatcher := dispatch.New(manager, gmail.NewClient(gmail.WithEndpoint("http://127.0.0.1:1/")), sink)

	sessions := session.NewManager()
	t.Cleanup(sessions.Stop)
	srv, err := New(Config{
		Auth: manager, Dispatcher: dispatcher, Log: sink, Sessions: sessions,
		Routes: gate.DefaultRoutes(), RedirectURL: testRedirectURL,
	})
	require.NoError(t, err)

	req := multipartRequest(t, "/send", map[string]string{
		"to": "jane@example.com", "subject": "Hi", "content": "x", "contentType": "text",
	}, nil)
	req.AddCookie(sessions.Cookie(sessions.Create(context.Background(), session.Principal{Email: "ops@example.com"})))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	lines, err := sink.Lines(context.Background())
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "jane@example.com - failed: ")
}
