package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teemow/bulkmail/internal/gate"
	"github.com/teemow/bulkmail/internal/instrumentation"
	"github.com/teemow/bulkmail/internal/logging"
	"github.com/teemow/bulkmail/internal/session"
)

type statusResponse struct {
	Authenticated bool       `json:"authenticated"`
	Account       string     `json:"account"`
	CanRefresh    bool       `json:"canRefresh"`
	Expiry        *time.Time `json:"expiry,omitempty"`
}

type indexResponse struct {
	Account string `json:"account"`
	User    string `json:"user"`
}

// handleIndex reports who is signed in. The gate keeps anonymous callers out.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	resp := indexResponse{Account: s.displayAccount()}
	if sess, ok := gate.SessionFromContext(r.Context()); ok && sess.User != nil {
		resp.User = sess.User.Email
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLoginPage sends anonymous visitors into the consent flow, keeping
// the page they came from.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	target := "/auth/login"
	if redirect := safeRedirect(r.URL.Query().Get("redirect")); redirect != "" {
		target += "?redirect=" + gate.EncodeURIComponent(redirect)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	state := safeRedirect(r.URL.Query().Get("redirect"))
	w.Header().Set("Location", s.auth.ConsentURL(state))
	w.WriteHeader(http.StatusFound)
}

func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing code", http.StatusBadRequest)
		return
	}

	if _, err := s.auth.Exchange(r.Context(), code); err != nil {
		s.logger.Warn("authorization callback failed", logging.Err(err))
		http.Error(w, "Authentication failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	id := s.sessions.Create(r.Context(), session.Principal{Email: s.displayAccount()})
	http.SetCookie(w, s.sessions.Cookie(id))
	s.logger.Info("operator authorized", logging.Account(s.account))

	target := safeRedirect(r.URL.Query().Get("state"))
	if target == "" {
		target = "/"
	}
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusFound)
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	st := s.auth.Status(r.Context())
	resp := statusResponse{
		Authenticated: st.Authenticated,
		Account:       s.displayAccount(),
		CanRefresh:    st.CanRefresh,
	}
	if !st.Expiry.IsZero() {
		resp.Expiry = &st.Expiry
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.Refresh(r.Context()); err != nil {
		s.logger.Warn("credential refresh failed",
			logging.Operation(instrumentation.OperationRefresh),
			logging.Err(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Success"})
}

func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := gate.SessionFromContext(r.Context()); ok && sess.ID != "" {
		s.sessions.Delete(r.Context(), sess.ID)
		s.logger.Debug("session ended", slog.String("session", logging.SanitizeToken(sess.ID)))
	}
	http.SetCookie(w, s.sessions.ExpiredCookie())
	writeJSON(w, http.StatusOK, messageResponse{Message: "Success"})
}

func (s *Server) displayAccount() string {
	if s.account == "" {
		return "Unknown"
	}
	return s.account
}

// safeRedirect returns p if it is a path on this server, else "".
func safeRedirect(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, `\`) {
		return ""
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return p
}
