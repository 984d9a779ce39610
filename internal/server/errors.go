package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/teemow/bulkmail/internal/gmail"
	"github.com/teemow/bulkmail/internal/google"
	"github.com/teemow/bulkmail/internal/mime"
)

// StatusFor maps an error from the credential, compose or send path to the
// HTTP status reported to the browser.
func StatusFor(err error) int {
	var (
		exchangeErr *google.ExchangeError
		refreshErr  *google.RefreshError
		sendErr     *gmail.SendError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, google.ErrNoCredential), errors.Is(err, google.ErrNoRefreshToken):
		return http.StatusUnauthorized
	case errors.As(err, &refreshErr):
		if refreshErr.Revoked() {
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	case errors.As(err, &exchangeErr):
		return http.StatusInternalServerError
	case mime.IsComposeError(err):
		return http.StatusBadRequest
	case errors.As(err, &sendErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type messageResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports err as {"message": ...} with the mapped status.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), messageResponse{Message: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, messageResponse{Message: msg})
}
