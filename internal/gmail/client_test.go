package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

type capturedRequest struct {
	method string
	path   string
	auth   string
	raw    string
}

func newGmailServer(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()

	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")

		body, _ := io.ReadAll(r.Body)
		var msg struct {
			Raw string `json:"raw"`
		}
		_ = json.Unmarshal(body, &msg)
		captured.raw = msg.Raw

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestClient_Send(t *testing.T) {
	srv, captured := newGmailServer(t, http.StatusOK, `{"id":"18c2f0a1b2","threadId":"18c2f0a1b2","labelIds":["SENT"]}`)
	client := NewClient(WithEndpoint(srv.URL+"/"), WithHTTPClient(srv.Client()))

	id, err := client.Send(context.Background(), &oauth2.Token{AccessToken: "access-1", TokenType: "Bearer"}, "VG86IGphbmVAZXhhbXBsZS5jb20=")
	require.NoError(t, err)

	assert.Equal(t, "18c2f0a1b2", id)
	assert.Equal(t, http.MethodPost, captured.method)
	assert.Equal(t, "/gmail/v1/users/me/messages/send", captured.path)
	assert.Equal(t, "Bearer access-1", captured.auth)
	assert.Equal(t, "VG86IGphbmVAZXhhbXBsZS5jb20=", captured.raw)
}

func TestClient_Send_UpstreamRejection(t *testing.T) {
	srv, _ := newGmailServer(t, http.StatusBadRequest,
		`{"error":{"code":400,"message":"Invalid To header","errors":[{"message":"Invalid To header","domain":"global","reason":"invalidArgument"}],"status":"INVALID_ARGUMENT"}}`)
	client := NewClient(WithEndpoint(srv.URL+"/"), WithHTTPClient(srv.Client()))

	_, err := client.Send(context.Background(), &oauth2.Token{AccessToken: "a"}, "cmF3")
	require.Error(t, err)

	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "Invalid To header", se.Message)
	assert.Contains(t, se.Error(), "Invalid To header")

	var gerr *googleapi.Error
	assert.True(t, errors.As(err, &gerr), "the googleapi error stays reachable")
}

func TestClient_Send_Unauthorized(t *testing.T) {
	srv, _ := newGmailServer(t, http.StatusUnauthorized,
		`{"error":{"code":401,"message":"Request had invalid authentication credentials.","status":"UNAUTHENTICATED"}}`)
	client := NewClient(WithEndpoint(srv.URL+"/"), WithHTTPClient(srv.Client()))

	_, err := client.Send(context.Background(), &oauth2.Token{AccessToken: "stale"}, "cmF3")

	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "Request had invalid authentication credentials.", se.Message)
}

func TestClient_Send_InvalidInput(t *testing.T) {
	client := NewClient()

	_, err := client.Send(context.Background(), nil, "cmF3")
	assert.Error(t, err)

	_, err = client.Send(context.Background(), &oauth2.Token{}, "cmF3")
	assert.Error(t, err)

	_, err = client.Send(context.Background(), &oauth2.Token{AccessToken: "a"}, "")
	assert.Error(t, err)
}

func TestSendError_TransportFailure(t *testing.T) {
	se := newSendError(errors.New("dial tcp: connection refused"))
	assert.Zero(t, se.StatusCode)
	assert.Equal(t, "gmail send failed: dial tcp: connection refused", se.Error())
}
