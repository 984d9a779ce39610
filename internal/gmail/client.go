package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/bulkmail/internal/instrumentation"
	"github.com/teemow/bulkmail/internal/logging"
)

// userID addresses the mailbox of the authenticated account.
const userID = "me"

// Client sends raw messages through users.messages.send.
type Client struct {
	endpoint   string
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the API base URL, e.g. for tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient sets the base HTTP client the OAuth2 transport wraps.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records API call metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithService(c.logger, instrumentation.ServiceGmail)
	return c
}

// Send submits raw, an already base64url-encoded message, authorized with
// tok. It returns the id Gmail assigned to the message.
func (c *Client) Send(ctx context.Context, tok *oauth2.Token, raw string) (string, error) {
	if tok == nil || tok.AccessToken == "" {
		return "", errors.New("an access token is required")
	}
	if raw == "" {
		return "", errors.New("raw message is required")
	}

	start := time.Now()
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationSend)
	defer span.End()

	svc, err := c.service(ctx, tok)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("failed to create gmail service: %w", err)
	}

	sent, err := svc.Users.Messages.Send(userID, &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		sendErr := newSendError(err)
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, instrumentation.OperationSend, instrumentation.StatusError, time.Since(start))
		instrumentation.SetSpanError(span, sendErr)
		c.logger.Debug("messages.send rejected", slog.Int("status_code", sendErr.StatusCode), logging.Err(sendErr))
		return "", sendErr
	}

	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, instrumentation.OperationSend, instrumentation.StatusSuccess, time.Since(start))
	instrumentation.SetSpanSuccess(span)
	return sent.Id, nil
}

func (c *Client) service(ctx context.Context, tok *oauth2.Token) (*gmail.Service, error) {
	clientCtx := ctx
	if c.httpClient != nil {
		clientCtx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(clientCtx, oauth2.StaticTokenSource(tok))),
	}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	return gmail.NewService(ctx, opts...)
}
