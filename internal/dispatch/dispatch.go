package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/teemow/bulkmail/internal/credential"
	"github.com/teemow/bulkmail/internal/deliverylog"
	"github.com/teemow/bulkmail/internal/google"
	"github.com/teemow/bulkmail/internal/instrumentation"
	"github.com/teemow/bulkmail/internal/logging"
	"github.com/teemow/bulkmail/internal/mime"
	"github.com/teemow/bulkmail/internal/recipients"
)

// CredentialSource yields a credential that is valid for sending.
type CredentialSource interface {
	FreshCredential(ctx context.Context) (*credential.TokenSet, error)
}

// Sender submits a base64url encoded message and returns the provider id.
type Sender interface {
	Send(ctx context.Context, tok *oauth2.Token, raw string) (string, error)
}

// Outcome is the result of one send attempt.
type Outcome struct {
	Recipient string `json:"recipient"`
	MessageID string `json:"messageId,omitempty"`
	Err       error  `json:"-"`
}

// OK reports whether the message was accepted.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Dispatcher ties credential, composer, sender and delivery log together.
type Dispatcher struct {
	creds  CredentialSource
	sender Sender
	log    deliverylog.Sink

	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records delivery metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithAuditLogger emits one audit event per attempt.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(d *Dispatcher) { d.audit = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock replaces time.Now for delivery log timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher.
func New(creds CredentialSource, sender Sender, sink deliverylog.Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		creds:  creds,
		sender: sender,
		log:    sink,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send delivers msg. The returned error equals Outcome.Err.
func (d *Dispatcher) Send(ctx context.Context, msg mime.OutgoingMessage) (Outcome, error) {
	event := instrumentation.NewDeliveryEvent(msg.To)
	ctx, span := instrumentation.StartDeliverySpan(ctx, msg.To,
		attribute.String(instrumentation.SpanAttrContentType, string(msg.ContentType)),
		attribute.Bool(instrumentation.SpanAttrInlineImage, msg.HasInlineImage()),
	)
	defer span.End()
	event.WithSpanContext(ctx)

	out := Outcome{Recipient: msg.To}
	result := instrumentation.DeliverySuccess

	id, err := d.deliver(ctx, msg)
	if err != nil {
		out.Err = err
		result = resultFor(err)
		instrumentation.SetSpanError(span, err)
	} else {
		out.MessageID = id
		event.MessageID = id
		span.SetAttributes(attribute.String(instrumentation.SpanAttrMessageID, id))
		instrumentation.SetSpanSuccess(span)
	}

	d.record(ctx, out)

	event.Complete(result, err)
	d.metrics.RecordDelivery(ctx, result, msg.To, event.Duration)
	d.audit.LogDelivery(ctx, event)

	return out, out.Err
}

func (d *Dispatcher) deliver(ctx context.Context, msg mime.OutgoingMessage) (string, error) {
	ts, err := d.creds.FreshCredential(ctx)
	if err != nil {
		return "", err
	}

	composed, err := mime.Compose(msg)
	if err != nil {
		return "", err
	}

	return d.sender.Send(ctx, ts.OAuth2Token(), mime.EncodeRaw(composed))
}

// record appends the delivery log entry. A log failure never changes the
// outcome of the send.
func (d *Dispatcher) record(ctx context.Context, out Outcome) {
	if d.log == nil {
		return
	}

	entry := deliverylog.Sent(d.now(), out.Recipient, out.MessageID)
	if out.Err != nil {
		entry = deliverylog.Failed(d.now(), out.Recipient, out.Err)
	}

	if err := d.log.Append(ctx, entry); err != nil {
		d.logger.Error("failed to append delivery log entry",
			logging.Recipient(out.Recipient),
			logging.Err(err))
	}
}

// SendBatch sends tmpl to each recipient in order, substituting the
// recipient's address and name. It stops once the credential is unusable
// or ctx is done; recipients after that point get no outcome.
func (d *Dispatcher) SendBatch(ctx context.Context, tmpl mime.OutgoingMessage, list []recipients.Recipient) []Outcome {
	outcomes := make([]Outcome, 0, len(list))
	for _, r := range list {
		if ctx.Err() != nil {
			d.logger.Warn("batch interrupted", slog.Int("remaining", len(list)-len(outcomes)), logging.Err(ctx.Err()))
			break
		}

		msg := tmpl
		msg.To = r.Email
		msg.DisplayName = r.Name

		out, err := d.Send(ctx, msg)
		outcomes = append(outcomes, out)
		if IsCredentialError(err) {
			d.logger.Warn("batch stopped, credential unusable",
				slog.Int("remaining", len(list)-len(outcomes)),
				logging.Err(err))
			break
		}
	}
	return outcomes
}

// IsCredentialError reports whether err means no send can succeed until the
// operator authorizes again.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, google.ErrNoCredential) || errors.Is(err, google.ErrNoRefreshToken) {
		return true
	}
	var re *google.RefreshError
	return errors.As(err, &re) && re.Revoked()
}

func resultFor(err error) string {
	var re *google.RefreshError
	switch {
	case errors.Is(err, google.ErrNoCredential),
		errors.Is(err, google.ErrNoRefreshToken),
		errors.As(err, &re):
		return instrumentation.DeliveryAuthFailed
	case mime.IsComposeError(err):
		return instrumentation.DeliveryComposeFailed
	default:
		return instrumentation.DeliverySendFailed
	}
}
