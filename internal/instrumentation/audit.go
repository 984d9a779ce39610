package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/bulkmail/internal/logging"
)

// DeliveryEvent captures one send attempt for the operational log stream.
//
// The Recipient field is PII. LogAttrs hashes it; LogAuditAttrs keeps it.
type DeliveryEvent struct {
	Recipient string
	MessageID string
	Result    string

	StartTime time.Time
	Duration  time.Duration
	Error     string

	TraceID string
}

// NewDeliveryEvent starts timing a send attempt to recipient.
func NewDeliveryEvent(recipient string) *DeliveryEvent {
	return &DeliveryEvent{
		Recipient: recipient,
		StartTime: time.Now(),
	}
}

// WithSpanContext copies the trace id from the span in ctx.
func (e *DeliveryEvent) WithSpanContext(ctx context.Context) *DeliveryEvent {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		e.TraceID = span.SpanContext().TraceID().String()
	}
	return e
}

// Complete stops the timer and records the result.
func (e *DeliveryEvent) Complete(result string, err error) *DeliveryEvent {
	e.Duration = time.Since(e.StartTime)
	e.Result = result
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Success reports whether the attempt delivered.
func (e *DeliveryEvent) Success() bool {
	return e.Result == DeliverySuccess
}

// LogAttrs returns attributes with the recipient anonymized.
func (e *DeliveryEvent) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		logging.Recipient(e.Recipient),
		slog.String("recipient_domain", ExtractUserDomain(e.Recipient)),
		slog.String(logging.KeyStatus, e.Result),
		slog.Duration(logging.KeyDuration, e.Duration),
	}
	return e.appendOptional(attrs)
}

// LogAuditAttrs returns attributes with the full recipient address.
func (e *DeliveryEvent) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("recipient", e.Recipient),
		slog.String(logging.KeyStatus, e.Result),
		slog.Duration(logging.KeyDuration, e.Duration),
	}
	return e.appendOptional(attrs)
}

func (e *DeliveryEvent) appendOptional(attrs []slog.Attr) []slog.Attr {
	if e.MessageID != "" {
		attrs = append(attrs, slog.String("message_id", e.MessageID))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, e.Error))
	}
	return attrs
}

// AuditLogger writes delivery events to slog.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogDelivery logs a completed delivery event. Failures are logged at WARN.
func (al *AuditLogger) LogDelivery(ctx context.Context, e *DeliveryEvent) {
	if al == nil || !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = e.LogAuditAttrs()
	} else {
		attrs = e.LogAttrs()
	}

	level := slog.LevelInfo
	msg := "delivery_succeeded"
	if !e.Success() {
		level = slog.LevelWarn
		msg = "delivery_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, attrs...)
}
