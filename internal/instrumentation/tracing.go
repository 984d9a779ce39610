package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans emitted by bulkmail.
const TracerName = "github.com/teemow/bulkmail"

const deliverySpanName = "bulkmail.deliver"

// Span attribute keys. Recipients only ever appear as a domain.
const (
	SpanAttrService         = "google.service"
	SpanAttrOperation       = "google.operation"
	SpanAttrRecipientDomain = "bulkmail.recipient_domain"
	SpanAttrMessageID       = "bulkmail.message_id"
	SpanAttrContentType     = "bulkmail.content_type"
	SpanAttrInlineImage     = "bulkmail.inline_image"
)

func startSpan(ctx context.Context, name string, kind trace.SpanKind, base []attribute.KeyValue, extra []attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithAttributes(append(base, extra...)...),
		trace.WithSpanKind(kind),
	)
}

// StartDeliverySpan starts the span covering one send attempt to recipient.
// The caller ends it.
func StartDeliverySpan(ctx context.Context, recipient string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{attribute.String(SpanAttrRecipientDomain, ExtractUserDomain(recipient))}
	return startSpan(ctx, deliverySpanName, trace.SpanKindInternal, base, attrs)
}

// StartGoogleAPISpan starts a client span named google.<service>.<operation>.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	}
	return startSpan(ctx, "google."+service+"."+operation, trace.SpanKindClient, base, attrs)
}

// SetSpanError marks span as failed. A nil err leaves the status untouched.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
