package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrDomain    = "recipient_domain"
	attrClass     = "route_class"
)

var (
	httpBuckets     = []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10}
	googleBuckets   = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	deliveryBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

// Metrics records the mailer's observability metrics.
//
// A nil *Metrics and a zero Metrics are both valid no-op recorders, so
// components can take an optional recorder without guarding every call.
type Metrics struct {
	httpRequests    metric.Int64Counter
	httpDuration    metric.Float64Histogram
	gateDecisions   metric.Int64Counter
	sessions        metric.Int64UpDownCounter
	googleCalls     metric.Int64Counter
	googleDuration  metric.Float64Histogram
	oauthExchanges  metric.Int64Counter
	oauthRefreshes  metric.Int64Counter
	deliveries      metric.Int64Counter
	deliverySeconds metric.Float64Histogram

	// recipient domain on delivery metrics
	detailedLabels bool
}

// instruments creates instruments on meter and keeps the first error.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) counter(name, desc, unit string) metric.Int64Counter {
	if b.err != nil {
		return nil
	}
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return c
}

func (b *instruments) histogram(name, desc string, buckets []float64) metric.Float64Histogram {
	if b.err != nil {
		return nil
	}
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return h
}

func (b *instruments) gauge(name, desc, unit string) metric.Int64UpDownCounter {
	if b.err != nil {
		return nil
	}
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return g
}

// NewMetrics registers every bulkmail instrument on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	b := &instruments{meter: meter}
	m := &Metrics{
		httpRequests:    b.counter("http_requests_total", "HTTP requests by method, route and status", "{request}"),
		httpDuration:    b.histogram("http_request_duration_seconds", "HTTP request duration", httpBuckets),
		gateDecisions:   b.counter("gate_decisions_total", "Authorization gate decisions by route class and result", "{decision}"),
		sessions:        b.gauge("active_sessions", "Live cookie sessions", "{session}"),
		googleCalls:     b.counter("google_api_operations_total", "Gmail and OAuth endpoint calls", "{operation}"),
		googleDuration:  b.histogram("google_api_operation_duration_seconds", "Gmail and OAuth endpoint call duration", googleBuckets),
		oauthExchanges:  b.counter("oauth_auth_total", "Authorization code exchanges by result", "{attempt}"),
		oauthRefreshes:  b.counter("oauth_token_refresh_total", "Token refresh attempts by result", "{attempt}"),
		deliveries:      b.counter("bulkmail_deliveries_total", "Send attempts by result", "{delivery}"),
		deliverySeconds: b.histogram("bulkmail_delivery_duration_seconds", "Send duration from credential lookup to log entry", deliveryBuckets),
		detailedLabels:  detailedLabels,
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordHTTPRequest records one request. path is the route pattern, never the raw URL.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequests.Add(ctx, 1, opt)
	m.httpDuration.Record(ctx, duration.Seconds(), opt)
}

// RecordGateDecision records the gate outcome for one request: "allow",
// "redirect_login", "redirect_home" or "preflight".
func (m *Metrics) RecordGateDecision(ctx context.Context, routeClass, result string) {
	if m == nil || m.gateDecisions == nil {
		return
	}
	m.gateDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrClass, routeClass),
		attribute.String(attrResult, result),
	))
}

func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleCalls == nil {
		return
	}
	opt := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleCalls.Add(ctx, 1, opt)
	m.googleDuration.Record(ctx, duration.Seconds(), opt)
}

func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthExchanges == nil {
		return
	}
	m.oauthExchanges.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthTokenRefresh takes one of the OAuthResult constants.
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthRefreshes == nil {
		return
	}
	m.oauthRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordDelivery records one send attempt. The recipient contributes its
// domain, and only when detailed labels are on.
func (m *Metrics) RecordDelivery(ctx context.Context, result, recipient string, duration time.Duration) {
	if m == nil || m.deliveries == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String(attrResult, result)}
	if m.detailedLabels && recipient != "" {
		attrs = append(attrs, attribute.String(attrDomain, ExtractUserDomain(recipient)))
	}
	opt := metric.WithAttributes(attrs...)
	m.deliveries.Add(ctx, 1, opt)
	m.deliverySeconds.Record(ctx, duration.Seconds(), opt)
}

func (m *Metrics) IncrementActiveSessions(ctx context.Context) { m.addSessions(ctx, 1) }

func (m *Metrics) DecrementActiveSessions(ctx context.Context) { m.addSessions(ctx, -1) }

func (m *Metrics) addSessions(ctx context.Context, delta int64) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.Add(ctx, delta)
}
