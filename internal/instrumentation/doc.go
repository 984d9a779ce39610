// Package instrumentation provides OpenTelemetry metrics and tracing for bulkmail.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - gate_decisions_total: Counter of authorization gate decisions by route class and result
//   - active_sessions: Gauge of active cookie sessions
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Gmail and OAuth endpoint calls by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of those call durations
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of authorization code exchanges by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// Delivery Metrics:
//   - bulkmail_deliveries_total: Counter of send attempts by result
//   - bulkmail_delivery_duration_seconds: Histogram of end-to-end send durations
//
// Recipient addresses never become metric labels. With DetailedLabels the
// recipient domain is attached to delivery metrics.
//
// # Tracing
//
// Spans are created for each send attempt (bulkmail.deliver) and each Google
// API call (google.<service>.<operation>).
//
// # Configuration
//
// Config is populated from the telemetry section of the bulkmail config
// file. The usual OTEL_* and METRICS_EXPORTER environment variables still
// apply through the config layer.
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordDelivery(ctx, instrumentation.DeliverySuccess, to, time.Since(start))
package instrumentation
