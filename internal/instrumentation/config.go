package instrumentation

import (
	"fmt"
	"time"
)

// Config selects what the Provider exports and where.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// ServiceInstanceID defaults to the hostname.
	ServiceInstanceID string

	// Enabled turns metrics and tracing on. A disabled Provider still hands
	// out no-op recorders.
	Enabled bool

	// MetricsExporter is one of prometheus (default), otlp or stdout.
	MetricsExporter string

	// TracingExporter is one of none (default), otlp or stdout.
	TracingExporter string

	// OTLPEndpoint is host:port of the collector, without scheme.
	OTLPEndpoint string

	// OTLPInsecure disables TLS towards the collector. Spans carry hashed
	// recipients and sender metadata; keep TLS outside local setups.
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based ratio, 0.0 to 1.0.
	TraceSamplingRate float64

	// DetailedLabels adds the recipient domain to delivery metrics.
	// Keep it off when sending to many distinct domains.
	DetailedLabels bool

	// AuditLogging configures the per-delivery operational log.
	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for delivery audit logging.
type AuditLoggingConfig struct {
	// Enabled writes one slog record per delivery attempt.
	Enabled bool

	// IncludePII logs full recipient addresses instead of hashes.
	// The delivery log sink always carries full addresses; this only
	// affects the operational slog stream.
	IncludePII bool
}

// DefaultConfig returns the built-in settings: Prometheus metrics, no
// tracing, audit logging without PII. Package config layers file,
// environment and flag values on top.
func DefaultConfig() Config {
	return Config{
		ServiceName:       "bulkmail",
		ServiceVersion:    "unknown",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 0.1,
		AuditLogging: AuditLoggingConfig{
			Enabled: true,
		},
	}
}

// Validate checks exporter names, the sampling rate and that OTLP exporters
// have an endpoint.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %g", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
		}
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
		}
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	return nil
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"

	// OAuth result values
	OAuthResultSuccess   = "success"
	OAuthResultFailure   = "failure"
	OAuthResultNoRefresh = "no_refresh_token"

	// Delivery result values
	DeliverySuccess       = "success"
	DeliveryComposeFailed = "compose_failed"
	DeliveryAuthFailed    = "auth_failed"
	DeliverySendFailed    = "send_failed"

	// Google service names
	ServiceGmail = "gmail"
	ServiceOAuth = "oauth"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// DefaultMetricInterval is the push interval of the periodic exporters.
	DefaultMetricInterval = 10 * time.Second
)
