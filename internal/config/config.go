// Package config provides Viper-based configuration management for bulkmail.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// YAML file, environment variables and command line flags. Environment
// variables use the BULKMAIL_ prefix with dots replaced by underscores
// (BULKMAIL_SERVER_HTTP_ADDR). The Google settings also honour the plain
// GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, GOOGLE_REDIRECT_URI and GMAIL_USER
// variables, and the telemetry settings the usual OTEL_* and
// METRICS_EXPORTER style names.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teemow/bulkmail/internal/credential"
	"github.com/teemow/bulkmail/internal/deliverylog"
	"github.com/teemow/bulkmail/internal/gate"
	"github.com/teemow/bulkmail/internal/instrumentation"
)

// EnvPrefix is the prefix of bulkmail environment variables.
const EnvPrefix = "BULKMAIL"

// Config is the complete bulkmail configuration.
type Config struct {
	Google      GoogleConfig      `mapstructure:"google"`
	Credential  CredentialConfig  `mapstructure:"credential"`
	DeliveryLog DeliveryLogConfig `mapstructure:"delivery_log"`
	Server      ServerConfig      `mapstructure:"server"`
	Routes      gate.Routes       `mapstructure:"routes"`
	Log         LogConfig         `mapstructure:"log"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// GoogleConfig holds the OAuth client registration and the sending account.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	// Account is the Gmail address messages are sent from. It is shown by
	// the status endpoint and attached to browser sessions.
	Account string `mapstructure:"account"`
}

// CredentialConfig selects where the token set is stored.
type CredentialConfig struct {
	Store  string       `mapstructure:"store"`
	Path   string       `mapstructure:"path"`
	Valkey ValkeyConfig `mapstructure:"valkey"`
}

// ValkeyConfig configures the Valkey credential store.
type ValkeyConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// DeliveryLogConfig selects the delivery log sink.
type DeliveryLogConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	// Timezone names the IANA zone used to render log timestamps.
	Timezone string `mapstructure:"timezone"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTPAddr       string        `mapstructure:"http_addr"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	SecureCookie   bool          `mapstructure:"secure_cookie"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	// MaxUploadBytes bounds multipart request bodies.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Format string `mapstructure:"format"`
	Debug  bool   `mapstructure:"debug"`
}

// TelemetryConfig selects metric and trace exporters.
type TelemetryConfig struct {
	Enabled           bool        `mapstructure:"enabled"`
	ServiceName       string      `mapstructure:"service_name"`
	InstanceID        string      `mapstructure:"instance_id"`
	MetricsExporter   string      `mapstructure:"metrics_exporter"`
	TracingExporter   string      `mapstructure:"tracing_exporter"`
	OTLPEndpoint      string      `mapstructure:"otlp_endpoint"`
	OTLPInsecure      bool        `mapstructure:"otlp_insecure"`
	TraceSamplingRate float64     `mapstructure:"trace_sampling_rate"`
	DetailedLabels    bool        `mapstructure:"detailed_labels"`
	Audit             AuditConfig `mapstructure:"audit"`
}

// AuditConfig controls the per-delivery slog records.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	IncludePII bool `mapstructure:"include_pii"`
}

// legacyEnv maps config keys to the unprefixed variable names accepted in
// addition to the BULKMAIL_ ones.
var legacyEnv = map[string]string{
	"google.client_id":     "GOOGLE_CLIENT_ID",
	"google.client_secret": "GOOGLE_CLIENT_SECRET",
	"google.redirect_url":  "GOOGLE_REDIRECT_URI",
	"google.account":       "GMAIL_USER",

	"telemetry.enabled":             "INSTRUMENTATION_ENABLED",
	"telemetry.service_name":        "OTEL_SERVICE_NAME",
	"telemetry.instance_id":         "OTEL_SERVICE_INSTANCE_ID",
	"telemetry.metrics_exporter":    "METRICS_EXPORTER",
	"telemetry.tracing_exporter":    "TRACING_EXPORTER",
	"telemetry.otlp_endpoint":       "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.otlp_insecure":       "OTEL_EXPORTER_OTLP_INSECURE",
	"telemetry.trace_sampling_rate": "OTEL_TRACES_SAMPLER_ARG",
	"telemetry.detailed_labels":     "METRICS_DETAILED_LABELS",
	"telemetry.audit.enabled":       "AUDIT_LOGGING_ENABLED",
	"telemetry.audit.include_pii":   "AUDIT_LOGGING_INCLUDE_PII",
}

// Load reads configuration from cfgFile (optional), the environment and the
// given flags. Flags are bound by their config key, see BindFlags.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("bulkmail")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/bulkmail")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	setDefaults(v)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	routes := gate.DefaultRoutes()

	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.redirect_url", "")
	v.SetDefault("google.account", "")

	v.SetDefault("credential.store", credential.BackendFile)
	v.SetDefault("credential.path", credential.DefaultPath)
	v.SetDefault("credential.valkey.address", "")
	v.SetDefault("credential.valkey.password", "")
	v.SetDefault("credential.valkey.db", 0)
	v.SetDefault("credential.valkey.key", credential.DefaultValkeyKey)

	v.SetDefault("delivery_log.backend", deliverylog.BackendFile)
	v.SetDefault("delivery_log.path", deliverylog.DefaultFilePath)
	v.SetDefault("delivery_log.timezone", "Local")

	v.SetDefault("server.http_addr", ":5173")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.secure_cookie", false)
	v.SetDefault("server.session_timeout", 24*time.Hour)
	v.SetDefault("server.max_upload_bytes", int64(25<<20))

	v.SetDefault("routes.protected", routes.Protected)
	v.SetDefault("routes.guest_only", routes.GuestOnly)
	v.SetDefault("routes.login_path", routes.LoginPath)

	v.SetDefault("log.format", "text")
	v.SetDefault("log.debug", false)

	telemetry := instrumentation.DefaultConfig()
	v.SetDefault("telemetry.enabled", telemetry.Enabled)
	v.SetDefault("telemetry.service_name", telemetry.ServiceName)
	v.SetDefault("telemetry.instance_id", "")
	v.SetDefault("telemetry.metrics_exporter", telemetry.MetricsExporter)
	v.SetDefault("telemetry.tracing_exporter", telemetry.TracingExporter)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.trace_sampling_rate", telemetry.TraceSamplingRate)
	v.SetDefault("telemetry.detailed_labels", telemetry.DetailedLabels)
	v.SetDefault("telemetry.audit.enabled", telemetry.AuditLogging.Enabled)
	v.SetDefault("telemetry.audit.include_pii", telemetry.AuditLogging.IncludePII)
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"debug":          "log.debug",
	"log-format":     "log.format",
	"token-path":     "credential.path",
	"token-store":    "credential.store",
	"http-addr":      "server.http_addr",
	"metrics-addr":   "server.metrics_addr",
	"delivery-log":   "delivery_log.path",
	"delivery-store": "delivery_log.backend",
	"account":        "google.account",
}

// bindFlags binds every known flag present in flags. Only flags the user
// actually set override lower layers.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// Location resolves the delivery log timezone. An empty or "Local" value
// is the process's local zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.DeliveryLog.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.DeliveryLog.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid delivery log timezone %q: %w", c.DeliveryLog.Timezone, err)
		}
		return loc, nil
	}
}

// ValidateOAuth checks the settings required to talk to Google.
func (c *Config) ValidateOAuth() error {
	var missing []string
	if c.Google.ClientID == "" {
		missing = append(missing, "google.client_id (GOOGLE_CLIENT_ID)")
	}
	if c.Google.ClientSecret == "" {
		missing = append(missing, "google.client_secret (GOOGLE_CLIENT_SECRET)")
	}
	if c.Google.RedirectURL == "" {
		missing = append(missing, "google.redirect_url (GOOGLE_REDIRECT_URI)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	u, err := url.Parse(c.Google.RedirectURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("google.redirect_url must be an absolute URL, got %q", c.Google.RedirectURL)
	}
	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.ValidateOAuth(); err != nil {
		return err
	}

	switch c.Credential.Store {
	case credential.BackendFile, credential.BackendMemory:
	case credential.BackendValkey:
		if c.Credential.Valkey.Address == "" {
			return errors.New("credential.valkey.address is required for the valkey store")
		}
	default:
		return fmt.Errorf("unknown credential store %q", c.Credential.Store)
	}

	switch c.DeliveryLog.Backend {
	case deliverylog.BackendFile, deliverylog.BackendSQLite:
	default:
		return fmt.Errorf("unknown delivery log backend %q", c.DeliveryLog.Backend)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	if c.Server.SessionTimeout <= 0 {
		return errors.New("server.session_timeout must be positive")
	}

	telemetry := c.InstrumentationConfig("")
	if err := telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// InstrumentationConfig converts the telemetry settings for
// instrumentation.NewProvider.
func (c *Config) InstrumentationConfig(version string) instrumentation.Config {
	t := c.Telemetry
	return instrumentation.Config{
		ServiceName:       t.ServiceName,
		ServiceVersion:    version,
		ServiceInstanceID: t.InstanceID,
		Enabled:           t.Enabled,
		MetricsExporter:   t.MetricsExporter,
		TracingExporter:   t.TracingExporter,
		OTLPEndpoint:      t.OTLPEndpoint,
		OTLPInsecure:      t.OTLPInsecure,
		TraceSamplingRate: t.TraceSamplingRate,
		DetailedLabels:    t.DetailedLabels,
		AuditLogging: instrumentation.AuditLoggingConfig{
			Enabled:    t.Audit.Enabled,
			IncludePII: t.Audit.IncludePII,
		},
	}
}

// CredentialOptions converts the credential settings for credential.Open.
func (c *Config) CredentialOptions() credential.Options {
	return credential.Options{
		Backend: c.Credential.Store,
		Path:    c.Credential.Path,
		Valkey: credential.ValkeyConfig{
			Address:  c.Credential.Valkey.Address,
			Password: c.Credential.Valkey.Password,
			DB:       c.Credential.Valkey.DB,
			Key:      c.Credential.Valkey.Key,
		},
	}
}

// DeliveryLogOptions converts the delivery log settings for deliverylog.Open.
func (c *Config) DeliveryLogOptions() (deliverylog.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return deliverylog.Options{}, err
	}
	return deliverylog.Options{
		Backend:  c.DeliveryLog.Backend,
		Path:     c.DeliveryLog.Path,
		Location: loc,
	}, nil
}
