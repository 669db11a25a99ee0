// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database access, acquiring-gateway
// credentials, monitoring, schedules, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "isp-mobile-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// GatewayConfig defines the acquiring-gateway integration settings.
type GatewayConfig struct {
	BaseURL      string        // GATEWAY_BASE_URL, REST endpoint root
	User         string        // GATEWAY_USER
	Password     string        // GATEWAY_PASSWORD
	ReturnURL    string        // GATEWAY_RETURN_URL, landing page after card entry
	FailURL      string        // GATEWAY_FAIL_URL, landing page after a failed attempt
	Timeout      time.Duration // per-call HTTP timeout
	PollInterval time.Duration // delay between unresolved status polls
	PollDeadline time.Duration // total time before an order is abandoned
}

// BillingConfig defines access to the legacy billing database (MySQL) and the
// current-backend payment collector.
type BillingConfig struct {
	User     string // BILLING_DB_USER
	Password string // BILLING_DB_PASS
	Host     string // BILLING_DB_HOST
	Port     int    // BILLING_DB_PORT
	Name     string // BILLING_DB_NAME
	// NotifyURL receives credits for current-backend accounts; their ledger is
	// authoritative downstream, so delivery is best-effort.
	NotifyURL string // BILLING_NOTIFY_URL
}

// DSN renders the MySQL connection string for the legacy billing database.
func (b BillingConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		b.User, b.Password, b.Host, b.Port, b.Name)
}

// MonitoringConfig defines access to the external monitoring API.
type MonitoringConfig struct {
	URL     string        // MONITORING_URL (JSON-RPC endpoint)
	Token   string        // MONITORING_TOKEN
	Timeout time.Duration // per-call HTTP timeout
}

// PushConfig defines the downstream push-notification dispatcher.
type PushConfig struct {
	URL     string        // PUSH_URL (empty disables delivery)
	Timeout time.Duration // per-call HTTP timeout
}

// ScheduleConfig defines the background job cadence.
type ScheduleConfig struct {
	Recurring time.Duration // RECURRING_INTERVAL, autopay re-charge batch
	Incident  time.Duration // INCIDENT_INTERVAL, outage correlation pass
	Outbox    time.Duration // OUTBOX_INTERVAL, failed-credit retry drain
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App store (SQLite: bindings, incident flags, payments, outbox)
	DBPath string

	// Integrations
	Gateway    GatewayConfig
	Billing    BillingConfig
	Monitoring MonitoringConfig
	Push       PushConfig
	Schedule   ScheduleConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App store
		DBPath: getenv("DB_PATH", "app.db"),

		Gateway: GatewayConfig{
			BaseURL:      strings.TrimRight(getenv("GATEWAY_BASE_URL", "https://alfa.rbsuat.com/payment/rest"), "/"),
			User:         getenv("GATEWAY_USER", ""),
			Password:     getenv("GATEWAY_PASSWORD", ""),
			ReturnURL:    getenv("GATEWAY_RETURN_URL", "http://localhost:3000/top-up/done"),
			FailURL:      getenv("GATEWAY_FAIL_URL", "http://localhost:3000/top-up/fail"),
			Timeout:      getdur("GATEWAY_TIMEOUT", 10*time.Second),
			PollInterval: getdur("GATEWAY_POLL_INTERVAL", 5*time.Second),
			PollDeadline: getdur("GATEWAY_POLL_DEADLINE", 15*time.Minute),
		},

		Billing: BillingConfig{
			User:      getenv("BILLING_DB_USER", ""),
			Password:  getenv("BILLING_DB_PASS", ""),
			Host:      getenv("BILLING_DB_HOST", "127.0.0.1"),
			Port:      getint("BILLING_DB_PORT", 3306),
			Name:      getenv("BILLING_DB_NAME", "billing"),
			NotifyURL: getenv("BILLING_NOTIFY_URL", ""),
		},

		Monitoring: MonitoringConfig{
			URL:     getenv("MONITORING_URL", ""),
			Token:   getenv("MONITORING_TOKEN", ""),
			Timeout: getdur("MONITORING_TIMEOUT", 10*time.Second),
		},

		Push: PushConfig{
			URL:     getenv("PUSH_URL", ""),
			Timeout: getdur("PUSH_TIMEOUT", 5*time.Second),
		},

		Schedule: ScheduleConfig{
			Recurring: getdur("RECURRING_INTERVAL", 24*time.Hour),
			Incident:  getdur("INCIDENT_INTERVAL", time.Hour),
			Outbox:    getdur("OUTBOX_INTERVAL", 5*time.Minute),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "isp-mobile-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Gateway.BaseURL) == "" {
		return cfg, errors.New("GATEWAY_BASE_URL must not be empty")
	}
	if cfg.Gateway.Timeout <= 0 || cfg.Monitoring.Timeout <= 0 || cfg.Push.Timeout <= 0 {
		return cfg, errors.New("integration timeouts must be positive durations")
	}
	if cfg.Gateway.PollInterval <= 0 {
		return cfg, errors.New("GATEWAY_POLL_INTERVAL must be > 0")
	}
	if cfg.Gateway.PollDeadline < cfg.Gateway.PollInterval {
		return cfg, errors.New("GATEWAY_POLL_DEADLINE must be >= GATEWAY_POLL_INTERVAL")
	}
	if cfg.Billing.Port <= 0 || cfg.Billing.Port > 65535 {
		return cfg, errors.New("BILLING_DB_PORT must be a valid TCP port")
	}
	if cfg.Schedule.Recurring <= 0 || cfg.Schedule.Incident <= 0 || cfg.Schedule.Outbox <= 0 {
		return cfg, errors.New("schedule intervals must be positive durations")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
