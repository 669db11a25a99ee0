package config

import (
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	// App store
	t.Setenv("DB_PATH", "store.db")

	// Gateway
	t.Setenv("GATEWAY_BASE_URL", "https://pay.example.com/rest/") // trailing slash stripped
	t.Setenv("GATEWAY_USER", "api-user")
	t.Setenv("GATEWAY_POLL_INTERVAL", "2s")
	t.Setenv("GATEWAY_POLL_DEADLINE", "1m")

	// Billing
	t.Setenv("BILLING_DB_USER", "bill")
	t.Setenv("BILLING_DB_PASS", "secret")
	t.Setenv("BILLING_DB_HOST", "db.internal")
	t.Setenv("BILLING_DB_PORT", "3307")
	t.Setenv("BILLING_DB_NAME", "billing_prod")

	// Schedule
	t.Setenv("RECURRING_INTERVAL", "12h")
	t.Setenv("OUTBOX_INTERVAL", "90s")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging fields unexpected: %+v", cfg)
	}

	// App store
	if cfg.DBPath != "store.db" {
		t.Fatalf("DBPath unexpected: %q", cfg.DBPath)
	}

	// Gateway
	if cfg.Gateway.BaseURL != "https://pay.example.com/rest" ||
		cfg.Gateway.User != "api-user" ||
		cfg.Gateway.PollInterval != 2*time.Second ||
		cfg.Gateway.PollDeadline != time.Minute {
		t.Fatalf("gateway fields unexpected: %+v", cfg.Gateway)
	}

	// Billing
	if cfg.Billing.Host != "db.internal" || cfg.Billing.Port != 3307 || cfg.Billing.Name != "billing_prod" {
		t.Fatalf("billing fields unexpected: %+v", cfg.Billing)
	}

	// Schedule
	if cfg.Schedule.Recurring != 12*time.Hour ||
		cfg.Schedule.Incident != time.Hour || // default
		cfg.Schedule.Outbox != 90*time.Second {
		t.Fatalf("schedule fields unexpected: %+v", cfg.Schedule)
	}

	// Rate limiting fell back to defaults on parse failure
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate fields unexpected: rps=%v burst=%v", cfg.RateRPS, cfg.RateBurst)
	}

	// CORS trimmed and filtered empties
	if len(cfg.CORS.AllowedOrigins) != 2 ||
		cfg.CORS.AllowedOrigins[0] != "https://a.com" ||
		cfg.CORS.AllowedOrigins[1] != "http://b" {
		t.Fatalf("CORS origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security fields unexpected: %+v", cfg.Security)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure ||
		cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("OTEL fields unexpected: %+v", cfg.OTEL)
	}
}

// --- validation failures ---

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"bad timeout", map[string]string{"READ_TIMEOUT": "-1s"}, "timeouts"},
		{"bad header bytes", map[string]string{"MAX_HEADER_BYTES": "-5"}, "MAX_HEADER_BYTES"},
		{"bad billing port", map[string]string{"BILLING_DB_PORT": "70000"}, "BILLING_DB_PORT"},
		{"poll deadline < interval", map[string]string{
			"GATEWAY_POLL_INTERVAL": "10s",
			"GATEWAY_POLL_DEADLINE": "5s",
		}, "GATEWAY_POLL_DEADLINE"},
		{"bad schedule", map[string]string{"OUTBOX_INTERVAL": "-1m"}, "schedule intervals"},
		{"bad rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"bad sampler", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

// --- BillingConfig.DSN ---

func TestBillingConfig_DSN(t *testing.T) {
	b := BillingConfig{User: "u", Password: "p", Host: "h", Port: 3306, Name: "bgb"}
	got := b.DSN()
	want := "u:p@tcp(h:3306)/bgb?charset=utf8mb4&parseTime=True&loc=UTC"
	if got != want {
		t.Fatalf("DSN() = %q; want %q", got, want)
	}
}

// --- helpers ---

func TestHelpers_ParseAndNormalize(t *testing.T) {
	t.Setenv("X_BOOL", "off")
	if getbool("X_BOOL", true) {
		t.Fatalf("getbool off should be false")
	}
	t.Setenv("X_BOOL", "junk")
	if !getbool("X_BOOL", true) {
		t.Fatalf("getbool junk should fall back to default")
	}
	t.Setenv("X_DUR", "150ms")
	if getdur("X_DUR", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	if got := normalizeBasePath(""); got != "/" {
		t.Fatalf("normalizeBasePath empty = %q", got)
	}
	if got := normalizeBasePath("api/v2/"); got != "/api/v2" {
		t.Fatalf("normalizeBasePath = %q", got)
	}
	if out := splitCSV("a, ,b"); len(out) != 2 || out[0] != "a" || out[1] != "b" {
		t.Fatalf("splitCSV = %#v", out)
	}
}
