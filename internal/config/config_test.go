package config

import (
	"os"
	"testing"
	"time"

	"log/slog"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %q, got %q", defaultPort, cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout %v, got %v", defaultReadTimeout, cfg.Server.ReadTimeout)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}
	if cfg.LMS.Scope != defaultScope {
		t.Errorf("expected default oauth scope %q, got %q", defaultScope, cfg.LMS.Scope)
	}
	if cfg.LMS.TokenSafetyMargin != defaultTokenSafetyMargin {
		t.Errorf("expected default token safety margin %v, got %v", defaultTokenSafetyMargin, cfg.LMS.TokenSafetyMargin)
	}
	if cfg.RateLimit.Window != defaultRateWindow {
		t.Errorf("expected default rate window %v, got %v", defaultRateWindow, cfg.RateLimit.Window)
	}
	if cfg.RateLimit.MaxRequests != defaultRateMaxRequests {
		t.Errorf("expected default rate cap %d, got %d", defaultRateMaxRequests, cfg.RateLimit.MaxRequests)
	}
	if cfg.Retry.MaxAttempts != defaultRetryMaxAttempts {
		t.Errorf("expected default retry attempts %d, got %d", defaultRetryMaxAttempts, cfg.Retry.MaxAttempts)
	}
	if cfg.Sync.PageSize != defaultPageSize {
		t.Errorf("expected default page size %d, got %d", defaultPageSize, cfg.Sync.PageSize)
	}
	if cfg.Sync.DetailChunkSize != defaultDetailChunkSize {
		t.Errorf("expected default chunk size %d, got %d", defaultDetailChunkSize, cfg.Sync.DetailChunkSize)
	}
	if len(cfg.Sync.Pipelines) != 2 {
		t.Errorf("expected 2 default pipelines, got %v", cfg.Sync.Pipelines)
	}
	if cfg.Alert.Enabled {
		t.Error("expected alerting disabled by default")
	}
	if cfg.Alert.APIErrorThreshold != defaultAPIErrorThreshold {
		t.Errorf("expected default api error threshold %d, got %d", defaultAPIErrorThreshold, cfg.Alert.APIErrorThreshold)
	}
	if cfg.Alert.ETLFailureThreshold != defaultETLFailureThreshold {
		t.Errorf("expected default etl failure threshold %d, got %d", defaultETLFailureThreshold, cfg.Alert.ETLFailureThreshold)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"SERVER_PORT":                     "9090",
		"SERVER_READ_TIMEOUT_SECONDS":     "30",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS": "15",
		"LOG_LEVEL":                       "debug",
		"LOG_FORMAT":                      "text",
		"LMS_TOKEN_SAFETY_MARGIN_SECONDS": "120",
		"RATE_LIMIT_WINDOW_SECONDS":       "30",
		"RATE_LIMIT_MAX_REQUESTS":         "50",
		"RETRY_MAX_ATTEMPTS":              "5",
		"RETRY_BASE_DELAY_SECONDS":        "2",
		"SYNC_PAGE_SIZE":                  "250",
		"SYNC_MAX_RECORDS":                "1000",
		"SYNC_PIPELINES":                  "users, completions ,items",
		"ALERT_ENABLED":                   "true",
		"ALERT_API_ERROR_THRESHOLD":       "10",
		"ALERT_TO":                        "ops@example.com,hr@example.com",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected overridden port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("expected shutdown timeout %v, got %v", 15*time.Second, cfg.Server.ShutdownTimeout)
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("expected log level %v, got %v", slog.LevelDebug, cfg.Logging.Level)
	}
	if cfg.LMS.TokenSafetyMargin != 120*time.Second {
		t.Errorf("expected token safety margin %v, got %v", 120*time.Second, cfg.LMS.TokenSafetyMargin)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("expected rate window %v, got %v", 30*time.Second, cfg.RateLimit.Window)
	}
	if cfg.RateLimit.MaxRequests != 50 {
		t.Errorf("expected rate cap 50, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected retry attempts 5, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != 2*time.Second {
		t.Errorf("expected base delay %v, got %v", 2*time.Second, cfg.Retry.BaseDelay)
	}
	if cfg.Sync.PageSize != 250 {
		t.Errorf("expected page size 250, got %d", cfg.Sync.PageSize)
	}
	if cfg.Sync.MaxRecords != 1000 {
		t.Errorf("expected max records 1000, got %d", cfg.Sync.MaxRecords)
	}
	want := []string{"users", "completions", "items"}
	if len(cfg.Sync.Pipelines) != len(want) {
		t.Fatalf("expected pipelines %v, got %v", want, cfg.Sync.Pipelines)
	}
	for i, name := range want {
		if cfg.Sync.Pipelines[i] != name {
			t.Errorf("expected pipeline %q at %d, got %q", name, i, cfg.Sync.Pipelines[i])
		}
	}
	if !cfg.Alert.Enabled {
		t.Error("expected alerting enabled")
	}
	if cfg.Alert.APIErrorThreshold != 10 {
		t.Errorf("expected api error threshold 10, got %d", cfg.Alert.APIErrorThreshold)
	}
	if len(cfg.Alert.To) != 2 {
		t.Errorf("expected 2 alert recipients, got %v", cfg.Alert.To)
	}
}

func TestLoadPartialOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("RETRY_MAX_ATTEMPTS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("expected overridden retry attempts 7, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != defaultRetryBaseDelay {
		t.Errorf("expected default base delay %v, got %v", defaultRetryBaseDelay, cfg.Retry.BaseDelay)
	}
}

func TestLoadWithInvalidValues(t *testing.T) {
	tests := map[string]string{
		"SERVER_READ_TIMEOUT_SECONDS":     "-1",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS": "3.5",
		"LOG_LEVEL":                       "verbose",
		"LOG_FORMAT":                      "xml",
		"LMS_TOKEN_SAFETY_MARGIN_SECONDS": "abc",
		"RATE_LIMIT_MAX_REQUESTS":         "0",
		"RETRY_MAX_ATTEMPTS":              "-3",
		"SYNC_PAGE_SIZE":                  "0",
		"SYNC_MAX_RECORDS":                "-1",
		"ALERT_ENABLED":                   "maybe",
		"ALERT_SMTP_PORT":                 "smtp",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s=%q", key, value)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Database: DatabaseConfig{URL: "postgres://localhost/lmsync"},
			LMS: LMSConfig{
				BaseURL:      "https://lms.example.com",
				ClientID:     "id",
				ClientSecret: "secret",
			},
		}
	}

	if err := base().Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	tests := map[string]func(*Config){
		"missing database url":  func(c *Config) { c.Database.URL = "" },
		"missing lms base url":  func(c *Config) { c.LMS.BaseURL = "" },
		"missing client id":     func(c *Config) { c.LMS.ClientID = "" },
		"missing client secret": func(c *Config) { c.LMS.ClientSecret = "" },
		"alerting without smtp": func(c *Config) { c.Alert.Enabled = true },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestParseLogLevelAliases(t *testing.T) {
	tests := map[string]slog.Level{
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
	}

	for input, expected := range tests {
		level, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) returned error: %v", input, err)
		}

		if level != expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, level, expected)
		}
	}
}

func TestParseSecondsRejectsInvalidInput(t *testing.T) {
	cases := []string{"-1", "abc"}

	for _, input := range cases {
		if _, err := parseSeconds(input); err == nil {
			t.Fatalf("expected error for input %q", input)
		}
	}
}

func TestLoadDoesNotPersistEnvBetweenRuns(t *testing.T) {
	clearConfigEnv(t)

	t.Setenv("SERVER_READ_TIMEOUT_SECONDS", "5")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.Unsetenv("SERVER_READ_TIMEOUT_SECONDS"); err != nil {
		t.Fatalf("failed to unset env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout after reset, got %v", cfg.Server.ReadTimeout)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT",
		"SERVER_PORT",
		"SERVER_READ_TIMEOUT_SECONDS",
		"SERVER_WRITE_TIMEOUT_SECONDS",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"DATABASE_URL",
		"DATABASE_MAX_CONNECTIONS",
		"LMS_BASE_URL",
		"LMS_CLIENT_ID",
		"LMS_CLIENT_SECRET",
		"LMS_OAUTH_SCOPE",
		"LMS_TOKEN_SAFETY_MARGIN_SECONDS",
		"LMS_REQUEST_TIMEOUT_SECONDS",
		"RATE_LIMIT_WINDOW_SECONDS",
		"RATE_LIMIT_MAX_REQUESTS",
		"RETRY_MAX_ATTEMPTS",
		"RETRY_BASE_DELAY_SECONDS",
		"SYNC_PAGE_SIZE",
		"SYNC_MAX_RECORDS",
		"SYNC_DETAIL_CHUNK_SIZE",
		"SYNC_INTERVAL_SECONDS",
		"SYNC_PIPELINES",
		"ALERT_ENABLED",
		"ALERT_API_ERROR_THRESHOLD",
		"ALERT_ETL_FAILURE_THRESHOLD",
		"ALERT_SMTP_HOST",
		"ALERT_SMTP_PORT",
		"ALERT_TO",
	}

	for _, key := range keys {
		t.Setenv(key, "")
	}
}
