package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	LMS       LMSConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Sync      SyncConfig
	Alert     AlertConfig
	Auth      AuthConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
}

// LMSConfig holds the remote learning-management API credentials and limits.
type LMSConfig struct {
	BaseURL           string
	ClientID          string
	ClientSecret      string
	Scope             string
	TokenSafetyMargin time.Duration
	RequestTimeout    time.Duration
}

// RateLimitConfig bounds outbound API traffic to a trailing window.
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
}

// RetryConfig governs the API client's retry loop.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// SyncConfig holds extraction and scheduling parameters.
type SyncConfig struct {
	PageSize        int
	MaxRecords      int // 0 means unlimited
	DetailChunkSize int
	Interval        time.Duration
	Pipelines       []string
}

// AlertConfig holds consecutive-failure thresholds and SMTP delivery settings.
type AlertConfig struct {
	Enabled             bool
	APIErrorThreshold   int
	ETLFailureThreshold int
	SMTPHost            string
	SMTPPort            int
	SMTPUser            string
	SMTPPassword        string
	From                string
	To                  []string
}

// AuthConfig holds admin API authentication settings.
type AuthConfig struct {
	JWTSecret     string
	AdminPassword string
	TokenDuration time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultMaxConnections     = 25
	defaultMaxIdleConnections = 5
	defaultConnMaxLifetime    = 5 * time.Minute
	defaultConnectTimeout     = 10 * time.Second

	defaultScope             = "api"
	defaultTokenSafetyMargin = 300 * time.Second
	defaultRequestTimeout    = 30 * time.Second

	defaultRateWindow      = 60 * time.Second
	defaultRateMaxRequests = 100

	defaultRetryMaxAttempts = 3
	defaultRetryBaseDelay   = 1 * time.Second

	defaultPageSize        = 100
	defaultDetailChunkSize = 20
	defaultSyncInterval    = 1 * time.Hour

	defaultAPIErrorThreshold   = 5
	defaultETLFailureThreshold = 2
	defaultSMTPPort            = 587

	defaultTokenDuration = 24 * time.Hour
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided and failing on invalid ones.
func Load() (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:                os.Getenv("DATABASE_URL"),
			MaxConnections:     defaultMaxConnections,
			MaxIdleConnections: defaultMaxIdleConnections,
			ConnMaxLifetime:    defaultConnMaxLifetime,
			ConnectTimeout:     defaultConnectTimeout,
		},
		LMS: LMSConfig{
			BaseURL:           os.Getenv("LMS_BASE_URL"),
			ClientID:          os.Getenv("LMS_CLIENT_ID"),
			ClientSecret:      os.Getenv("LMS_CLIENT_SECRET"),
			Scope:             getEnv("LMS_OAUTH_SCOPE", defaultScope),
			TokenSafetyMargin: defaultTokenSafetyMargin,
			RequestTimeout:    defaultRequestTimeout,
		},
		RateLimit: RateLimitConfig{
			Window:      defaultRateWindow,
			MaxRequests: defaultRateMaxRequests,
		},
		Retry: RetryConfig{
			MaxAttempts: defaultRetryMaxAttempts,
			BaseDelay:   defaultRetryBaseDelay,
		},
		Sync: SyncConfig{
			PageSize:        defaultPageSize,
			MaxRecords:      0,
			DetailChunkSize: defaultDetailChunkSize,
			Interval:        defaultSyncInterval,
			Pipelines:       []string{"users", "completions"},
		},
		Alert: AlertConfig{
			Enabled:             false,
			APIErrorThreshold:   defaultAPIErrorThreshold,
			ETLFailureThreshold: defaultETLFailureThreshold,
			SMTPHost:            os.Getenv("ALERT_SMTP_HOST"),
			SMTPPort:            defaultSMTPPort,
			SMTPUser:            os.Getenv("ALERT_SMTP_USER"),
			SMTPPassword:        os.Getenv("ALERT_SMTP_PASSWORD"),
			From:                os.Getenv("ALERT_FROM"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
			TokenDuration: defaultTokenDuration,
		},
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("DATABASE_MAX_CONNECTIONS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DATABASE_MAX_CONNECTIONS: %w", err)
		}
		cfg.Database.MaxConnections = n
	}

	if v := os.Getenv("LMS_TOKEN_SAFETY_MARGIN_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LMS_TOKEN_SAFETY_MARGIN_SECONDS: %w", err)
		}
		cfg.LMS.TokenSafetyMargin = d
	}

	if v := os.Getenv("LMS_REQUEST_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LMS_REQUEST_TIMEOUT_SECONDS: %w", err)
		}
		cfg.LMS.RequestTimeout = d
	}

	if v := os.Getenv("RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_WINDOW_SECONDS: %w", err)
		}
		cfg.RateLimit.Window = d
	}

	if v := os.Getenv("RATE_LIMIT_MAX_REQUESTS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_MAX_REQUESTS: %w", err)
		}
		cfg.RateLimit.MaxRequests = n
	}

	if v := os.Getenv("RETRY_MAX_ATTEMPTS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_MAX_ATTEMPTS: %w", err)
		}
		cfg.Retry.MaxAttempts = n
	}

	if v := os.Getenv("RETRY_BASE_DELAY_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BASE_DELAY_SECONDS: %w", err)
		}
		cfg.Retry.BaseDelay = d
	}

	if v := os.Getenv("SYNC_PAGE_SIZE"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SYNC_PAGE_SIZE: %w", err)
		}
		cfg.Sync.PageSize = n
	}

	if v := os.Getenv("SYNC_MAX_RECORDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid SYNC_MAX_RECORDS: must be a non-negative integer")
		}
		cfg.Sync.MaxRecords = n
	}

	if v := os.Getenv("SYNC_DETAIL_CHUNK_SIZE"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SYNC_DETAIL_CHUNK_SIZE: %w", err)
		}
		cfg.Sync.DetailChunkSize = n
	}

	if v := os.Getenv("SYNC_INTERVAL_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SYNC_INTERVAL_SECONDS: %w", err)
		}
		cfg.Sync.Interval = d
	}

	if v := os.Getenv("SYNC_PIPELINES"); v != "" {
		cfg.Sync.Pipelines = splitList(v)
	}

	if v := os.Getenv("ALERT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ALERT_ENABLED: must be a boolean")
		}
		cfg.Alert.Enabled = enabled
	}

	if v := os.Getenv("ALERT_API_ERROR_THRESHOLD"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ALERT_API_ERROR_THRESHOLD: %w", err)
		}
		cfg.Alert.APIErrorThreshold = n
	}

	if v := os.Getenv("ALERT_ETL_FAILURE_THRESHOLD"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ALERT_ETL_FAILURE_THRESHOLD: %w", err)
		}
		cfg.Alert.ETLFailureThreshold = n
	}

	if v := os.Getenv("ALERT_SMTP_PORT"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ALERT_SMTP_PORT: %w", err)
		}
		cfg.Alert.SMTPPort = n
	}

	if v := os.Getenv("ALERT_TO"); v != "" {
		cfg.Alert.To = splitList(v)
	}

	return cfg, nil
}

// Validate checks settings that only matter once the service actually runs.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.LMS.BaseURL == "" {
		return fmt.Errorf("LMS_BASE_URL is required")
	}
	if c.LMS.ClientID == "" || c.LMS.ClientSecret == "" {
		return fmt.Errorf("LMS_CLIENT_ID and LMS_CLIENT_SECRET are required")
	}
	if c.Alert.Enabled {
		if c.Alert.SMTPHost == "" || len(c.Alert.To) == 0 {
			return fmt.Errorf("ALERT_SMTP_HOST and ALERT_TO are required when alerting is enabled")
		}
	}
	return nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
