// Package config provides environment-driven configuration for cloudhooks.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Store backends.
const (
	BackendParse    = "parse"
	BackendPostgres = "postgres"
)

// Mail providers.
const (
	MailMailgun = "mailgun"
	MailSMTP    = "smtp"
	MailLog     = "log"
)

// History append modes.
const (
	AppendAtomic  = "atomic"
	AppendRewrite = "rewrite"
)

// RewriteRule maps a file URL prefix to a replacement prefix.
type RewriteRule struct {
	From string
	To   string
}

// Config holds all application configuration values.
type Config struct {
	Port        string
	ListenHost  string
	MetricsPort string
	LogLevel    string
	LogFormat   string
	CORSOrigins []string
	WebhookKey  Secret

	StoreBackend   string
	ParseServerURL string
	ParseAppID     string
	ParseRESTKey   Secret
	ParseMasterKey Secret

	DatabaseURL   Secret
	DBMaxConns    int
	SessionSecret Secret
	SessionTTL    time.Duration

	RedisURL     Secret
	NameCacheTTL time.Duration

	MailProvider   string
	MailgunDomain  string
	MailgunAPIKey  Secret
	MailgunAPIBase string
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   Secret
	MailFrom       string
	FeedbackTo     string
	MailQueueSize  int

	FileRewrites     []RewriteRule
	FileAllowedHosts []string
	FileMaxBytes     int64
	FileTimeout      time.Duration
	AWSRegion        string

	HistoryAppendMode string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        envOrDefault("PORT", "3040"),
		ListenHost:  envOrDefault("LISTEN_HOST", "127.0.0.1"),
		MetricsPort: envOrDefault("METRICS_PORT", "9092"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		LogFormat:   envOrDefault("LOG_FORMAT", "json"),
		WebhookKey:  Secret(envOrDefault("WEBHOOK_KEY", "")),

		StoreBackend:   envOrDefault("STORE_BACKEND", BackendParse),
		ParseServerURL: strings.TrimRight(envOrDefault("PARSE_SERVER_URL", "http://localhost:1337/parse"), "/"),
		ParseAppID:     envOrDefault("PARSE_APP_ID", ""),
		ParseRESTKey:   Secret(envOrDefault("PARSE_REST_KEY", "")),
		ParseMasterKey: Secret(envOrDefault("PARSE_MASTER_KEY", "")),

		DatabaseURL:   Secret(envOrDefault("DATABASE_URL", "")),
		SessionSecret: Secret(envOrDefault("SESSION_SECRET", "")),
		RedisURL:      Secret(envOrDefault("REDIS_URL", "")),

		MailProvider:   envOrDefault("MAIL_PROVIDER", MailLog),
		MailgunDomain:  envOrDefault("MAILGUN_DOMAIN", ""),
		MailgunAPIKey:  Secret(envOrDefault("MAILGUN_API_KEY", "")),
		MailgunAPIBase: strings.TrimRight(envOrDefault("MAILGUN_API_BASE", "https://api.mailgun.net/v3"), "/"),
		SMTPHost:       envOrDefault("SMTP_HOST", ""),
		SMTPPort:       envOrDefault("SMTP_PORT", "587"),
		SMTPUsername:   envOrDefault("SMTP_USERNAME", ""),
		SMTPPassword:   Secret(envOrDefault("SMTP_PASSWORD", "")),
		MailFrom:       envOrDefault("MAIL_FROM", ""),
		FeedbackTo:     envOrDefault("FEEDBACK_TO", ""),

		AWSRegion:         envOrDefault("AWS_REGION", ""),
		HistoryAppendMode: envOrDefault("HISTORY_APPEND_MODE", AppendAtomic),
	}

	var err error

	if cfg.DBMaxConns, err = envInt("DB_MAX_CONNS", 10); err != nil {
		return nil, err
	}

	if cfg.MailQueueSize, err = envInt("MAIL_QUEUE_SIZE", 100); err != nil {
		return nil, err
	}

	maxBytes, err := envInt("FILES_MAX_BYTES", 5<<20)
	if err != nil {
		return nil, err
	}
	cfg.FileMaxBytes = int64(maxBytes)

	if cfg.SessionTTL, err = envDuration("SESSION_TTL", 720*time.Hour); err != nil {
		return nil, err
	}

	if cfg.NameCacheTTL, err = envDuration("NAME_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.FileTimeout, err = envDuration("FILES_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.CORSOrigins = splitList(envOrDefault("CORS_ORIGINS", ""))
	cfg.FileAllowedHosts = splitList(envOrDefault("FILES_ALLOWED_HOSTS", ""))

	from := splitList(envOrDefault("FILES_REWRITE_FROM", ""))
	to := splitList(envOrDefault("FILES_REWRITE_TO", ""))
	if len(from) != len(to) {
		return nil, fmt.Errorf("FILES_REWRITE_FROM and FILES_REWRITE_TO must have the same number of entries")
	}
	for i := range from {
		cfg.FileRewrites = append(cfg.FileRewrites, RewriteRule{From: from[i], To: to[i]})
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// MetricsAddr returns the metrics listen address in host:port format.
func (c *Config) MetricsAddr() string {
	return c.ListenHost + ":" + c.MetricsPort
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}

	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration (e.g. 5m)", key)
	}

	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}

	return out
}
