package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

func (c *Config) validate() error {
	validators := []func() error{
		c.validateNetwork,
		c.validateWebhook,
		c.validateStore,
		c.validateMail,
		c.validateFiles,
		c.validateCORS,
		c.validateHistory,
	}

	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateNetwork() error {
	port, err := parsePort("PORT", c.Port)
	if err != nil {
		return err
	}

	metricsPort, err := parsePort("METRICS_PORT", c.MetricsPort)
	if err != nil {
		return err
	}

	if metricsPort == port {
		return fmt.Errorf("METRICS_PORT must differ from PORT")
	}

	// Loopback for local deployments, 0.0.0.0/:: for containers where the
	// network boundary is enforced externally.
	validHosts := map[string]bool{
		"127.0.0.1": true,
		"::1":       true,
		"localhost": true,
		"0.0.0.0":   true,
		"::":        true,
	}
	if !validHosts[c.ListenHost] {
		return fmt.Errorf("LISTEN_HOST must be a loopback address or 0.0.0.0/:: for containers (got %q)", c.ListenHost)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'text', got %q", c.LogFormat)
	}

	return nil
}

func (c *Config) validateWebhook() error {
	if c.WebhookKey.Value() == "" {
		return fmt.Errorf("WEBHOOK_KEY is required")
	}

	if len(c.WebhookKey.Value()) < 16 {
		return fmt.Errorf("WEBHOOK_KEY must be at least 16 characters")
	}

	return nil
}

func (c *Config) validateStore() error {
	switch c.StoreBackend {
	case BackendParse:
		return c.validateParse()
	case BackendPostgres:
		return c.validateDatabase()
	default:
		return fmt.Errorf("STORE_BACKEND must be 'parse' or 'postgres', got %q", c.StoreBackend)
	}
}

func (c *Config) validateParse() error {
	u, err := url.ParseRequestURI(c.ParseServerURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("PARSE_SERVER_URL is not a valid URL")
	}

	if u.Scheme != "https" && !isLocalhost(c.ParseServerURL) {
		return fmt.Errorf("PARSE_SERVER_URL must use HTTPS for non-localhost servers")
	}

	if c.ParseAppID == "" {
		return fmt.Errorf("PARSE_APP_ID is required when STORE_BACKEND is parse")
	}

	if c.ParseMasterKey.Value() == "" {
		return fmt.Errorf("PARSE_MASTER_KEY is required when STORE_BACKEND is parse")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.DatabaseURL.Value() == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	dbHost := dbURL.Hostname()
	if dbHost != "localhost" && dbHost != "127.0.0.1" && dbHost != "::1" {
		if dbURL.Query().Get("sslmode") == "disable" {
			return fmt.Errorf("DATABASE_URL sslmode=disable is not allowed for non-local host %q", dbHost)
		}
	}

	if len(c.SessionSecret.Value()) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters when STORE_BACKEND is postgres")
	}

	return nil
}

func (c *Config) validateMail() error {
	switch c.MailProvider {
	case MailLog:
		return nil
	case MailMailgun:
		if c.MailgunDomain == "" || c.MailgunAPIKey.Value() == "" {
			return fmt.Errorf("MAILGUN_DOMAIN and MAILGUN_API_KEY are required when MAIL_PROVIDER is mailgun")
		}
	case MailSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when MAIL_PROVIDER is smtp")
		}
		if _, err := parsePort("SMTP_PORT", c.SMTPPort); err != nil {
			return err
		}
	default:
		return fmt.Errorf("MAIL_PROVIDER must be 'mailgun', 'smtp' or 'log', got %q", c.MailProvider)
	}

	if c.MailFrom == "" {
		return fmt.Errorf("MAIL_FROM is required when MAIL_PROVIDER is %s", c.MailProvider)
	}

	return nil
}

func (c *Config) validateFiles() error {
	for _, r := range c.FileRewrites {
		if _, err := url.Parse(r.From); err != nil {
			return fmt.Errorf("FILES_REWRITE_FROM contains invalid prefix %q", r.From)
		}

		to, err := url.Parse(r.To)
		if err != nil {
			return fmt.Errorf("FILES_REWRITE_TO contains invalid prefix %q", r.To)
		}

		switch to.Scheme {
		case "http", "https":
		case "s3":
			if c.AWSRegion == "" {
				return fmt.Errorf("AWS_REGION is required when a rewrite targets s3://")
			}
		default:
			return fmt.Errorf("FILES_REWRITE_TO prefix %q must use http, https or s3", r.To)
		}
	}

	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORSOrigins {
		if strings.ContainsAny(origin, "*?[]") {
			return fmt.Errorf("CORS_ORIGINS must not contain wildcard or glob characters, got %q", origin)
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q (must have scheme and host)", origin)
		}
	}

	return nil
}

func (c *Config) validateHistory() error {
	if c.HistoryAppendMode != AppendAtomic && c.HistoryAppendMode != AppendRewrite {
		return fmt.Errorf("HISTORY_APPEND_MODE must be 'atomic' or 'rewrite', got %q", c.HistoryAppendMode)
	}

	return nil
}

func parsePort(key, raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}

	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%s must be between 1 and 65535", key)
	}

	return port, nil
}

// isLocalhost returns true if the given address points to a loopback address.
func isLocalhost(addr string) bool {
	u, err := url.Parse(addr)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
