package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted in DATA_BACKEND.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Invoice numbering strategies accepted in INVOICE_NUMBERING.
const (
	NumberingCounter = "counter"
	NumberingCount   = "count"
)

type Config struct {
	// HTTP Server
	Port           string
	RateLimit      int      // write requests per client per minute
	TrustedProxies []string // extra proxy CIDRs allowed to set X-Forwarded-For

	// Storage
	DataBackend      string
	SQLiteDBPath     string
	DatabaseURL      string
	DBConnectTimeout time.Duration // how long to wait for Postgres at startup

	// Invoice numbering
	InvoiceNumbering    string
	InvoiceMaxAttempts  int
	InvoiceRetryBackoff time.Duration

	// Admin
	ResetSecret string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets ledger mirror
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		RateLimit:      getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		DataBackend:      getEnv("DATA_BACKEND", BackendSQLite),
		SQLiteDBPath:     getEnv("SQLITE_DB_PATH", "./data/billing.db"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DBConnectTimeout: getEnvDuration("DB_CONNECT_TIMEOUT", 30*time.Second),

		InvoiceNumbering:    getEnv("INVOICE_NUMBERING", NumberingCounter),
		InvoiceMaxAttempts:  getEnvInt("INVOICE_MAX_ATTEMPTS", 6),
		InvoiceRetryBackoff: getEnvDuration("INVOICE_RETRY_BACKOFF", 0),

		ResetSecret: getEnv("RESET_SECRET", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "billing"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_ledger"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Ledger"),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 50),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// AMQPEnabled reports whether events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var p problems

	if port, err := strconv.Atoi(c.Port); err != nil {
		p.addf("invalid port '%s': must be a number", c.Port)
	} else if port < 1 || port > 65535 {
		p.addf("invalid port %d: must be between 1 and 65535", port)
	}

	if c.RateLimit < 1 {
		p.addf("invalid rate limit %d: must be at least 1", c.RateLimit)
	}

	for _, cidr := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			p.addf("invalid trusted proxy '%s': must be a CIDR such as 10.1.0.0/16", cidr)
		}
	}

	validBackends := []string{BackendSQLite, BackendPostgres, BackendMemory}
	if !slices.Contains(validBackends, c.DataBackend) {
		p.addf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends)
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			p.addf("SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					p.addf("cannot create SQLite database directory '%s': %v", dir, err)
				}
			}
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			p.addf("DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil {
			p.addf("invalid DATABASE_URL: %v", err)
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			p.addf("invalid DATABASE_URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme)
		}
	}

	validNumbering := []string{NumberingCounter, NumberingCount}
	if !slices.Contains(validNumbering, c.InvoiceNumbering) {
		p.addf("invalid invoice numbering '%s': must be one of %v", c.InvoiceNumbering, validNumbering)
	}
	if c.InvoiceMaxAttempts < 1 || c.InvoiceMaxAttempts > 100 {
		p.addf("invalid invoice max attempts %d: must be between 1 and 100", c.InvoiceMaxAttempts)
	}
	if c.InvoiceRetryBackoff < 0 || c.InvoiceRetryBackoff > time.Second {
		p.addf("invalid invoice retry backoff %v: must be between 0 and 1s", c.InvoiceRetryBackoff)
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			p.addf("invalid AMQP URL '%s': %v", c.AMQPURL, err)
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			p.addf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme)
		}
		if c.AMQPExchange == "" {
			p.addf("AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			p.addf("AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SyncBatchSize < 1 {
		p.addf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize)
	} else if c.SyncBatchSize > 1000 {
		p.addf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize)
	}

	if c.SyncInterval < time.Second {
		p.addf("invalid sync interval %v: must be at least 1 second", c.SyncInterval)
	} else if c.SyncInterval > 24*time.Hour {
		p.addf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		p.addf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat)
	}

	if c.DBConnectTimeout < 0 {
		p.addf("invalid DB connect timeout %v: must not be negative", c.DBConnectTimeout)
	}

	return p.err()
}

// ValidateWorker checks the settings only the mirror worker needs.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.AMQPEnabled() {
		return fmt.Errorf("configuration validation failed:\n- AMQP_URL is required for the worker")
	}
	return nil
}

// problems collects every configuration error so one run reports them all.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(p, "\n- "))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
