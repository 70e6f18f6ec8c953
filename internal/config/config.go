package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"roomsplit/internal/core"
	"roomsplit/internal/log"
)

type Config struct {
	// HTTP Server
	Port           string
	MaxBodyBytes   int64
	CORSOrigins    []string
	TrustedProxies []string

	// Participants, from ROSTER or ROSTER_FILE. Roster is filled by Validate.
	RosterList string
	RosterFile string
	Roster     core.Roster

	// Month windows are computed in this zone. Location is filled by Validate.
	Timezone string
	Location *time.Location

	// Backend selection
	DataBackend  string
	SQLiteDBPath string

	// AMQP, disabled when the URL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Mirror worker; MetricsPort serves its /metrics and /healthz
	MetricsPort string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	StatsCacheTTL     time.Duration

	LogLevel  string
	LogFormat string
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

var validBackends = []string{BackendMemory, BackendSQLite}

// rosterFile is the layout of ROSTER_FILE.
type rosterFile struct {
	Participants []string `toml:"participants"`
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "3000"),
		MaxBodyBytes:   getEnvInt64("MAX_BODY_BYTES", 10240),
		CORSOrigins:    getEnvList("CORS_ORIGINS", "*"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES", ""),

		RosterList: getEnv("ROSTER", ""),
		RosterFile: getEnv("ROSTER_FILE", ""),
		Timezone:   getEnv("TIMEZONE", "Local"),

		DataBackend:  getEnv("DATA_BACKEND", BackendMemory),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/roomsplit.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "roomsplit"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense_events"),

		MetricsPort: getEnv("WORKER_METRICS_PORT", "9091"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Expenses"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		StatsCacheTTL:     getEnvDuration("STATS_CACHE_TTL", 5*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", log.FormatText),
	}
}

// Validate checks the configuration and reports every problem at once. On
// success it also resolves Roster and Location.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	roster, err := c.loadRoster()
	if err != nil {
		errs = append(errs, err.Error())
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR such as 203.0.113.0/24", cidr))
		}
	}

	if c.RateLimitRequests < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitRequests))
	}
	if c.RateLimitWindow < time.Second {
		errs = append(errs, fmt.Sprintf("invalid rate limit window %v: must be at least 1 second", c.RateLimitWindow))
	}
	if c.StatsCacheTTL < 0 {
		errs = append(errs, fmt.Sprintf("invalid statistics cache TTL %v: must not be negative", c.StatsCacheTTL))
	}
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Sprintf("invalid max body size %d: must be positive", c.MaxBodyBytes))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}
	if !slices.Contains([]string{log.FormatText, log.FormatJSON, log.FormatTint}, c.LogFormat) {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be text, json or tint", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	c.Roster = roster
	c.Location = loc
	return nil
}

// ValidateMirror checks the settings the Sheets mirror worker needs on top
// of Validate.
func (c *Config) ValidateMirror() error {
	var errs []string
	if c.AMQPURL == "" {
		errs = append(errs, "AMQP_URL is required for the mirror worker")
	}
	if port, err := strconv.Atoi(c.MetricsPort); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid worker metrics port '%s'", c.MetricsPort))
	}
	if c.GoogleSpreadsheetID == "" {
		errs = append(errs, "GOOGLE_SPREADSHEET_ID is required for the mirror worker")
	}
	if c.GoogleSheetName == "" {
		errs = append(errs, "GOOGLE_SHEET_NAME cannot be empty")
	}
	if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided")
	}
	if len(errs) > 0 {
		return fmt.Errorf("mirror configuration invalid:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return ":" + c.Port }

// MetricsAddr is the mirror worker's listen address.
func (c *Config) MetricsAddr() string { return ":" + c.MetricsPort }

func (c *Config) loadRoster() (core.Roster, error) {
	switch {
	case c.RosterList != "" && c.RosterFile != "":
		return core.Roster{}, errors.New("set either ROSTER or ROSTER_FILE, not both")
	case c.RosterFile != "":
		var rf rosterFile
		if _, err := toml.DecodeFile(c.RosterFile, &rf); err != nil {
			return core.Roster{}, fmt.Errorf("read roster file '%s': %w", c.RosterFile, err)
		}
		r, err := core.NewRoster(rf.Participants...)
		if err != nil {
			return core.Roster{}, fmt.Errorf("roster file '%s': %w", c.RosterFile, err)
		}
		return r, nil
	case c.RosterList != "":
		r, err := core.ParseRoster(c.RosterList)
		if err != nil {
			return core.Roster{}, fmt.Errorf("ROSTER: %w", err)
		}
		return r, nil
	default:
		return core.Roster{}, fmt.Errorf("ROSTER or ROSTER_FILE is required: %w", core.ErrEmptyRoster)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
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

func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, s := range strings.Split(getEnv(key, defaultValue), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
