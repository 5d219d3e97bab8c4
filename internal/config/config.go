package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the CLI settings. Precedence, lowest first: defaults, YAML file,
// MIGRATE_* environment, command-line flags.
type Config struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	LedgerTable string `yaml:"ledger_table"`
	LockKey     string `yaml:"lock_key"`
	LogLevel    string `yaml:"log_level"`

	LockRetries    int           `yaml:"lock_retries"`
	LockRetryDelay time.Duration `yaml:"lock_retry_delay"`
	// StatementTimeout is passed to postgres as the session statement_timeout. Zero disables it.
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

func Default() Config {
	return Config{
		Driver:         DriverPostgres,
		LedgerTable:    "schema_migrations",
		LockKey:        "schema_migrator",
		LogLevel:       "info",
		LockRetries:    1,
		LockRetryDelay: time.Second,
	}
}

// Load reads path on top of the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MIGRATE_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	c.Driver = pickEnv(getenv, "MIGRATE_DRIVER", c.Driver)
	c.DSN = pickEnv(getenv, "MIGRATE_DSN", c.DSN)
	c.LedgerTable = pickEnv(getenv, "MIGRATE_LEDGER_TABLE", c.LedgerTable)
	c.LockKey = pickEnv(getenv, "MIGRATE_LOCK_KEY", c.LockKey)
	c.LogLevel = pickEnv(getenv, "MIGRATE_LOG_LEVEL", c.LogLevel)

	if v := getenv("MIGRATE_LOCK_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MIGRATE_LOCK_RETRIES: %w", err)
		}
		c.LockRetries = n
	}
	if v := getenv("MIGRATE_LOCK_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MIGRATE_LOCK_RETRY_DELAY: %w", err)
		}
		c.LockRetryDelay = d
	}
	if v := getenv("MIGRATE_STATEMENT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MIGRATE_STATEMENT_TIMEOUT: %w", err)
		}
		c.StatementTimeout = d
	}
	return nil
}

// Resolve fills what can only be derived once every override is in: a postgres DSN
// missing at this point is assembled from POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER,
// POSTGRES_PASSWORD and POSTGRES_DB.
func (c *Config) Resolve(getenv func(string) string) {
	if c.DSN == "" && c.Driver == DriverPostgres {
		c.DSN = postgresDSNFromEnv(getenv)
	}
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.DSN == "" {
		return errors.New("dsn is required")
	}
	if c.LedgerTable == "" {
		return errors.New("ledger table name is required")
	}
	if c.LockRetries < 1 {
		return fmt.Errorf("lock retries must be at least 1, got %d", c.LockRetries)
	}
	if c.LockRetryDelay < 0 || c.StatementTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

func pickEnv(getenv func(string) string, name, fallback string) string {
	if value := getenv(name); value != "" {
		return value
	}
	return fallback
}

func postgresDSNFromEnv(getenv func(string) string) string {
	host := getenv("POSTGRES_HOST")
	user := getenv("POSTGRES_USER")
	password := getenv("POSTGRES_PASSWORD")
	db := getenv("POSTGRES_DB")
	port := getenv("POSTGRES_PORT")

	if host == "" || user == "" || db == "" {
		return ""
	}
	if port == "" {
		port = "5432"
	}
	if _, err := strconv.Atoi(port); err != nil {
		return ""
	}

	if password != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, db)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable", user, host, port, db)
}
