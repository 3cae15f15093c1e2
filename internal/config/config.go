package config

import (
	"errors"
	"os"
	"strings"
)

// Store drivers the service can run against.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	Environment  string
	ListenAddr   string
	StoreDriver  string
	DatabaseURL  string
	SQLitePath   string
	AdminAccount string
}

// Load reads configuration from environment variables. ADMIN_ACCOUNT is only
// consulted on first boot, when the store holds no state yet.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:  os.Getenv("APP_ENV"),
		ListenAddr:   os.Getenv("API_ADDR"),
		StoreDriver:  os.Getenv("STORE_DRIVER"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SQLitePath:   os.Getenv("SQLITE_PATH"),
		AdminAccount: os.Getenv("ADMIN_ACCOUNT"),
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverMemory
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return errors.New("STORE_DRIVER must be one of: memory, sqlite, postgres")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.StoreDriver == DriverMemory && (c.Environment == "production" || c.Environment == "staging") {
		return errors.New("STORE_DRIVER=memory is not allowed in " + c.Environment)
	}

	return nil
}
