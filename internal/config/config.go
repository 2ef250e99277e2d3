// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"orb-lab/internal/domain"
)

// Store backends
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Bar sources
const (
	BarsClickHouse = "clickhouse"
	BarsCSV        = "csv"
)

// Config holds process configuration. Command-line flags override it.
type Config struct {
	DataDir string // checkpoint files and run locks

	Store       string
	SQLitePath  string
	PostgresDSN string

	BarSource      string
	ClickHouseDSN  string
	BarsCSV        string
	BarsInstrument string // for CSV files without an instrument column

	Venue domain.Venue

	LogLevel    string
	LogPretty   bool
	MetricsAddr string // empty disables the metrics server
}

// Load reads and validates configuration. See FromEnv.
func Load() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads configuration from environment variables, after loading .env
// from the working directory if it exists. It does not validate, so that
// flags can fill in missing values first.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("ORB_DATA_DIR", "./data")
	barsCSV := getEnv("ORB_BARS_CSV", "")
	defaultSource := BarsClickHouse
	if barsCSV != "" {
		defaultSource = BarsCSV
	}

	cfg := &Config{
		DataDir:        dataDir,
		Store:          getEnv("ORB_STORE", StoreSQLite),
		SQLitePath:     getEnv("ORB_SQLITE_PATH", filepath.Join(dataDir, "research.db")),
		PostgresDSN:    getEnv("ORB_POSTGRES_DSN", ""),
		BarSource:      getEnv("ORB_BAR_SOURCE", defaultSource),
		ClickHouseDSN:  getEnv("ORB_CLICKHOUSE_DSN", ""),
		BarsCSV:        barsCSV,
		BarsInstrument: getEnv("ORB_BARS_INSTRUMENT", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      getEnvAsBool("LOG_PRETTY", false),
		MetricsAddr:    getEnv("ORB_METRICS_ADDR", ""),
	}

	offset, err := domain.ParseUTCOffset(getEnv("ORB_VENUE_UTC_OFFSET", "+10:00"))
	if err != nil {
		return nil, fmt.Errorf("ORB_VENUE_UTC_OFFSET: %w", err)
	}
	dayStart, err := domain.ParseTimeOfDay(getEnv("ORB_VENUE_DAY_START", "09:00"))
	if err != nil {
		return nil, fmt.Errorf("ORB_VENUE_DAY_START: %w", err)
	}
	cfg.Venue = domain.Venue{UTCOffset: offset, DayStart: dayStart}
	return cfg, nil
}

// Validate checks the persistence settings.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("ORB_DATA_DIR is required")
	}
	switch c.Store {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("ORB_SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("ORB_POSTGRES_DSN is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("ORB_STORE: unknown store %q", c.Store)
	}
	return nil
}

// ValidateBars checks the bar source settings. Only commands that read bars call it.
func (c *Config) ValidateBars() error {
	switch c.BarSource {
	case BarsClickHouse:
		if c.ClickHouseDSN == "" {
			return fmt.Errorf("ORB_CLICKHOUSE_DSN is required for the clickhouse bar source")
		}
	case BarsCSV:
		if c.BarsCSV == "" {
			return fmt.Errorf("ORB_BARS_CSV is required for the csv bar source")
		}
	default:
		return fmt.Errorf("ORB_BAR_SOURCE: unknown bar source %q", c.BarSource)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
