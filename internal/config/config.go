package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// StorageType selects the ticket backend: memory, sqlite, cached_sqlite
	// or postgres.
	StorageType string
	// DataDir holds the memory snapshot and the sqlite database file.
	DataDir string
	// SQLiteFile overrides the database file location; empty means
	// DATA_DIR/tickets.db.
	SQLiteFile string
	// MemoryBackupSeconds is the interval between memory-backend snapshots.
	MemoryBackupSeconds int

	// PageSize is the default listing/search page size; 0 disables paging.
	PageSize int

	// KafkaBrokers/KafkaTopic configure the ticket event producer; empty
	// brokers disable it.
	KafkaBrokers string
	KafkaTopic   string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:             getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:            getEnv("APP_PORT", "8096"),
		AppEnv:              getEnv("APP_ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		StorageType:         getEnv("STORAGE_TYPE", "cached_sqlite"),
		DataDir:             getEnv("DATA_DIR", "data"),
		SQLiteFile:          getEnv("SQLITE_PATH", ""),
		MemoryBackupSeconds: getEnvInt("MEMORY_BACKUP_SECONDS", 600),
		PageSize:            getEnvInt("PAGE_SIZE", 8),
		KafkaBrokers:        getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "ticket-events"),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "ticket_store")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageType {
	case "memory", "sqlite", "cached_sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown STORAGE_TYPE %q", c.StorageType)
	}
	if c.MemoryBackupSeconds < 1 {
		return errors.New("config: MEMORY_BACKUP_SECONDS must be >= 1")
	}
	if c.PageSize < 0 {
		return errors.New("config: PAGE_SIZE must be >= 0")
	}
	if c.StorageType == "postgres" {
		if c.DB.Host == "" || c.DB.Database == "" {
			return errors.New("config: DB_HOST and DB_DATABASE are required")
		}
		if c.AppEnv == "production" && c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func (c *Config) SnapshotPath() string {
	return filepath.Join(c.DataDir, "tickets-memory.json")
}

func (c *Config) SQLitePath() string {
	if c.SQLiteFile != "" {
		return c.SQLiteFile
	}
	return filepath.Join(c.DataDir, "tickets.db")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
