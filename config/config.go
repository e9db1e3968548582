// Package config loads fragd's settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Backend selects the partition gateway implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Allocator selects the student id authority.
type Allocator string

const (
	AllocatorScan  Allocator = "scan"
	AllocatorRedis Allocator = "redis"
)

// Config is the complete fragd configuration.
type Config struct {
	App      AppConfig
	Storage  StorageConfig
	Postgres PostgresConfig
	IDs      IDConfig
	Redis    RedisConfig
	HTTP     HTTPConfig
	Log      LogConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Version     string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// StorageConfig selects where partitions live.
type StorageConfig struct {
	Backend Backend

	// SQLiteDir holds one database file per partition.
	SQLiteDir string

	// FragmentMapFile optionally replaces the built-in fragment map.
	FragmentMapFile string
}

// PostgresConfig holds credentials shared by every partition database.
// Host, port and database name come from the fragment map.
type PostgresConfig struct {
	User     string
	Password string
	SSLMode  string
	MaxConns int

	// AutoMigrate applies the schema when a partition is opened.
	AutoMigrate bool
}

// IDConfig selects the student id allocator.
type IDConfig struct {
	Allocator Allocator

	// RedisKey overrides the counter key (default derived from the tenant).
	RedisKey string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	DialTimeout time.Duration
}

// HTTPConfig holds the API listener settings.
type HTTPConfig struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// APIKeyHashes are bcrypt hashes of accepted X-API-Key values.
	// When empty, mutating endpoints are open.
	APIKeyHashes []string
}

// Addr returns the listen address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string // debug, info, warn, error
}

// Load reads the configuration from the environment. Malformed values are
// reported together with validation failures.
func Load() (*Config, error) {
	var e env
	cfg := &Config{
		App: AppConfig{
			Name:            e.str("APP_NAME", "fragd"),
			Environment:     Environment(e.lower("APP_ENV", string(EnvDevelopment))),
			Version:         e.str("APP_VERSION", "0.1.0"),
			ShutdownTimeout: e.duration("APP_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			Backend:         Backend(e.lower("STORAGE_BACKEND", string(BackendMemory))),
			SQLiteDir:       e.str("SQLITE_DIR", "./data"),
			FragmentMapFile: e.str("FRAGMENT_MAP_FILE", ""),
		},
		Postgres: PostgresConfig{
			User:        e.str("POSTGRES_USER", "postgres"),
			Password:    e.str("POSTGRES_PASSWORD", ""),
			SSLMode:     e.str("POSTGRES_SSLMODE", "disable"),
			MaxConns:    e.integer("POSTGRES_MAX_CONNS", 10),
			AutoMigrate: e.boolean("POSTGRES_AUTO_MIGRATE", false),
		},
		IDs: IDConfig{
			Allocator: Allocator(e.lower("ID_ALLOCATOR", string(AllocatorScan))),
			RedisKey:  e.str("REDIS_ID_KEY", ""),
		},
		Redis: RedisConfig{
			Host:        e.str("REDIS_HOST", "localhost"),
			Port:        e.integer("REDIS_PORT", 6379),
			Password:    e.str("REDIS_PASSWORD", ""),
			DB:          e.integer("REDIS_DB", 0),
			DialTimeout: e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		},
		HTTP: HTTPConfig{
			Host:         e.str("HTTP_HOST", "0.0.0.0"),
			Port:         e.integer("HTTP_PORT", 8080),
			ReadTimeout:  e.duration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: e.duration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			APIKeyHashes: e.list("HTTP_API_KEY_HASHES"),
		},
		Log: LogConfig{Level: e.lower("LOG_LEVEL", "info")},
	}

	if err := errors.Join(e.errs, cfg.Validate()); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	switch c.Storage.Backend {
	case BackendMemory, BackendPostgres:
	case BackendSQLite:
		if c.Storage.SQLiteDir == "" {
			errs = append(errs, "SQLITE_DIR is required for the sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_BACKEND %q must be memory, sqlite or postgres", c.Storage.Backend))
	}

	switch c.IDs.Allocator {
	case AllocatorScan, AllocatorRedis:
	default:
		errs = append(errs, fmt.Sprintf("ID_ALLOCATOR %q must be scan or redis", c.IDs.Allocator))
	}

	if c.Postgres.MaxConns < 1 {
		errs = append(errs, "POSTGRES_MAX_CONNS must be positive")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, "HTTP_PORT must be 1-65535")
	}
	if c.IsProduction() && c.Storage.Backend == BackendMemory {
		errs = append(errs, "STORAGE_BACKEND memory is not allowed in production")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// env looks variables up and remembers every value it could not parse.
type env struct {
	errs error
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) lower(key, def string) string {
	return strings.ToLower(e.str(key, def))
}

func (e *env) fail(key, raw string, err error) {
	e.errs = errors.Join(e.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
}

func (e *env) integer(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(key, raw, errors.New("not an integer"))
		return def
	}
	return n
}

func (e *env) boolean(key string, def bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail(key, raw, errors.New("not a boolean"))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.fail(key, raw, errors.New("not a duration"))
		return def
	}
	return d
}

// list splits a comma separated variable, dropping blank items.
func (e *env) list(key string) []string {
	var out []string
	for _, item := range strings.Split(e.str(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
