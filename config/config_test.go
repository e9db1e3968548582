package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, AllocatorScan, cfg.IDs.Allocator)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.HTTP.APIKeyHashes)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "SQLite")
	t.Setenv("SQLITE_DIR", "/var/lib/fragd")
	t.Setenv("ID_ALLOCATOR", "redis")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("HTTP_API_KEY_HASHES", " $2a$10$abc , ,$2a$10$def")
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("POSTGRES_AUTO_MIGRATE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/fragd", cfg.Storage.SQLiteDir)
	assert.Equal(t, AllocatorRedis, cfg.IDs.Allocator)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, []string{"$2a$10$abc", "$2a$10$def"}, cfg.HTTP.APIKeyHashes)
	assert.Equal(t, 3*time.Second, cfg.App.ShutdownTimeout)
	assert.True(t, cfg.Postgres.AutoMigrate)
}

func TestLoad_ReportsMalformedValues(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "soon")
	t.Setenv("POSTGRES_AUTO_MIGRATE", "maybe")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `HTTP_PORT="eighty"`)
	assert.Contains(t, err.Error(), `APP_SHUTDOWN_TIMEOUT="soon"`)
	assert.Contains(t, err.Error(), `POSTGRES_AUTO_MIGRATE="maybe"`)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":   func(c *Config) { c.Storage.Backend = "mongo" },
		"unknown allocator": func(c *Config) { c.IDs.Allocator = "uuid" },
		"sqlite without dir": func(c *Config) {
			c.Storage.Backend = BackendSQLite
			c.Storage.SQLiteDir = ""
		},
		"bad port": func(c *Config) { c.HTTP.Port = 0 },
		"memory in production": func(c *Config) {
			c.App.Environment = EnvProduction
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
