package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/fragstore/config"
	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
)

func testConfig(backend config.Backend) *config.Config {
	return &config.Config{
		App:      config.AppConfig{Name: "fragd", Environment: config.EnvDevelopment, Version: "test"},
		Storage:  config.StorageConfig{Backend: backend},
		Postgres: config.PostgresConfig{User: "postgres", SSLMode: "disable", MaxConns: 4},
		IDs:      config.IDConfig{Allocator: config.AllocatorScan},
		HTTP:     config.HTTPConfig{Host: "127.0.0.1", Port: 8080},
	}
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, &buf))
	return rec
}

func student(year int) map[string]any {
	return map[string]any{
		"document": "profile",
		"metadata": map[string]any{
			"name": "Grace", "surname": "Hopper", "email": "grace@example.com",
			"final_score": 9, "study_year": year,
		},
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("cassandra")
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestOpen_MemoryBackendServesAPI(t *testing.T) {
	a, err := New(testConfig(config.BackendMemory), nil)
	require.NoError(t, err)
	require.NoError(t, a.Open(context.Background()))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	assert.Equal(t, fragment.DefaultMap().Tenant(), a.Fragments().Tenant())

	rec := post(t, a.Handler(), "/api/v1/students", student(2))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/students", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Grace"`)

	assert.Error(t, a.Open(context.Background()))
}

func TestOpen_SQLiteBackendPersists(t *testing.T) {
	cfg := testConfig(config.BackendSQLite)
	cfg.Storage.SQLiteDir = filepath.Join(t.TempDir(), "parts")

	first, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, first.Open(context.Background()))
	rec := post(t, first.Handler(), "/api/v1/students", student(4))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	first.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "partition:DBVS1/db11")
	require.NoError(t, first.Shutdown(context.Background()))

	files, err := filepath.Glob(filepath.Join(cfg.Storage.SQLiteDir, "*.db"))
	require.NoError(t, err)
	assert.Len(t, files, 4)

	second, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, second.Open(context.Background()))
	t.Cleanup(func() { _ = second.Shutdown(context.Background()) })

	rec = post(t, second.Handler(), "/api/v1/students", student(4))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"student_id":"2"`)

	col, ok, err := second.Directory().ExistingCollection(context.Background(), "DBVS2/db22", partition.CollectionStudents)
	require.NoError(t, err)
	require.True(t, ok)
	rows, err := col.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestLoadFragments_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fragments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tenant: tenant_user:other
partitions:
  - {store: S1, database: a, host: h1, port: 9000}
  - {store: S2, database: p, host: h2, port: 9001}
rules:
  - {domain: academic, min_year: 1, max_year: 4, partition: S1/a}
  - {domain: personal, min_year: 1, max_year: 4, partition: S2/p}
`), 0o644))

	cfg := testConfig(config.BackendMemory)
	cfg.Storage.FragmentMapFile = path
	m, err := LoadFragments(cfg)
	require.NoError(t, err)
	assert.Equal(t, "tenant_user:other", m.Tenant())
	assert.Len(t, m.Partitions(), 2)

	cfg.Storage.FragmentMapFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = LoadFragments(cfg)
	assert.Error(t, err)
}

func TestPostgresBase(t *testing.T) {
	cfg := testConfig(config.BackendPostgres)
	cfg.Postgres.User = "frag"
	cfg.Postgres.Password = "secret"
	cfg.Postgres.MaxConns = 7

	base := PostgresBase(cfg)
	assert.Equal(t, "frag", base.User)
	assert.Equal(t, "secret", base.Password)
	assert.Equal(t, int32(7), base.MaxConns)
	assert.Equal(t, "disable", base.SSLMode)
}
