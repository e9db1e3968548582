package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
)

const migrationsTable = "fragment_schema_versions"

// Migration is one versioned schema change. AppliedAt and IsApplied are only
// filled in by Status.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator keeps a partition database at the latest schema version.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator returns a migrator over the built-in migrations.
func NewMigrator(conn *Connection) *Migrator {
	return NewMigratorWithMigrations(conn, GetMigrations())
}

// NewMigratorWithMigrations returns a migrator over migrations, sorted by
// version.
func NewMigratorWithMigrations(conn *Connection, migrations []Migration) *Migrator {
	sorted := slices.Clone(migrations)
	slices.SortFunc(sorted, func(a, b Migration) int { return a.Version - b.Version })
	return &Migrator{conn: conn, migrations: sorted}
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	if _, err := m.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrMigrationFailed, migrationsTable, err)
	}

	rows, err := m.conn.Query(ctx, `SELECT version, applied_at FROM `+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrMigrationFailed, migrationsTable, err)
	}
	defer rows.Close()

	done := make(map[int]time.Time)
	for rows.Next() {
		var (
			v  int
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		done[v] = at
	}
	return done, rows.Err()
}

// Migrate applies every pending migration, each in its own transaction, and
// returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return ran, fmt.Errorf("%w: version %d has no up statement", ErrMigrationFailed, mig.Version)
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO `+migrationsTable+` (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		ran++
	}
	return ran, nil
}

// Status lists every known migration and whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(m.migrations)
	for i := range out {
		out[i].AppliedAt, out[i].IsApplied = done[out[i].Version]
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS fragment_collections (
    tenant TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant, name)
);

CREATE TABLE IF NOT EXISTS fragment_records (
    tenant TEXT NOT NULL,
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    document TEXT NOT NULL DEFAULT '',
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    seq BIGSERIAL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    PRIMARY KEY (tenant, collection, id),
    FOREIGN KEY (tenant, collection) REFERENCES fragment_collections (tenant, name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_fragment_records_order ON fragment_records (tenant, collection, seq);
`

const migration001Down = `
DROP TABLE IF EXISTS fragment_records;
DROP TABLE IF EXISTS fragment_collections;
`

const migration002Up = `
CREATE INDEX IF NOT EXISTS idx_fragment_records_study_year
    ON fragment_records (tenant, collection, ((metadata->>'study_year')));
CREATE INDEX IF NOT EXISTS idx_fragment_records_course_id
    ON fragment_records (tenant, ((metadata->>'course_id')))
    WHERE collection = 'course_review';
`

const migration002Down = `
DROP INDEX IF EXISTS idx_fragment_records_course_id;
DROP INDEX IF EXISTS idx_fragment_records_study_year;
`

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_fragment_records", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "index_routing_keys", UpSQL: migration002Up, DownSQL: migration002Down},
	}
}
