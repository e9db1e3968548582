// Package sqlite implements the partition gateway on SQLite, one database
// file per partition. It is the single-host durable profile.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
)

//go:embed schema.sql
var schemaSQL string

// Gateway serves one partition from one SQLite file.
type Gateway struct {
	p  fragment.Partition
	db *sql.DB
}

// FileName returns the database file name of p under tenant.
func FileName(tenant string, p fragment.Partition) string {
	clean := strings.NewReplacer(":", "_", "/", "_", " ", "_")
	return clean.Replace(tenant) + "__" + clean.Replace(p.Store) + "_" + clean.Replace(p.Database) + ".db"
}

// Open creates or opens the database file at path for p.
//
// The database runs in WAL mode with a single connection, a 5-second busy
// timeout and foreign keys enforced.
func Open(path string, p fragment.Partition) (*Gateway, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: connect %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Gateway{p: p, db: db}, nil
}

// Opener returns a partition.Opener that keeps each partition in
// dir/FileName(tenant, p).
func Opener(dir, tenant string) partition.Opener {
	return func(_ context.Context, p fragment.Partition) (partition.Gateway, error) {
		return Open(filepath.Join(dir, FileName(tenant, p)), p)
	}
}

// Partition implements partition.Gateway.
func (g *Gateway) Partition() fragment.Partition { return g.p }

// GetOrCreateCollection implements partition.Gateway.
func (g *Gateway) GetOrCreateCollection(ctx context.Context, name string) (partition.Collection, error) {
	if _, err := g.db.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name) VALUES (?)`, name); err != nil {
		return nil, fmt.Errorf("sqlite: create collection %s: %w", name, err)
	}
	return &Collection{db: g.db, name: name}, nil
}

// GetCollection implements partition.Gateway.
func (g *Gateway) GetCollection(ctx context.Context, name string) (partition.Collection, error) {
	var found string
	err := g.db.QueryRowContext(ctx, `SELECT name FROM collections WHERE name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NotFoundf("sqlite", "GetCollection", "collection %s not found in %s", name, g.p.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: lookup collection %s: %w", name, err)
	}
	return &Collection{db: g.db, name: name}, nil
}

// Ping checks that the database file is still reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

// Close implements partition.Gateway.
func (g *Gateway) Close() error {
	if g.db == nil {
		return nil
	}
	return g.db.Close()
}

// Collection is one named record set in the records table.
type Collection struct {
	db   *sql.DB
	name string
}

// Name implements partition.Collection.
func (c *Collection) Name() string { return c.name }

// Add implements partition.Collection.
func (c *Collection) Add(ctx context.Context, records ...partition.Record) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			if r.ID == "" {
				return shared.Validationf("sqlite", "Add", "record id is empty")
			}
			meta, err := partition.EncodeMetadata(r.Metadata)
			if err != nil {
				return shared.WrapError("sqlite", "Add", shared.ErrValidation, "metadata is not serialisable", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO records (collection, id, document, metadata) VALUES (?, ?, ?, ?)
				ON CONFLICT (collection, id) DO UPDATE SET document = excluded.document, metadata = excluded.metadata`,
				c.name, r.ID, r.Document, string(meta))
			if err != nil {
				return fmt.Errorf("sqlite: add %s/%s: %w", c.name, r.ID, err)
			}
		}
		return nil
	})
}

// Get implements partition.Collection.
func (c *Collection) Get(ctx context.Context, ids ...string) ([]partition.Record, error) {
	query := `SELECT id, document, metadata FROM records WHERE collection = ?`
	args := []any{c.name}
	if len(ids) > 0 {
		query += ` AND id IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY seq`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []partition.Record
	for rows.Next() {
		var (
			r    partition.Record
			meta string
		)
		if err := rows.Scan(&r.ID, &r.Document, &meta); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", c.name, err)
		}
		if r.Metadata, err = partition.DecodeMetadata([]byte(meta)); err != nil {
			return nil, fmt.Errorf("sqlite: decode %s/%s: %w", c.name, r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Update implements partition.Collection. Either every update applies or none.
func (c *Collection) Update(ctx context.Context, updates ...partition.Update) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			var meta sql.NullString
			if u.Metadata != nil {
				raw, err := partition.EncodeMetadata(u.Metadata)
				if err != nil {
					return shared.WrapError("sqlite", "Update", shared.ErrValidation, "metadata is not serialisable", err)
				}
				meta = sql.NullString{String: string(raw), Valid: true}
			}
			var doc sql.NullString
			if u.Document != nil {
				doc = sql.NullString{String: *u.Document, Valid: true}
			}
			res, err := tx.ExecContext(ctx, `
				UPDATE records SET document = COALESCE(?, document), metadata = COALESCE(?, metadata)
				WHERE collection = ? AND id = ?`,
				doc, meta, c.name, u.ID)
			if err != nil {
				return fmt.Errorf("sqlite: update %s/%s: %w", c.name, u.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return shared.NotFoundf("sqlite", "Update", "record %s not found in %s", u.ID, c.name)
			}
		}
		return nil
	})
}

// Delete implements partition.Collection.
func (c *Collection) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{c.name}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id IN (?`+strings.Repeat(", ?", len(ids)-1)+`)`, args...)
	if err != nil {
		return fmt.Errorf("sqlite: delete from %s: %w", c.name, err)
	}
	return nil
}

// Query implements partition.Collection.
func (c *Collection) Query(ctx context.Context, text string, k int) ([]partition.Match, error) {
	rows, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	return partition.RankRecords(rows, text, k), nil
}

func (c *Collection) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
