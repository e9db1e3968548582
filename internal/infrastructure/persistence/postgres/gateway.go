package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARTITION GATEWAY
// ══════════════════════════════════════════════════════════════════════════════

// Gateway serves one partition from one PostgreSQL database.
type Gateway struct {
	p      fragment.Partition
	tenant string
	conn   *Connection
}

// NewGateway wraps an open connection. Records are scoped to tenant.
func NewGateway(p fragment.Partition, tenant string, conn *Connection) *Gateway {
	return &Gateway{p: p, tenant: tenant, conn: conn}
}

// PartitionConfig derives the connection config of p from base.
func PartitionConfig(base Config, p fragment.Partition) Config {
	cfg := base
	cfg.Host = p.Host
	cfg.Port = p.Port
	cfg.Database = p.Database
	return cfg
}

// Opener returns a partition.Opener that connects to each partition's own
// host, port and database using base for credentials and pool sizing.
// With migrate set, the schema is applied before the gateway is returned.
func Opener(base Config, tenant string, migrate bool) partition.Opener {
	return func(ctx context.Context, p fragment.Partition) (partition.Gateway, error) {
		conn, err := NewConnection(ctx, PartitionConfig(base, p))
		if err != nil {
			return nil, err
		}
		if migrate {
			if _, err := NewMigrator(conn).Migrate(ctx); err != nil {
				conn.Close()
				return nil, err
			}
		}
		return NewGateway(p, tenant, conn), nil
	}
}

// Partition implements partition.Gateway.
func (g *Gateway) Partition() fragment.Partition { return g.p }

// Connection returns the underlying pool.
func (g *Gateway) Connection() *Connection { return g.conn }

// GetOrCreateCollection implements partition.Gateway.
func (g *Gateway) GetOrCreateCollection(ctx context.Context, name string) (partition.Collection, error) {
	_, err := g.conn.Exec(ctx,
		`INSERT INTO fragment_collections (tenant, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		g.tenant, name)
	if err != nil {
		return nil, fmt.Errorf("postgres: create collection %s: %w", name, err)
	}
	return &Collection{g: g, name: name}, nil
}

// GetCollection implements partition.Gateway.
func (g *Gateway) GetCollection(ctx context.Context, name string) (partition.Collection, error) {
	var exists bool
	err := g.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM fragment_collections WHERE tenant = $1 AND name = $2)`,
		g.tenant, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("postgres: lookup collection %s: %w", name, err)
	}
	if !exists {
		return nil, shared.NotFoundf("postgres", "GetCollection", "collection %s not found in %s", name, g.p.ID)
	}
	return &Collection{g: g, name: name}, nil
}

// Ping checks the partition's connection pool.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.conn.Ping(ctx)
}

// Close implements partition.Gateway.
func (g *Gateway) Close() error {
	g.conn.Close()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTION
// ══════════════════════════════════════════════════════════════════════════════

// Collection is one named record set in the fragment_records table.
type Collection struct {
	g    *Gateway
	name string
}

// Name implements partition.Collection.
func (c *Collection) Name() string { return c.name }

// Add implements partition.Collection. Existing ids are overwritten in place.
func (c *Collection) Add(ctx context.Context, records ...partition.Record) error {
	return c.g.conn.WithTx(ctx, func(tx pgx.Tx) error {
		for _, r := range records {
			if r.ID == "" {
				return shared.Validationf("postgres", "Add", "record id is empty")
			}
			meta, err := partition.EncodeMetadata(r.Metadata)
			if err != nil {
				return shared.WrapError("postgres", "Add", shared.ErrValidation, "metadata is not serialisable", err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO fragment_records (tenant, collection, id, document, metadata)
				VALUES ($1, $2, $3, $4, $5::jsonb)
				ON CONFLICT (tenant, collection, id)
				DO UPDATE SET document = EXCLUDED.document, metadata = EXCLUDED.metadata, updated_at = NOW()`,
				c.g.tenant, c.name, r.ID, r.Document, string(meta))
			if err != nil {
				return fmt.Errorf("postgres: add %s/%s: %w", c.name, r.ID, err)
			}
		}
		return nil
	})
}

// Get implements partition.Collection.
func (c *Collection) Get(ctx context.Context, ids ...string) ([]partition.Record, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(ids) == 0 {
		rows, err = c.g.conn.Query(ctx, `
			SELECT id, document, metadata FROM fragment_records
			WHERE tenant = $1 AND collection = $2 ORDER BY seq`,
			c.g.tenant, c.name)
	} else {
		rows, err = c.g.conn.Query(ctx, `
			SELECT id, document, metadata FROM fragment_records
			WHERE tenant = $1 AND collection = $2 AND id = ANY($3) ORDER BY seq`,
			c.g.tenant, c.name, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []partition.Record
	for rows.Next() {
		var (
			r    partition.Record
			meta []byte
		)
		if err := rows.Scan(&r.ID, &r.Document, &meta); err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", c.name, err)
		}
		if r.Metadata, err = partition.DecodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("postgres: decode %s/%s: %w", c.name, r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Update implements partition.Collection. Either every update applies or none.
func (c *Collection) Update(ctx context.Context, updates ...partition.Update) error {
	return c.g.conn.WithTx(ctx, func(tx pgx.Tx) error {
		for _, u := range updates {
			var meta *string
			if u.Metadata != nil {
				raw, err := partition.EncodeMetadata(u.Metadata)
				if err != nil {
					return shared.WrapError("postgres", "Update", shared.ErrValidation, "metadata is not serialisable", err)
				}
				s := string(raw)
				meta = &s
			}
			tag, err := tx.Exec(ctx, `
				UPDATE fragment_records
				SET document = COALESCE($4, document),
				    metadata = COALESCE($5::jsonb, metadata),
				    updated_at = NOW()
				WHERE tenant = $1 AND collection = $2 AND id = $3`,
				c.g.tenant, c.name, u.ID, u.Document, meta)
			if err != nil {
				return fmt.Errorf("postgres: update %s/%s: %w", c.name, u.ID, err)
			}
			if tag.RowsAffected() == 0 {
				return shared.NotFoundf("postgres", "Update", "record %s not found in %s", u.ID, c.name)
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
	_, err := c.g.conn.Exec(ctx,
		`DELETE FROM fragment_records WHERE tenant = $1 AND collection = $2 AND id = ANY($3)`,
		c.g.tenant, c.name, ids)
	if err != nil {
		return fmt.Errorf("postgres: delete from %s: %w", c.name, err)
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
