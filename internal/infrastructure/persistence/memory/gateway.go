// Package memory implements the partition gateway in process memory. It backs
// the default development profile and every saga test.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
)

// Gateway is an in-memory partition.
type Gateway struct {
	p           fragment.Partition
	mu          sync.RWMutex
	collections map[string]*Collection
	closed      bool
}

// New creates an empty in-memory partition.
func New(p fragment.Partition) *Gateway {
	return &Gateway{p: p, collections: make(map[string]*Collection)}
}

// Opener returns a partition.Opener producing fresh in-memory gateways.
func Opener() partition.Opener {
	return func(_ context.Context, p fragment.Partition) (partition.Gateway, error) {
		return New(p), nil
	}
}

// Partition implements partition.Gateway.
func (g *Gateway) Partition() fragment.Partition { return g.p }

// GetOrCreateCollection implements partition.Gateway.
func (g *Gateway) GetOrCreateCollection(_ context.Context, name string) (partition.Collection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, fmt.Errorf("memory: partition %s is closed", g.p.ID)
	}
	c, ok := g.collections[name]
	if !ok {
		c = newCollection(name)
		g.collections[name] = c
	}
	return c, nil
}

// GetCollection implements partition.Gateway.
func (g *Gateway) GetCollection(_ context.Context, name string) (partition.Collection, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, fmt.Errorf("memory: partition %s is closed", g.p.ID)
	}
	c, ok := g.collections[name]
	if !ok {
		return nil, shared.NotFoundf("memory", "GetCollection", "collection %s not found in %s", name, g.p.ID)
	}
	return c, nil
}

// Close implements partition.Gateway.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// Collection is an ordered in-memory record set.
type Collection struct {
	name    string
	mu      sync.RWMutex
	order   []string
	records map[string]partition.Record
}

func newCollection(name string) *Collection {
	return &Collection{name: name, records: make(map[string]partition.Record)}
}

// Name implements partition.Collection.
func (c *Collection) Name() string { return c.name }

// Add implements partition.Collection. The batch is all or nothing.
func (c *Collection) Add(_ context.Context, records ...partition.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			return shared.Validationf("memory", "Add", "record id is empty")
		}
	}
	for _, r := range records {
		if _, exists := c.records[r.ID]; !exists {
			c.order = append(c.order, r.ID)
		}
		c.records[r.ID] = r.Clone()
	}
	return nil
}

// Get implements partition.Collection.
func (c *Collection) Get(_ context.Context, ids ...string) ([]partition.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(ids) == 0 {
		ids = c.order
	}
	out := make([]partition.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := c.records[id]; ok {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Update implements partition.Collection.
func (c *Collection) Update(_ context.Context, updates ...partition.Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range updates {
		if _, ok := c.records[u.ID]; !ok {
			return shared.NotFoundf("memory", "Update", "record %s not found in %s", u.ID, c.name)
		}
	}
	for _, u := range updates {
		r := c.records[u.ID]
		if u.Document != nil {
			r.Document = *u.Document
		}
		if u.Metadata != nil {
			r.Metadata = u.Metadata.Clone()
		}
		c.records[u.ID] = r
	}
	return nil
}

// Delete implements partition.Collection.
func (c *Collection) Delete(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.records[id]; ok {
			drop[id] = true
			delete(c.records, id)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	kept := c.order[:0]
	for _, id := range c.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	c.order = kept
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

// Len returns the number of records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
