// Package testutil holds fault-injection doubles for tests. Nothing outside
// _test.go files may import it.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/infrastructure/persistence/memory"
)

// ErrInjected is returned by every injected fault.
var ErrInjected = errors.New("injected fault")

// Op names a collection operation that can be made to fail.
type Op string

const (
	OpAdd    Op = "add"
	OpGet    Op = "get"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpQuery  Op = "query"
)

// Fault makes an operation on a collection fail. Collection "" matches any
// collection. After skips that many matching calls before failing.
type Fault struct {
	Collection string
	Op         Op
	After      int
}

// FaultyGateway wraps a gateway and fails the operations it is told to.
type FaultyGateway struct {
	partition.Gateway

	mu     sync.Mutex
	faults []*armedFault
}

type armedFault struct {
	Fault
	seen int
}

// NewFaultyGateway wraps inner.
func NewFaultyGateway(inner partition.Gateway) *FaultyGateway {
	return &FaultyGateway{Gateway: inner}
}

// Fail arms a fault.
func (g *FaultyGateway) Fail(f Fault) *FaultyGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults = append(g.faults, &armedFault{Fault: f})
	return g
}

// Heal disarms every fault.
func (g *FaultyGateway) Heal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults = nil
}

func (g *FaultyGateway) check(collection string, op Op) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, f := range g.faults {
		if f.Op != op || (f.Collection != "" && f.Collection != collection) {
			continue
		}
		f.seen++
		if f.seen > f.After {
			return fmt.Errorf("%s %s on %s: %w", op, collection, g.Partition().ID, ErrInjected)
		}
	}
	return nil
}

// GetOrCreateCollection wraps the inner collection.
func (g *FaultyGateway) GetOrCreateCollection(ctx context.Context, name string) (partition.Collection, error) {
	c, err := g.Gateway.GetOrCreateCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	return &faultyCollection{Collection: c, gw: g}, nil
}

// GetCollection wraps the inner collection.
func (g *FaultyGateway) GetCollection(ctx context.Context, name string) (partition.Collection, error) {
	c, err := g.Gateway.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	return &faultyCollection{Collection: c, gw: g}, nil
}

type faultyCollection struct {
	partition.Collection
	gw *FaultyGateway
}

func (c *faultyCollection) Add(ctx context.Context, records ...partition.Record) error {
	if err := c.gw.check(c.Name(), OpAdd); err != nil {
		return err
	}
	return c.Collection.Add(ctx, records...)
}

func (c *faultyCollection) Get(ctx context.Context, ids ...string) ([]partition.Record, error) {
	if err := c.gw.check(c.Name(), OpGet); err != nil {
		return nil, err
	}
	return c.Collection.Get(ctx, ids...)
}

func (c *faultyCollection) Update(ctx context.Context, updates ...partition.Update) error {
	if err := c.gw.check(c.Name(), OpUpdate); err != nil {
		return err
	}
	return c.Collection.Update(ctx, updates...)
}

func (c *faultyCollection) Delete(ctx context.Context, ids ...string) error {
	if err := c.gw.check(c.Name(), OpDelete); err != nil {
		return err
	}
	return c.Collection.Delete(ctx, ids...)
}

func (c *faultyCollection) Query(ctx context.Context, text string, k int) ([]partition.Match, error) {
	if err := c.gw.check(c.Name(), OpQuery); err != nil {
		return nil, err
	}
	return c.Collection.Query(ctx, text, k)
}

// Cluster is an in-memory directory whose every gateway can inject faults.
type Cluster struct {
	Dir      *partition.Directory
	Gateways map[fragment.PartitionID]*FaultyGateway
}

// NewCluster builds an in-memory directory over m.
func NewCluster(m *fragment.Map) *Cluster {
	gws := make(map[fragment.PartitionID]partition.Gateway)
	faulty := make(map[fragment.PartitionID]*FaultyGateway)
	for _, p := range m.Partitions() {
		fg := NewFaultyGateway(memory.New(p))
		gws[p.ID] = fg
		faulty[p.ID] = fg
	}
	dir, err := partition.NewDirectory(m, gws)
	if err != nil {
		panic(err)
	}
	return &Cluster{Dir: dir, Gateways: faulty}
}

// Seed writes records into a collection, bypassing faults.
func (c *Cluster) Seed(pid fragment.PartitionID, collection string, records ...partition.Record) {
	col, err := c.Gateways[pid].Gateway.GetOrCreateCollection(context.Background(), collection)
	if err != nil {
		panic(err)
	}
	if err := col.Add(context.Background(), records...); err != nil {
		panic(err)
	}
}

// Records returns every record of a collection keyed by id, bypassing faults.
// A missing collection yields an empty map.
func (c *Cluster) Records(pid fragment.PartitionID, collection string) map[string]partition.Record {
	out := make(map[string]partition.Record)
	col, err := c.Gateways[pid].Gateway.GetCollection(context.Background(), collection)
	if err != nil {
		return out
	}
	rows, err := col.Get(context.Background())
	if err != nil {
		panic(err)
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out
}
