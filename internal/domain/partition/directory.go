package partition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/shared"
)

// Opener opens the gateway of one partition.
type Opener func(ctx context.Context, p fragment.Partition) (Gateway, error)

// Directory maps every partition of a fragment map to its gateway.
type Directory struct {
	fragments *fragment.Map
	gateways  map[fragment.PartitionID]Gateway
}

// OpenDirectory opens a gateway for every partition of m.
// Already opened gateways are closed if a later one fails.
func OpenDirectory(ctx context.Context, m *fragment.Map, open Opener) (*Directory, error) {
	d := &Directory{
		fragments: m,
		gateways:  make(map[fragment.PartitionID]Gateway),
	}
	for _, p := range m.Partitions() {
		gw, err := open(ctx, p)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("partition: open %s at %s: %w", p.ID, p.Address(), err)
		}
		d.gateways[p.ID] = gw
	}
	return d, nil
}

// NewDirectory wraps already opened gateways. Every partition of m must be present.
func NewDirectory(m *fragment.Map, gateways map[fragment.PartitionID]Gateway) (*Directory, error) {
	d := &Directory{
		fragments: m,
		gateways:  make(map[fragment.PartitionID]Gateway, len(gateways)),
	}
	for _, p := range m.Partitions() {
		gw, ok := gateways[p.ID]
		if !ok {
			return nil, fmt.Errorf("partition: no gateway for %s", p.ID)
		}
		d.gateways[p.ID] = gw
	}
	return d, nil
}

// Map returns the routing table of the directory.
func (d *Directory) Map() *fragment.Map { return d.fragments }

// Gateway returns the gateway of a partition.
func (d *Directory) Gateway(id fragment.PartitionID) (Gateway, error) {
	gw, ok := d.gateways[id]
	if !ok {
		return nil, shared.NewDomainError("partition", "Gateway", shared.ErrRouting, fmt.Sprintf("unknown partition %s", id))
	}
	return gw, nil
}

// Collection returns a collection of a partition, creating it if needed.
func (d *Directory) Collection(ctx context.Context, id fragment.PartitionID, name string) (Collection, error) {
	gw, err := d.Gateway(id)
	if err != nil {
		return nil, err
	}
	col, err := gw.GetOrCreateCollection(ctx, name)
	if err != nil {
		return nil, shared.PartitionFault(string(id), "GetOrCreateCollection", err)
	}
	return col, nil
}

// ExistingCollection returns a collection of a partition.
// The bool is false when the collection does not exist yet.
func (d *Directory) ExistingCollection(ctx context.Context, id fragment.PartitionID, name string) (Collection, bool, error) {
	gw, err := d.Gateway(id)
	if err != nil {
		return nil, false, err
	}
	col, err := gw.GetCollection(ctx, name)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, shared.PartitionFault(string(id), "GetCollection", err)
	}
	return col, true, nil
}

// Located is a record found in a specific partition.
type Located struct {
	Partition fragment.PartitionID
	Record    Record
}

// Find looks up a record by id in a collection of a single partition.
// The bool is false when the record (or its collection) does not exist.
func (d *Directory) Find(ctx context.Context, id fragment.PartitionID, collection, recordID string) (Record, bool, error) {
	col, ok, err := d.ExistingCollection(ctx, id, collection)
	if err != nil || !ok {
		return Record{}, false, err
	}
	rows, err := col.Get(ctx, recordID)
	if err != nil {
		return Record{}, false, shared.PartitionFault(string(id), "Get", err)
	}
	for _, r := range rows {
		if r.ID == recordID {
			return r.Clone(), true, nil
		}
	}
	return Record{}, false, nil
}

// Locate searches every partition of a domain for a record. A record found
// in more than one partition of the domain is reported as inconsistent state
// rather than resolved to either copy.
func (d *Directory) Locate(ctx context.Context, domain fragment.Domain, collection, recordID string) (Located, bool, error) {
	var found []Located
	for _, pid := range d.fragments.DomainPartitions(domain) {
		rec, ok, err := d.Find(ctx, pid, collection, recordID)
		if err != nil {
			return Located{}, false, err
		}
		if ok {
			found = append(found, Located{Partition: pid, Record: rec})
		}
	}
	switch len(found) {
	case 0:
		return Located{}, false, nil
	case 1:
		return found[0], true, nil
	}
	where := make([]string, len(found))
	for i, l := range found {
		where[i] = string(l.Partition)
	}
	return Located{}, false, shared.NewDomainError("partition", "Locate", shared.ErrInconsistentState,
		fmt.Sprintf("%s %s exists in several %s partitions: %s", collection, recordID, domain, strings.Join(where, ", ")))
}

// Close closes every gateway and joins their errors.
func (d *Directory) Close() error {
	var errs []error
	for id, gw := range d.gateways {
		if err := gw.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
