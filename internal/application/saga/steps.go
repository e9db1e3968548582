package saga

import (
	"context"
	"fmt"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// IDAllocator hands out identifiers for new student records.
type IDAllocator interface {
	// NextID returns an identifier no other caller has received.
	NextID(ctx context.Context) (string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// STEP BUILDERS
// ══════════════════════════════════════════════════════════════════════════════

// addStep writes rec into a collection; the compensation deletes it again.
func addStep(dir *partition.Directory, pid fragment.PartitionID, collection string, rec partition.Record) Step {
	rec = rec.Clone()
	return Step{
		Name:      fmt.Sprintf("add_%s_%s", collection, rec.ID),
		Partition: pid,
		Forward: func(ctx context.Context) error {
			col, err := dir.Collection(ctx, pid, collection)
			if err != nil {
				return err
			}
			return col.Add(ctx, rec)
		},
		Compensate: func(ctx context.Context) error {
			col, err := dir.Collection(ctx, pid, collection)
			if err != nil {
				return err
			}
			return col.Delete(ctx, rec.ID)
		},
	}
}

// deleteStep removes snapshot from a collection; the compensation re-adds it.
func deleteStep(dir *partition.Directory, pid fragment.PartitionID, collection string, snapshot partition.Record) Step {
	snapshot = snapshot.Clone()
	return Step{
		Name:      fmt.Sprintf("delete_%s_%s", collection, snapshot.ID),
		Partition: pid,
		Forward: func(ctx context.Context) error {
			col, err := dir.Collection(ctx, pid, collection)
			if err != nil {
				return err
			}
			return col.Delete(ctx, snapshot.ID)
		},
		Compensate: func(ctx context.Context) error {
			col, err := dir.Collection(ctx, pid, collection)
			if err != nil {
				return err
			}
			return col.Add(ctx, snapshot)
		},
	}
}

// deleteManyStep removes every snapshot in one call; the compensation re-adds them all.
func deleteManyStep(dir *partition.Directory, pid fragment.PartitionID, collection string, snapshots []partition.Record) Step {
	ids := make([]string, len(snapshots))
	saved := make([]partition.Record, len(snapshots))
	for i, r := range snapshots {
		ids[i] = r.ID
		saved[i] = r.Clone()
	}
	return Step{
		Name:      fmt.Sprintf("delete_%s", collection),
		Partition: pid,
		Forward: func(ctx context.Context) error {
			col, err := dir.Collection(ctx, pid, collection)
			if err != nil {
				return err
			}
			return col.Delete(ctx, ids...)
		},
		Compensate: func(ctx context.Context) error {
			col, err := dir.Collection(ctx, pid, collection)
			if err != nil {
				return err
			}
			return col.Add(ctx, saved...)
		},
	}
}

// updateStep replaces the metadata of before with after; the compensation
// restores the prior metadata.
func updateStep(dir *partition.Directory, pid fragment.PartitionID, collection string, before partition.Record, after partition.Metadata) Step {
	prior := before.Metadata.Clone()
	next := after.Clone()
	id := before.ID
	return Step{
		Name:      fmt.Sprintf("update_%s_%s", collection, id),
		Partition: pid,
		Forward: func(ctx context.Context) error {
			col, err := dir.Collection(ctx, pid, collection)
			if err != nil {
				return err
			}
			return col.Update(ctx, partition.Update{ID: id, Metadata: next})
		},
		Compensate: func(ctx context.Context) error {
			col, err := dir.Collection(ctx, pid, collection)
			if err != nil {
				return err
			}
			return col.Update(ctx, partition.Update{ID: id, Metadata: prior})
		},
	}
}

// moveSteps relocates snapshot from one partition to another as two steps:
// add to target, then delete from source.
func moveSteps(dir *partition.Directory, from, to fragment.PartitionID, collection string, snapshot partition.Record) []Step {
	return []Step{
		addStep(dir, to, collection, snapshot),
		deleteStep(dir, from, collection, snapshot),
	}
}
