// Package partition defines the capability set the core needs from one
// physical partition, and the directory that maps every partition of the
// fragment map to an open gateway.
//
// Implementations live under internal/infrastructure/persistence. The core
// (resolver, sagas, read aggregator) depends only on the interfaces here.
package partition

import (
	"context"
	"encoding/json"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/pkg/textvec"
)

// Collection names used by the system.
const (
	CollectionStudents = "students"
	CollectionCourses  = "courses"
	CollectionExams    = "exams"
	CollectionPrograms = "programs"
	CollectionReviews  = "course_review"
)

// Metadata is the key/value payload attached to a record.
type Metadata map[string]any

// Clone returns a shallow copy of the metadata.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// With returns a copy of the metadata with key set to value.
func (m Metadata) With(key string, value any) Metadata {
	out := m.Clone()
	if out == nil {
		out = Metadata{}
	}
	out[key] = value
	return out
}

// Record is one document stored in a collection.
type Record struct {
	ID       string   `json:"id"`
	Document string   `json:"document"`
	Metadata Metadata `json:"metadata"`
}

// Clone returns a copy that does not share the metadata map.
func (r Record) Clone() Record {
	r.Metadata = r.Metadata.Clone()
	return r
}

// Update changes the document and/or metadata of an existing record.
// A nil field is left unchanged.
type Update struct {
	ID       string
	Document *string
	Metadata Metadata
}

// Match is a query result ranked by distance (lower is closer).
type Match struct {
	Record
	Distance float64 `json:"distance"`
}

// Collection is a named set of records inside one partition.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Add inserts records. Existing ids are overwritten.
	Add(ctx context.Context, records ...Record) error

	// Get returns the records with the given ids, skipping absent ones.
	// With no ids it returns every record in the collection.
	Get(ctx context.Context, ids ...string) ([]Record, error)

	// Update applies updates; it fails with shared.ErrNotFound if an id is absent.
	Update(ctx context.Context, updates ...Update) error

	// Delete removes records by id. Absent ids are ignored.
	Delete(ctx context.Context, ids ...string) error

	// Query returns up to k records ranked by similarity to text.
	Query(ctx context.Context, text string, k int) ([]Match, error)
}

// Gateway is the capability interface over one physical partition.
type Gateway interface {
	// Partition returns the partition this gateway serves.
	Partition() fragment.Partition

	// GetOrCreateCollection returns the named collection, creating it if needed.
	GetOrCreateCollection(ctx context.Context, name string) (Collection, error)

	// GetCollection returns the named collection or shared.ErrNotFound.
	GetCollection(ctx context.Context, name string) (Collection, error)

	// Close releases the gateway's resources.
	Close() error
}

// EncodeMetadata serialises metadata for stores that keep it as JSON.
func EncodeMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		m = Metadata{}
	}
	return json.Marshal(m)
}

// DecodeMetadata parses JSON metadata.
func DecodeMetadata(data []byte) (Metadata, error) {
	m := Metadata{}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// RankRecords orders rows by document similarity to text and keeps the k
// closest. Stores without native vector search share it.
func RankRecords(rows []Record, text string, k int) []Match {
	docs := make([]string, len(rows))
	for i, r := range rows {
		docs[i] = r.Document
	}
	ranked := textvec.Rank(text, docs, k)
	out := make([]Match, len(ranked))
	for i, s := range ranked {
		out[i] = Match{Record: rows[s.Index], Distance: s.Distance}
	}
	return out
}
