package query

import (
	"context"
	"strings"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
	"github.com/alem-hub/fragstore/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// NEAREST DOCUMENT QUERY
// Resolves (domain, study_year) to a partition and runs a similarity query
// against one of its collections.
// ══════════════════════════════════════════════════════════════════════════════

// Default and maximum result sizes.
const (
	DefaultNearestK = 1
	MaxNearestK     = 50
)

// NearestDocumentQuery contains the lookup parameters.
type NearestDocumentQuery struct {
	Domain     fragment.Domain
	StudyYear  any
	Collection string
	Text       string
	K          int
}

// Validate checks the parameters and applies defaults.
func (q *NearestDocumentQuery) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return shared.Validationf("search", "Nearest", "text is required")
	}
	if q.Collection == "" {
		q.Collection = partition.CollectionStudents
	}
	if q.K < 0 {
		return shared.Validationf("search", "Nearest", "k cannot be negative")
	}
	if q.K == 0 {
		q.K = DefaultNearestK
	}
	if q.K > MaxNearestK {
		q.K = MaxNearestK
	}
	return nil
}

// NearestDocumentResult lists the closest records.
type NearestDocumentResult struct {
	Partition  fragment.PartitionID `json:"partition"`
	Collection string               `json:"collection"`
	Matches    []partition.Match    `json:"matches"`
}

// NearestDocumentHandler handles NearestDocumentQuery.
type NearestDocumentHandler struct {
	dir      *partition.Directory
	resolver *fragment.Resolver
	log      *logger.Logger
}

// NewNearestDocumentHandler creates a new handler.
func NewNearestDocumentHandler(dir *partition.Directory, resolver *fragment.Resolver, log *logger.Logger) *NearestDocumentHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &NearestDocumentHandler{dir: dir, resolver: resolver, log: log}
}

// Handle executes the query.
func (h *NearestDocumentHandler) Handle(ctx context.Context, q NearestDocumentQuery) (*NearestDocumentResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	pid, _, err := h.resolver.ResolveValue(q.Domain, q.StudyYear)
	if err != nil {
		return nil, err
	}
	col, ok, err := h.dir.ExistingCollection(ctx, pid, q.Collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.NotFoundf("search", "Nearest", "collection %s not found in %s", q.Collection, pid)
	}
	matches, err := col.Query(ctx, q.Text, q.K)
	if err != nil {
		return nil, shared.PartitionFault(string(pid), "Query", err)
	}
	if matches == nil {
		matches = []partition.Match{}
	}
	h.log.Debug("nearest documents", logger.PartitionID(string(pid)), logger.Collection(q.Collection), logger.Int("matches", len(matches)))
	return &NearestDocumentResult{Partition: pid, Collection: q.Collection, Matches: matches}, nil
}
