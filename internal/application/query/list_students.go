// Package query contains read operations. Queries never modify state.
package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
	"github.com/alem-hub/fragstore/internal/domain/student"
	"github.com/alem-hub/fragstore/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS QUERY
// Full-scans every partition's students collection, merges the two domain
// copies by id (personal fields win), and renders a fixed field set.
// ══════════════════════════════════════════════════════════════════════════════

// ListStudentsQuery optionally restricts the listing to a study-year range.
type ListStudentsQuery struct {
	// StartYear and EndYear bound the range inclusively. Both nil lists everyone.
	StartYear *int
	EndYear   *int
}

// Validate checks the range.
func (q ListStudentsQuery) Validate() error {
	if (q.StartYear == nil) != (q.EndYear == nil) {
		return shared.Validationf("student", "List", "start_year and end_year must be given together")
	}
	if q.StartYear == nil {
		return nil
	}
	lo, hi := *q.StartYear, *q.EndYear
	if lo < fragment.MinStudyYear || hi > fragment.MaxStudyYear || lo > hi {
		return shared.Validationf("student", "List", "year range %d-%d must lie within %d-%d",
			lo, hi, fragment.MinStudyYear, fragment.MaxStudyYear)
	}
	return nil
}

func (q ListStudentsQuery) bounds() (int, int) {
	if q.StartYear == nil {
		return fragment.MinStudyYear, fragment.MaxStudyYear
	}
	return *q.StartYear, *q.EndYear
}

// StudentView is the merged view of one student. Absent values are nil.
type StudentView struct {
	ID         string   `json:"id"`
	Document   *string  `json:"document"`
	StudentID  *string  `json:"student_id"`
	Name       *string  `json:"name"`
	Surname    *string  `json:"surname"`
	Email      *string  `json:"email"`
	StudyYear  *int     `json:"study_year"`
	FinalScore *float64 `json:"final_score"`
	Timestamp  *string  `json:"timestamp"`

	// Sources lists the partitions a copy was found in, academic first.
	Sources []fragment.PartitionID `json:"sources"`

	// Conflicts lists metadata keys on which the two copies disagree.
	Conflicts []string `json:"conflicts,omitempty"`
}

// ListStudentsResult is the merged listing.
type ListStudentsResult struct {
	Range    string        `json:"range"`
	Count    int           `json:"count"`
	Students []StudentView `json:"students"`
}

// ListStudentsHandler handles ListStudentsQuery.
type ListStudentsHandler struct {
	dir *partition.Directory
	log *logger.Logger
}

// NewListStudentsHandler creates a new handler.
func NewListStudentsHandler(dir *partition.Directory, log *logger.Logger) *ListStudentsHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &ListStudentsHandler{dir: dir, log: log}
}

type mergedStudent struct {
	id       string
	academic *partition.Record
	personal *partition.Record
	sources  []fragment.PartitionID
}

// Handle executes the query.
func (h *ListStudentsHandler) Handle(ctx context.Context, q ListStudentsQuery) (*ListStudentsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	lo, hi := q.bounds()

	merged := make(map[string]*mergedStudent)
	for _, d := range fragment.Domains() {
		for _, rule := range h.dir.Map().Rules(d) {
			if !rule.Intersects(lo, hi) {
				continue
			}
			rows, err := h.scan(ctx, rule.Partition)
			if err != nil {
				return nil, err
			}
			for _, r := range rows {
				m, ok := merged[r.ID]
				if !ok {
					m = &mergedStudent{id: r.ID}
					merged[r.ID] = m
				}
				rec := r
				if d == fragment.DomainAcademic {
					m.academic = &rec
				} else {
					m.personal = &rec
				}
				m.sources = append(m.sources, rule.Partition)
			}
		}
	}

	views := make([]StudentView, 0, len(merged))
	for _, m := range merged {
		if !inRange(m, lo, hi) {
			continue
		}
		views = append(views, render(m))
	}
	sort.Slice(views, func(i, j int) bool { return lessID(views[i].ID, views[j].ID) })

	h.log.Debug("students listed", logger.Int("count", len(views)), logger.String("range", fmt.Sprintf("%d-%d", lo, hi)))
	return &ListStudentsResult{
		Range:    fmt.Sprintf("%d-%d", lo, hi),
		Count:    len(views),
		Students: views,
	}, nil
}

func (h *ListStudentsHandler) scan(ctx context.Context, pid fragment.PartitionID) ([]partition.Record, error) {
	col, ok, err := h.dir.ExistingCollection(ctx, pid, partition.CollectionStudents)
	if err != nil || !ok {
		return nil, err
	}
	rows, err := col.Get(ctx)
	if err != nil {
		return nil, shared.PartitionFault(string(pid), "Get", err)
	}
	return rows, nil
}

// inRange keeps a student if either copy's study year lies in [lo, hi].
func inRange(m *mergedStudent, lo, hi int) bool {
	for _, r := range []*partition.Record{m.academic, m.personal} {
		if r == nil {
			continue
		}
		if year, err := student.StudyYearOf(r.Metadata); err == nil && year >= lo && year <= hi {
			return true
		}
	}
	return false
}

func render(m *mergedStudent) StudentView {
	meta := partition.Metadata{}
	var doc *string
	if m.academic != nil {
		for k, v := range m.academic.Metadata {
			meta[k] = v
		}
		if d := m.academic.Document; d != "" {
			doc = &d
		}
	}
	if m.personal != nil {
		for k, v := range m.personal.Metadata {
			meta[k] = v
		}
		if d := m.personal.Document; d != "" {
			doc = &d
		}
	}

	v := StudentView{
		ID:         m.id,
		Document:   doc,
		StudentID:  optString(meta[student.KeyStudentID]),
		Name:       optString(meta[student.KeyName]),
		Surname:    optString(meta[student.KeySurname]),
		Email:      optString(meta[student.KeyEmail]),
		FinalScore: optFloat(meta[student.KeyFinalScore]),
		Timestamp:  optString(meta[student.KeyTimestamp]),
		Sources:    m.sources,
	}
	if year, err := student.StudyYearOf(meta); err == nil {
		v.StudyYear = &year
	}
	if m.academic != nil && m.personal != nil {
		v.Conflicts = conflicts(m.academic.Metadata, m.personal.Metadata)
	}
	return v
}

// conflicts returns the shared keys whose values differ, sorted.
func conflicts(a, b partition.Metadata) []string {
	var out []string
	for k, va := range a {
		vb, ok := b[k]
		if !ok {
			continue
		}
		if student.IDString(va) != student.IDString(vb) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func optString(v any) *string {
	if v == nil {
		return nil
	}
	s := student.IDString(v)
	return &s
}

func optFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	default:
		return nil
	}
	return &f
}

// lessID orders numeric ids by value, before any non-numeric id.
func lessID(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
