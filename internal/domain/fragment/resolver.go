package fragment

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alem-hub/fragstore/internal/domain/shared"
)

// Discriminant metadata keys.
const (
	// AcademicKey marks a payload as carrying academic data.
	AcademicKey = "final_score"
	// StudyYearKey is the horizontal partitioning attribute.
	StudyYearKey = "study_year"
)

// PersonalKeys must all be present for a payload to carry personal data.
var PersonalKeys = []string{"name", "surname", "email"}

// Classification is the set of domains a payload carries data for.
type Classification struct {
	Academic bool
	Personal bool
}

// Both reports whether the payload requires a write to both domains.
func (c Classification) Both() bool { return c.Academic && c.Personal }

// Domains returns the classified domains in saga order.
func (c Classification) Domains() []Domain {
	var out []Domain
	if c.Academic {
		out = append(out, DomainAcademic)
	}
	if c.Personal {
		out = append(out, DomainPersonal)
	}
	return out
}

// Primary returns the domain chosen by precedence (academic first).
// Callers that write students must check Both() instead.
func (c Classification) Primary() Domain {
	if c.Academic {
		return DomainAcademic
	}
	return DomainPersonal
}

// Resolver classifies records and routes them to partitions.
type Resolver struct {
	fragments *Map
}

// NewResolver creates a resolver over the given routing table.
func NewResolver(m *Map) *Resolver {
	return &Resolver{fragments: m}
}

// Map returns the routing table the resolver reads.
func (r *Resolver) Map() *Map { return r.fragments }

// Classify determines which domains a metadata payload belongs to.
func (r *Resolver) Classify(metadata map[string]any) (Classification, error) {
	var c Classification
	if _, ok := metadata[AcademicKey]; ok {
		c.Academic = true
	}
	c.Personal = true
	for _, k := range PersonalKeys {
		if _, ok := metadata[k]; !ok {
			c.Personal = false
			break
		}
	}
	if !c.Academic && !c.Personal {
		return c, shared.WrapError("fragment", "Classify", shared.ErrUnclassifiable,
			fmt.Sprintf("metadata needs %q or all of %s", AcademicKey, strings.Join(PersonalKeys, ", ")), nil)
	}
	return c, nil
}

// Resolve returns the partition that stores year for the given domain.
func (r *Resolver) Resolve(d Domain, year int) (PartitionID, error) {
	if !d.Valid() {
		return "", shared.Validationf("fragment", "Resolve", "unknown domain %q", d)
	}
	if year < MinStudyYear || year > MaxStudyYear {
		return "", shared.Validationf("fragment", "Resolve", "study_year %d outside %d-%d", year, MinStudyYear, MaxStudyYear)
	}
	for _, rule := range r.fragments.rules[d] {
		if rule.Covers(year) {
			return rule.Partition, nil
		}
	}
	return "", shared.NewDomainError("fragment", "Resolve", shared.ErrRouting,
		fmt.Sprintf("no %s fragment for study_year %d", d, year))
}

// ResolveValue validates a raw study_year value and resolves it.
func (r *Resolver) ResolveValue(d Domain, raw any) (PartitionID, int, error) {
	year, err := ParseStudyYear(raw)
	if err != nil {
		return "", 0, err
	}
	id, err := r.Resolve(d, year)
	return id, year, err
}

// ParseStudyYear converts a metadata value to a study year in 1..4.
func ParseStudyYear(raw any) (int, error) {
	var year int
	switch v := raw.(type) {
	case nil:
		return 0, shared.Validationf("fragment", "ParseStudyYear", "study_year is required")
	case int:
		year = v
	case int32:
		year = int(v)
	case int64:
		year = int(v)
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, shared.Validationf("fragment", "ParseStudyYear", "study_year %v is not an integer", v)
		}
		year = int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, shared.Validationf("fragment", "ParseStudyYear", "study_year %q is not an integer", v.String())
		}
		year = int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, shared.Validationf("fragment", "ParseStudyYear", "study_year %q is not an integer", v)
		}
		year = n
	default:
		return 0, shared.Validationf("fragment", "ParseStudyYear", "study_year has unsupported type %T", raw)
	}
	if year < MinStudyYear || year > MaxStudyYear {
		return 0, shared.Validationf("fragment", "ParseStudyYear", "study_year %d outside %d-%d", year, MinStudyYear, MaxStudyYear)
	}
	return year, nil
}
