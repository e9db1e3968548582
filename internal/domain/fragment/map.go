// Package fragment holds the static routing configuration of the system:
// physical partitions, the (domain, study-year range) rules that map onto them,
// and the resolver that classifies records and picks their partition.
//
// A Map is built once at start-up and never mutated. Every component that
// needs routing receives the same *Map by reference.
package fragment

import (
	"fmt"
	"sort"

	"github.com/alem-hub/fragstore/internal/domain/shared"
)

// Study year bounds shared by every domain.
const (
	MinStudyYear = 1
	MaxStudyYear = 4
)

// Domain is one vertical slice of a student's data.
type Domain string

const (
	// DomainAcademic holds scores and timestamps (and course reviews).
	DomainAcademic Domain = "academic"
	// DomainPersonal holds names and contact details (and courses, exams, programs).
	DomainPersonal Domain = "personal"
)

// Domains lists every domain in the fixed order sagas process them.
func Domains() []Domain {
	return []Domain{DomainAcademic, DomainPersonal}
}

// Other returns the opposite domain.
func (d Domain) Other() Domain {
	if d == DomainAcademic {
		return DomainPersonal
	}
	return DomainAcademic
}

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	return d == DomainAcademic || d == DomainPersonal
}

// ParseDomain converts a string into a Domain.
func ParseDomain(s string) (Domain, error) {
	d := Domain(s)
	if !d.Valid() {
		return "", shared.Validationf("fragment", "ParseDomain", "unknown domain %q", s)
	}
	return d, nil
}

// PartitionID identifies one physical partition as "<store>/<database>".
type PartitionID string

// Partition is one independently addressable physical store.
type Partition struct {
	ID       PartitionID
	Store    string
	Database string
	Host     string
	Port     int
}

// Address returns the network address in "host:port" format.
func (p Partition) Address() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// NewPartitionID builds the identifier of a store/database pair.
func NewPartitionID(store, database string) PartitionID {
	return PartitionID(store + "/" + database)
}

// Rule maps an inclusive study-year range of one domain to a partition.
type Rule struct {
	Domain    Domain
	MinYear   int
	MaxYear   int
	Partition PartitionID
}

// Covers reports whether year falls inside the rule's range.
func (r Rule) Covers(year int) bool {
	return year >= r.MinYear && year <= r.MaxYear
}

// Intersects reports whether the rule's range overlaps [lo, hi].
func (r Rule) Intersects(lo, hi int) bool {
	return r.MaxYear >= lo && r.MinYear <= hi
}

// Map is the immutable routing table.
type Map struct {
	tenant     string
	partitions map[PartitionID]Partition
	order      []PartitionID
	rules      map[Domain][]Rule
	domainOf   map[PartitionID]Domain
	// spans holds, per partition, the smallest year range covering all of
	// its rules.
	spans map[PartitionID]Rule
}

// NewMap validates and builds a routing table.
//
// For each domain the rules must cover every study year exactly once, and every
// partition must be referenced by rules of a single domain.
func NewMap(tenant string, partitions []Partition, rules []Rule) (*Map, error) {
	m := &Map{
		tenant:     tenant,
		partitions: make(map[PartitionID]Partition, len(partitions)),
		rules:      make(map[Domain][]Rule, 2),
		domainOf:   make(map[PartitionID]Domain, len(partitions)),
		spans:      make(map[PartitionID]Rule, len(partitions)),
	}

	for _, p := range partitions {
		if p.ID == "" {
			p.ID = NewPartitionID(p.Store, p.Database)
		}
		if _, dup := m.partitions[p.ID]; dup {
			return nil, fmt.Errorf("fragment: duplicate partition %s", p.ID)
		}
		m.partitions[p.ID] = p
		m.order = append(m.order, p.ID)
	}

	for _, r := range rules {
		if !r.Domain.Valid() {
			return nil, fmt.Errorf("fragment: rule for unknown domain %q", r.Domain)
		}
		if r.MinYear > r.MaxYear {
			return nil, fmt.Errorf("fragment: rule %s %d-%d has an empty range", r.Domain, r.MinYear, r.MaxYear)
		}
		if _, ok := m.partitions[r.Partition]; !ok {
			return nil, fmt.Errorf("fragment: rule %s %d-%d targets unknown partition %s", r.Domain, r.MinYear, r.MaxYear, r.Partition)
		}
		if d, seen := m.domainOf[r.Partition]; seen && d != r.Domain {
			return nil, fmt.Errorf("fragment: partition %s is shared by domains %s and %s", r.Partition, d, r.Domain)
		}
		m.domainOf[r.Partition] = r.Domain
		m.rules[r.Domain] = append(m.rules[r.Domain], r)

		span, seen := m.spans[r.Partition]
		if !seen {
			span = r
		}
		span.MinYear = min(span.MinYear, r.MinYear)
		span.MaxYear = max(span.MaxYear, r.MaxYear)
		m.spans[r.Partition] = span
	}

	for _, d := range Domains() {
		sort.Slice(m.rules[d], func(i, j int) bool { return m.rules[d][i].MinYear < m.rules[d][j].MinYear })
		if err := checkCoverage(d, m.rules[d]); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// checkCoverage verifies rules partition {MinStudyYear..MaxStudyYear} without gaps or overlap.
func checkCoverage(d Domain, rules []Rule) error {
	for year := MinStudyYear; year <= MaxStudyYear; year++ {
		hits := 0
		for _, r := range rules {
			if r.Covers(year) {
				hits++
			}
		}
		switch {
		case hits == 0:
			return fmt.Errorf("fragment: domain %s has no rule for study year %d", d, year)
		case hits > 1:
			return fmt.Errorf("fragment: domain %s has overlapping rules for study year %d", d, year)
		}
	}
	for _, r := range rules {
		if r.MinYear < MinStudyYear || r.MaxYear > MaxStudyYear {
			return fmt.Errorf("fragment: domain %s rule %d-%d leaves the study year range", d, r.MinYear, r.MaxYear)
		}
	}
	return nil
}

// DefaultMap returns the two-store, four-partition layout of the original deployment.
func DefaultMap() *Map {
	m, err := NewMap("tenant_user:user12",
		[]Partition{
			{Store: "DBVS1", Database: "db11", Host: "localhost", Port: 8000},
			{Store: "DBVS1", Database: "db12", Host: "localhost", Port: 8000},
			{Store: "DBVS2", Database: "db21", Host: "localhost", Port: 8001},
			{Store: "DBVS2", Database: "db22", Host: "localhost", Port: 8001},
		},
		[]Rule{
			{Domain: DomainAcademic, MinYear: 1, MaxYear: 2, Partition: "DBVS1/db11"},
			{Domain: DomainAcademic, MinYear: 3, MaxYear: 4, Partition: "DBVS1/db12"},
			{Domain: DomainPersonal, MinYear: 1, MaxYear: 2, Partition: "DBVS2/db21"},
			{Domain: DomainPersonal, MinYear: 3, MaxYear: 4, Partition: "DBVS2/db22"},
		},
	)
	if err != nil {
		panic(err)
	}
	return m
}

// Tenant returns the tenant every partition is addressed under.
func (m *Map) Tenant() string { return m.tenant }

// Partition looks up a partition by id.
func (m *Map) Partition(id PartitionID) (Partition, bool) {
	p, ok := m.partitions[id]
	return p, ok
}

// Partitions returns every partition in declaration order.
func (m *Map) Partitions() []Partition {
	out := make([]Partition, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.partitions[id])
	}
	return out
}

// Rules returns a copy of the rules of one domain ordered by MinYear.
func (m *Map) Rules(d Domain) []Rule {
	return append([]Rule(nil), m.rules[d]...)
}

// DomainPartitions returns the partitions of one domain ordered by year
// range, each once.
func (m *Map) DomainPartitions(d Domain) []PartitionID {
	out := make([]PartitionID, 0, len(m.rules[d]))
	seen := make(map[PartitionID]bool, len(m.rules[d]))
	for _, r := range m.rules[d] {
		if !seen[r.Partition] {
			seen[r.Partition] = true
			out = append(out, r.Partition)
		}
	}
	return out
}

// DomainOf returns the domain a partition serves.
func (m *Map) DomainOf(id PartitionID) (Domain, bool) {
	d, ok := m.domainOf[id]
	return d, ok
}

// ruleFor returns the combined year span of a partition's rules.
func (m *Map) ruleFor(id PartitionID) (Rule, bool) {
	r, ok := m.spans[id]
	return r, ok
}

// Paired returns the partition of the other domain whose rules span the same
// study years. A partition may be named by several adjacent rules.
func (m *Map) Paired(id PartitionID) (PartitionID, error) {
	r, ok := m.ruleFor(id)
	if !ok {
		return "", shared.NewDomainError("fragment", "Paired", shared.ErrRouting, fmt.Sprintf("partition %s has no rule", id))
	}
	for _, pid := range m.DomainPartitions(r.Domain.Other()) {
		other := m.spans[pid]
		if other.MinYear == r.MinYear && other.MaxYear == r.MaxYear {
			return pid, nil
		}
	}
	return "", shared.NewDomainError("fragment", "Paired", shared.ErrRouting,
		fmt.Sprintf("no %s partition serves years %d-%d", r.Domain.Other(), r.MinYear, r.MaxYear))
}

// YearRange returns the smallest study-year range covering every rule of a
// partition.
func (m *Map) YearRange(id PartitionID) (lo, hi int, ok bool) {
	r, ok := m.ruleFor(id)
	if !ok {
		return 0, 0, false
	}
	return r.MinYear, r.MaxYear, true
}
