package fragment

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/fragstore/internal/domain/shared"
)

func TestResolver_Classify(t *testing.T) {
	r := NewResolver(DefaultMap())

	tests := []struct {
		name     string
		metadata map[string]any
		academic bool
		personal bool
		wantErr  bool
	}{
		{"academic", map[string]any{"final_score": 90, "study_year": 1}, true, false, false},
		{"personal", map[string]any{"name": "A", "surname": "B", "email": "a@b"}, false, true, false},
		{"both", map[string]any{"final_score": 1, "name": "A", "surname": "B", "email": "a@b"}, true, true, false},
		{"partial personal", map[string]any{"name": "A", "surname": "B"}, false, false, true},
		{"empty", map[string]any{}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := r.Classify(tt.metadata)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, shared.ErrUnclassifiable)
				assert.True(t, shared.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.academic, c.Academic)
			assert.Equal(t, tt.personal, c.Personal)
			assert.Equal(t, tt.academic && tt.personal, c.Both())
		})
	}
}

func TestClassification_DomainsOrder(t *testing.T) {
	c := Classification{Academic: true, Personal: true}
	assert.Equal(t, []Domain{DomainAcademic, DomainPersonal}, c.Domains())
	assert.Equal(t, DomainAcademic, c.Primary())
	assert.Equal(t, DomainPersonal, Classification{Personal: true}.Primary())
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(DefaultMap())

	got, err := r.Resolve(DomainAcademic, 2)
	require.NoError(t, err)
	assert.Equal(t, PartitionID("DBVS1/db11"), got)

	got, err = r.Resolve(DomainPersonal, 3)
	require.NoError(t, err)
	assert.Equal(t, PartitionID("DBVS2/db22"), got)

	_, err = r.Resolve(DomainAcademic, 5)
	assert.True(t, shared.IsValidation(err))

	_, err = r.Resolve(DomainAcademic, 0)
	assert.True(t, shared.IsValidation(err))

	_, err = r.Resolve("finance", 1)
	assert.True(t, shared.IsValidation(err))
}

func TestResolver_ResolveValue(t *testing.T) {
	r := NewResolver(DefaultMap())

	id, year, err := r.ResolveValue(DomainPersonal, float64(4))
	require.NoError(t, err)
	assert.Equal(t, 4, year)
	assert.Equal(t, PartitionID("DBVS2/db22"), id)

	_, _, err = r.ResolveValue(DomainPersonal, "x")
	assert.True(t, shared.IsValidation(err))
}

func TestParseStudyYear(t *testing.T) {
	valid := []any{1, int32(2), int64(3), float64(4), json.Number("2"), " 3 "}
	for _, v := range valid {
		_, err := ParseStudyYear(v)
		assert.NoError(t, err, "%#v", v)
	}

	invalid := []any{nil, 0, 5, 2.5, "two", json.Number("1.5"), true, []int{1}}
	for _, v := range invalid {
		_, err := ParseStudyYear(v)
		assert.True(t, shared.IsValidation(err), "%#v", v)
	}
}

// TestProperty_ResolveExhaustive checks that for every valid study year and
// domain exactly one rule covers the year and Resolve returns its partition.
func TestProperty_ResolveExhaustive(t *testing.T) {
	m := DefaultMap()
	r := NewResolver(m)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("resolve returns exactly one partition", prop.ForAll(
		func(year int, academic bool) bool {
			d := DomainPersonal
			if academic {
				d = DomainAcademic
			}

			id, err := r.Resolve(d, year)
			if err != nil {
				return false
			}

			hits := 0
			for _, rule := range m.Rules(d) {
				if rule.Covers(year) {
					hits++
					if rule.Partition != id {
						return false
					}
				}
			}
			owner, ok := m.DomainOf(id)
			return hits == 1 && ok && owner == d
		},
		gen.IntRange(MinStudyYear, MaxStudyYear),
		gen.Bool(),
	))

	properties.Property("years outside 1..4 are rejected", prop.ForAll(
		func(year int) bool {
			if year >= MinStudyYear && year <= MaxStudyYear {
				return true
			}
			_, err := r.Resolve(DomainAcademic, year)
			return shared.IsValidation(err)
		},
		gen.IntRange(-100, 100),
	))

	properties.TestingRun(t)
}
