package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
	"github.com/alem-hub/fragstore/internal/testutil"
)

func intp(v int) *int { return &v }

func seedPair(c *testutil.Cluster, id string, year int, name string) {
	academicPID, personalPID := fragment.PartitionID("DBVS1/db11"), fragment.PartitionID("DBVS2/db21")
	if year > 2 {
		academicPID, personalPID = "DBVS1/db12", "DBVS2/db22"
	}
	c.Seed(academicPID, partition.CollectionStudents, partition.Record{
		ID: id, Document: "academic " + id,
		Metadata: partition.Metadata{"final_score": 8.0, "timestamp": "2025-01-01T00:00:00Z", "study_year": year},
	})
	c.Seed(personalPID, partition.CollectionStudents, partition.Record{
		ID: id, Document: "personal " + id,
		Metadata: partition.Metadata{"student_id": id, "name": name, "surname": "S", "email": name + "@x.io", "study_year": year},
	})
}

func TestListStudents_MergesDomains(t *testing.T) {
	c := testutil.NewCluster(fragment.DefaultMap())
	seedPair(c, "2", 3, "bob")
	seedPair(c, "10", 1, "carl")
	seedPair(c, "1", 2, "ann")

	res, err := NewListStudentsHandler(c.Dir, nil).Handle(context.Background(), ListStudentsQuery{})
	require.NoError(t, err)
	require.Equal(t, 3, res.Count)
	assert.Equal(t, "1-4", res.Range)

	ids := []string{res.Students[0].ID, res.Students[1].ID, res.Students[2].ID}
	assert.Equal(t, []string{"1", "2", "10"}, ids)

	ann := res.Students[0]
	require.NotNil(t, ann.Name)
	assert.Equal(t, "ann", *ann.Name)
	require.NotNil(t, ann.FinalScore)
	assert.Equal(t, 8.0, *ann.FinalScore)
	require.NotNil(t, ann.StudyYear)
	assert.Equal(t, 2, *ann.StudyYear)
	require.NotNil(t, ann.Document)
	assert.Equal(t, "personal 1", *ann.Document)
	assert.Equal(t, []fragment.PartitionID{"DBVS1/db11", "DBVS2/db21"}, ann.Sources)
	assert.Empty(t, ann.Conflicts)
}

func TestListStudents_YearRange(t *testing.T) {
	c := testutil.NewCluster(fragment.DefaultMap())
	seedPair(c, "1", 1, "ann")
	seedPair(c, "2", 2, "bob")
	seedPair(c, "3", 4, "carl")

	res, err := NewListStudentsHandler(c.Dir, nil).Handle(context.Background(),
		ListStudentsQuery{StartYear: intp(2), EndYear: intp(4)})
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, "2", res.Students[0].ID)
	assert.Equal(t, "3", res.Students[1].ID)
	assert.Equal(t, "2-4", res.Range)
}

func TestListStudents_HalfRecordAndConflicts(t *testing.T) {
	c := testutil.NewCluster(fragment.DefaultMap())
	c.Seed("DBVS1/db11", partition.CollectionStudents, partition.Record{
		ID: "7", Metadata: partition.Metadata{"final_score": 5.0, "study_year": 1},
	})
	c.Seed("DBVS1/db11", partition.CollectionStudents, partition.Record{
		ID: "8", Metadata: partition.Metadata{"final_score": 6.0, "study_year": 2},
	})
	c.Seed("DBVS2/db21", partition.CollectionStudents, partition.Record{
		ID: "8", Metadata: partition.Metadata{"name": "eve", "surname": "E", "email": "e@x.io", "study_year": 1},
	})

	res, err := NewListStudentsHandler(c.Dir, nil).Handle(context.Background(), ListStudentsQuery{})
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)

	half := res.Students[0]
	assert.Equal(t, "7", half.ID)
	assert.Nil(t, half.Name)
	assert.Nil(t, half.Email)
	assert.Nil(t, half.Document)
	assert.Equal(t, []fragment.PartitionID{"DBVS1/db11"}, half.Sources)

	both := res.Students[1]
	assert.Equal(t, []string{"study_year"}, both.Conflicts)
	require.NotNil(t, both.StudyYear)
	assert.Equal(t, 1, *both.StudyYear)
}

func TestListStudents_EmptyCluster(t *testing.T) {
	c := testutil.NewCluster(fragment.DefaultMap())

	res, err := NewListStudentsHandler(c.Dir, nil).Handle(context.Background(), ListStudentsQuery{})
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.NotNil(t, res.Students)
}

func TestListStudents_InvalidRange(t *testing.T) {
	h := NewListStudentsHandler(testutil.NewCluster(fragment.DefaultMap()).Dir, nil)

	for name, q := range map[string]ListStudentsQuery{
		"only start": {StartYear: intp(1)},
		"reversed":   {StartYear: intp(3), EndYear: intp(2)},
		"below":      {StartYear: intp(0), EndYear: intp(2)},
		"above":      {StartYear: intp(1), EndYear: intp(5)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), q)
			assert.True(t, shared.IsValidation(err), "got %v", err)
		})
	}
}

func TestListStudents_PartitionFailure(t *testing.T) {
	c := testutil.NewCluster(fragment.DefaultMap())
	seedPair(c, "1", 3, "ann")
	c.Gateways["DBVS2/db22"].Fail(testutil.Fault{Op: testutil.OpGet})

	_, err := NewListStudentsHandler(c.Dir, nil).Handle(context.Background(), ListStudentsQuery{})
	require.Error(t, err)
	assert.True(t, shared.IsPartition(err))
	assert.ErrorIs(t, err, testutil.ErrInjected)
}

func TestListStudents_SkipsPartitionsOutsideRange(t *testing.T) {
	c := testutil.NewCluster(fragment.DefaultMap())
	seedPair(c, "1", 1, "ann")
	c.Gateways["DBVS1/db12"].Fail(testutil.Fault{Op: testutil.OpGet})
	c.Gateways["DBVS2/db22"].Fail(testutil.Fault{Op: testutil.OpGet})

	res, err := NewListStudentsHandler(c.Dir, nil).Handle(context.Background(),
		ListStudentsQuery{StartYear: intp(1), EndYear: intp(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}
