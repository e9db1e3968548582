package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/fragstore/internal/application/command"
	"github.com/alem-hub/fragstore/internal/application/query"
	"github.com/alem-hub/fragstore/internal/application/saga"
	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/infrastructure/idgen"
	"github.com/alem-hub/fragstore/internal/testutil"
	"github.com/alem-hub/fragstore/pkg/logger"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

type testAPI struct {
	cluster *testutil.Cluster
	handler http.Handler
}

func newTestAPI(t *testing.T, hashes ...string) *testAPI {
	t.Helper()
	m := fragment.DefaultMap()
	c := testutil.NewCluster(m)
	r := fragment.NewResolver(m)
	log := logger.Discard()

	cfg := DefaultConfig()
	cfg.APIKeyHashes = hashes
	s, err := NewServer(cfg, Dependencies{
		InsertStudent:   saga.NewInsertStudentSaga(c.Dir, r, idgen.NewScanAllocator(c.Dir), log),
		DeleteStudent:   saga.NewDeleteStudentSaga(c.Dir, log),
		UpgradeYear:     saga.NewUpgradeYearSaga(c.Dir, r, log),
		DeleteCourse:    saga.NewDeleteCourseSaga(c.Dir, log),
		MoveCourse:      saga.NewMoveCourseSaga(c.Dir, r, log),
		AddReview:       command.NewAddReviewHandler(c.Dir, idgen.UUIDGenerator{}, log),
		ListStudents:    query.NewListStudentsHandler(c.Dir, log),
		NearestDocument: query.NewNearestDocumentHandler(c.Dir, r, log),
		Fragments:       m,
		Logger:          log,
	})
	require.NoError(t, err)
	return &testAPI{cluster: c, handler: s.Handler()}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, header ...string) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func studentBody(year int) map[string]any {
	return map[string]any{
		"document": "Ada profile",
		"metadata": map[string]any{
			"name": "Ada", "surname": "Lovelace", "email": "ada@example.com",
			"final_score": 10, "study_year": year,
		},
	}
}

func TestAPI_InsertListDelete(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(t, http.MethodPost, "/api/v1/students", studentBody(3))
	require.Equal(t, http.StatusCreated, code)
	var inserted saga.InsertStudentResult
	require.NoError(t, json.Unmarshal(resp.Data, &inserted))
	assert.Equal(t, "1", inserted.StudentID)
	assert.Equal(t, fragment.PartitionID("DBVS1/db12"), inserted.Academic)

	code, resp = api.do(t, http.MethodGet, "/api/v1/students?start_year=3&end_year=4", nil)
	require.Equal(t, http.StatusOK, code)
	var listed query.ListStudentsResult
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	require.Equal(t, 1, listed.Count)
	assert.Equal(t, "Ada", *listed.Students[0].Name)

	code, _ = api.do(t, http.MethodDelete, "/api/v1/students/1", nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp = api.do(t, http.MethodDelete, "/api/v1/students/1", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", resp.Error.Code)
}

func TestAPI_ValidationErrors(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(t, http.MethodPost, "/api/v1/students", studentBody(7))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", resp.Error.Code)

	code, _ = api.do(t, http.MethodGet, "/api/v1/students?start_year=x&end_year=2", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodGet, "/api/v1/students?start_year=3&end_year=1", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, http.MethodGet, "/api/v1/search?domain=finance&study_year=1&text=x", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_PartitionFailureIsBadGateway(t *testing.T) {
	api := newTestAPI(t)
	api.cluster.Gateways["DBVS2/db21"].Fail(testutil.Fault{Collection: partition.CollectionStudents, Op: testutil.OpAdd})

	code, resp := api.do(t, http.MethodPost, "/api/v1/students", studentBody(1))
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "partition_error", resp.Error.Code)
	assert.Empty(t, api.cluster.Records("DBVS1/db11", partition.CollectionStudents))
}

func TestAPI_FailedRollbackReportsPartitions(t *testing.T) {
	api := newTestAPI(t)
	api.cluster.Gateways["DBVS2/db21"].Fail(testutil.Fault{Collection: partition.CollectionStudents, Op: testutil.OpAdd})
	api.cluster.Gateways["DBVS1/db11"].Fail(testutil.Fault{Collection: partition.CollectionStudents, Op: testutil.OpDelete})

	code, resp := api.do(t, http.MethodPost, "/api/v1/students", studentBody(1))
	assert.Equal(t, http.StatusInternalServerError, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "inconsistent_partitions", resp.Error.Code)
	assert.Equal(t, []fragment.PartitionID{"DBVS1/db11"}, resp.Error.Partitions)
}

func TestAPI_InconsistentStateIsConflict(t *testing.T) {
	api := newTestAPI(t)
	api.cluster.Seed("DBVS1/db11", partition.CollectionStudents, partition.Record{
		ID: "4", Metadata: partition.Metadata{"study_year": 1},
	})
	api.cluster.Seed("DBVS2/db21", partition.CollectionStudents, partition.Record{
		ID: "4", Metadata: partition.Metadata{"study_year": 2, "name": "a", "surname": "b", "email": "a@b"},
	})

	code, resp := api.do(t, http.MethodPost, "/api/v1/students/4/upgrade", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "inconsistent_state", resp.Error.Code)
}

func TestAPI_CourseEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.cluster.Seed("DBVS2/db21", partition.CollectionCourses, partition.Record{ID: "5", Document: "Algorithms"})

	code, resp := api.do(t, http.MethodPost, "/api/v1/courses/5/reviews", map[string]any{"text": "great"})
	require.Equal(t, http.StatusCreated, code)
	var review command.AddReviewResult
	require.NoError(t, json.Unmarshal(resp.Data, &review))
	assert.Equal(t, fragment.PartitionID("DBVS1/db11"), review.Partition)

	code, resp = api.do(t, http.MethodPost, "/api/v1/courses/5/upgrade", nil)
	require.Equal(t, http.StatusOK, code)
	var moved saga.MoveCourseResult
	require.NoError(t, json.Unmarshal(resp.Data, &moved))
	assert.Equal(t, fragment.PartitionID("DBVS2/db22"), moved.To)
	assert.Equal(t, 1, moved.MovedReviews)

	code, _ = api.do(t, http.MethodPost, "/api/v1/courses/5/move", map[string]any{"target": "DBVS1/db11"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = api.do(t, http.MethodDelete, "/api/v1/courses/5", nil)
	require.Equal(t, http.StatusOK, code)
	var deleted saga.DeleteCourseResult
	require.NoError(t, json.Unmarshal(resp.Data, &deleted))
	assert.Equal(t, 1, deleted.DeletedReviews)
}

func TestAPI_SearchAndFragments(t *testing.T) {
	api := newTestAPI(t)
	api.cluster.Seed("DBVS2/db21", partition.CollectionStudents,
		partition.Record{ID: "1", Document: "loves databases"},
		partition.Record{ID: "2", Document: "plays violin"},
	)

	code, resp := api.do(t, http.MethodGet, "/api/v1/search?domain=personal&study_year=2&text=violin&k=1", nil)
	require.Equal(t, http.StatusOK, code)
	var found query.NearestDocumentResult
	require.NoError(t, json.Unmarshal(resp.Data, &found))
	require.Len(t, found.Matches, 1)
	assert.Equal(t, "2", found.Matches[0].ID)

	code, resp = api.do(t, http.MethodGet, "/api/v1/fragments", nil)
	require.Equal(t, http.StatusOK, code)
	var file fragment.File
	require.NoError(t, json.Unmarshal(resp.Data, &file))
	assert.Equal(t, "tenant_user:user12", file.Tenant)
	assert.Len(t, file.Rules, 4)

	code, _ = api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAPI_WritesRequireKeyWhenConfigured(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("k1"), bcrypt.MinCost)
	require.NoError(t, err)
	api := newTestAPI(t, string(hash))

	code, _ := api.do(t, http.MethodPost, "/api/v1/students", studentBody(1))
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = api.do(t, http.MethodPost, "/api/v1/students", studentBody(1), "X-API-Key", "k1")
	assert.Equal(t, http.StatusCreated, code)

	code, _ = api.do(t, http.MethodGet, "/api/v1/students", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAPI_MalformedBody(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/students", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
