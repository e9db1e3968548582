package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/alem-hub/fragstore/internal/application/command"
	"github.com/alem-hub/fragstore/internal/application/query"
	"github.com/alem-hub/fragstore/internal/application/saga"
	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/shared"
	"github.com/alem-hub/fragstore/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & ROUTING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports every registered check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	status.Version = s.config.Version
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status, nil)
		return
	}
	writeJSON(w, r, http.StatusOK, status, nil)
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		}, nil)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"}, nil)
}

// handleFragments handles GET /api/v1/fragments.
func (s *Server) handleFragments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Fragments == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Fragment map not configured")
		return
	}
	writeJSON(w, r, http.StatusOK, s.deps.Fragments.File(), nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type insertStudentRequest struct {
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata"`
}

// handleInsertStudent handles POST /api/v1/students.
func (s *Server) handleInsertStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.InsertStudent == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Insert not configured")
		return
	}
	var req insertStudentRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.deps.InsertStudent.Execute(r.Context(), saga.InsertStudentInput{
		Document: req.Document,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.writeDomainError(w, r, "insert student", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, result, nil)
}

// handleDeleteStudent handles DELETE /api/v1/students/{id}.
func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.DeleteStudent == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Delete not configured")
		return
	}
	result, err := s.deps.DeleteStudent.Execute(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, "delete student", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result, nil)
}

// handleUpgradeStudent handles POST /api/v1/students/{id}/upgrade.
func (s *Server) handleUpgradeStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpgradeYear == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Upgrade not configured")
		return
	}
	result, err := s.deps.UpgradeYear.Execute(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, "upgrade student", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result, nil)
}

// handleListStudents handles GET /api/v1/students[?start_year=&end_year=].
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListStudents == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Listing not configured")
		return
	}
	start, err := optionalInt(r, "start_year")
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	end, err := optionalInt(r, "end_year")
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.ListStudents.Handle(r.Context(), query.ListStudentsQuery{StartYear: start, EndYear: end})
	if err != nil {
		s.writeDomainError(w, r, "list students", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result, &ResponseMeta{TotalCount: result.Count})
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type addReviewRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// handleAddReview handles POST /api/v1/courses/{id}/reviews.
func (s *Server) handleAddReview(w http.ResponseWriter, r *http.Request) {
	if s.deps.AddReview == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Reviews not configured")
		return
	}
	var req addReviewRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.deps.AddReview.Handle(r.Context(), command.AddReviewCommand{
		CourseID: r.PathValue("id"),
		Text:     req.Text,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.writeDomainError(w, r, "add review", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, result, nil)
}

// handleDeleteCourse handles DELETE /api/v1/courses/{id}.
func (s *Server) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	if s.deps.DeleteCourse == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Course deletion not configured")
		return
	}
	result, err := s.deps.DeleteCourse.Execute(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, "delete course", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result, nil)
}

type moveCourseRequest struct {
	Target string `json:"target"`
}

// handleMoveCourse handles POST /api/v1/courses/{id}/move.
func (s *Server) handleMoveCourse(w http.ResponseWriter, r *http.Request) {
	if s.deps.MoveCourse == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Course moves not configured")
		return
	}
	var req moveCourseRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.deps.MoveCourse.Execute(r.Context(), saga.MoveCourseInput{
		CourseID: r.PathValue("id"),
		Target:   fragment.PartitionID(req.Target),
	})
	if err != nil {
		s.writeDomainError(w, r, "move course", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result, nil)
}

// handleUpgradeCourse handles POST /api/v1/courses/{id}/upgrade.
func (s *Server) handleUpgradeCourse(w http.ResponseWriter, r *http.Request) {
	if s.deps.MoveCourse == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Course moves not configured")
		return
	}
	result, err := s.deps.MoveCourse.Upgrade(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, "upgrade course", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleSearch handles GET /api/v1/search?domain=&study_year=&collection=&text=&k=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.NearestDocument == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Search not configured")
		return
	}
	params := r.URL.Query()
	domain, err := fragment.ParseDomain(params.Get("domain"))
	if err != nil {
		s.writeDomainError(w, r, "search", err)
		return
	}
	k, err := optionalInt(r, "k")
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	q := query.NearestDocumentQuery{
		Domain:     domain,
		Collection: params.Get("collection"),
		Text:       params.Get("text"),
	}
	if raw := params.Get("study_year"); raw != "" {
		q.StudyYear = raw
	}
	if k != nil {
		q.K = *k
	}

	result, err := s.deps.NearestDocument.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, "search", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result, &ResponseMeta{TotalCount: len(result.Matches)})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST & ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decode reads a JSON body into dst, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Request body is required")
		return false
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSONError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large")
		return false
	}
	writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Malformed JSON: "+err.Error())
	return false
}

// writeDomainError maps an error kind to a status code. A failed rollback is
// reported with the partitions left inconsistent.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	log := logger.FromContext(r.Context())

	switch {
	case shared.IsCompensation(err):
		var partitions []fragment.PartitionID
		if se, ok := saga.AsError(err); ok {
			partitions = se.InconsistentPartitions()
		}
		log.Error(op+" left partitions inconsistent", logger.Err(err), logger.Partitions(partitionStrings(partitions)))
		writeJSONError(w, r, http.StatusInternalServerError, "inconsistent_partitions", err.Error(), partitions...)
	case shared.IsValidation(err), shared.IsRouting(err):
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", err.Error())
	case shared.IsInconsistentState(err):
		writeJSONError(w, r, http.StatusConflict, "inconsistent_state", err.Error())
	case shared.IsPartition(err):
		log.Warn(op+" failed on a partition", logger.Err(err))
		writeJSONError(w, r, http.StatusBadGateway, "partition_error", err.Error())
	default:
		log.Error(op+" failed", logger.Err(err))
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "Failed to "+op)
	}
}

func partitionStrings(ids []fragment.PartitionID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
