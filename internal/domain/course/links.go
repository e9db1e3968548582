// Package course describes how a course record links to its exam, program
// and reviews. Exams and programs live next to the course in the same
// personal partition; reviews live in the paired academic partition and
// point back through course_id metadata.
package course

import (
	"math"
	"strconv"
	"strings"

	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/student"
)

// Link metadata keys.
const (
	KeyExamID    = "exam_id"
	KeyProgramID = "program_id"
	KeyCourseID  = "course_id"
)

// Entity is one record that travels with a course.
type Entity struct {
	Collection string
	ID         string
}

// ExamID returns the id of the exam linked to a course. Without an explicit
// exam_id link the exam shares the course id.
func ExamID(c partition.Record) string {
	if v, ok := c.Metadata[KeyExamID]; ok && v != nil {
		return student.IDString(v)
	}
	return c.ID
}

// ProgramID returns the id of the program linked to a course, if any.
func ProgramID(c partition.Record) (string, bool) {
	v, ok := c.Metadata[KeyProgramID]
	if !ok || v == nil {
		return "", false
	}
	return student.IDString(v), true
}

// Linked returns the course and the entities that travel with it, in move order.
func Linked(c partition.Record) []Entity {
	out := []Entity{
		{Collection: partition.CollectionCourses, ID: c.ID},
		{Collection: partition.CollectionExams, ID: ExamID(c)},
	}
	if pid, ok := ProgramID(c); ok {
		out = append(out, Entity{Collection: partition.CollectionPrograms, ID: pid})
	}
	return out
}

// CourseIDValue is the value stored in a review's course_id. Numeric course
// ids are stored as integers.
func CourseIDValue(courseID string) any {
	if n, err := strconv.ParseInt(strings.TrimSpace(courseID), 10, 64); err == nil {
		return n
	}
	return courseID
}

// MatchesCourse reports whether a review's metadata points at courseID.
// Numbers and numeric strings compare by value.
func MatchesCourse(review partition.Metadata, courseID string) bool {
	v, ok := review[KeyCourseID]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok && s == courseID {
		return true
	}
	want, err := strconv.ParseFloat(strings.TrimSpace(courseID), 64)
	if err != nil {
		return student.IDString(v) == courseID
	}
	got, ok := number(v)
	return ok && got == want
}

// FilterReviews returns the reviews that point at courseID.
func FilterReviews(rows []partition.Record, courseID string) []partition.Record {
	var out []partition.Record
	for _, r := range rows {
		if MatchesCourse(r.Metadata, courseID) {
			out = append(out, r.Clone())
		}
	}
	return out
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, !math.IsNaN(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		f, err := strconv.ParseFloat(student.IDString(v), 64)
		return f, err == nil
	}
}
