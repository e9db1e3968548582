// Package student holds the two tagged record shapes a student is split into:
// the academic record (scores, timestamps) and the personal record (names,
// contact details). Both carry study_year, which is the vertical consistency
// key between the two copies.
package student

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// METADATA KEYS
// ══════════════════════════════════════════════════════════════════════════════

const (
	KeyFinalScore = fragment.AcademicKey
	KeyTimestamp  = "timestamp"
	KeyStudyYear  = fragment.StudyYearKey
	KeyStudentID  = "student_id"
	KeyName       = "name"
	KeySurname    = "surname"
	KeyEmail      = "email"
)

var academicKeys = map[string]bool{
	KeyFinalScore: true,
	KeyTimestamp:  true,
	KeyStudyYear:  true,
}

var personalKeys = map[string]bool{
	KeyStudentID: true,
	KeyName:      true,
	KeySurname:   true,
	KeyEmail:     true,
	KeyStudyYear: true,
}

// ══════════════════════════════════════════════════════════════════════════════
// ACADEMIC RECORD
// ══════════════════════════════════════════════════════════════════════════════

// AcademicRecord is the academic-domain copy of a student.
type AcademicRecord struct {
	FinalScore float64
	Timestamp  string
	StudyYear  int
	Extra      partition.Metadata
}

// ParseAcademic validates academic metadata. Keys of neither shape are kept
// in Extra; personal keys are dropped.
func ParseAcademic(metadata map[string]any) (AcademicRecord, error) {
	raw, ok := metadata[KeyFinalScore]
	if !ok {
		return AcademicRecord{}, shared.Validationf("student", "ParseAcademic", "%s is required", KeyFinalScore)
	}
	score, err := toFloat(raw)
	if err != nil {
		return AcademicRecord{}, shared.Validationf("student", "ParseAcademic", "%s: %v", KeyFinalScore, err)
	}
	year, err := fragment.ParseStudyYear(metadata[KeyStudyYear])
	if err != nil {
		return AcademicRecord{}, err
	}

	rec := AcademicRecord{FinalScore: score, StudyYear: year, Extra: partition.Metadata{}}
	if ts, ok := metadata[KeyTimestamp]; ok && ts != nil {
		s, ok := ts.(string)
		if !ok {
			return AcademicRecord{}, shared.Validationf("student", "ParseAcademic", "%s must be a string", KeyTimestamp)
		}
		rec.Timestamp = s
	}
	for k, v := range metadata {
		if !academicKeys[k] && !personalKeys[k] {
			rec.Extra[k] = v
		}
	}
	return rec, nil
}

// WithDefaults fills an empty timestamp with now in RFC 3339.
func (r AcademicRecord) WithDefaults(now time.Time) AcademicRecord {
	if r.Timestamp == "" {
		r.Timestamp = now.UTC().Format(time.RFC3339)
	}
	return r
}

// Metadata renders the record as stored metadata.
func (r AcademicRecord) Metadata() partition.Metadata {
	m := r.Extra.Clone()
	if m == nil {
		m = partition.Metadata{}
	}
	m[KeyFinalScore] = r.FinalScore
	m[KeyStudyYear] = r.StudyYear
	if r.Timestamp != "" {
		m[KeyTimestamp] = r.Timestamp
	}
	return m
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSONAL RECORD
// ══════════════════════════════════════════════════════════════════════════════

// PersonalRecord is the personal-domain copy of a student.
type PersonalRecord struct {
	StudentID string
	Name      string
	Surname   string
	Email     string
	StudyYear int
	Extra     partition.Metadata
}

// ParsePersonal validates personal metadata. Keys outside the personal
// shape are kept in Extra.
func ParsePersonal(metadata map[string]any) (PersonalRecord, error) {
	rec := PersonalRecord{Extra: partition.Metadata{}}
	for _, f := range []struct {
		key string
		dst *string
	}{
		{KeyName, &rec.Name},
		{KeySurname, &rec.Surname},
		{KeyEmail, &rec.Email},
	} {
		v, ok := metadata[f.key].(string)
		if !ok || strings.TrimSpace(v) == "" {
			return PersonalRecord{}, shared.Validationf("student", "ParsePersonal", "%s must be a non-empty string", f.key)
		}
		*f.dst = v
	}
	if !strings.Contains(rec.Email, "@") {
		return PersonalRecord{}, shared.Validationf("student", "ParsePersonal", "email %q is malformed", rec.Email)
	}

	year, err := fragment.ParseStudyYear(metadata[KeyStudyYear])
	if err != nil {
		return PersonalRecord{}, err
	}
	rec.StudyYear = year

	if sid, ok := metadata[KeyStudentID]; ok && sid != nil {
		rec.StudentID = IDString(sid)
	}
	for k, v := range metadata {
		if !personalKeys[k] && !academicKeys[k] {
			rec.Extra[k] = v
		}
	}
	return rec, nil
}

// WithDefaults sets StudentID to id when the payload omitted it.
func (r PersonalRecord) WithDefaults(id string) PersonalRecord {
	if r.StudentID == "" {
		r.StudentID = id
	}
	return r
}

// Metadata renders the record as stored metadata.
func (r PersonalRecord) Metadata() partition.Metadata {
	m := r.Extra.Clone()
	if m == nil {
		m = partition.Metadata{}
	}
	m[KeyName] = r.Name
	m[KeySurname] = r.Surname
	m[KeyEmail] = r.Email
	m[KeyStudyYear] = r.StudyYear
	if r.StudentID != "" {
		m[KeyStudentID] = r.StudentID
	}
	return m
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// StudyYearOf extracts and validates the study year of stored metadata.
func StudyYearOf(m partition.Metadata) (int, error) {
	return fragment.ParseStudyYear(m[KeyStudyYear])
}

// IDString renders an id-like metadata value as a string. Integral floats
// (as produced by JSON decoding) lose their fraction.
func IDString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
