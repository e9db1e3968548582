package saga

import (
	"context"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
	"github.com/alem-hub/fragstore/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE STUDENT SAGA
// Flow: Locate both copies → Delete Academic → Delete Personal
// ══════════════════════════════════════════════════════════════════════════════

// DeleteStudentResult reports where the student was removed from.
type DeleteStudentResult struct {
	StudentID string               `json:"student_id"`
	Academic  fragment.PartitionID `json:"academic"`
	Personal  fragment.PartitionID `json:"personal"`
}

// DeleteStudentSaga removes both copies of a student.
type DeleteStudentSaga struct {
	dir *partition.Directory
	log *logger.Logger
}

// NewDeleteStudentSaga creates the saga.
func NewDeleteStudentSaga(dir *partition.Directory, log *logger.Logger) *DeleteStudentSaga {
	if log == nil {
		log = logger.Discard()
	}
	return &DeleteStudentSaga{dir: dir, log: log}
}

// Execute deletes the student. Both copies must exist.
func (s *DeleteStudentSaga) Execute(ctx context.Context, studentID string) (*DeleteStudentResult, error) {
	academic, personal, err := locateStudent(ctx, s.dir, "Delete", studentID)
	if err != nil {
		return nil, err
	}

	sg := New("delete_student", s.log.With(logger.StudentID(studentID)))
	sg.AddStep(deleteStep(s.dir, academic.Partition, partition.CollectionStudents, academic.Record))
	sg.AddStep(deleteStep(s.dir, personal.Partition, partition.CollectionStudents, personal.Record))
	if err := sg.Run(ctx); err != nil {
		return nil, err
	}

	s.log.Info("student deleted", logger.StudentID(studentID))
	return &DeleteStudentResult{
		StudentID: studentID,
		Academic:  academic.Partition,
		Personal:  personal.Partition,
	}, nil
}

// locateStudent finds both copies of a student or fails with ErrNotFound.
func locateStudent(ctx context.Context, dir *partition.Directory, op, studentID string) (academic, personal partition.Located, err error) {
	academic, okA, err := dir.Locate(ctx, fragment.DomainAcademic, partition.CollectionStudents, studentID)
	if err != nil {
		return academic, personal, err
	}
	personal, okP, err := dir.Locate(ctx, fragment.DomainPersonal, partition.CollectionStudents, studentID)
	if err != nil {
		return academic, personal, err
	}
	switch {
	case !okA && !okP:
		return academic, personal, shared.NotFoundf("student", op, "student %s not found", studentID)
	case !okA:
		return academic, personal, shared.NotFoundf("student", op, "student %s has no academic record", studentID)
	case !okP:
		return academic, personal, shared.NotFoundf("student", op, "student %s has no personal record", studentID)
	}
	return academic, personal, nil
}
