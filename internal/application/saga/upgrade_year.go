package saga

import (
	"context"
	"fmt"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
	"github.com/alem-hub/fragstore/internal/domain/student"
	"github.com/alem-hub/fragstore/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPGRADE YEAR SAGA
// Flow: Locate both copies → Check study_year agreement →
//
//	per domain (academic, personal): update in place | add to new + delete from old
//
// ══════════════════════════════════════════════════════════════════════════════

// Placement describes where one copy of a student lived before and after.
type Placement struct {
	From  fragment.PartitionID `json:"from"`
	To    fragment.PartitionID `json:"to"`
	Moved bool                 `json:"moved"`
}

// UpgradeYearResult reports the year change and per-domain placement.
type UpgradeYearResult struct {
	StudentID    string    `json:"student_id"`
	PreviousYear int       `json:"previous_year"`
	NewYear      int       `json:"new_year"`
	Academic     Placement `json:"academic"`
	Personal     Placement `json:"personal"`
}

// UpgradeYearSaga moves a student to the next study year in both domains.
type UpgradeYearSaga struct {
	dir      *partition.Directory
	resolver *fragment.Resolver
	log      *logger.Logger
}

// NewUpgradeYearSaga creates the saga.
func NewUpgradeYearSaga(dir *partition.Directory, resolver *fragment.Resolver, log *logger.Logger) *UpgradeYearSaga {
	if log == nil {
		log = logger.Discard()
	}
	return &UpgradeYearSaga{dir: dir, resolver: resolver, log: log}
}

// Execute increments the student's study year, relocating each copy whose
// new year is served by a different partition.
func (s *UpgradeYearSaga) Execute(ctx context.Context, studentID string) (*UpgradeYearResult, error) {
	academic, personal, err := locateStudent(ctx, s.dir, "UpgradeYear", studentID)
	if err != nil {
		return nil, err
	}

	yearA, errA := student.StudyYearOf(academic.Record.Metadata)
	yearP, errP := student.StudyYearOf(personal.Record.Metadata)
	if errA != nil || errP != nil {
		return nil, shared.NewDomainError("student", "UpgradeYear", shared.ErrInconsistentState,
			fmt.Sprintf("student %s lacks a valid study_year in both domains: %v", studentID, firstErr(errA, errP)))
	}
	if yearA != yearP {
		return nil, shared.NewDomainError("student", "UpgradeYear", shared.ErrInconsistentState,
			fmt.Sprintf("student %s study_year differs: academic %d, personal %d", studentID, yearA, yearP))
	}
	if yearA >= fragment.MaxStudyYear {
		return nil, shared.Validationf("student", "UpgradeYear", "student %s is already in the final year %d", studentID, yearA)
	}
	next := yearA + 1

	result := &UpgradeYearResult{StudentID: studentID, PreviousYear: yearA, NewYear: next}
	sg := New("upgrade_year", s.log.With(logger.StudentID(studentID)))
	for _, loc := range []struct {
		domain    fragment.Domain
		located   partition.Located
		placement *Placement
	}{
		{fragment.DomainAcademic, academic, &result.Academic},
		{fragment.DomainPersonal, personal, &result.Personal},
	} {
		target, err := s.resolver.Resolve(loc.domain, next)
		if err != nil {
			return nil, err
		}
		*loc.placement = Placement{From: loc.located.Partition, To: target, Moved: target != loc.located.Partition}

		updated := loc.located.Record.Metadata.With(student.KeyStudyYear, next)
		if !loc.placement.Moved {
			sg.AddStep(updateStep(s.dir, target, partition.CollectionStudents, loc.located.Record, updated))
			continue
		}
		moved := loc.located.Record.Clone()
		moved.Metadata = updated
		sg.AddStep(addStep(s.dir, target, partition.CollectionStudents, moved))
		sg.AddStep(deleteStep(s.dir, loc.located.Partition, partition.CollectionStudents, loc.located.Record))
	}

	if err := sg.Run(ctx); err != nil {
		return nil, err
	}

	s.log.Info("student upgraded",
		logger.StudentID(studentID),
		logger.Int("previous_year", yearA),
		logger.Int("new_year", next),
	)
	return result, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
