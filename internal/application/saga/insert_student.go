package saga

import (
	"context"
	"time"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
	"github.com/alem-hub/fragstore/internal/domain/student"
	"github.com/alem-hub/fragstore/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// INSERT STUDENT SAGA
// Flow: Classify → Parse → Resolve → Allocate ID → Write Academic → Write Personal
// ══════════════════════════════════════════════════════════════════════════════

// InsertStudentInput is one student payload carrying both domains' fields.
type InsertStudentInput struct {
	Document string
	Metadata map[string]any
}

// InsertStudentResult reports where the student was written.
type InsertStudentResult struct {
	StudentID string               `json:"student_id"`
	StudyYear int                  `json:"study_year"`
	Academic  fragment.PartitionID `json:"academic"`
	Personal  fragment.PartitionID `json:"personal"`
}

// InsertStudentSaga writes a new student to its academic and personal partitions.
type InsertStudentSaga struct {
	dir      *partition.Directory
	resolver *fragment.Resolver
	ids      IDAllocator
	now      func() time.Time
	log      *logger.Logger
}

// NewInsertStudentSaga creates the saga.
func NewInsertStudentSaga(dir *partition.Directory, resolver *fragment.Resolver, ids IDAllocator, log *logger.Logger) *InsertStudentSaga {
	if log == nil {
		log = logger.Discard()
	}
	return &InsertStudentSaga{
		dir:      dir,
		resolver: resolver,
		ids:      ids,
		now:      time.Now,
		log:      log,
	}
}

// WithClock overrides the clock used for default timestamps.
func (s *InsertStudentSaga) WithClock(now func() time.Time) *InsertStudentSaga {
	s.now = now
	return s
}

// Execute validates the payload and writes both records, rolling the academic
// write back if the personal write fails.
func (s *InsertStudentSaga) Execute(ctx context.Context, input InsertStudentInput) (*InsertStudentResult, error) {
	class, err := s.resolver.Classify(input.Metadata)
	if err != nil {
		return nil, err
	}
	if !class.Both() {
		return nil, shared.Validationf("student", "Insert",
			"a student needs %q and all of name, surname, email", fragment.AcademicKey)
	}

	academic, err := student.ParseAcademic(input.Metadata)
	if err != nil {
		return nil, err
	}
	academic = academic.WithDefaults(s.now())
	personal, err := student.ParsePersonal(input.Metadata)
	if err != nil {
		return nil, err
	}

	academicPID, err := s.resolver.Resolve(fragment.DomainAcademic, academic.StudyYear)
	if err != nil {
		return nil, err
	}
	personalPID, err := s.resolver.Resolve(fragment.DomainPersonal, personal.StudyYear)
	if err != nil {
		return nil, err
	}

	var id string
	sg := New("insert_student", s.log)
	sg.AddStep(Step{
		Name: "allocate_id",
		Forward: func(ctx context.Context) error {
			next, err := s.ids.NextID(ctx)
			if err != nil {
				return shared.WrapError("student", "AllocateID", shared.ErrPartition, "id allocation failed", err)
			}
			id = next
			return nil
		},
	})
	sg.AddStep(Step{
		Name:      "write_academic",
		Partition: academicPID,
		Forward: func(ctx context.Context) error {
			col, err := s.dir.Collection(ctx, academicPID, partition.CollectionStudents)
			if err != nil {
				return err
			}
			return col.Add(ctx, partition.Record{ID: id, Document: input.Document, Metadata: academic.Metadata()})
		},
		Compensate: func(ctx context.Context) error {
			col, err := s.dir.Collection(ctx, academicPID, partition.CollectionStudents)
			if err != nil {
				return err
			}
			return col.Delete(ctx, id)
		},
	})
	sg.AddStep(Step{
		Name:      "write_personal",
		Partition: personalPID,
		Forward: func(ctx context.Context) error {
			col, err := s.dir.Collection(ctx, personalPID, partition.CollectionStudents)
			if err != nil {
				return err
			}
			rec := personal.WithDefaults(id)
			return col.Add(ctx, partition.Record{ID: id, Document: input.Document, Metadata: rec.Metadata()})
		},
		Compensate: func(ctx context.Context) error {
			col, err := s.dir.Collection(ctx, personalPID, partition.CollectionStudents)
			if err != nil {
				return err
			}
			return col.Delete(ctx, id)
		},
	})

	if err := sg.Run(ctx); err != nil {
		return nil, err
	}

	s.log.Info("student inserted",
		logger.StudentID(id),
		logger.StudyYear(academic.StudyYear),
		logger.String("academic", string(academicPID)),
		logger.String("personal", string(personalPID)),
	)
	return &InsertStudentResult{
		StudentID: id,
		StudyYear: academic.StudyYear,
		Academic:  academicPID,
		Personal:  personalPID,
	}, nil
}
