package saga

import (
	"context"

	"github.com/alem-hub/fragstore/internal/domain/course"
	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
	"github.com/alem-hub/fragstore/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DELETE COURSE SAGA
// Flow: Locate course → Delete Course → Delete Exam (if any) → Delete Reviews
// ══════════════════════════════════════════════════════════════════════════════

// DeleteCourseResult reports what the cascade removed.
type DeleteCourseResult struct {
	CourseID       string               `json:"course_id"`
	Source         fragment.PartitionID `json:"source"`
	Peer           fragment.PartitionID `json:"peer"`
	ExamDeleted    bool                 `json:"exam_deleted"`
	DeletedReviews int                  `json:"deleted_course_reviews"`
}

// DeleteCourseSaga removes a course with its exam and reviews.
type DeleteCourseSaga struct {
	dir *partition.Directory
	log *logger.Logger
}

// NewDeleteCourseSaga creates the saga.
func NewDeleteCourseSaga(dir *partition.Directory, log *logger.Logger) *DeleteCourseSaga {
	if log == nil {
		log = logger.Discard()
	}
	return &DeleteCourseSaga{dir: dir, log: log}
}

// Execute deletes the course, its exam and every review pointing at it.
func (s *DeleteCourseSaga) Execute(ctx context.Context, courseID string) (*DeleteCourseResult, error) {
	located, ok, err := s.dir.Locate(ctx, fragment.DomainPersonal, partition.CollectionCourses, courseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.NotFoundf("course", "Delete", "course %s not found", courseID)
	}
	source := located.Partition

	peer, err := s.dir.Map().Paired(source)
	if err != nil {
		return nil, err
	}

	exam, hasExam, err := s.dir.Find(ctx, source, partition.CollectionExams, course.ExamID(located.Record))
	if err != nil {
		return nil, err
	}
	reviews, err := courseReviews(ctx, s.dir, peer, courseID)
	if err != nil {
		return nil, err
	}

	sg := New("delete_course", s.log.With(logger.CourseID(courseID)))
	sg.AddStep(deleteStep(s.dir, source, partition.CollectionCourses, located.Record))
	if hasExam {
		sg.AddStep(deleteStep(s.dir, source, partition.CollectionExams, exam))
	}
	if len(reviews) > 0 {
		sg.AddStep(deleteManyStep(s.dir, peer, partition.CollectionReviews, reviews))
	}
	if err := sg.Run(ctx); err != nil {
		return nil, err
	}

	s.log.Info("course deleted",
		logger.CourseID(courseID),
		logger.PartitionID(string(source)),
		logger.Int("reviews", len(reviews)),
	)
	return &DeleteCourseResult{
		CourseID:       courseID,
		Source:         source,
		Peer:           peer,
		ExamDeleted:    hasExam,
		DeletedReviews: len(reviews),
	}, nil
}

// courseReviews scans the review collection of pid for reviews of courseID.
// A missing collection holds no reviews.
func courseReviews(ctx context.Context, dir *partition.Directory, pid fragment.PartitionID, courseID string) ([]partition.Record, error) {
	col, ok, err := dir.ExistingCollection(ctx, pid, partition.CollectionReviews)
	if err != nil || !ok {
		return nil, err
	}
	rows, err := col.Get(ctx)
	if err != nil {
		return nil, shared.PartitionFault(string(pid), "Get", err)
	}
	return course.FilterReviews(rows, courseID), nil
}
