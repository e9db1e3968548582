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
// MOVE COURSE SAGA
// Flow: Locate course → Snapshot course/exam/program + reviews →
//
//	Move course → Move exam → Move program → Migrate reviews
//
// Every move is two steps (add to target, delete from source), so any failure
// unwinds exactly what was applied.
// ══════════════════════════════════════════════════════════════════════════════

// MoveCourseInput names the course and the personal partition to move it to.
type MoveCourseInput struct {
	CourseID string
	Target   fragment.PartitionID
}

// MoveCourseResult reports what moved where.
type MoveCourseResult struct {
	CourseID     string               `json:"course_id"`
	From         fragment.PartitionID `json:"from"`
	To           fragment.PartitionID `json:"to"`
	FromPeer     fragment.PartitionID `json:"from_peer"`
	ToPeer       fragment.PartitionID `json:"to_peer"`
	Moved        []string             `json:"moved"`
	MovedReviews int                  `json:"moved_reviews"`
	NoOp         bool                 `json:"no_op"`
}

// MoveCourseSaga relocates a course and everything linked to it.
type MoveCourseSaga struct {
	dir      *partition.Directory
	resolver *fragment.Resolver
	log      *logger.Logger
}

// NewMoveCourseSaga creates the saga.
func NewMoveCourseSaga(dir *partition.Directory, resolver *fragment.Resolver, log *logger.Logger) *MoveCourseSaga {
	if log == nil {
		log = logger.Discard()
	}
	return &MoveCourseSaga{dir: dir, resolver: resolver, log: log}
}

// Execute moves the course to input.Target.
func (s *MoveCourseSaga) Execute(ctx context.Context, input MoveCourseInput) (*MoveCourseResult, error) {
	if d, ok := s.dir.Map().DomainOf(input.Target); !ok || d != fragment.DomainPersonal {
		return nil, shared.Validationf("course", "Move", "target %q is not a personal partition", input.Target)
	}

	located, ok, err := s.dir.Locate(ctx, fragment.DomainPersonal, partition.CollectionCourses, input.CourseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.NotFoundf("course", "Move", "course %s not found", input.CourseID)
	}
	if located.Partition == input.Target {
		return nil, shared.Validationf("course", "Move", "course %s is already in %s", input.CourseID, input.Target)
	}
	return s.move(ctx, located, input.Target)
}

// Upgrade moves the course to the personal partition serving the final
// study year. It is a no-op when the course is already there.
func (s *MoveCourseSaga) Upgrade(ctx context.Context, courseID string) (*MoveCourseResult, error) {
	target, err := s.resolver.Resolve(fragment.DomainPersonal, fragment.MaxStudyYear)
	if err != nil {
		return nil, err
	}
	located, ok, err := s.dir.Locate(ctx, fragment.DomainPersonal, partition.CollectionCourses, courseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.NotFoundf("course", "Upgrade", "course %s not found", courseID)
	}
	if located.Partition == target {
		return &MoveCourseResult{CourseID: courseID, From: target, To: target, NoOp: true}, nil
	}
	return s.move(ctx, located, target)
}

func (s *MoveCourseSaga) move(ctx context.Context, located partition.Located, target fragment.PartitionID) (*MoveCourseResult, error) {
	courseID := located.Record.ID
	source := located.Partition

	fromPeer, err := s.dir.Map().Paired(source)
	if err != nil {
		return nil, err
	}
	toPeer, err := s.dir.Map().Paired(target)
	if err != nil {
		return nil, err
	}

	result := &MoveCourseResult{
		CourseID: courseID,
		From:     source,
		To:       target,
		FromPeer: fromPeer,
		ToPeer:   toPeer,
	}

	sg := New("move_course", s.log.With(logger.CourseID(courseID)))
	for _, ent := range course.Linked(located.Record) {
		snapshot := located.Record
		if ent.Collection != partition.CollectionCourses {
			rec, ok, err := s.dir.Find(ctx, source, ent.Collection, ent.ID)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			snapshot = rec
		}
		if err := s.checkFree(ctx, target, ent.Collection, ent.ID); err != nil {
			return nil, err
		}
		for _, step := range moveSteps(s.dir, source, target, ent.Collection, snapshot) {
			sg.AddStep(step)
		}
		result.Moved = append(result.Moved, ent.Collection)
	}

	reviews, err := courseReviews(ctx, s.dir, fromPeer, courseID)
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		if err := s.checkFree(ctx, toPeer, partition.CollectionReviews, r.ID); err != nil {
			return nil, err
		}
		for _, step := range moveSteps(s.dir, fromPeer, toPeer, partition.CollectionReviews, r) {
			sg.AddStep(step)
		}
	}
	result.MovedReviews = len(reviews)

	if err := sg.Run(ctx); err != nil {
		return nil, err
	}

	s.log.Info("course moved",
		logger.CourseID(courseID),
		logger.String("from", string(source)),
		logger.String("to", string(target)),
		logger.Int("reviews", len(reviews)),
	)
	return result, nil
}

// checkFree fails when id already exists in the target collection.
func (s *MoveCourseSaga) checkFree(ctx context.Context, pid fragment.PartitionID, collection, id string) error {
	_, exists, err := s.dir.Find(ctx, pid, collection, id)
	if err != nil {
		return err
	}
	if exists {
		return shared.Validationf("course", "Move", "%s %s already exists in %s", collection, id, pid)
	}
	return nil
}
