// Package command contains write operations that touch a single partition.
// Multi-partition writes live in the saga package.
package command

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/fragstore/internal/domain/course"
	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
	"github.com/alem-hub/fragstore/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADD REVIEW COMMAND
// Locates the course in the personal domain and writes the review into the
// paired academic partition, linked through course_id.
// ══════════════════════════════════════════════════════════════════════════════

// AddReviewCommand contains the review to add.
type AddReviewCommand struct {
	// CourseID is the id of the reviewed course.
	CourseID string

	// Text is the review body, stored as the record document.
	Text string

	// Metadata is optional extra metadata. course_id is always overwritten.
	Metadata map[string]any
}

// Validate validates the command.
func (c AddReviewCommand) Validate() error {
	if strings.TrimSpace(c.CourseID) == "" {
		return shared.Validationf("review", "Add", "course_id is required")
	}
	if strings.TrimSpace(c.Text) == "" {
		return shared.Validationf("review", "Add", "text is required")
	}
	return nil
}

// AddReviewResult reports where the review was stored.
type AddReviewResult struct {
	ReviewID        string               `json:"review_id"`
	CourseID        string               `json:"course_id"`
	CoursePartition fragment.PartitionID `json:"course_partition"`
	Partition       fragment.PartitionID `json:"review_partition"`
	CreatedAt       time.Time            `json:"created_at"`
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	// GenerateID generates a new unique ID.
	GenerateID() string
}

// AddReviewHandler handles AddReviewCommand.
type AddReviewHandler struct {
	dir *partition.Directory
	ids IDGenerator
	now func() time.Time
	log *logger.Logger
}

// NewAddReviewHandler creates a new AddReviewHandler.
func NewAddReviewHandler(dir *partition.Directory, ids IDGenerator, log *logger.Logger) *AddReviewHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &AddReviewHandler{dir: dir, ids: ids, now: time.Now, log: log}
}

// Handle executes the command.
func (h *AddReviewHandler) Handle(ctx context.Context, cmd AddReviewCommand) (*AddReviewResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	located, ok, err := h.dir.Locate(ctx, fragment.DomainPersonal, partition.CollectionCourses, cmd.CourseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.NotFoundf("review", "Add", "course %s not found", cmd.CourseID)
	}
	peer, err := h.dir.Map().Paired(located.Partition)
	if err != nil {
		return nil, err
	}

	col, err := h.dir.Collection(ctx, peer, partition.CollectionReviews)
	if err != nil {
		return nil, err
	}
	metadata := partition.Metadata(cmd.Metadata).
		With(course.KeyCourseID, course.CourseIDValue(cmd.CourseID))
	review := partition.Record{ID: h.ids.GenerateID(), Document: cmd.Text, Metadata: metadata}
	if err := col.Add(ctx, review); err != nil {
		return nil, shared.PartitionFault(string(peer), "Add", err)
	}

	h.log.Info("review added",
		logger.CourseID(cmd.CourseID),
		logger.PartitionID(string(peer)),
		logger.String("review_id", review.ID),
	)
	return &AddReviewResult{
		ReviewID:        review.ID,
		CourseID:        cmd.CourseID,
		CoursePartition: located.Partition,
		Partition:       peer,
		CreatedAt:       h.now().UTC(),
	}, nil
}
