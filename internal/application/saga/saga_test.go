package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/shared"
)

func recordingStep(name string, pid fragment.PartitionID, log *[]string, forwardErr, compErr error) Step {
	return Step{
		Name:      name,
		Partition: pid,
		Forward: func(context.Context) error {
			*log = append(*log, "do:"+name)
			return forwardErr
		},
		Compensate: func(context.Context) error {
			*log = append(*log, "undo:"+name)
			return compErr
		},
	}
}

func TestSaga_Commits(t *testing.T) {
	var calls []string
	s := New("test", nil)
	s.AddStep(recordingStep("a", "P/1", &calls, nil, nil))
	s.AddStep(recordingStep("b", "P/2", &calls, nil, nil))

	assert.Equal(t, StatePending, s.State())
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, StateCommitted, s.State())
	assert.Equal(t, []string{"do:a", "do:b"}, calls)

	assert.Error(t, s.Run(context.Background()))
}

func TestSaga_CompensatesInReverse(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	s := New("test", nil)
	s.AddStep(recordingStep("a", "P/1", &calls, nil, nil))
	s.AddStep(recordingStep("b", "P/2", &calls, nil, nil))
	s.AddStep(recordingStep("c", "P/3", &calls, boom, nil))
	s.AddStep(recordingStep("d", "P/4", &calls, nil, nil))

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"do:a", "do:b", "do:c", "undo:b", "undo:a"}, calls)
	assert.Equal(t, StateRolledBack, s.State())

	sagaErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, 2, sagaErr.FailedStep)
	assert.Equal(t, "c", sagaErr.StepName)
	assert.Equal(t, fragment.PartitionID("P/3"), sagaErr.Partition)
	assert.True(t, sagaErr.RolledBack())
	assert.Empty(t, sagaErr.InconsistentPartitions())

	assert.ErrorIs(t, err, boom)
	assert.True(t, shared.IsPartition(err))
	assert.False(t, shared.IsCompensation(err))
}

func TestSaga_AttemptsEveryCompensation(t *testing.T) {
	var calls []string
	undoFail := errors.New("undo failed")
	s := New("test", nil)
	s.AddStep(recordingStep("a", "P/1", &calls, nil, nil))
	s.AddStep(recordingStep("b", "P/2", &calls, nil, undoFail))
	s.AddStep(recordingStep("c", "P/3", &calls, nil, undoFail))
	s.AddStep(recordingStep("d", "P/4", &calls, errors.New("boom"), nil))

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"do:a", "do:b", "do:c", "do:d", "undo:c", "undo:b", "undo:a"}, calls)
	assert.Equal(t, StatePartiallyRolledBack, s.State())

	sagaErr, ok := AsError(err)
	require.True(t, ok)
	require.Len(t, sagaErr.Compensations, 2)
	assert.Equal(t, "c", sagaErr.Compensations[0].Step)
	assert.Equal(t, "b", sagaErr.Compensations[1].Step)
	assert.Equal(t, []fragment.PartitionID{"P/3", "P/2"}, sagaErr.InconsistentPartitions())

	assert.True(t, shared.IsCompensation(err))
	assert.ErrorIs(t, err, undoFail)
	assert.Contains(t, err.Error(), "partially_rolled_back")
}

func TestSaga_FirstStepFailureNeedsNoCompensation(t *testing.T) {
	var calls []string
	s := New("test", nil)
	s.AddStep(recordingStep("a", "", &calls, shared.Validationf("t", "op", "bad"), nil))

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"do:a"}, calls)
	assert.Equal(t, StateRolledBack, s.State())
	assert.True(t, shared.IsValidation(err))
	assert.False(t, shared.IsPartition(err))
}

func TestSaga_ClassifiedCauseKeepsKind(t *testing.T) {
	s := New("test", nil)
	s.AddStep(Step{
		Name:      "x",
		Partition: "P/1",
		Forward: func(context.Context) error {
			return shared.NotFoundf("t", "op", "gone")
		},
	})
	err := s.Run(context.Background())
	assert.True(t, shared.IsNotFound(err))
	assert.False(t, shared.IsPartition(err))
}

func TestSaga_CompensatesAfterCancel(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	s := New("test", nil)
	s.AddStep(recordingStep("a", "P/1", &calls, nil, nil))
	s.AddStep(Step{
		Name:      "cancel",
		Partition: "P/2",
		Forward: func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		},
	})
	s.AddStep(Step{
		Name: "check",
		Forward: func(context.Context) error {
			t.Fatal("must not run")
			return nil
		},
	})
	s.steps[0].Compensate = func(ctx context.Context) error {
		calls = append(calls, "undo:a")
		return ctx.Err()
	}

	err := s.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{"do:a", "undo:a"}, calls)
	assert.Equal(t, StateRolledBack, s.State())
}

func TestSaga_AddStepAfterRunPanics(t *testing.T) {
	s := New("test", nil)
	require.NoError(t, s.Run(context.Background()))
	assert.Panics(t, func() { s.AddStep(Step{Name: "late"}) })
}
