// Package saga coordinates multi-step writes that touch several independently
// failing partitions. A Saga is an ordered list of steps, each pairing a
// forward action with a compensation. Run executes forward actions in order
// and, on the first failure, unwinds every applied step in reverse.
package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/shared"
	"github.com/alem-hub/fragstore/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATES
// ══════════════════════════════════════════════════════════════════════════════

// State is the lifecycle position of a saga.
type State string

const (
	StatePending             State = "pending"
	StateRunning             State = "running"
	StateCommitted           State = "committed"
	StateRolledBack          State = "rolled_back"
	StatePartiallyRolledBack State = "partially_rolled_back"
)

// ══════════════════════════════════════════════════════════════════════════════
// STEPS
// ══════════════════════════════════════════════════════════════════════════════

// Action is one side effect against a partition.
type Action func(ctx context.Context) error

// Step pairs a forward action with the action that undoes it.
type Step struct {
	// Name identifies the step in logs and errors, e.g. "write_academic".
	Name string

	// Partition is the partition the step touches. Empty for steps that
	// touch no partition (id allocation).
	Partition fragment.PartitionID

	// Forward performs the step.
	Forward Action

	// Compensate undoes Forward. Nil means nothing to undo.
	Compensate Action
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA
// ══════════════════════════════════════════════════════════════════════════════

// Saga is a single-use ordered step executor.
type Saga struct {
	name    string
	log     *logger.Logger
	steps   []Step
	applied int
	state   State
}

// New begins a saga.
func New(name string, log *logger.Logger) *Saga {
	if log == nil {
		log = logger.Discard()
	}
	return &Saga{
		name:  name,
		log:   log.With(logger.Saga(name)),
		state: StatePending,
	}
}

// AddStep appends a step. Steps cannot be added once the saga has run.
func (s *Saga) AddStep(step Step) *Saga {
	if s.state != StatePending {
		panic(fmt.Sprintf("saga %s: AddStep after Run", s.name))
	}
	s.steps = append(s.steps, step)
	return s
}

// Name returns the saga name.
func (s *Saga) Name() string { return s.name }

// State returns the current state.
func (s *Saga) State() State { return s.state }

// Len returns the number of steps.
func (s *Saga) Len() int { return len(s.steps) }

// Run executes the steps in order. On the first forward failure it attempts
// every compensation of the already applied steps in reverse order and
// returns a *Error. Cancellation of ctx does not stop compensation.
func (s *Saga) Run(ctx context.Context) error {
	if s.state != StatePending {
		return fmt.Errorf("saga %s: already ran (state %s)", s.name, s.state)
	}
	s.state = StateRunning
	start := time.Now()
	s.log.Debug("saga started", logger.Int("steps", len(s.steps)))

	for i, step := range s.steps {
		err := step.Forward(ctx)
		if err == nil {
			s.applied = i + 1
			continue
		}

		cause := err
		if step.Partition != "" {
			cause = shared.PartitionFault(string(step.Partition), step.Name, err)
		}
		s.log.Warn("saga step failed",
			logger.Step(step.Name),
			logger.PartitionID(string(step.Partition)),
			logger.Int("index", i),
			logger.Err(cause),
		)

		failures := s.compensate(context.WithoutCancel(ctx))
		s.state = StateRolledBack
		if len(failures) > 0 {
			s.state = StatePartiallyRolledBack
		}

		sagaErr := &Error{
			Saga:          s.name,
			Cause:         cause,
			FailedStep:    i,
			StepName:      step.Name,
			Partition:     step.Partition,
			Compensations: failures,
			State:         s.state,
		}
		if s.state == StatePartiallyRolledBack {
			s.log.Error("saga partially rolled back",
				logger.Partitions(partitionStrings(sagaErr.InconsistentPartitions())),
				logger.Latency(time.Since(start)),
				logger.Err(sagaErr),
			)
		} else {
			s.log.Info("saga rolled back", logger.Step(step.Name), logger.Latency(time.Since(start)))
		}
		return sagaErr
	}

	s.state = StateCommitted
	s.log.Debug("saga committed", logger.Latency(time.Since(start)))
	return nil
}

// compensate undoes the applied steps in reverse order, attempting each one.
func (s *Saga) compensate(ctx context.Context) []CompensationFailure {
	var failures []CompensationFailure
	for i := s.applied - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			failures = append(failures, CompensationFailure{
				Index:     i,
				Step:      step.Name,
				Partition: step.Partition,
				Err:       err,
			})
			s.log.Error("compensation failed",
				logger.Step(step.Name),
				logger.PartitionID(string(step.Partition)),
				logger.Err(err),
			)
			continue
		}
		s.log.Info("compensated", logger.Step(step.Name), logger.PartitionID(string(step.Partition)))
	}
	return failures
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// CompensationFailure records one compensation that itself failed.
type CompensationFailure struct {
	Index     int
	Step      string
	Partition fragment.PartitionID
	Err       error
}

// Error implements the error interface.
func (f CompensationFailure) Error() string {
	return fmt.Sprintf("compensate %s on %s: %v", f.Step, f.Partition, f.Err)
}

// Unwrap returns the underlying error.
func (f CompensationFailure) Unwrap() error { return f.Err }

// Error is the composite failure of a saga: the forward error that triggered
// the rollback plus every compensation that failed.
type Error struct {
	Saga          string
	Cause         error
	FailedStep    int
	StepName      string
	Partition     fragment.PartitionID
	Compensations []CompensationFailure
	State         State
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "saga %s: step %d (%s)", e.Saga, e.FailedStep, e.StepName)
	if e.Partition != "" {
		fmt.Fprintf(&b, " on %s", e.Partition)
	}
	fmt.Fprintf(&b, " failed: %v; %s", e.Cause, e.State)
	if len(e.Compensations) > 0 {
		parts := make([]string, 0, len(e.Compensations))
		for _, f := range e.Compensations {
			parts = append(parts, f.Error())
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, "; "))
	}
	return b.String()
}

// Unwrap exposes the cause and, when a compensation failed, ErrCompensation
// and each compensation error.
func (e *Error) Unwrap() []error {
	errs := []error{e.Cause}
	if len(e.Compensations) > 0 {
		errs = append(errs, shared.ErrCompensation)
		for _, f := range e.Compensations {
			errs = append(errs, f)
		}
	}
	return errs
}

// RolledBack reports whether every compensation succeeded.
func (e *Error) RolledBack() bool { return e.State == StateRolledBack }

// InconsistentPartitions lists the partitions left in an unknown state,
// in compensation order and without duplicates.
func (e *Error) InconsistentPartitions() []fragment.PartitionID {
	var out []fragment.PartitionID
	seen := make(map[fragment.PartitionID]bool)
	for _, f := range e.Compensations {
		if f.Partition == "" || seen[f.Partition] {
			continue
		}
		seen[f.Partition] = true
		out = append(out, f.Partition)
	}
	return out
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var sagaErr *Error
	ok := errors.As(err, &sagaErr)
	return sagaErr, ok
}

func partitionStrings(ids []fragment.PartitionID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
