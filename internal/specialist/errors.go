package specialist

import (
	"errors"
	"fmt"

	"github.com/falachefe/consultant/internal/models"
)

var (
	// ErrUnknownSpecialist is returned when no executor is registered for an id.
	ErrUnknownSpecialist = errors.New("unknown specialist")

	// ErrExecutionFailed wraps any failure while a specialist runs.
	ErrExecutionFailed = errors.New("specialist execution failed")

	// ErrIterationLimit is returned when a specialist keeps calling tools past its bound.
	ErrIterationLimit = errors.New("specialist iteration limit exceeded")
)

// UnknownSpecialistError names the id that failed to resolve.
type UnknownSpecialistError struct {
	ID models.SpecialistID
}

func (e *UnknownSpecialistError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownSpecialist, e.ID)
}

func (e *UnknownSpecialistError) Is(target error) bool {
	return target == ErrUnknownSpecialist
}
