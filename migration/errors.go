package migration

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrStorageUnavailable = errors.New("version storage is unavailable")
	ErrDuplicateVersion   = errors.New("duplicate migration version")
	ErrUnknownVersion     = errors.New("unknown migration version")
	ErrCorruptState       = errors.New("stored versions do not match known migrations")
	ErrStepFailed         = errors.New("migration step failed")
)

// CorruptStateError lists the stored versions no migration is known for
type CorruptStateError struct {
	Versions []Version
}

func (e *CorruptStateError) Error() string {
	values := make([]string, 0, len(e.Versions))
	for _, v := range e.Versions {
		values = append(values, v.Value)
	}
	return fmt.Sprintf("%s: unknown versions [%s]", ErrCorruptState, strings.Join(values, ", "))
}

func (e *CorruptStateError) Is(target error) bool {
	return target == ErrCorruptState
}

// StepError is returned when a transform or its bookkeeping fails
type StepError struct {
	Version   Version
	Name      string
	Direction Direction
	State     State
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf(
		"%s: version [%s] name [%s] direction [%s] left %s: %v",
		ErrStepFailed, e.Version, e.Name, e.Direction, e.State, e.Err,
	)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return target == ErrStepFailed
}
