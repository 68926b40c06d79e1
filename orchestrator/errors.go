package orchestrator

import (
	"fmt"

	"github.com/ruteri/marketplace-bulk-provisioner/interfaces"
)

// StageError is the failure of one unit at one stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// UnitResult is the outcome of one unit. Err is nil on success; Record is
// always set and is a failure record when Err is not nil.
type UnitResult struct {
	Record interfaces.UnitRecord
	Err    *StageError
}
