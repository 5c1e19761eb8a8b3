// internal/workflow/errors.go
package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotAvailable is returned by RunContext.TaskResult when the referenced
// task has not succeeded yet. A task body seeing it for one of its own
// declared dependencies indicates a scheduling bug; seeing it for anything
// else means the body referenced a task it does not depend on.
var ErrNotAvailable = errors.New("task result not available")

// DefinitionError reports a malformed job definition: a duplicate or
// dangling task id, or a dependency cycle. It is only ever produced at
// definition time, never during a run.
type DefinitionError struct {
	Msg   string
	Cycle []string
}

func (e *DefinitionError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("invalid job definition: %s: %s", e.Msg, strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("invalid job definition: %s", e.Msg)
}
