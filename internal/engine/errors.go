package engine

import (
	"fmt"

	"github.com/mediflow/triage-engine/internal/model"
)

// InvalidSessionStateError is returned when an event arrives for a
// session whose phase is terminal or unknown.
type InvalidSessionStateError struct {
	SessionID string
	Phase     model.Phase
}

func (e *InvalidSessionStateError) Error() string {
	return fmt.Sprintf("engine: invalid session state for session %s (phase %q)", e.SessionID, e.Phase)
}

// ConcurrentUpdateConflictError is surfaced after the single conditional
// write retry has also lost the race.
type ConcurrentUpdateConflictError struct {
	SessionID string
}

func (e *ConcurrentUpdateConflictError) Error() string {
	return fmt.Sprintf("engine: concurrent update conflict for session %s", e.SessionID)
}
