package jobs

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

var (
	// ErrTerminalState is returned for any mutation of a succeeded or failed job.
	ErrTerminalState = errors.New("job is in a terminal state")
	// ErrInvalidTransition is returned when the lifecycle does not allow the move.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// transitions lists the allowed successors of each non-terminal status.
// Failed is reachable from all of them and is handled separately.
var transitions = map[schemas.JobStatus][]schemas.JobStatus{
	schemas.JobStarting:    {schemas.JobSubmitted, schemas.JobDownloading},
	schemas.JobSubmitted:   {schemas.JobPolling, schemas.JobDownloading},
	schemas.JobPolling:     {schemas.JobPolling, schemas.JobDownloading},
	schemas.JobDownloading: {schemas.JobAnalyzing},
	schemas.JobAnalyzing:   {schemas.JobSucceeded},
}

// CheckTransition reports whether a job may move from one status to another.
func CheckTransition(from, to schemas.JobStatus) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminalState, from)
	}
	next, known := transitions[from]
	if !known {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	if to == schemas.JobFailed {
		return nil
	}
	for _, s := range next {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
