package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("room is held by another session")
	ErrInvalidState    = errors.New("session is not in an advanceable state")
	ErrConfiguration   = errors.New("invalid session configuration")
	ErrGeneration      = errors.New("utterance generation failed")

	// Narrower errors; each wraps one of the above so callers can match either.
	ErrTurnInFlight     = fmt.Errorf("%w: a turn is already in flight", ErrInvalidState)
	ErrSessionEnded     = fmt.Errorf("%w: session has ended", ErrInvalidState)
	ErrSessionPaused    = fmt.Errorf("%w: session is paused", ErrInvalidState)
	ErrEvaluationDone   = fmt.Errorf("%w: evaluation already produced", ErrInvalidState)
	ErrNoRespondents    = fmt.Errorf("%w: no respondents", ErrConfiguration)
	ErrEvaluationFailed = fmt.Errorf("%w: evaluator could not be reached", ErrGeneration)
	ErrOpeningFailed    = fmt.Errorf("%w: facilitator opening failed", ErrGeneration)

	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context for query")
)

// Fault records a speaker that was skipped because its generation failed.
// Faults are absorbed by the orchestrator and reported alongside a turn.
type Fault struct {
	SessionID string    `json:"session_id"`
	SpeakerID string    `json:"speaker_id"`
	Role      string    `json:"role"`
	Turn      int       `json:"turn"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

func (f Fault) Error() string {
	return fmt.Sprintf("speaker %s skipped on turn %d: %s", f.SpeakerID, f.Turn, f.Reason)
}
