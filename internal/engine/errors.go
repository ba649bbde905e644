package engine

import (
	"fmt"
	"time"
)

// FailureKind labels a turn-level failure per the error taxonomy. Tool
// executor failures never appear here: they are contained at the registry
// boundary and folded into the transcript as textual results.
type FailureKind string

// FailureKind values.
const (
	// FailureModelCall covers network, auth, and rate-limit errors from
	// the model collaborator. Fatal to the turn; the user message already
	// stored remains, so retrying re-sends it (at-least-once).
	FailureModelCall FailureKind = "model_call_failed"

	// FailureSessionStore covers conversation-store errors.
	FailureSessionStore FailureKind = "session_store_failed"

	// FailureCanceled covers context cancellation and the total-turn
	// deadline.
	FailureCanceled FailureKind = "turn_canceled"
)

// TurnError is the structured error returned for turn-level failures:
// a taxonomy label, a human-readable message, and a timestamp. The raw
// cause is wrapped, never the sole payload.
type TurnError struct {
	Kind      FailureKind
	Message   string
	Timestamp time.Time
	Err       error
}

// Error implements error.
func (e *TurnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *TurnError) Unwrap() error { return e.Err }
