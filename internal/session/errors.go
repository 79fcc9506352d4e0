package session

import (
	"errors"
	"fmt"
)

// ErrInvalidKey is returned by Registry.Resolve for a malformed (empty)
// session key. Caller error, never retried.
var ErrInvalidKey = errors.New("session key must not be empty")

// Reason classifies why a turn failed.
type Reason string

const (
	// ReasonInference means the model call failed and the in-memory
	// transcript was rolled back to its pre-turn state.
	ReasonInference Reason = "inference"

	// ReasonPersistence means the durable write failed. For a completed
	// turn the in-memory transcript still holds the new turn, but a
	// restart before the next successful persist would lose it.
	ReasonPersistence Reason = "persistence"
)

// TurnError reports a failed session operation with enough context for
// the caller to log: the session key, the failure class, and the cause.
type TurnError struct {
	Key    string
	Reason Reason
	Err    error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("session %q: turn failed (%s): %v", e.Key, e.Reason, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// IsPersistenceFailure reports whether err is a TurnError caused by a
// failed durable write.
func IsPersistenceFailure(err error) bool {
	var te *TurnError
	return errors.As(err, &te) && te.Reason == ReasonPersistence
}
