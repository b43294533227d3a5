package dialectic

import (
	"errors"
	"fmt"
)

// Common errors returned by the dialectic client and learning store.
var (
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrStorageUnavailable is returned when the storage location cannot be
	// reached or written. It is distinct from "no history yet", which is never an error.
	ErrStorageUnavailable = errors.New("learning storage unavailable")

	// ErrInvalidOutcome is returned when an outcome is not success, partial or failure.
	ErrInvalidOutcome = errors.New("invalid outcome")

	// ErrUnknownAgentType is returned when no effectiveness record exists for an agent type.
	ErrUnknownAgentType = errors.New("unknown agent type")

	// ErrSessionRefNotFound is returned when a session reference cannot be resolved.
	ErrSessionRefNotFound = errors.New("session reference not found")

	// ErrInvalidProposal is returned when a proposer response cannot be parsed
	// into agent specs.
	ErrInvalidProposal = errors.New("invalid agent proposal")

	// ErrProposerUnavailable is returned when the proposer could not be reached.
	ErrProposerUnavailable = errors.New("agent proposer unavailable")
)

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ProposalError describes why a proposer response was rejected.
// Index is the offending agent entry, or -1 for the document as a whole.
// Extractable via errors.As(). Supports Unwrap().
type ProposalError struct {
	Index int
	Field string
	Err   error
}

func (e *ProposalError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("proposal: %v", e.Err)
	}
	return fmt.Sprintf("proposal: agents[%d].%s: %v", e.Index, e.Field, e.Err)
}

func (e *ProposalError) Unwrap() error { return e.Err }

// PersistError is returned when a learning record could not be saved.
// Previously committed state is left intact.
// Extractable via errors.As(). Supports Unwrap().
type PersistError struct {
	Record string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Record, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
