package convo

import "errors"

var (
	// ErrSessionNotFound is returned by read-only queries for a session id
	// that has never been written. Appends never return it: the append
	// path creates sessions lazily.
	ErrSessionNotFound = errors.New("session not found")

	// ErrApprovalNotFound is returned when no approval matches the given id.
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrApprovalResolved is returned when resolving an approval that has
	// already reached a terminal status.
	ErrApprovalResolved = errors.New("approval already resolved")

	// ErrEmptySessionID is returned when an operation is given a blank
	// session id.
	ErrEmptySessionID = errors.New("session id must not be empty")
)
