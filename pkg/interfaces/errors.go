package interfaces

import "errors"

// Shared sentinel errors crossing component boundaries.
var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrCredentialRejected = errors.New("credential rejected by upstream")
	ErrManagerClosed      = errors.New("connection manager is closed")
)
