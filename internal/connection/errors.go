package connection

import "errors"

var (
	ErrInvalidSessionID = errors.New("session ID must be 1-64 characters, alphanumeric + underscore/hyphen")
)
