package events

import "errors"

var (
	ErrMalformedEnvelope       = errors.New("envelope is not valid JSON or fails the wire schema")
	ErrMalformedPayload        = errors.New("payload does not match its message type")
	ErrUnrecognizedMessageType = errors.New("unrecognized message type")
	ErrMissingSessionID        = errors.New("envelope has no session_id")
)
