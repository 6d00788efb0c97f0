package events

import "regexp"

// Compiled once at package initialization; IDs are validated on every dial
// and on every roster announcement.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks the format shared by exam, session and student IDs:
// 1-64 characters, alphanumeric plus underscore/hyphen.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// Validate performs structural checks on a decoded envelope. Roster
// envelopes may omit session_id only when the student never established a
// session; everything else must reference one.
func (e *Envelope) Validate() error {
	if !IsValidMessageType(e.MessageType) {
		return ErrUnrecognizedMessageType
	}
	if e.SessionID == "" {
		return ErrMissingSessionID
	}
	return nil
}
