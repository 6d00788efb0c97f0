package events

import (
	"encoding/json"
	"time"
)

// Message type constants shared by every component that touches an envelope.
// Values match the upstream proctoring gateway wire format exactly.
const (
	MessageTypeViolationEvent = "violation_event"
	MessageTypeExamActivity   = "exam_activity"
	MessageTypeSessionStatus  = "session_status"
	MessageTypeStudentJoin    = "student_join"
	MessageTypeStudentLeave   = "student_leave"
)

// Session status values carried in a session_status payload.
// Anything else is treated as an unrecognized status and ignored by the reducer.
const (
	StatusStarted      = "started"
	StatusLeftPage     = "left_page"
	StatusRejoinedPage = "rejoined_page"
	StatusSubmitted    = "submitted"
)

// Exam activity kinds carried in an exam_activity payload.
const (
	ActivityAnswerChanged = "answer_changed"
	ActivityAutoSave      = "auto_save"
)

// Violation severity levels. Only critical gets its own counter;
// the rest are folded into the total.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ConnectionStatus is the liveness of one session's transport.
type ConnectionStatus string

const (
	ConnectionConnecting ConnectionStatus = "connecting"
	ConnectionOpen       ConnectionStatus = "open"
	ConnectionClosed     ConnectionStatus = "closed"
	ConnectionError      ConnectionStatus = "error"
)

// ExamStatus is the semantic state of a student within the exam,
// independent of the transport carrying their events.
type ExamStatus string

const (
	ExamOnline    ExamStatus = "online"
	ExamExamming  ExamStatus = "examming"
	ExamOffline   ExamStatus = "offline"
	ExamSubmitted ExamStatus = "submitted"
)

// Envelope is the transport-level event record. It is immutable once
// received; the Payload stays raw until DecodePayload resolves it into
// exactly one of the typed variants below.
type Envelope struct {
	MessageType string          `json:"message_type"`
	Timestamp   time.Time       `json:"timestamp"`
	StudentID   string          `json:"student_id"`
	SessionID   string          `json:"session_id"`
	ExamID      string          `json:"exam_id"`
	Payload     json.RawMessage `json:"payload"`

	// Decoded payload variants. At most one is non-nil after DecodePayload,
	// selected by MessageType.
	Violation *ViolationPayload `json:"-"`
	Activity  *ActivityPayload  `json:"-"`
	Status    *StatusPayload    `json:"-"`
	Roster    *RosterPayload    `json:"-"`
}

// ViolationPayload describes one detected rule breach. The detection
// heuristics live upstream; this core consumes them as opaque signals.
type ViolationPayload struct {
	Severity string `json:"severity"`
	Reason   string `json:"reason"`
}

// ActivityPayload describes answer-progress telemetry.
// AnsweredCount is only meaningful for auto_save, where the student client
// reports an authoritative saved-answer total.
type ActivityPayload struct {
	Kind          string `json:"kind"`
	QuestionID    string `json:"question_id"`
	NewValue      string `json:"new_value"`
	AnsweredCount int    `json:"answered_count"`
}

// StatusPayload carries a session_status transition signal.
type StatusPayload struct {
	Status string `json:"status"`
}

// RosterPayload carries join/leave metadata from the roster channel.
type RosterPayload struct {
	DisplayName string `json:"display_name"`
}

// RosterEntry is the ephemeral record of a join or leave announcement.
// It triggers Connection Manager action and is not retained.
type RosterEntry struct {
	StudentID   string
	SessionID   string
	DisplayName string
}

// ExamMetadata is the per-exam data supplied by the metadata provider,
// queried once at monitor start and never on the event path.
type ExamMetadata struct {
	ExamID         string `json:"exam_id"`
	Title          string `json:"title"`
	TotalQuestions int    `json:"total_questions"`
}

// DecodePayload resolves the raw payload into the typed variant matching
// MessageType. Unknown message types decode nothing and return
// ErrUnrecognizedMessageType so callers can count them separately from
// malformed input.
func (e *Envelope) DecodePayload() error {
	switch e.MessageType {
	case MessageTypeViolationEvent:
		var p ViolationPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return ErrMalformedPayload
		}
		e.Violation = &p
	case MessageTypeExamActivity:
		var p ActivityPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return ErrMalformedPayload
		}
		e.Activity = &p
	case MessageTypeSessionStatus:
		var p StatusPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return ErrMalformedPayload
		}
		e.Status = &p
	case MessageTypeStudentJoin, MessageTypeStudentLeave:
		var p RosterPayload
		if len(e.Payload) > 0 {
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return ErrMalformedPayload
			}
		}
		e.Roster = &p
	default:
		return ErrUnrecognizedMessageType
	}
	return nil
}

// RosterEntry builds the ephemeral roster record for a join/leave envelope.
func (e *Envelope) RosterEntry() RosterEntry {
	entry := RosterEntry{
		StudentID: e.StudentID,
		SessionID: e.SessionID,
	}
	if e.Roster != nil {
		entry.DisplayName = e.Roster.DisplayName
	}
	return entry
}

// IsValidMessageType reports whether the type is one of the five known
// envelope types.
func IsValidMessageType(messageType string) bool {
	switch messageType {
	case MessageTypeViolationEvent,
		MessageTypeExamActivity,
		MessageTypeSessionStatus,
		MessageTypeStudentJoin,
		MessageTypeStudentLeave:
		return true
	default:
		return false
	}
}
