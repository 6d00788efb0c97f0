package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// TestDecodePayload_Violation verifies violation payloads decode into the
// typed variant.
func TestDecodePayload_Violation(t *testing.T) {
	env := Envelope{
		MessageType: MessageTypeViolationEvent,
		Payload:     json.RawMessage(`{"severity":"critical","reason":"tab_switch"}`),
	}

	if err := env.DecodePayload(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if env.Violation == nil {
		t.Fatal("Expected Violation payload to be set")
	}
	if env.Violation.Severity != SeverityCritical {
		t.Errorf("Expected severity critical, got %s", env.Violation.Severity)
	}
	if env.Violation.Reason != "tab_switch" {
		t.Errorf("Expected reason tab_switch, got %s", env.Violation.Reason)
	}
	if env.Activity != nil || env.Status != nil || env.Roster != nil {
		t.Error("Expected only the violation variant to be set")
	}
}

// TestDecodePayload_Activity verifies both activity kinds decode.
func TestDecodePayload_Activity(t *testing.T) {
	env := Envelope{
		MessageType: MessageTypeExamActivity,
		Payload:     json.RawMessage(`{"kind":"answer_changed","question_id":"q1","new_value":"A"}`),
	}

	if err := env.DecodePayload(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if env.Activity == nil {
		t.Fatal("Expected Activity payload to be set")
	}
	if env.Activity.Kind != ActivityAnswerChanged || env.Activity.QuestionID != "q1" || env.Activity.NewValue != "A" {
		t.Errorf("Unexpected activity payload: %+v", env.Activity)
	}

	autoSave := Envelope{
		MessageType: MessageTypeExamActivity,
		Payload:     json.RawMessage(`{"kind":"auto_save","answered_count":7}`),
	}
	if err := autoSave.DecodePayload(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if autoSave.Activity.AnsweredCount != 7 {
		t.Errorf("Expected answered_count 7, got %d", autoSave.Activity.AnsweredCount)
	}
}

// TestDecodePayload_Status verifies session_status payloads decode.
func TestDecodePayload_Status(t *testing.T) {
	env := Envelope{
		MessageType: MessageTypeSessionStatus,
		Payload:     json.RawMessage(`{"status":"started"}`),
	}

	if err := env.DecodePayload(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if env.Status == nil || env.Status.Status != StatusStarted {
		t.Errorf("Expected started status, got %+v", env.Status)
	}
}

// TestDecodePayload_Roster verifies join/leave payloads decode, including
// a leave with an empty payload object.
func TestDecodePayload_Roster(t *testing.T) {
	join := Envelope{
		MessageType: MessageTypeStudentJoin,
		Payload:     json.RawMessage(`{"display_name":"Ada Lovelace"}`),
	}
	if err := join.DecodePayload(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if join.Roster == nil || join.Roster.DisplayName != "Ada Lovelace" {
		t.Errorf("Unexpected roster payload: %+v", join.Roster)
	}

	leave := Envelope{
		MessageType: MessageTypeStudentLeave,
		Payload:     json.RawMessage(`{}`),
	}
	if err := leave.DecodePayload(); err != nil {
		t.Fatalf("Expected no error for empty leave payload, got %v", err)
	}
	if leave.Roster == nil {
		t.Error("Expected roster variant set for leave")
	}
}

// TestDecodePayload_Unrecognized verifies unknown message types return
// the sentinel so callers can count them separately from malformed input.
func TestDecodePayload_Unrecognized(t *testing.T) {
	env := Envelope{
		MessageType: "future_event_type",
		Payload:     json.RawMessage(`{"anything":true}`),
	}

	err := env.DecodePayload()
	if !errors.Is(err, ErrUnrecognizedMessageType) {
		t.Errorf("Expected ErrUnrecognizedMessageType, got %v", err)
	}
}

// TestDecodePayload_MalformedPayload verifies a payload that does not
// match its message type is rejected without panicking.
func TestDecodePayload_MalformedPayload(t *testing.T) {
	env := Envelope{
		MessageType: MessageTypeViolationEvent,
		Payload:     json.RawMessage(`"not an object"`),
	}

	err := env.DecodePayload()
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("Expected ErrMalformedPayload, got %v", err)
	}
}

// TestEnvelope_RosterEntry verifies the ephemeral roster record carries
// the ids and display name.
func TestEnvelope_RosterEntry(t *testing.T) {
	env := Envelope{
		MessageType: MessageTypeStudentJoin,
		StudentID:   "student1",
		SessionID:   "session1",
		Roster:      &RosterPayload{DisplayName: "Ada"},
	}

	entry := env.RosterEntry()
	if entry.StudentID != "student1" || entry.SessionID != "session1" || entry.DisplayName != "Ada" {
		t.Errorf("Unexpected roster entry: %+v", entry)
	}
}

// TestIsValidID verifies the shared ID format rules.
func TestIsValidID(t *testing.T) {
	valid := []string{"s1", "student_01", "exam-42", "A"}
	for _, id := range valid {
		if !IsValidID(id) {
			t.Errorf("Expected %q to be valid", id)
		}
	}

	invalid := []string{"", "has space", "exam!", string(make([]byte, 65))}
	for _, id := range invalid {
		if IsValidID(id) {
			t.Errorf("Expected %q to be invalid", id)
		}
	}
}

// TestEnvelope_Validate verifies structural validation of a decoded
// envelope.
func TestEnvelope_Validate(t *testing.T) {
	env := Envelope{MessageType: MessageTypeViolationEvent, SessionID: "s1"}
	if err := env.Validate(); err != nil {
		t.Errorf("Expected valid envelope, got %v", err)
	}

	missing := Envelope{MessageType: MessageTypeViolationEvent}
	if err := missing.Validate(); !errors.Is(err, ErrMissingSessionID) {
		t.Errorf("Expected ErrMissingSessionID, got %v", err)
	}

	unknown := Envelope{MessageType: "bogus", SessionID: "s1"}
	if err := unknown.Validate(); !errors.Is(err, ErrUnrecognizedMessageType) {
		t.Errorf("Expected ErrUnrecognizedMessageType, got %v", err)
	}
}

// TestSessionState_Clone verifies clones are deep: mutating the clone's
// answers must not touch the original.
func TestSessionState_Clone(t *testing.T) {
	original := &SessionState{
		SessionID: "s1",
		Answers:   map[string]string{"q1": "A"},
	}

	clone := original.Clone()
	clone.Answers["q2"] = "B"

	if len(original.Answers) != 1 {
		t.Errorf("Clone mutation leaked into original: %v", original.Answers)
	}
}

// TestSessionState_ProgressPercent verifies the zero-questions guard.
func TestSessionState_ProgressPercent(t *testing.T) {
	s := &SessionState{AnsweredCount: 5, TotalQuestions: 20}
	if got := s.ProgressPercent(); got != 25 {
		t.Errorf("Expected 25, got %f", got)
	}

	empty := &SessionState{AnsweredCount: 5}
	if got := empty.ProgressPercent(); got != 0 {
		t.Errorf("Expected 0 for unknown total, got %f", got)
	}
}

// TestEnvelope_JSONRoundTrip verifies wire-format field names stay
// stable for the upstream gateway.
func TestEnvelope_JSONRoundTrip(t *testing.T) {
	raw := `{
		"message_type": "violation_event",
		"timestamp": "2026-03-01T10:00:00Z",
		"student_id": "student1",
		"session_id": "session1",
		"exam_id": "exam1",
		"payload": {"severity": "low", "reason": "blur"}
	}`

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if env.MessageType != MessageTypeViolationEvent || env.SessionID != "session1" {
		t.Errorf("Unexpected envelope: %+v", env)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !env.Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, env.Timestamp)
	}
	if err := env.DecodePayload(); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if env.Violation.Severity != SeverityLow {
		t.Errorf("Expected low severity, got %s", env.Violation.Severity)
	}
}
