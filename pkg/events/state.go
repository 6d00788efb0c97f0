package events

import "time"

// SessionState is the canonical per-student record maintained by the
// reducer, keyed by session ID. Counters are monotonic; AnsweredCount
// never regresses below its high-water mark even when answers are
// re-derived after out-of-order delivery.
type SessionState struct {
	StudentID   string `json:"student_id"`
	SessionID   string `json:"session_id"`
	DisplayName string `json:"display_name"`

	ConnectionStatus ConnectionStatus `json:"connection_status"`
	ExamStatus       ExamStatus       `json:"exam_status"`

	LastActivityAt time.Time `json:"last_activity_at"`

	ViolationCount         int `json:"violation_count"`
	CriticalViolationCount int `json:"critical_violation_count"`

	Answers        map[string]string `json:"answers"`
	AnsweredCount  int               `json:"answered_count"`
	TotalQuestions int               `json:"total_questions"`

	StartTime time.Time `json:"start_time"`
}

// Clone returns a deep copy so snapshot readers never observe a
// partially-updated session.
func (s *SessionState) Clone() *SessionState {
	c := *s
	c.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	return &c
}

// ProgressPercent is this session's answer progress in [0,100].
// Sessions without exam metadata report zero rather than dividing by zero.
func (s *SessionState) ProgressPercent() float64 {
	if s.TotalQuestions <= 0 {
		return 0
	}
	return float64(s.AnsweredCount) / float64(s.TotalQuestions) * 100
}
