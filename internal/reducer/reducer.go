package reducer

import (
	"log"
	"sync"
	"time"

	"examwatch/pkg/events"
)

// Reducer is the single authority over per-session exam state. Readers
// from many connections submit parsed envelopes through Apply; all
// mutation happens under one mutex so no caller ever observes a
// half-applied event. Reads hand out deep copies.
//
// Events are not globally ordered across sessions, so every mutation is
// written to tolerate reordering: counters only accumulate,
// answered_count is clamped to its high-water mark, and the status
// machine refuses transitions the current state does not allow.
type Reducer struct {
	mu             sync.RWMutex
	sessions       map[string]*events.SessionState
	byStudent      map[string]string // studentID -> active sessionID
	totalQuestions int
}

// New creates a reducer. totalQuestions comes from the exam metadata
// provider, queried once before monitoring starts.
func New(totalQuestions int) *Reducer {
	return &Reducer{
		sessions:       make(map[string]*events.SessionState),
		byStudent:      make(map[string]string),
		totalQuestions: totalQuestions,
	}
}

// Apply folds one envelope into session state. Never blocks on I/O and
// never fails: events that are not applicable in the current state are
// ignored, which is the expected outcome of out-of-order delivery.
// Implements interfaces.EnvelopeSink.
func (r *Reducer) Apply(env *events.Envelope) {
	if env == nil || env.SessionID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.ensure(env.SessionID, env.StudentID)
	if !env.Timestamp.IsZero() {
		s.LastActivityAt = env.Timestamp
	}

	switch env.MessageType {
	case events.MessageTypeViolationEvent:
		r.applyViolation(s, env.Violation)
	case events.MessageTypeExamActivity:
		r.applyActivity(s, env.Activity)
	case events.MessageTypeSessionStatus:
		r.applyStatus(s, env.Status, env.Timestamp)
	case events.MessageTypeStudentJoin:
		r.applyJoin(s, env)
	case events.MessageTypeStudentLeave:
		r.applyLeave(s)
	}
}

// applyViolation increments the monotonic counters. Order independent:
// counting is commutative, so a late low-severity event after an early
// critical one lands on the same totals.
func (r *Reducer) applyViolation(s *events.SessionState, p *events.ViolationPayload) {
	if p == nil {
		return
	}
	s.ViolationCount++
	if p.Severity == events.SeverityCritical {
		s.CriticalViolationCount++
	}
}

// applyActivity handles answer progress. answers uses last-write-wins by
// arrival order; answered_count never regresses below its high-water mark.
func (r *Reducer) applyActivity(s *events.SessionState, p *events.ActivityPayload) {
	if p == nil {
		return
	}

	switch p.Kind {
	case events.ActivityAnswerChanged:
		if p.QuestionID == "" {
			return
		}
		if s.Answers == nil {
			s.Answers = make(map[string]string)
		}
		s.Answers[p.QuestionID] = p.NewValue

		answered := 0
		for _, v := range s.Answers {
			if v != "" {
				answered++
			}
		}
		if answered > s.AnsweredCount {
			s.AnsweredCount = answered
		}

	case events.ActivityAutoSave:
		// Trusted upstream snapshot: the larger value wins.
		if p.AnsweredCount > s.AnsweredCount {
			s.AnsweredCount = p.AnsweredCount
		}

	default:
		log.Printf("Ignoring unknown activity kind: session=%s kind=%q", s.SessionID, p.Kind)
	}
}

// applyStatus runs the exam-status machine. Only the listed transitions
// fire; anything else leaves the state untouched. submitted is terminal.
func (r *Reducer) applyStatus(s *events.SessionState, p *events.StatusPayload, ts time.Time) {
	if p == nil {
		return
	}

	switch p.Status {
	case events.StatusStarted:
		if s.ExamStatus == events.ExamOnline {
			s.ExamStatus = events.ExamExamming
			if s.StartTime.IsZero() {
				if ts.IsZero() {
					ts = time.Now()
				}
				s.StartTime = ts
			}
			// A fresh attempt: prior answers belong to an abandoned one.
			s.Answers = make(map[string]string)
			s.AnsweredCount = 0
		}

	case events.StatusRejoinedPage:
		if s.ExamStatus == events.ExamOnline || s.ExamStatus == events.ExamOffline {
			s.ExamStatus = events.ExamExamming
		}

	case events.StatusLeftPage:
		if s.ExamStatus == events.ExamExamming {
			s.ExamStatus = events.ExamOffline
		}

	case events.StatusSubmitted:
		if s.ExamStatus == events.ExamExamming {
			s.ExamStatus = events.ExamSubmitted
		}

	default:
		log.Printf("Ignoring unknown session status: session=%s status=%q", s.SessionID, p.Status)
	}
}

// applyJoin brings a session online and enforces the one-active-session-
// per-student invariant: a student joining under a new session supersedes
// any previous one, which is downgraded to offline/closed, not deleted.
func (r *Reducer) applyJoin(s *events.SessionState, env *events.Envelope) {
	if env.Roster != nil && env.Roster.DisplayName != "" {
		s.DisplayName = env.Roster.DisplayName
	}
	if env.StudentID != "" {
		s.StudentID = env.StudentID
		if prevID, ok := r.byStudent[env.StudentID]; ok && prevID != s.SessionID {
			if prev, exists := r.sessions[prevID]; exists {
				prev.ConnectionStatus = events.ConnectionClosed
				if prev.ExamStatus != events.ExamSubmitted {
					prev.ExamStatus = events.ExamOffline
				}
			}
		}
		r.byStudent[env.StudentID] = s.SessionID
	}

	if s.ExamStatus != events.ExamSubmitted && s.ExamStatus != events.ExamExamming {
		s.ExamStatus = events.ExamOnline
	}
}

// applyLeave forces the session offline. Progress and violation history
// stay; submitted remains terminal.
func (r *Reducer) applyLeave(s *events.SessionState) {
	s.ConnectionStatus = events.ConnectionClosed
	if s.ExamStatus != events.ExamSubmitted {
		s.ExamStatus = events.ExamOffline
	}
}

// OnTransportConnecting marks the session's transport as connecting.
// Implements interfaces.ConnectionEvents.
func (r *Reducer) OnTransportConnecting(sessionID string) {
	r.setConnection(sessionID, events.ConnectionConnecting, false)
}

// OnTransportOpen marks the session's transport as open.
func (r *Reducer) OnTransportOpen(sessionID string) {
	r.setConnection(sessionID, events.ConnectionOpen, false)
}

// OnTransportClosed marks the transport closed and downgrades the exam
// status to offline: a dropped transport is evidence the student is gone
// even without an explicit leave event.
func (r *Reducer) OnTransportClosed(sessionID string) {
	r.setConnection(sessionID, events.ConnectionClosed, true)
}

// OnTransportError marks the transport errored and downgrades to offline.
func (r *Reducer) OnTransportError(sessionID string) {
	r.setConnection(sessionID, events.ConnectionError, true)
}

func (r *Reducer) setConnection(sessionID string, status events.ConnectionStatus, downgrade bool) {
	if sessionID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.ensure(sessionID, "")
	s.ConnectionStatus = status
	if downgrade && s.ExamStatus != events.ExamSubmitted {
		s.ExamStatus = events.ExamOffline
	}
}

// ensure returns the session record, creating it on first reference.
// Records are never deleted while the monitor lives; a vanished student
// stays visible as offline.
func (r *Reducer) ensure(sessionID, studentID string) *events.SessionState {
	if s, exists := r.sessions[sessionID]; exists {
		if s.StudentID == "" && studentID != "" {
			s.StudentID = studentID
		}
		return s
	}

	s := &events.SessionState{
		SessionID:        sessionID,
		StudentID:        studentID,
		ConnectionStatus: events.ConnectionClosed,
		ExamStatus:       events.ExamOffline,
		Answers:          make(map[string]string),
		TotalQuestions:   r.totalQuestions,
	}
	r.sessions[sessionID] = s
	return s
}

// Snapshot returns deep copies of every session record. Safe to hand to
// the statistics engine or serialize while reduction continues.
func (r *Reducer) Snapshot() []*events.SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*events.SessionState, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	return out
}

// GetSession returns a copy of one session record.
func (r *Reducer) GetSession(sessionID string) (*events.SessionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[sessionID]
	if !exists {
		return nil, false
	}
	return s.Clone(), true
}

// SessionCount returns the number of tracked sessions.
func (r *Reducer) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
