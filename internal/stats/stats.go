package stats

import (
	"sort"

	"examwatch/pkg/events"
)

// SnapshotSource provides a consistent copy of the session map. The
// reducer is the production implementation.
type SnapshotSource interface {
	Snapshot() []*events.SessionState
}

// Engine derives roll-up metrics from session state on demand. Nothing is
// maintained incrementally: every call reads a fresh snapshot, so results
// are always internally consistent at O(sessions) per call.
type Engine struct {
	source SnapshotSource
}

// Summary is the full roll-up served to the presentation layer.
type Summary struct {
	TotalStudents          int                       `json:"total_students"`
	ByExamStatus           map[events.ExamStatus]int `json:"by_exam_status"`
	TotalViolations        int                       `json:"total_violations"`
	CriticalViolations     int                       `json:"critical_violations"`
	AverageProgressPercent float64                   `json:"average_progress_percent"`
}

// NewEngine creates a statistics engine over the given snapshot source.
func NewEngine(source SnapshotSource) *Engine {
	return &Engine{source: source}
}

// TotalStudents returns the number of tracked sessions.
func (e *Engine) TotalStudents() int {
	return len(e.source.Snapshot())
}

// CountByExamStatus returns how many sessions are in the given status.
func (e *Engine) CountByExamStatus(status events.ExamStatus) int {
	count := 0
	for _, s := range e.source.Snapshot() {
		if s.ExamStatus == status {
			count++
		}
	}
	return count
}

// TotalViolations sums violation_count across all sessions.
func (e *Engine) TotalViolations() int {
	total := 0
	for _, s := range e.source.Snapshot() {
		total += s.ViolationCount
	}
	return total
}

// AverageProgressPercent is the mean of answered_count/total_questions
// over sessions with known metadata; sessions with zero total_questions
// are excluded from the denominator.
func (e *Engine) AverageProgressPercent() float64 {
	return averageProgress(e.source.Snapshot())
}

// GetSummary computes every roll-up from a single snapshot.
func (e *Engine) GetSummary() Summary {
	snapshot := e.source.Snapshot()

	summary := Summary{
		TotalStudents: len(snapshot),
		ByExamStatus:  make(map[events.ExamStatus]int),
	}
	for _, s := range snapshot {
		summary.ByExamStatus[s.ExamStatus]++
		summary.TotalViolations += s.ViolationCount
		summary.CriticalViolations += s.CriticalViolationCount
	}
	summary.AverageProgressPercent = averageProgress(snapshot)
	return summary
}

// OrderedSessions returns the sessions for display: answered_count
// descending, ties broken by session_id ascending so output is
// deterministic.
func (e *Engine) OrderedSessions() []*events.SessionState {
	snapshot := e.source.Snapshot()
	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].AnsweredCount != snapshot[j].AnsweredCount {
			return snapshot[i].AnsweredCount > snapshot[j].AnsweredCount
		}
		return snapshot[i].SessionID < snapshot[j].SessionID
	})
	return snapshot
}

func averageProgress(snapshot []*events.SessionState) float64 {
	sum := 0.0
	counted := 0
	for _, s := range snapshot {
		if s.TotalQuestions <= 0 {
			continue
		}
		sum += s.ProgressPercent()
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}
