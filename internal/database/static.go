package database

import (
	"context"

	"examwatch/pkg/events"
	"examwatch/pkg/interfaces"
)

// StaticMetadata is an in-memory metadata provider for tests and for
// deployments where exam metadata arrives through configuration instead
// of the store.
type StaticMetadata struct {
	exams map[string]*events.ExamMetadata
}

// NewStaticMetadata creates a provider over a fixed set of exams.
func NewStaticMetadata(exams ...*events.ExamMetadata) *StaticMetadata {
	m := &StaticMetadata{exams: make(map[string]*events.ExamMetadata)}
	for _, exam := range exams {
		m.exams[exam.ExamID] = exam
	}
	return m
}

// GetExamMetadata implements interfaces.MetadataProvider.
func (m *StaticMetadata) GetExamMetadata(_ context.Context, examID string) (*events.ExamMetadata, error) {
	exam, exists := m.exams[examID]
	if !exists {
		return nil, interfaces.ErrExamNotFound
	}
	return exam, nil
}
