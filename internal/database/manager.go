package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	dbconfig "examwatch/pkg/database"
	"examwatch/pkg/events"
	"examwatch/pkg/interfaces"
)

// Manager is the sqlite-backed exam metadata provider and violation
// archive. Reads go straight to the pool; all writes funnel through a
// single writer goroutine so sqlite never sees write contention.
//
// The archive sits off the event path: enqueueing never blocks, and an
// overflowing queue drops the record and counts it rather than stalling
// the reducer fan-in.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	dropped int
}

// writeOperation is one queued write. result is nil for fire-and-forget
// archive inserts.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies the sqlite pragmas, ensures the
// schema and starts the writer goroutine.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}
	if err := dbconfig.EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 256),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all writes on one goroutine, retrying a failed
// write once before giving up.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			if op.result != nil {
				op.result <- err
			}

		case <-m.shutdown:
			return
		}
	}
}

// executeWrite queues a write and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// GetExamMetadata returns the metadata row for one exam. Called once at
// monitor start; never on the event path.
// Implements interfaces.MetadataProvider.
func (m *Manager) GetExamMetadata(ctx context.Context, examID string) (*events.ExamMetadata, error) {
	var meta events.ExamMetadata
	err := m.db.QueryRowContext(ctx,
		`SELECT exam_id, title, total_questions FROM exams WHERE exam_id = ?`, examID,
	).Scan(&meta.ExamID, &meta.Title, &meta.TotalQuestions)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load exam metadata: %w", err)
	}
	return &meta, nil
}

// UpsertExam creates or replaces an exam metadata row. Used by operators
// to register an exam before monitoring it.
func (m *Manager) UpsertExam(ctx context.Context, meta *events.ExamMetadata) error {
	if meta == nil || meta.ExamID == "" {
		return ErrInvalidExam
	}
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO exams (exam_id, title, total_questions) VALUES (?, ?, ?)
			 ON CONFLICT(exam_id) DO UPDATE SET title = excluded.title, total_questions = excluded.total_questions`,
			meta.ExamID, meta.Title, meta.TotalQuestions)
		return err
	})
}

// ArchiveViolation records a violation envelope for post-exam review.
// Never blocks: when the queue is full the record is dropped and counted.
// Implements interfaces.ViolationArchiver.
func (m *Manager) ArchiveViolation(env *events.Envelope) {
	if env == nil || env.Violation == nil {
		return
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return
	}
	m.mu.RUnlock()

	record := archiveRecord{
		ID:         uuid.New().String(),
		ExamID:     env.ExamID,
		SessionID:  env.SessionID,
		StudentID:  env.StudentID,
		Severity:   env.Violation.Severity,
		Reason:     env.Violation.Reason,
		OccurredAt: env.Timestamp,
		RecordedAt: time.Now(),
	}

	op := writeOperation{operation: func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO violation_archive (id, exam_id, session_id, student_id, severity, reason, occurred_at, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID, record.ExamID, record.SessionID, record.StudentID,
			record.Severity, record.Reason, record.OccurredAt, record.RecordedAt)
		return err
	}}

	select {
	case m.writeChannel <- op:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
		log.Printf("Archive queue full, dropping violation record: session=%s", env.SessionID)
	}
}

// ArchivedViolation is one archived record as read back for review.
type ArchivedViolation struct {
	ID         string    `json:"id"`
	ExamID     string    `json:"exam_id"`
	SessionID  string    `json:"session_id"`
	StudentID  string    `json:"student_id"`
	Severity   string    `json:"severity"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
	RecordedAt time.Time `json:"recorded_at"`
}

type archiveRecord = ArchivedViolation

// ListArchivedViolations returns archived violations for an exam, most
// recent first.
func (m *Manager) ListArchivedViolations(ctx context.Context, examID string, limit int) ([]*ArchivedViolation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT id, exam_id, session_id, student_id, severity, reason, occurred_at, recorded_at
		 FROM violation_archive WHERE exam_id = ? ORDER BY occurred_at DESC LIMIT ?`,
		examID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived violations: %w", err)
	}
	defer rows.Close()

	var out []*ArchivedViolation
	for rows.Next() {
		var v ArchivedViolation
		if err := rows.Scan(&v.ID, &v.ExamID, &v.SessionID, &v.StudentID,
			&v.Severity, &v.Reason, &v.OccurredAt, &v.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived violation: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// DroppedArchives returns how many archive records were dropped on queue
// overflow.
func (m *Manager) DroppedArchives() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped
}

// Close stops the writer goroutine and closes the pool. Queued archive
// writes that have not started are discarded.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}
