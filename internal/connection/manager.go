package connection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"examwatch/pkg/events"
	"examwatch/pkg/interfaces"
)

// Manager owns the lifecycle of the roster connection and one connection
// per known active session. It holds no exam state itself; transport
// lifecycle is reported through interfaces.ConnectionEvents and raw frames
// flow into the MessageSink.
//
// Reconnection is event-driven only: a session connection that ends stays
// closed until a fresh roster join asks for it again. No timers, no
// retry storms against students who have genuinely left.
type Manager struct {
	baseURL    string
	examID     string
	credential string
	clientID   string

	dialer interfaces.Dialer
	sink   interfaces.MessageSink
	events interfaces.ConnectionEvents

	mu       sync.Mutex
	roster   *managed
	sessions map[string]*managed
	closed   bool
	wg       sync.WaitGroup
}

// managed tracks one connection from dial through teardown.
type managed struct {
	sessionID string // empty for the roster connection
	cancel    context.CancelFunc
	transport interfaces.Transport // nil until the dial completes
	released  bool
}

// NewManager creates a connection manager for one monitored exam.
// baseURL points at the upstream proctoring gateway, e.g. ws://host/ws.
func NewManager(baseURL, examID, credential string, dialer interfaces.Dialer, sink interfaces.MessageSink, connEvents interfaces.ConnectionEvents) *Manager {
	return &Manager{
		baseURL:    baseURL,
		examID:     examID,
		credential: credential,
		clientID:   uuid.New().String(),
		dialer:     dialer,
		sink:       sink,
		events:     connEvents,
		sessions:   make(map[string]*managed),
	}
}

// OpenRoster opens the single roster connection for the monitored exam.
// Idempotent: a second call while the roster connection exists is a no-op.
func (m *Manager) OpenRoster() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return interfaces.ErrManagerClosed
	}
	if m.roster != nil {
		m.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &managed{cancel: cancel}
	m.roster = entry
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(ctx, entry, m.rosterURL())
	return nil
}

// OpenSession opens a connection for one session. No-op if a connection
// for the session already exists, whether connecting or open.
func (m *Manager) OpenSession(sessionID string) error {
	if !events.IsValidID(sessionID) {
		return ErrInvalidSessionID
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return interfaces.ErrManagerClosed
	}
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &managed{sessionID: sessionID, cancel: cancel}
	m.sessions[sessionID] = entry
	m.wg.Add(1)
	m.mu.Unlock()

	m.events.OnTransportConnecting(sessionID)
	go m.run(ctx, entry, m.sessionURL(sessionID))
	return nil
}

// Close releases the connection for one session. Safe to call for an
// unknown or already-closed session.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	entry, exists := m.sessions[sessionID]
	if !exists || entry.released {
		m.mu.Unlock()
		return
	}
	entry.released = true
	transport := entry.transport
	m.mu.Unlock()

	entry.cancel()
	if transport != nil {
		_ = transport.Close()
	}
}

// CloseAll tears down the roster connection and every session connection,
// and blocks until every reader goroutine has exited. After CloseAll the
// manager refuses further opens; no connection outlives the monitor.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	entries := make([]*managed, 0, len(m.sessions)+1)
	if m.roster != nil {
		entries = append(entries, m.roster)
	}
	for _, entry := range m.sessions {
		entries = append(entries, entry)
	}
	m.mu.Unlock()

	for _, entry := range entries {
		entry.cancel()
		m.mu.Lock()
		entry.released = true
		transport := entry.transport
		m.mu.Unlock()
		if transport != nil {
			_ = transport.Close()
		}
	}

	m.wg.Wait()
}

// OnStudentJoin opens the per-session connection announced by the roster.
// Implements interfaces.RosterHandler.
func (m *Manager) OnStudentJoin(entry events.RosterEntry) {
	if err := m.OpenSession(entry.SessionID); err != nil && !errors.Is(err, interfaces.ErrManagerClosed) {
		log.Printf("Failed to open session connection: session=%s err=%v", entry.SessionID, err)
	}
}

// OnStudentLeave releases the per-session connection for a departed
// student. Implements interfaces.RosterHandler.
func (m *Manager) OnStudentLeave(entry events.RosterEntry) {
	m.Close(entry.SessionID)
}

// ActiveSessions returns the session IDs that currently have a connection,
// connecting or open.
func (m *Manager) ActiveSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// HasSession reports whether a connection exists for the session.
func (m *Manager) HasSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.sessions[sessionID]
	return exists
}

// Stats reports connection counts for the health endpoint.
func (m *Manager) Stats() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	rosterCount := 0
	if m.roster != nil {
		rosterCount = 1
	}
	return map[string]int{
		"roster_connections":  rosterCount,
		"session_connections": len(m.sessions),
	}
}

// run drives one connection from dial through reader exit. Transport
// failures are terminal for this connection; the session's state record
// survives in the reducer and a fresh roster join re-opens it.
func (m *Manager) run(ctx context.Context, entry *managed, target string) {
	defer m.wg.Done()

	transport, err := m.dialer.Dial(ctx, target, m.credential)
	if err != nil {
		if errors.Is(err, interfaces.ErrCredentialRejected) {
			log.Printf("Credential rejected: session=%q url=%s", entry.sessionID, target)
		} else {
			log.Printf("Dial failed: session=%q url=%s err=%v", entry.sessionID, target, err)
		}
		if entry.sessionID != "" {
			m.events.OnTransportError(entry.sessionID)
		}
		m.remove(entry)
		return
	}

	m.mu.Lock()
	if entry.released {
		// Released while the dial was in flight.
		m.mu.Unlock()
		_ = transport.Close()
		m.remove(entry)
		return
	}
	entry.transport = transport
	m.mu.Unlock()

	if entry.sessionID != "" {
		m.events.OnTransportOpen(entry.sessionID)
	}

	sessionID := entry.sessionID
	runErr := transport.Run(func(data []byte) {
		m.sink.HandleMessage(sessionID, data)
	})

	if sessionID != "" {
		if runErr != nil {
			m.events.OnTransportError(sessionID)
		} else {
			m.events.OnTransportClosed(sessionID)
		}
	}
	if runErr != nil {
		log.Printf("Connection ended with error: session=%q err=%v", sessionID, runErr)
	}

	m.remove(entry)
}

// remove drops the entry from the connection set. Only the exact entry is
// removed so a replacement opened after a leave/join cycle is untouched.
func (m *Manager) remove(entry *managed) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.sessionID == "" {
		if m.roster == entry {
			m.roster = nil
		}
		return
	}
	if current, exists := m.sessions[entry.sessionID]; exists && current == entry {
		delete(m.sessions, entry.sessionID)
	}
}

func (m *Manager) rosterURL() string {
	return fmt.Sprintf("%s/roster?exam_id=%s&client_id=%s",
		m.baseURL, url.QueryEscape(m.examID), url.QueryEscape(m.clientID))
}

func (m *Manager) sessionURL(sessionID string) string {
	return fmt.Sprintf("%s/session?session_id=%s&client_id=%s",
		m.baseURL, url.QueryEscape(sessionID), url.QueryEscape(m.clientID))
}
