package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"examwatch/pkg/events"
	"examwatch/pkg/interfaces"
)

// LogCapacity is how many entries each bounded activity/violation log
// retains, newest first.
const LogCapacity = 50

// Router parses raw inbound frames into envelopes and dispatches them to
// the reducer, the bounded logs, the violation archiver and the roster
// handler. It holds no session state of its own; a frame that cannot be
// parsed is dropped and counted, never fatal.
type Router struct {
	schema   *jsonschema.Schema
	reducer  interfaces.EnvelopeSink
	archiver interfaces.ViolationArchiver

	violations *EventLog
	activity   *EventLog

	mu           sync.RWMutex
	roster       interfaces.RosterHandler
	malformed    int
	unrecognized int
}

// Metrics reports the router's drop counters.
type Metrics struct {
	Malformed    int `json:"malformed"`
	Unrecognized int `json:"unrecognized"`
}

// NewRouter creates a router feeding the given reducer. archiver may be
// nil when post-exam archival is disabled.
func NewRouter(reducer interfaces.EnvelopeSink, archiver interfaces.ViolationArchiver) (*Router, error) {
	schema, err := compileEnvelopeSchema()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaCompile, err)
	}
	return &Router{
		schema:     schema,
		reducer:    reducer,
		archiver:   archiver,
		violations: NewEventLog(LogCapacity),
		activity:   NewEventLog(LogCapacity),
	}, nil
}

// SetRosterHandler wires the connection manager in after construction;
// router and manager reference each other, so one side attaches late.
func (r *Router) SetRosterHandler(h interfaces.RosterHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roster = h
}

// HandleMessage parses one raw frame and dispatches it. sessionID is the
// session whose connection delivered the frame, empty for roster frames;
// it backfills envelopes that omit their session_id.
// Implements interfaces.MessageSink.
func (r *Router) HandleMessage(sessionID string, data []byte) {
	env, err := r.parse(sessionID, data)
	if err != nil {
		switch {
		case errors.Is(err, events.ErrUnrecognizedMessageType):
			r.countUnrecognized()
			log.Printf("Dropping unrecognized message type: session=%q", sessionID)
		default:
			r.countMalformed()
			log.Printf("Dropping malformed message: session=%q err=%v", sessionID, err)
		}
		return
	}

	r.dispatch(env)
}

// parse validates the frame against the wire schema, then decodes the
// envelope and its typed payload.
func (r *Router) parse(sessionID string, data []byte) (*events.Envelope, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, events.ErrMalformedEnvelope
	}
	if err := r.schema.Validate(doc); err != nil {
		return nil, events.ErrMalformedEnvelope
	}

	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, events.ErrMalformedEnvelope
	}
	if env.SessionID == "" {
		env.SessionID = sessionID
	}

	if err := env.DecodePayload(); err != nil {
		return nil, err
	}
	if err := env.Validate(); err != nil {
		if errors.Is(err, events.ErrUnrecognizedMessageType) {
			return nil, err
		}
		return nil, events.ErrMalformedEnvelope
	}
	return &env, nil
}

// dispatch routes a parsed envelope. Log insertion happens before
// reduction but both are non-blocking; neither can stall the reader.
func (r *Router) dispatch(env *events.Envelope) {
	switch env.MessageType {
	case events.MessageTypeViolationEvent:
		r.violations.Append(env)
		r.reducer.Apply(env)
		if r.archiver != nil {
			r.archiver.ArchiveViolation(env)
		}

	case events.MessageTypeExamActivity:
		r.activity.Append(env)
		r.reducer.Apply(env)

	case events.MessageTypeSessionStatus:
		r.reducer.Apply(env)

	case events.MessageTypeStudentJoin:
		r.reducer.Apply(env)
		if h := r.rosterHandler(); h != nil {
			h.OnStudentJoin(env.RosterEntry())
		}

	case events.MessageTypeStudentLeave:
		r.reducer.Apply(env)
		if h := r.rosterHandler(); h != nil {
			h.OnStudentLeave(env.RosterEntry())
		}
	}
}

// ViolationLog returns the retained violation envelopes, newest first.
func (r *Router) ViolationLog() []*events.Envelope {
	return r.violations.Entries()
}

// ActivityLog returns the retained activity envelopes, newest first.
func (r *Router) ActivityLog() []*events.Envelope {
	return r.activity.Entries()
}

// GetMetrics returns the current drop counters.
func (r *Router) GetMetrics() Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Metrics{Malformed: r.malformed, Unrecognized: r.unrecognized}
}

func (r *Router) rosterHandler() interfaces.RosterHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roster
}

func (r *Router) countMalformed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.malformed++
}

func (r *Router) countUnrecognized() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unrecognized++
}
