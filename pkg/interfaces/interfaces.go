package interfaces

import (
	"context"

	"examwatch/pkg/events"
)

// EnvelopeSink receives parsed envelopes from the router. The reducer is
// the only production implementation; Apply must be fast and non-blocking
// so it never becomes the fan-in bottleneck.
type EnvelopeSink interface {
	Apply(env *events.Envelope)
}

// ConnectionEvents receives transport lifecycle notifications from the
// connection manager, keyed by session ID. Implementations map these onto
// connection_status (and the offline downgrade of exam_status on
// close/error).
type ConnectionEvents interface {
	OnTransportConnecting(sessionID string)
	OnTransportOpen(sessionID string)
	OnTransportClosed(sessionID string)
	OnTransportError(sessionID string)
}

// RosterHandler reacts to join/leave announcements from the roster channel
// by opening or releasing per-session connections.
type RosterHandler interface {
	OnStudentJoin(entry events.RosterEntry)
	OnStudentLeave(entry events.RosterEntry)
}

// MessageSink consumes raw inbound transport frames. sessionID is empty
// for frames read from the roster connection.
type MessageSink interface {
	HandleMessage(sessionID string, data []byte)
}

// Transport is one established stream of raw messages. Run blocks until
// the stream ends and returns nil on clean close, an error otherwise.
// Close must unblock Run promptly and is safe to call more than once.
type Transport interface {
	Run(onMessage func(data []byte)) error
	Close() error
}

// Dialer establishes a transport to an upstream event channel. The
// credential is an opaque bearer token; this core never inspects it.
type Dialer interface {
	Dial(ctx context.Context, url string, credential string) (Transport, error)
}

// MetadataProvider supplies exam metadata. It is queried once at monitor
// start, never on the event path.
type MetadataProvider interface {
	GetExamMetadata(ctx context.Context, examID string) (*events.ExamMetadata, error)
}

// ViolationArchiver records violation envelopes for post-exam review.
// Implementations must not block the caller; overflow is dropped and
// counted, never propagated.
type ViolationArchiver interface {
	ArchiveViolation(env *events.Envelope)
}
