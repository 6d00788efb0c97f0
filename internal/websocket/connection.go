package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"examwatch/pkg/interfaces"
)

// Config carries transport tuning shared by every dialed connection.
type Config struct {
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
}

// DefaultConfig returns settings tuned for exam-sized rooms: heartbeats
// frequent enough to notice a dropped student within a minute without
// flooding mobile networks.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   64 * 1024,
	}
}

// Dialer dials upstream event channels over websocket with a bearer
// credential. Implements interfaces.Dialer.
type Dialer struct {
	cfg Config
}

// NewDialer creates a websocket dialer with the given transport config.
func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg}
}

// Dial establishes a websocket connection to url. A 401/403 handshake
// response is surfaced as ErrCredentialRejected so the caller can report
// it per-connection without tearing down the rest of the monitor.
func (d *Dialer) Dial(ctx context.Context, url string, credential string) (interfaces.Transport, error) {
	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, interfaces.ErrCredentialRejected
		}
		return nil, err
	}

	return newConn(conn, d.cfg), nil
}

// Conn wraps one websocket stream. Reads happen on the caller's goroutine
// via Run; the ping writer is the only other writer, so control and data
// frames never race.
type Conn struct {
	conn      *websocket.Conn
	cfg       Config
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConn(conn *websocket.Conn, cfg Config) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		conn:   conn,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run reads frames until the stream ends, invoking onMessage for each text
// frame. Returns nil on clean close (peer close frame or local Close),
// an error on abnormal termination. Run always releases the underlying
// socket before returning.
func (c *Conn) Run(onMessage func(data []byte)) error {
	defer c.Close()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return err
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	// Heartbeat writer keeps the read deadline honest across quiet streams.
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(c.cfg.WriteTimeout)
				if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-c.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			// A locally-initiated Close unblocks ReadMessage with an error;
			// that is a clean shutdown, not a transport failure.
			select {
			case <-c.ctx.Done():
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		if messageType == websocket.TextMessage {
			onMessage(data)
		}
	}
}

// Close tears the connection down. Idempotent; unblocks a concurrent Run.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
