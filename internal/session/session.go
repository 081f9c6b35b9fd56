package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Session is the in-memory state of one open WebSocket.
type Session struct {
	ID          string
	UserID      string // set for authenticated connections
	ConnectedAt time.Time

	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closed       atomic.Bool
	closeOnce    sync.Once
}

type Info struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

func newSession(id, userID string, conn *websocket.Conn, writeTimeout time.Duration) *Session {
	return &Session{ID: id, UserID: userID, ConnectedAt: time.Now(), conn: conn, writeTimeout: writeTimeout}
}

func (s *Session) Info() Info {
	return Info{ID: s.ID, UserID: s.UserID, ConnectedAt: s.ConnectedAt}
}

func (s *Session) Closed() bool { return s.closed.Load() }

func (s *Session) markClosed() { s.closed.Store(true) }

// Send writes one JSON record. Writes are serialized; gorilla allows a
// single concurrent writer. A closed session still lets the in-flight
// request finish writing until the socket itself is gone.
func (s *Session) Send(ctx context.Context, out Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteJSON(out)
}

func (s *Session) ping() error {
	deadline := time.Now().Add(s.writeTimeout)
	if s.writeTimeout <= 0 {
		deadline = time.Now().Add(10 * time.Second)
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.markClosed()
		err = s.conn.Close()
	})
	return err
}
