// ABOUTME: One websocket session: outbound write pump and frame send helpers

package server

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cohortlabs/cohort/internal/wire"
)

// sessionBuffer is the per-session outbound queue depth.
const sessionBuffer = 64

// Session is one connected client. Reads happen on the handler goroutine;
// writes are serialized through the out channel and a single write pump.
type Session struct {
	ID     string
	UserID string

	conn   *websocket.Conn
	out    chan []byte
	logger *slog.Logger
	once   sync.Once
}

func newSession(id, userID string, conn *websocket.Conn, logger *slog.Logger) *Session {
	return &Session{
		ID:     id,
		UserID: userID,
		conn:   conn,
		out:    make(chan []byte, sessionBuffer),
		logger: logger.With("session_id", id, "user_id", userID),
	}
}

// writePump drains the out channel onto the socket until close.
func (s *Session) writePump() {
	for data := range s.out {
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("write failed, closing session", "error", err)
			s.conn.Close()
			return
		}
	}
}

// enqueue queues raw bytes for delivery; returns false if the session is
// too far behind and the frame was dropped.
func (s *Session) enqueue(data []byte) bool {
	select {
	case s.out <- data:
		return true
	default:
		return false
	}
}

// send encodes and queues a single frame for this session.
func (s *Session) send(f wire.Frame) {
	data, err := wire.Encode(f)
	if err != nil {
		s.logger.Error("encode failed", "type", f.FrameType(), "error", err)
		return
	}
	if !s.enqueue(data) {
		s.logger.Debug("dropped frame for slow session", "type", f.FrameType())
	}
}

// close shuts the write pump down exactly once.
func (s *Session) close() {
	s.once.Do(func() { close(s.out) })
}
