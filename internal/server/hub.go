// ABOUTME: Per-conversation fan-out of frames to joined websocket sessions
// ABOUTME: Slow sessions drop frames rather than stall the rest of the room

package server

import (
	"log/slog"
	"sync"

	"github.com/cohortlabs/cohort/internal/wire"
)

// Hub tracks which sessions joined which conversations and broadcasts
// frames to them. Delivery is best-effort per session: the at-least-once
// wire contract plus client-side dedup make drops recoverable.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]*Session // conversation id -> session id -> session
	logger   *slog.Logger
	sessions map[string]*Session
}

// NewHub creates an empty hub. Pass nil logger for the default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:    make(map[string]map[string]*Session),
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "hub"),
	}
}

// Register makes a session known to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
}

// Join subscribes a session to a conversation. Joining twice is harmless.
func (h *Hub) Join(conversationID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[string]*Session)
		h.rooms[conversationID] = room
	}
	room[s.ID] = s

	h.logger.Debug("session joined conversation",
		"conversation_id", conversationID,
		"session_id", s.ID)
}

// Remove drops a session from every conversation and from the hub.
func (h *Hub) Remove(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sessions, sessionID)
	for convID, room := range h.rooms {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(h.rooms, convID)
		}
	}
}

// Broadcast sends a frame to every session joined to the conversation.
// exceptSessionID, when non-empty, skips that session (used so senders do
// not receive their own new_message echo on top of the delivered ack).
func (h *Hub) Broadcast(conversationID string, f wire.Frame, exceptSessionID string) {
	data, err := wire.Encode(f)
	if err != nil {
		h.logger.Error("broadcast encode failed",
			"type", f.FrameType(),
			"error", err)
		return
	}

	h.mu.RLock()
	room := h.rooms[conversationID]
	targets := make([]*Session, 0, len(room))
	for id, s := range room {
		if exceptSessionID != "" && id == exceptSessionID {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(data) {
			h.logger.Debug("dropped frame for slow session",
				"conversation_id", conversationID,
				"session_id", s.ID,
				"type", f.FrameType())
		}
	}
}
