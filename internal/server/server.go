// ABOUTME: Gateway HTTP surface: websocket sessions, reactions, history, health
// ABOUTME: Inbound frames are dispatched exhaustively; sends are deduped then fanned out

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cohortlabs/cohort/internal/auth"
	"github.com/cohortlabs/cohort/internal/dedupe"
	"github.com/cohortlabs/cohort/internal/model"
	"github.com/cohortlabs/cohort/internal/storage"
	"github.com/cohortlabs/cohort/internal/wire"
)

const (
	// persistTimeout bounds storage writes so persistence survives request
	// context cancellation.
	persistTimeout = 5 * time.Second
	dedupeTTL      = 10 * time.Minute
	dedupeSize     = 8192
)

// Server is the realtime gateway. Clients connect over one websocket,
// join conversations, and exchange the closed frame set; the REST boundary
// carries reactions and history backfill.
type Server struct {
	storage   *storage.Store
	hub       *Hub
	auth      *auth.Authenticator
	responder Responder
	seen      *dedupe.Cache
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // streaming message id -> cancel
}

// New creates a gateway server.
func New(store *storage.Store, authn *auth.Authenticator, responder Responder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")
	return &Server{
		storage:   store,
		hub:       NewHub(logger),
		auth:      authn,
		responder: responder,
		seen:      dedupe.New(dedupeTTL, dedupeSize),
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		cancels: make(map[string]context.CancelFunc),
	}
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWebSocket)
	r.Post("/messages/{id}/reactions", s.handleReaction)
	r.Get("/conversations/{id}/messages", s.handleHistory)
	r.Get("/healthz", s.handleHealth)
	return r
}

// bearerToken extracts the token from the Authorization header or, for
// websocket clients that cannot set headers, the token query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s *Server) authenticate(r *http.Request) (string, bool) {
	token := bearerToken(r)
	if token == "" {
		return "", false
	}
	userID, err := s.auth.Verify(token)
	if err != nil {
		s.logger.Debug("token rejected", "error", err)
		return "", false
	}
	return userID, true
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}

	sess := newSession(uuid.New().String(), userID, conn, s.logger)
	s.hub.Register(sess)
	go sess.writePump()

	s.logger.Info("client connected", "session_id", sess.ID, "user_id", userID)
	s.readLoop(sess, conn)

	s.hub.Remove(sess.ID)
	sess.close()
	conn.Close()
	s.logger.Info("client disconnected", "session_id", sess.ID)
}

// readLoop pumps inbound frames for one session. Undecodable frames are
// logged and skipped; the connection survives protocol noise.
func (s *Server) readLoop(sess *Session, conn *websocket.Conn) {
	handler := &sessionHandler{server: s, session: sess}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := wire.Decode(data)
		if err != nil {
			s.logger.Warn("dropping undecodable frame",
				"session_id", sess.ID,
				"error", err)
			continue
		}
		if err := wire.DispatchOutbound(frame, handler); err != nil {
			s.logger.Warn("dropping unexpected frame",
				"session_id", sess.ID,
				"type", frame.FrameType())
		}
	}
}

// sessionHandler routes one session's outbound frames into the server.
type sessionHandler struct {
	server  *Server
	session *Session
}

func (h *sessionHandler) HandleJoinConversation(f wire.JoinConversation) {
	h.server.hub.Join(f.ConversationID, h.session)
}

func (h *sessionHandler) HandleSendMessageStreaming(f wire.SendMessageStreaming) {
	h.server.acceptMessage(h.session, f)
}

func (h *sessionHandler) HandleCancelStreaming(f wire.CancelStreaming) {
	h.server.cancelStream(f.MessageID)
}

// acceptMessage persists a submitted message, acks it, fans it out, and
// kicks off the streamed agent reply. Redelivered ids (the wire contract is
// at-least-once) are re-acked but not re-persisted or re-broadcast.
func (s *Server) acceptMessage(sess *Session, f wire.SendMessageStreaming) {
	msg := f.Message
	if msg.ConversationID == "" {
		msg.ConversationID = f.ConversationID
	}

	if s.seen.SeenAndMark("send:" + msg.ID) {
		s.logger.Debug("redelivered send re-acked", "message_id", msg.ID)
		sess.send(wire.MessageDelivered{ConversationID: msg.ConversationID, MessageID: msg.ID})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	err := s.storage.AppendMessage(ctx, msg)
	cancel()
	if err != nil {
		s.logger.Error("message persistence failed",
			"message_id", msg.ID,
			"error", err)
		return
	}

	sess.send(wire.MessageDelivered{ConversationID: msg.ConversationID, MessageID: msg.ID})

	echo := msg
	echo.Status = model.StatusDelivered
	s.hub.Broadcast(msg.ConversationID, wire.NewMessage{Message: echo}, sess.ID)

	go s.streamReply(msg.ConversationID, msg)
}

// streamReply drives one agent reply: typing on, streaming_started, chunks
// with cumulative content, completion or cancellation, persistence of the
// final text, typing off.
func (s *Server) streamReply(conversationID string, prompt model.Message) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reply, err := s.responder.Respond(ctx, conversationID, prompt)
	if err != nil {
		s.logger.Error("responder failed",
			"conversation_id", conversationID,
			"error", err)
		return
	}

	messageID := uuid.New().String()
	s.registerCancel(messageID, cancel)
	defer s.unregisterCancel(messageID)

	s.hub.Broadcast(conversationID, wire.TypingIndicator{
		ConversationID: conversationID,
		AgentID:        reply.AgentID,
		IsTyping:       true,
	}, "")
	defer s.hub.Broadcast(conversationID, wire.TypingIndicator{
		ConversationID: conversationID,
		AgentID:        reply.AgentID,
	}, "")

	started := wire.StreamingStarted{
		ConversationID:  conversationID,
		MessageID:       messageID,
		AgentID:         reply.AgentID,
		AgentName:       reply.AgentName,
		ParentMessageID: prompt.ID,
		ThreadRootID:    prompt.RootID(),
		ThreadDepth:     prompt.ThreadDepth + 1,
	}
	s.hub.Broadcast(conversationID, started, "")

	var content, prev string
	cancelled := false
	for {
		select {
		case <-ctx.Done():
			cancelled = true
		case acc, ok := <-reply.Deltas:
			if !ok {
				break
			}
			content = acc
			chunk := strings.TrimPrefix(acc, prev)
			prev = acc
			s.hub.Broadcast(conversationID, wire.StreamingChunk{
				MessageID:          messageID,
				Chunk:              chunk,
				AccumulatedContent: acc,
			}, "")
			continue
		}
		break
	}

	if cancelled {
		s.hub.Broadcast(conversationID, wire.StreamingCancelled{MessageID: messageID}, "")
	} else {
		s.hub.Broadcast(conversationID, wire.StreamingCompleted{MessageID: messageID}, "")
	}

	if content != "" {
		final := model.Message{
			ID:              messageID,
			ConversationID:  conversationID,
			SenderID:        reply.AgentID,
			SenderName:      reply.AgentName,
			Type:            model.MessageTypeAgent,
			Content:         content,
			Timestamp:       time.Now(),
			ParentMessageID: started.ParentMessageID,
			ThreadRootID:    started.ThreadRootID,
			ThreadDepth:     started.ThreadDepth,
		}
		pctx, pcancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := s.storage.AppendMessage(pctx, final); err != nil {
			s.logger.Error("agent message persistence failed",
				"message_id", messageID,
				"error", err)
		}
		pcancel()
	}
}

func (s *Server) cancelStream(messageID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[messageID]
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("cancel for unknown stream ignored", "message_id", messageID)
		return
	}
	cancel()
}

func (s *Server) registerCancel(messageID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[messageID] = cancel
	s.mu.Unlock()
}

func (s *Server) unregisterCancel(messageID string) {
	s.mu.Lock()
	delete(s.cancels, messageID)
	s.mu.Unlock()
}

// reactionRequest is the body of POST /messages/{id}/reactions.
type reactionRequest struct {
	ReactionType string            `json:"reactionType"`
	AgentID      string            `json:"agentId"`
	FeedbackData map[string]string `json:"feedbackData"`
}

func (s *Server) handleReaction(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	messageID := chi.URLParam(r, "id")
	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ReactionType == "" {
		http.Error(w, "reactionType is required", http.StatusBadRequest)
		return
	}

	err := s.storage.SaveReaction(r.Context(), storage.Reaction{
		ID:           uuid.New().String(),
		MessageID:    messageID,
		ReactionType: req.ReactionType,
		AgentID:      req.AgentID,
		Feedback:     req.FeedbackData,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		s.logger.Error("reaction save failed", "message_id", messageID, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID := chi.URLParam(r, "id")
	messages, err := s.storage.Conversation(r.Context(), conversationID)
	if err != nil {
		s.logger.Error("history read failed",
			"conversation_id", conversationID,
			"error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"conversationId": conversationID,
		"messages":       messages,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Close releases server-owned resources.
func (s *Server) Close() {
	s.seen.Close()
}
