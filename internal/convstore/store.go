// ABOUTME: In-memory per-conversation message logs with append-time dedup
// ABOUTME: Order is arrival order; logs live for the process lifetime

package convstore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cohortlabs/cohort/internal/model"
)

// Patch carries the fields Update may merge into an existing message.
// Nil fields are left untouched.
type Patch struct {
	Content   *string
	Status    *model.MessageStatus
	Streaming *bool
	Timestamp *time.Time
	Metadata  map[string]string
}

// conversationLog holds one conversation's messages plus an id index for
// O(1) dedup and updates.
type conversationLog struct {
	messages []*model.Message
	byID     map[string]*model.Message
}

// Store owns every conversation's ordered, de-duplicated message log.
// Conversations are created lazily on first reference and never discarded,
// so switching context back to an earlier conversation is instant.
type Store struct {
	mu     sync.RWMutex
	logs   map[string]*conversationLog
	logger *slog.Logger
}

// New creates an empty store. Pass nil logger for the default.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logs:   make(map[string]*conversationLog),
		logger: logger.With("component", "convstore"),
	}
}

// Ensure creates an empty log for the conversation if it does not exist.
// Returns true if the log was newly created.
func (s *Store) Ensure(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[conversationID]; ok {
		return false
	}
	s.logs[conversationID] = newLog()
	return true
}

// Append adds a message to the tail of the conversation's log. The write is
// idempotent by message id: a duplicate is dropped, not merged, and Append
// returns false. The at-least-once wire contract relies on this.
func (s *Store) Append(conversationID string, msg model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[conversationID]
	if !ok {
		log = newLog()
		s.logs[conversationID] = log
	}

	if _, dup := log.byID[msg.ID]; dup {
		s.logger.Debug("duplicate append dropped",
			"conversation_id", conversationID,
			"message_id", msg.ID)
		return false
	}

	stored := msg
	log.messages = append(log.messages, &stored)
	log.byID[msg.ID] = &stored
	return true
}

// Update merges a patch into an existing message. Unknown ids are logged
// and ignored; updates arriving before (or without) their message are an
// expected race, not an error.
func (s *Store) Update(conversationID, messageID string, patch Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[conversationID]
	if !ok {
		s.logger.Debug("update for unknown conversation",
			"conversation_id", conversationID,
			"message_id", messageID)
		return false
	}
	msg, ok := log.byID[messageID]
	if !ok {
		s.logger.Debug("update for unknown message",
			"conversation_id", conversationID,
			"message_id", messageID)
		return false
	}

	if patch.Content != nil {
		msg.Content = *patch.Content
	}
	if patch.Status != nil {
		msg.Status = *patch.Status
	}
	if patch.Streaming != nil {
		msg.Streaming = *patch.Streaming
	}
	if patch.Timestamp != nil {
		msg.Timestamp = *patch.Timestamp
	}
	for k, v := range patch.Metadata {
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]string)
		}
		msg.Metadata[k] = v
	}
	return true
}

// Get returns the conversation's messages in arrival order. The result is a
// copy; callers may not mutate store state through it. Unknown conversations
// yield an empty slice.
func (s *Store) Get(conversationID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[conversationID]
	if !ok {
		return nil
	}
	out := make([]model.Message, len(log.messages))
	for i, m := range log.messages {
		out[i] = *m
	}
	return out
}

// Find returns a copy of a single message by id.
func (s *Store) Find(conversationID, messageID string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[conversationID]
	if !ok {
		return model.Message{}, false
	}
	msg, ok := log.byID[messageID]
	if !ok {
		return model.Message{}, false
	}
	return *msg, true
}

// Len returns the number of messages in a conversation.
func (s *Store) Len(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[conversationID]
	if !ok {
		return 0
	}
	return len(log.messages)
}

// Conversations lists every conversation id the store has seen.
func (s *Store) Conversations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.logs))
	for id := range s.logs {
		ids = append(ids, id)
	}
	return ids
}

func newLog() *conversationLog {
	return &conversationLog{byID: make(map[string]*model.Message)}
}
