// ABOUTME: Assembles streamed agent replies into messages in the conversation store
// ABOUTME: Tracks one active stream per conversation; frames for any other id are ignored

package streaming

import (
	"log/slog"
	"time"

	"github.com/cohortlabs/cohort/internal/convstore"
	"github.com/cohortlabs/cohort/internal/model"
	"github.com/cohortlabs/cohort/internal/wire"
)

// Assembler merges streaming frames into placeholder messages. At most one
// stream is active per conversation; chunk and completion frames whose
// message id is not the tracked one are discarded. That guard is what makes
// cancellation cheap: after a cancel the late frames simply miss.
type Assembler struct {
	store  *convstore.Store
	logger *slog.Logger
	now    func() time.Time

	active map[string]string // conversation id -> active message id
	conv   map[string]string // active message id -> conversation id
}

// New creates an assembler writing into the given store.
func New(store *convstore.Store, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		store:  store,
		logger: logger.With("component", "streaming"),
		now:    time.Now,
		active: make(map[string]string),
		conv:   make(map[string]string),
	}
}

// Start opens a stream: a placeholder message with empty content and status
// Streaming is appended to the conversation. A stream already active in the
// same conversation is finalized first; the gateway never interleaves two,
// so a second start means we missed the completion frame.
func (a *Assembler) Start(f wire.StreamingStarted) {
	if prev, ok := a.active[f.ConversationID]; ok && prev != f.MessageID {
		a.logger.Warn("new stream superseding unfinished one",
			"conversation_id", f.ConversationID,
			"previous_message_id", prev,
			"message_id", f.MessageID)
		a.finalize(f.ConversationID, prev)
	}

	placeholder := model.Message{
		ID:              f.MessageID,
		ConversationID:  f.ConversationID,
		SenderID:        f.AgentID,
		SenderName:      f.AgentName,
		Type:            model.MessageTypeAgent,
		Content:         "",
		Timestamp:       a.now(),
		Status:          model.StatusStreaming,
		ParentMessageID: f.ParentMessageID,
		ThreadRootID:    f.ThreadRootID,
		ThreadDepth:     f.ThreadDepth,
		Streaming:       true,
	}
	a.store.Append(f.ConversationID, placeholder)

	a.active[f.ConversationID] = f.MessageID
	a.conv[f.MessageID] = f.ConversationID
}

// Chunk applies a cumulative content update to the active stream. The
// transport sends the full accumulated string each time, so the content is
// replaced, never concatenated.
func (a *Assembler) Chunk(f wire.StreamingChunk) {
	convID, ok := a.lookupActive(f.MessageID)
	if !ok {
		a.logger.Debug("chunk for non-active stream ignored", "message_id", f.MessageID)
		return
	}
	content := f.AccumulatedContent
	a.store.Update(convID, f.MessageID, convstore.Patch{Content: &content})
}

// Complete closes the stream normally and finalizes its message.
func (a *Assembler) Complete(f wire.StreamingCompleted) {
	convID, ok := a.lookupActive(f.MessageID)
	if !ok {
		a.logger.Debug("completion for non-active stream ignored", "message_id", f.MessageID)
		return
	}
	a.finalize(convID, f.MessageID)
}

// Cancelled closes the stream after a server-confirmed cancel. If the local
// cancel already cleared the tracked id this is a no-op, which is exactly
// the stale-frame guard doing its job.
func (a *Assembler) Cancelled(f wire.StreamingCancelled) {
	convID, ok := a.lookupActive(f.MessageID)
	if !ok {
		return
	}
	a.finalize(convID, f.MessageID)
}

// CancelActive optimistically clears the conversation's active stream
// without waiting for the gateway's confirmation. It returns the cancelled
// message id so the caller can emit a cancel_streaming frame.
func (a *Assembler) CancelActive(conversationID string) (string, bool) {
	id, ok := a.active[conversationID]
	if !ok {
		return "", false
	}
	a.finalize(conversationID, id)
	return id, true
}

// Active returns the conversation's in-flight stream id, if any.
func (a *Assembler) Active(conversationID string) (string, bool) {
	id, ok := a.active[conversationID]
	return id, ok
}

// lookupActive resolves a message id to its conversation, but only while it
// is the tracked active stream there.
func (a *Assembler) lookupActive(messageID string) (string, bool) {
	convID, ok := a.conv[messageID]
	if !ok {
		return "", false
	}
	if a.active[convID] != messageID {
		return "", false
	}
	return convID, true
}

// finalize marks the stream's message as delivered and stops tracking it.
func (a *Assembler) finalize(conversationID, messageID string) {
	status := model.StatusDelivered
	streaming := false
	a.store.Update(conversationID, messageID, convstore.Patch{
		Status:    &status,
		Streaming: &streaming,
	})
	delete(a.active, conversationID)
	delete(a.conv, messageID)
}
