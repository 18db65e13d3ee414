// ABOUTME: Turns user submissions into optimistic messages and delivers them
// ABOUTME: Queues frames while disconnected; reconnect flushes the queue in FIFO order

package outbound

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cohortlabs/cohort/internal/convstore"
	"github.com/cohortlabs/cohort/internal/model"
	"github.com/cohortlabs/cohort/internal/wire"
)

// ErrUnknownParent is returned when a reply targets a message that is not in
// the conversation's log.
var ErrUnknownParent = errors.New("reply parent not found")

// Sender is the slice of the realtime channel the pipeline needs.
type Sender interface {
	Connected() bool
	Send(wire.Frame) error
}

// SubmitRequest describes one user submission.
type SubmitRequest struct {
	ConversationID string
	SenderID       string
	SenderName     string
	Content        string
	ReplyToID      string // empty for a new thread root
}

// QueueItem is one not-yet-sent submission. The queue is a single global
// FIFO across all conversations; a reconnect flush replays strictly in
// submission order.
type QueueItem struct {
	LocalMessageID string
	Frame          wire.SendMessageStreaming
	SubmittedAt    time.Time
}

// Pipeline records submissions optimistically and delivers them when the
// channel allows. Record first, then act: the message is in the store with
// status Sending before any network attempt.
type Pipeline struct {
	store  *convstore.Store
	sender Sender
	logger *slog.Logger
	queue  []QueueItem

	now   func() time.Time
	newID func() string
}

// New creates a pipeline writing through the given store and sender.
func New(store *convstore.Store, sender Sender, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:  store,
		sender: sender,
		logger: logger.With("component", "outbound"),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Submit appends an optimistic message and attempts delivery. The returned
// message reflects the post-submit status: Sent on socket hand-off, Sending
// when queued for a later flush, Failed (plus a non-nil error) when the
// write failed while nominally connected.
//
// Sent means handed to the socket, not acknowledged; Delivered only arrives
// via an explicit message_delivered frame.
func (p *Pipeline) Submit(req SubmitRequest) (model.Message, error) {
	msg := model.Message{
		ID:             p.newID(),
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		SenderName:     req.SenderName,
		Type:           model.MessageTypeUser,
		Content:        req.Content,
		Timestamp:      p.now(),
		Status:         model.StatusSending,
	}

	if req.ReplyToID != "" {
		parent, ok := p.store.Find(req.ConversationID, req.ReplyToID)
		if !ok {
			return model.Message{}, fmt.Errorf("%w: %s", ErrUnknownParent, req.ReplyToID)
		}
		msg.ParentMessageID = parent.ID
		msg.ThreadRootID = parent.RootID()
		msg.ThreadDepth = parent.ThreadDepth + 1
	}

	p.store.Append(req.ConversationID, msg)

	frame := wire.SendMessageStreaming{
		ConversationID: req.ConversationID,
		Message:        msg,
	}

	if !p.sender.Connected() {
		p.queue = append(p.queue, QueueItem{
			LocalMessageID: msg.ID,
			Frame:          frame,
			SubmittedAt:    msg.Timestamp,
		})
		p.logger.Debug("submission queued while disconnected",
			"conversation_id", req.ConversationID,
			"message_id", msg.ID,
			"queue_len", len(p.queue))
		return msg, nil
	}

	if err := p.sender.Send(frame); err != nil {
		p.markStatus(req.ConversationID, msg.ID, model.StatusFailed)
		msg.Status = model.StatusFailed
		return msg, fmt.Errorf("sending message %s: %w", msg.ID, err)
	}

	p.markStatus(req.ConversationID, msg.ID, model.StatusSent)
	msg.Status = model.StatusSent
	return msg, nil
}

// Flush resends queued submissions in FIFO order, marking each Sent. It
// stops when the channel drops again, leaving the remainder queued for the
// next reconnect; a send failure on a live channel marks that one message
// Failed and also stops the flush. Returns the number delivered.
func (p *Pipeline) Flush() int {
	sent := 0
	for len(p.queue) > 0 {
		if !p.sender.Connected() {
			break
		}
		item := p.queue[0]
		if err := p.sender.Send(item.Frame); err != nil {
			p.logger.Warn("flush send failed",
				"message_id", item.LocalMessageID,
				"error", err)
			p.markStatus(item.Frame.ConversationID, item.LocalMessageID, model.StatusFailed)
			p.queue = p.queue[1:]
			break
		}
		p.markStatus(item.Frame.ConversationID, item.LocalMessageID, model.StatusSent)
		p.queue = p.queue[1:]
		sent++
	}
	if sent > 0 {
		p.logger.Debug("outbound queue flushed", "sent", sent, "remaining", len(p.queue))
	}
	return sent
}

// Pending returns the number of queued, unsent submissions.
func (p *Pipeline) Pending() int {
	return len(p.queue)
}

func (p *Pipeline) markStatus(conversationID, messageID string, status model.MessageStatus) {
	p.store.Update(conversationID, messageID, convstore.Patch{Status: &status})
}
