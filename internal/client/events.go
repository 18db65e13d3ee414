// ABOUTME: Typed events consumed by the client actor and their handlers
// ABOUTME: Inbound frames are routed through the exhaustive wire dispatcher

package client

import (
	"time"

	"github.com/cohortlabs/cohort/internal/convstore"
	"github.com/cohortlabs/cohort/internal/model"
	"github.com/cohortlabs/cohort/internal/outbound"
	"github.com/cohortlabs/cohort/internal/resolver"
	"github.com/cohortlabs/cohort/internal/thread"
	"github.com/cohortlabs/cohort/internal/wire"
)

type event interface{ isEvent() }

type frameEvent struct{ frame wire.Frame }
type connectedEvent struct{}

type submitResult struct {
	msg model.Message
	err error
}

type submitEvent struct {
	content   string
	replyToID string
	reply     chan submitResult
}

type selectEvent struct {
	sel   resolver.Selection
	reply chan model.Conversation
}

type cancelEvent struct{ reply chan bool }

type threadsEvent struct {
	lastSeen time.Time
	reply    chan thread.Forest
}

type messagesEvent struct{ reply chan []model.Message }
type typingQueryEvent struct{ reply chan []string }
type activeQueryEvent struct{ reply chan model.Conversation }
type pendingQueryEvent struct{ reply chan int }

func (frameEvent) isEvent()        {}
func (connectedEvent) isEvent()    {}
func (submitEvent) isEvent()       {}
func (selectEvent) isEvent()       {}
func (cancelEvent) isEvent()       {}
func (threadsEvent) isEvent()      {}
func (messagesEvent) isEvent()     {}
func (typingQueryEvent) isEvent()  {}
func (activeQueryEvent) isEvent()  {}
func (pendingQueryEvent) isEvent() {}

func (c *Client) handle(ev event) {
	switch e := ev.(type) {
	case frameEvent:
		if err := wire.DispatchInbound(e.frame, c); err != nil {
			c.logger.Warn("dropping unexpected frame",
				"type", e.frame.FrameType(),
				"error", err)
		}
	case connectedEvent:
		sent := c.pipeline.Flush()
		if sent > 0 {
			c.logger.Info("queued submissions flushed", "sent", sent)
		}
		if c.active.ID != "" {
			if err := c.transport.Send(wire.JoinConversation{ConversationID: c.active.ID}); err != nil {
				c.logger.Warn("re-join after reconnect failed",
					"conversation_id", c.active.ID,
					"error", err)
			}
		}
	case submitEvent:
		if c.active.ID == "" {
			e.reply <- submitResult{err: ErrNoConversation}
			return
		}
		msg, err := c.pipeline.Submit(outbound.SubmitRequest{
			ConversationID: c.active.ID,
			SenderID:       c.cfg.UserID,
			SenderName:     c.cfg.UserName,
			Content:        e.content,
			ReplyToID:      e.replyToID,
		})
		e.reply <- submitResult{msg: msg, err: err}
		c.notify(c.active.ID)
	case selectEvent:
		c.active = c.resolver.Resolve(e.sel, c.cfg.Roster)
		e.reply <- c.active
		c.notify(c.active.ID)
	case cancelEvent:
		if c.active.ID == "" {
			e.reply <- false
			return
		}
		msgID, ok := c.assembler.CancelActive(c.active.ID)
		if ok {
			if err := c.transport.Send(wire.CancelStreaming{MessageID: msgID}); err != nil {
				c.logger.Warn("cancel_streaming send failed",
					"message_id", msgID,
					"error", err)
			}
			c.notify(c.active.ID)
		}
		e.reply <- ok
	case threadsEvent:
		e.reply <- thread.Reconstruct(c.store.Get(c.active.ID), e.lastSeen)
	case messagesEvent:
		e.reply <- c.store.Get(c.active.ID)
	case typingQueryEvent:
		var agents []string
		for agentID, typing := range c.typing[c.active.ID] {
			if typing {
				agents = append(agents, agentID)
			}
		}
		e.reply <- agents
	case activeQueryEvent:
		e.reply <- c.active
	case pendingQueryEvent:
		e.reply <- c.pipeline.Pending()
	}
}

// HandleNewMessage appends an announced message. The store's dedup-by-id
// absorbs both wire redelivery and the echo of this client's own sends
// (same id, minted here); the seen-cache keeps redelivered ids cheap to
// reject after a log would already contain them.
func (c *Client) HandleNewMessage(f wire.NewMessage) {
	msg := f.Message
	if c.seen.SeenAndMark("msg:" + msg.ID) {
		c.logger.Debug("redelivered message skipped", "message_id", msg.ID)
		return
	}
	if msg.Status == "" {
		msg.Status = model.StatusDelivered
	}
	if c.store.Append(msg.ConversationID, msg) {
		c.notify(msg.ConversationID)
	}
}

// HandleMessageDelivered upgrades a sent message to Delivered.
func (c *Client) HandleMessageDelivered(f wire.MessageDelivered) {
	status := model.StatusDelivered
	if c.store.Update(f.ConversationID, f.MessageID, convstore.Patch{Status: &status}) {
		c.notify(f.ConversationID)
	}
}

func (c *Client) HandleStreamingStarted(f wire.StreamingStarted) {
	c.assembler.Start(f)
	c.notify(f.ConversationID)
}

func (c *Client) HandleStreamingChunk(f wire.StreamingChunk) {
	c.assembler.Chunk(f)
	c.notify(c.active.ID)
}

func (c *Client) HandleStreamingCompleted(f wire.StreamingCompleted) {
	c.assembler.Complete(f)
	c.notify(c.active.ID)
}

func (c *Client) HandleStreamingCancelled(f wire.StreamingCancelled) {
	c.assembler.Cancelled(f)
	c.notify(c.active.ID)
}

// HandleTypingIndicator updates the ephemeral typing map. Indicators never
// enter the message log.
func (c *Client) HandleTypingIndicator(f wire.TypingIndicator) {
	agents, ok := c.typing[f.ConversationID]
	if !ok {
		agents = make(map[string]bool)
		c.typing[f.ConversationID] = agents
	}
	if f.IsTyping {
		agents[f.AgentID] = true
	} else {
		delete(agents, f.AgentID)
	}
	c.notify(f.ConversationID)
}

func (c *Client) notify(conversationID string) {
	if c.cfg.OnUpdate != nil && conversationID != "" {
		c.cfg.OnUpdate(conversationID)
	}
}
