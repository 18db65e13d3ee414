// ABOUTME: Client actor wiring store, assembler, pipeline, channel, and resolver
// ABOUTME: All state mutation happens on one goroutine consuming typed events

package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cohortlabs/cohort/internal/channel"
	"github.com/cohortlabs/cohort/internal/convstore"
	"github.com/cohortlabs/cohort/internal/dedupe"
	"github.com/cohortlabs/cohort/internal/model"
	"github.com/cohortlabs/cohort/internal/outbound"
	"github.com/cohortlabs/cohort/internal/resolver"
	"github.com/cohortlabs/cohort/internal/streaming"
	"github.com/cohortlabs/cohort/internal/thread"
	"github.com/cohortlabs/cohort/internal/wire"
)

// ErrNoConversation is returned when an operation needs an active
// conversation and none has been selected yet.
var ErrNoConversation = errors.New("no active conversation")

const (
	eventBuffer = 256
	// dedupeTTL bounds how long a redelivered new_message id is remembered
	// beyond the store's own append dedup.
	dedupeTTL  = 10 * time.Minute
	dedupeSize = 4096
)

// Transport is what the actor needs from the realtime channel. The concrete
// implementation is channel.Channel; tests substitute a fake.
type Transport interface {
	Connected() bool
	Send(wire.Frame) error
}

// Config assembles a client.
type Config struct {
	// GatewayURL is the websocket endpoint. Leave empty when a Transport is
	// injected instead (tests, alternative transports).
	GatewayURL string
	Token      string

	UserID   string
	UserName string
	Roster   model.Roster

	// OnUpdate, when set, fires after any state change to the named
	// conversation. Presentation layers hang redraws off it; it runs on the
	// actor goroutine and must not block.
	OnUpdate func(conversationID string)

	Logger *slog.Logger
}

// Client is the conversation core: a single-goroutine actor that owns the
// message logs, the streaming assembler, the outbound pipeline, and the
// active selection. Inbound frames, user submissions, and reconnect
// notifications all enter as events; handlers run strictly one at a time,
// so there is no shared-memory parallelism to guard against.
type Client struct {
	cfg       Config
	logger    *slog.Logger
	store     *convstore.Store
	assembler *streaming.Assembler
	pipeline  *outbound.Pipeline
	resolver  *resolver.Resolver
	seen      *dedupe.Cache
	chann     *channel.Channel
	transport Transport

	events chan event

	// Owned by the actor goroutine.
	active model.Conversation
	typing map[string]map[string]bool // conversation id -> agent id -> typing
}

// New creates a client with a real websocket channel.
func New(cfg Config) *Client {
	c := newClient(cfg)
	c.chann = channel.New(channel.Options{
		URL:         cfg.GatewayURL,
		Token:       cfg.Token,
		OnFrame:     c.Deliver,
		OnConnected: c.NotifyConnected,
		Logger:      cfg.Logger,
	})
	c.bindTransport(c.chann)
	return c
}

// NewWithTransport creates a client over an injected transport. The caller
// is responsible for calling Deliver and NotifyConnected as the transport
// sees frames and connections.
func NewWithTransport(cfg Config, t Transport) *Client {
	c := newClient(cfg)
	c.bindTransport(t)
	return c
}

func newClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := convstore.New(logger)
	return &Client{
		cfg:       cfg,
		logger:    logger.With("component", "client"),
		store:     store,
		assembler: streaming.New(store, logger),
		seen:      dedupe.New(dedupeTTL, dedupeSize),
		events:    make(chan event, eventBuffer),
		typing:    make(map[string]map[string]bool),
	}
}

func (c *Client) bindTransport(t Transport) {
	c.transport = t
	c.pipeline = outbound.New(c.store, t, c.cfg.Logger)
	c.resolver = resolver.New(c.store, t, c.cfg.Logger)
}

// Run starts the channel (when one exists) and processes events until ctx
// is cancelled.
func (c *Client) Run(ctx context.Context) {
	if c.chann != nil {
		go c.chann.Run(ctx)
	}
	defer c.seen.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Deliver feeds an inbound frame into the actor. It is the channel's
// OnFrame callback and the entry point for any alternative transport.
func (c *Client) Deliver(f wire.Frame) {
	c.post(frameEvent{frame: f})
}

// NotifyConnected tells the actor the transport (re)connected. The actor
// flushes the outbound queue, then re-joins the active conversation.
func (c *Client) NotifyConnected() {
	c.post(connectedEvent{})
}

// Select switches the conversation context. The previous conversation's log
// is retained untouched.
func (c *Client) Select(sel resolver.Selection) model.Conversation {
	reply := make(chan model.Conversation, 1)
	c.post(selectEvent{sel: sel, reply: reply})
	return <-reply
}

// Submit sends a message in the active conversation. replyToID may be empty
// to start a new thread.
func (c *Client) Submit(content, replyToID string) (model.Message, error) {
	reply := make(chan submitResult, 1)
	c.post(submitEvent{content: content, replyToID: replyToID, reply: reply})
	res := <-reply
	return res.msg, res.err
}

// CancelStreaming cancels the active stream in the current conversation, if
// any. The local placeholder is finalized immediately; the gateway's late
// confirmation is a no-op thanks to the id-mismatch guard.
func (c *Client) CancelStreaming() bool {
	reply := make(chan bool, 1)
	c.post(cancelEvent{reply: reply})
	return <-reply
}

// Threads reconstructs the active conversation's thread forest. lastSeen is
// the viewer's read marker for unread counts.
func (c *Client) Threads(lastSeen time.Time) thread.Forest {
	reply := make(chan thread.Forest, 1)
	c.post(threadsEvent{lastSeen: lastSeen, reply: reply})
	return <-reply
}

// Messages returns the active conversation's flat log in arrival order.
func (c *Client) Messages() []model.Message {
	reply := make(chan []model.Message, 1)
	c.post(messagesEvent{reply: reply})
	return <-reply
}

// TypingAgents lists agents currently typing in the active conversation.
func (c *Client) TypingAgents() []string {
	reply := make(chan []string, 1)
	c.post(typingQueryEvent{reply: reply})
	return <-reply
}

// Active returns the current conversation identity.
func (c *Client) Active() model.Conversation {
	reply := make(chan model.Conversation, 1)
	c.post(activeQueryEvent{reply: reply})
	return <-reply
}

// Pending returns the number of queued, unsent submissions.
func (c *Client) Pending() int {
	reply := make(chan int, 1)
	c.post(pendingQueryEvent{reply: reply})
	return <-reply
}

func (c *Client) post(ev event) {
	c.events <- ev
}
