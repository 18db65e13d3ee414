// ABOUTME: Connection lifecycle state machine over the gateway websocket
// ABOUTME: Reconnects with jittered exponential backoff and re-delivers inbound frames

package channel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/cohortlabs/cohort/internal/wire"
)

// ErrNotConnected is returned by Send while the channel is not Connected.
var ErrNotConnected = errors.New("channel not connected")

// State is the channel's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Options configures a Channel.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://host:port/ws.
	URL string
	// Token, when set, is presented as a bearer token on dial.
	Token string
	// OnFrame receives every decoded inbound frame.
	OnFrame func(wire.Frame)
	// OnConnected fires each time the channel enters Connected, after the
	// state is visible. Reconnect flush and conversation re-join hang off it.
	OnConnected func()
	// InitialBackoff and MaxBackoff bound the reconnect schedule.
	// Defaults: 500ms and 30s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *slog.Logger
}

// Channel wraps the bidirectional transport in a small state machine:
// Disconnected -> Connecting -> Connected, back to Disconnected on any
// transport error, then a jittered exponential backoff before redialing.
type Channel struct {
	opts   Options
	logger *slog.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	retries int
}

// New creates a channel. Run must be called to start connecting.
func New(opts Options) *Channel {
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		opts:   opts,
		logger: logger.With("component", "channel"),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run drives the connect/read/reconnect loop until ctx is cancelled.
func (c *Channel) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.InitialBackoff
	bo.MaxInterval = c.opts.MaxBackoff
	bo.MaxElapsedTime = 0 // retry forever; jitter comes from RandomizationFactor

	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(StateConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			c.mu.Lock()
			c.state = StateDisconnected
			c.retries++
			retries := c.retries
			c.mu.Unlock()

			wait := bo.NextBackOff()
			c.logger.Debug("dial failed, backing off",
				"error", err,
				"retries", retries,
				"wait", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.state = StateConnected
		c.retries = 0
		c.mu.Unlock()
		bo.Reset()
		c.logger.Info("channel connected", "url", c.opts.URL)

		if c.opts.OnConnected != nil {
			c.opts.OnConnected()
		}

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logger.Info("channel disconnected")

		if !sleep(ctx, bo.NextBackOff()) {
			return
		}
	}
}

// Send encodes a frame and writes it to the socket. Fails fast with
// ErrNotConnected while disconnected; callers queue and retry on reconnect.
func (c *Channel) Send(f wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the channel is currently connected.
func (c *Channel) Connected() bool {
	return c.State() == StateConnected
}

// Retries returns the consecutive failed dial count since the last
// successful connection.
func (c *Channel) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// readLoop pumps inbound frames until the connection drops. Malformed or
// unknown frames are logged and skipped; they never tear the connection
// down or corrupt state.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug("read loop ended", "error", err)
			return
		}

		frame, err := wire.Decode(data)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		if c.opts.OnFrame != nil {
			c.opts.OnFrame(frame)
		}
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// sleep waits for d or until ctx is cancelled; returns false on cancel.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
