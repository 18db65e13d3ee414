// ABOUTME: Tests for the realtime channel against a live websocket server
// ABOUTME: Covers connect callbacks, frame delivery, send failures, and reconnect

package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlabs/cohort/internal/wire"
)

var upgrader = websocket.Upgrader{}

// wsServer is a minimal gateway endpoint the channel can dial.
type wsServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []wire.Frame
	headers  []http.Header
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if frame, err := wire.Decode(data); err == nil {
				s.mu.Lock()
				s.received = append(s.received, frame)
				s.mu.Unlock()
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) push(t *testing.T, f wire.Frame) {
	t.Helper()
	data, err := wire.Encode(f)
	require.NoError(t, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.conns)
	require.NoError(t, s.conns[len(s.conns)-1].WriteMessage(websocket.TextMessage, data))
}

func (s *wsServer) pushRaw(t *testing.T, data []byte) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.conns)
	require.NoError(t, s.conns[len(s.conns)-1].WriteMessage(websocket.TextMessage, data))
}

func (s *wsServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
}

func (s *wsServer) frames() []wire.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Frame, len(s.received))
	copy(out, s.received)
	return out
}

func (s *wsServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestChannel_ConnectFiresCallback(t *testing.T) {
	s := newWSServer(t)

	connected := make(chan struct{}, 4)
	c := New(Options{
		URL:            s.url(),
		OnConnected:    func() { connected <- struct{}{} },
		InitialBackoff: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("OnConnected never fired")
	}
	assert.Equal(t, StateConnected, c.State())
	assert.True(t, c.Connected())
}

func TestChannel_SendReachesServer(t *testing.T) {
	s := newWSServer(t)

	c := New(Options{URL: s.url(), InitialBackoff: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, c.Connected, "channel never connected")
	require.NoError(t, c.Send(wire.JoinConversation{ConversationID: "project:p1"}))

	waitFor(t, func() bool { return len(s.frames()) == 1 }, "frame never arrived")
	assert.Equal(t, wire.JoinConversation{ConversationID: "project:p1"}, s.frames()[0])
}

func TestChannel_SendWhileDisconnected(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1/ws"})
	err := c.Send(wire.JoinConversation{ConversationID: "project:p1"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestChannel_InboundFramesDelivered(t *testing.T) {
	s := newWSServer(t)

	var mu sync.Mutex
	var got []wire.Frame
	c := New(Options{
		URL: s.url(),
		OnFrame: func(f wire.Frame) {
			mu.Lock()
			got = append(got, f)
			mu.Unlock()
		},
		InitialBackoff: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitFor(t, c.Connected, "channel never connected")

	s.push(t, wire.TypingIndicator{ConversationID: "project:p1", AgentID: "ada", IsTyping: true})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "inbound frame never delivered")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, wire.TypingIndicator{ConversationID: "project:p1", AgentID: "ada", IsTyping: true}, got[0])
}

func TestChannel_UndecodableFrameSkipped(t *testing.T) {
	s := newWSServer(t)

	var mu sync.Mutex
	var got []wire.Frame
	c := New(Options{
		URL: s.url(),
		OnFrame: func(f wire.Frame) {
			mu.Lock()
			got = append(got, f)
			mu.Unlock()
		},
		InitialBackoff: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitFor(t, c.Connected, "channel never connected")

	s.pushRaw(t, []byte(`{"type":"mystery"}`))
	s.push(t, wire.StreamingCompleted{MessageID: "m1"})

	// The bad frame is dropped; the good one behind it still arrives.
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "frame after undecodable one never delivered")
	assert.True(t, c.Connected())
}

func TestChannel_ReconnectsAfterDrop(t *testing.T) {
	s := newWSServer(t)

	connections := make(chan struct{}, 8)
	c := New(Options{
		URL:            s.url(),
		OnConnected:    func() { connections <- struct{}{} },
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	<-connections
	s.dropAll()

	select {
	case <-connections:
	case <-time.After(3 * time.Second):
		t.Fatal("channel never reconnected")
	}
	assert.GreaterOrEqual(t, s.connCount(), 2)
}

func TestChannel_PresentsBearerToken(t *testing.T) {
	s := newWSServer(t)

	c := New(Options{URL: s.url(), Token: "secret-token", InitialBackoff: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitFor(t, c.Connected, "channel never connected")

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.headers)
	assert.Equal(t, "Bearer secret-token", s.headers[0].Get("Authorization"))
}

func TestChannel_RunStopsOnCancel(t *testing.T) {
	s := newWSServer(t)

	c := New(Options{URL: s.url(), InitialBackoff: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	waitFor(t, c.Connected, "channel never connected")

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
