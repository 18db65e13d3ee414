// ABOUTME: Tests for per-conversation session fan-out
// ABOUTME: Covers join targeting, sender exclusion, removal, and slow-session drops

package server

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlabs/cohort/internal/wire"
)

func testSession(id string) *Session {
	return newSession(id, "user-"+id, nil, slog.Default())
}

func drain(s *Session) []wire.Frame {
	var frames []wire.Frame
	for {
		select {
		case data := <-s.out:
			if f, err := wire.Decode(data); err == nil {
				frames = append(frames, f)
			}
		default:
			return frames
		}
	}
}

func TestHub_BroadcastReachesJoinedSessions(t *testing.T) {
	h := NewHub(nil)
	a, b := testSession("a"), testSession("b")
	h.Register(a)
	h.Register(b)
	h.Join("project:p1", a)
	h.Join("project:p1", b)

	h.Broadcast("project:p1", wire.TypingIndicator{ConversationID: "project:p1", AgentID: "ada", IsTyping: true}, "")

	require.Len(t, drain(a), 1)
	require.Len(t, drain(b), 1)
}

func TestHub_BroadcastSkipsOtherConversations(t *testing.T) {
	h := NewHub(nil)
	a, b := testSession("a"), testSession("b")
	h.Register(a)
	h.Register(b)
	h.Join("project:p1", a)
	h.Join("agent:p1:ada", b)

	h.Broadcast("project:p1", wire.StreamingCompleted{MessageID: "m1"}, "")

	assert.Len(t, drain(a), 1)
	assert.Empty(t, drain(b))
}

func TestHub_BroadcastExceptsSender(t *testing.T) {
	h := NewHub(nil)
	a, b := testSession("a"), testSession("b")
	h.Register(a)
	h.Register(b)
	h.Join("project:p1", a)
	h.Join("project:p1", b)

	h.Broadcast("project:p1", wire.StreamingCompleted{MessageID: "m1"}, "a")

	assert.Empty(t, drain(a))
	assert.Len(t, drain(b), 1)
}

func TestHub_RemoveStopsDelivery(t *testing.T) {
	h := NewHub(nil)
	a := testSession("a")
	h.Register(a)
	h.Join("project:p1", a)
	h.Remove("a")

	h.Broadcast("project:p1", wire.StreamingCompleted{MessageID: "m1"}, "")
	assert.Empty(t, drain(a))
}

func TestHub_JoinTwiceIsHarmless(t *testing.T) {
	h := NewHub(nil)
	a := testSession("a")
	h.Register(a)
	h.Join("project:p1", a)
	h.Join("project:p1", a)

	h.Broadcast("project:p1", wire.StreamingCompleted{MessageID: "m1"}, "")
	assert.Len(t, drain(a), 1)
}

func TestHub_SlowSessionDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(nil)
	a := testSession("a")
	h.Register(a)
	h.Join("project:p1", a)

	// Fill the session buffer past capacity; Broadcast must not block.
	for i := 0; i < sessionBuffer+10; i++ {
		h.Broadcast("project:p1", wire.StreamingChunk{MessageID: "m1"}, "")
	}
	assert.Len(t, drain(a), sessionBuffer)
}
