// ABOUTME: Tests for the streaming assembler state machine
// ABOUTME: Covers cumulative accumulation, stale-frame rejection, and cancel races

package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlabs/cohort/internal/convstore"
	"github.com/cohortlabs/cohort/internal/model"
	"github.com/cohortlabs/cohort/internal/wire"
)

const conv = "agent:p1:ada"

func newAssembler(t *testing.T) (*Assembler, *convstore.Store) {
	t.Helper()
	store := convstore.New(nil)
	return New(store, nil), store
}

func started(id string) wire.StreamingStarted {
	return wire.StreamingStarted{
		ConversationID: conv,
		MessageID:      id,
		AgentID:        "ada",
		AgentName:      "Ada",
	}
}

func TestAssembler_AccumulatesCumulativeContent(t *testing.T) {
	a, store := newAssembler(t)

	a.Start(started("X"))
	a.Chunk(wire.StreamingChunk{MessageID: "X", Chunk: "Hi", AccumulatedContent: "Hi"})
	a.Chunk(wire.StreamingChunk{MessageID: "X", Chunk: " there", AccumulatedContent: "Hi there"})
	a.Complete(wire.StreamingCompleted{MessageID: "X"})

	m, ok := store.Find(conv, "X")
	require.True(t, ok)
	assert.Equal(t, "Hi there", m.Content)
	assert.False(t, m.Streaming)
	assert.Equal(t, model.StatusDelivered, m.Status)
}

func TestAssembler_Start_CreatesStreamingPlaceholder(t *testing.T) {
	a, store := newAssembler(t)

	a.Start(started("X"))

	m, ok := store.Find(conv, "X")
	require.True(t, ok)
	assert.Empty(t, m.Content)
	assert.True(t, m.Streaming)
	assert.Equal(t, model.StatusStreaming, m.Status)
	assert.Equal(t, model.MessageTypeAgent, m.Type)
	assert.Equal(t, "Ada", m.SenderName)
}

func TestAssembler_StaleChunkIgnored(t *testing.T) {
	a, store := newAssembler(t)

	a.Start(started("X"))
	a.Chunk(wire.StreamingChunk{MessageID: "X", AccumulatedContent: "keep"})
	a.Chunk(wire.StreamingChunk{MessageID: "Y", AccumulatedContent: "ignored"})

	m, _ := store.Find(conv, "X")
	assert.Equal(t, "keep", m.Content)
	_, found := store.Find(conv, "Y")
	assert.False(t, found)
}

func TestAssembler_CancelActive_ClearsImmediately(t *testing.T) {
	a, store := newAssembler(t)

	a.Start(started("X"))
	a.Chunk(wire.StreamingChunk{MessageID: "X", AccumulatedContent: "partial"})

	id, ok := a.CancelActive(conv)
	require.True(t, ok)
	assert.Equal(t, "X", id)

	_, active := a.Active(conv)
	assert.False(t, active)

	m, _ := store.Find(conv, "X")
	assert.False(t, m.Streaming)
	assert.Equal(t, "partial", m.Content)
}

func TestAssembler_LateFramesAfterCancelAreNoOps(t *testing.T) {
	a, store := newAssembler(t)

	a.Start(started("X"))
	a.Chunk(wire.StreamingChunk{MessageID: "X", AccumulatedContent: "partial"})
	_, ok := a.CancelActive(conv)
	require.True(t, ok)

	// The server's confirmation and straggler chunks arrive after the
	// local cancel already cleared the tracked id.
	a.Chunk(wire.StreamingChunk{MessageID: "X", AccumulatedContent: "partial plus more"})
	a.Cancelled(wire.StreamingCancelled{MessageID: "X"})

	m, _ := store.Find(conv, "X")
	assert.Equal(t, "partial", m.Content)
}

func TestAssembler_CancelActive_NoStream(t *testing.T) {
	a, _ := newAssembler(t)

	_, ok := a.CancelActive(conv)
	assert.False(t, ok)
}

func TestAssembler_IndependentConversations(t *testing.T) {
	a, store := newAssembler(t)
	other := "agent:p1:lin"

	a.Start(started("X"))
	a.Start(wire.StreamingStarted{ConversationID: other, MessageID: "Y", AgentID: "lin"})

	a.Chunk(wire.StreamingChunk{MessageID: "X", AccumulatedContent: "for ada"})
	a.Chunk(wire.StreamingChunk{MessageID: "Y", AccumulatedContent: "for lin"})

	mx, _ := store.Find(conv, "X")
	my, _ := store.Find(other, "Y")
	assert.Equal(t, "for ada", mx.Content)
	assert.Equal(t, "for lin", my.Content)
}

func TestAssembler_SecondStartSupersedes(t *testing.T) {
	a, store := newAssembler(t)

	a.Start(started("X"))
	a.Start(started("Y"))

	// X is finalized, Y is now the active stream.
	mx, _ := store.Find(conv, "X")
	assert.False(t, mx.Streaming)

	id, ok := a.Active(conv)
	require.True(t, ok)
	assert.Equal(t, "Y", id)

	a.Chunk(wire.StreamingChunk{MessageID: "X", AccumulatedContent: "stale"})
	mx, _ = store.Find(conv, "X")
	assert.Empty(t, mx.Content)
}

func TestAssembler_DuplicateStartedFrame(t *testing.T) {
	a, store := newAssembler(t)

	a.Start(started("X"))
	a.Chunk(wire.StreamingChunk{MessageID: "X", AccumulatedContent: "partial"})
	// Redelivered started frame for the same id must not reset content.
	a.Start(started("X"))

	m, _ := store.Find(conv, "X")
	assert.Equal(t, "partial", m.Content)

	id, ok := a.Active(conv)
	require.True(t, ok)
	assert.Equal(t, "X", id)
}
