// ABOUTME: Tests for the outbound delivery pipeline
// ABOUTME: Covers optimistic statuses, offline queueing, and reconnect flush order

package outbound

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlabs/cohort/internal/convstore"
	"github.com/cohortlabs/cohort/internal/model"
	"github.com/cohortlabs/cohort/internal/wire"
)

// fakeSender records sent frames and simulates connection state.
type fakeSender struct {
	connected bool
	sendErr   error
	frames    []wire.Frame
}

func (f *fakeSender) Connected() bool { return f.connected }

func (f *fakeSender) Send(fr wire.Frame) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, fr)
	return nil
}

const conv = "project:p1"

func req(content, replyTo string) SubmitRequest {
	return SubmitRequest{
		ConversationID: conv,
		SenderID:       "me",
		SenderName:     "Me",
		Content:        content,
		ReplyToID:      replyTo,
	}
}

func TestPipeline_Submit_Connected_MarksSent(t *testing.T) {
	store := convstore.New(nil)
	sender := &fakeSender{connected: true}
	p := New(store, sender, nil)

	msg, err := p.Submit(req("hello", ""))
	require.NoError(t, err)

	// Sent means handed to the socket, not server-acknowledged.
	assert.Equal(t, model.StatusSent, msg.Status)
	assert.Equal(t, 0, msg.ThreadDepth)
	require.Len(t, sender.frames, 1)

	stored, ok := store.Find(conv, msg.ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusSent, stored.Status)
}

func TestPipeline_Submit_Disconnected_Queues(t *testing.T) {
	store := convstore.New(nil)
	sender := &fakeSender{connected: false}
	p := New(store, sender, nil)

	msg, err := p.Submit(req("hello", ""))
	require.NoError(t, err)

	assert.Equal(t, model.StatusSending, msg.Status)
	assert.Equal(t, 1, p.Pending())
	assert.Empty(t, sender.frames)

	// Optimistic append happened regardless
	assert.Equal(t, 1, store.Len(conv))
}

func TestPipeline_Submit_SendError_MarksFailed(t *testing.T) {
	store := convstore.New(nil)
	sender := &fakeSender{connected: true, sendErr: errors.New("socket write failed")}
	p := New(store, sender, nil)

	msg, err := p.Submit(req("hello", ""))
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, msg.Status)

	stored, _ := store.Find(conv, msg.ID)
	assert.Equal(t, model.StatusFailed, stored.Status)
	// No automatic retry: nothing queued
	assert.Equal(t, 0, p.Pending())
}

func TestPipeline_Submit_ReplyComputesThreadFields(t *testing.T) {
	store := convstore.New(nil)
	sender := &fakeSender{connected: true}
	p := New(store, sender, nil)

	rootMsg, err := p.Submit(req("root", ""))
	require.NoError(t, err)

	replyMsg, err := p.Submit(req("first reply", rootMsg.ID))
	require.NoError(t, err)
	assert.Equal(t, rootMsg.ID, replyMsg.ParentMessageID)
	assert.Equal(t, rootMsg.ID, replyMsg.ThreadRootID)
	assert.Equal(t, 1, replyMsg.ThreadDepth)

	nested, err := p.Submit(req("nested reply", replyMsg.ID))
	require.NoError(t, err)
	assert.Equal(t, replyMsg.ID, nested.ParentMessageID)
	assert.Equal(t, rootMsg.ID, nested.ThreadRootID)
	assert.Equal(t, 2, nested.ThreadDepth)
}

func TestPipeline_Submit_UnknownParent(t *testing.T) {
	store := convstore.New(nil)
	p := New(store, &fakeSender{connected: true}, nil)

	_, err := p.Submit(req("reply", "missing"))
	assert.ErrorIs(t, err, ErrUnknownParent)
	assert.Equal(t, 0, store.Len(conv))
}

func TestPipeline_Flush_FIFOAcrossConversations(t *testing.T) {
	store := convstore.New(nil)
	sender := &fakeSender{connected: false}
	p := New(store, sender, nil)

	m1, _ := p.Submit(req("M1", ""))
	m2, _ := p.Submit(SubmitRequest{ConversationID: "agent:p1:ada", SenderID: "me", Content: "M2"})
	m3, _ := p.Submit(req("M3", ""))
	require.Equal(t, 3, p.Pending())

	sender.connected = true
	sent := p.Flush()

	assert.Equal(t, 3, sent)
	assert.Equal(t, 0, p.Pending())
	require.Len(t, sender.frames, 3)

	// Strict submission order, regardless of conversation
	order := []string{}
	for _, f := range sender.frames {
		order = append(order, f.(wire.SendMessageStreaming).Message.Content)
	}
	assert.Equal(t, []string{"M1", "M2", "M3"}, order)

	for _, id := range []string{m1.ID, m3.ID} {
		stored, _ := store.Find(conv, id)
		assert.Equal(t, model.StatusSent, stored.Status)
	}
	stored, _ := store.Find("agent:p1:ada", m2.ID)
	assert.Equal(t, model.StatusSent, stored.Status)
}

func TestPipeline_Flush_StillDisconnected_KeepsQueue(t *testing.T) {
	store := convstore.New(nil)
	sender := &fakeSender{connected: false}
	p := New(store, sender, nil)

	p.Submit(req("M1", ""))

	assert.Equal(t, 0, p.Flush())
	assert.Equal(t, 1, p.Pending())
}

func TestPipeline_Flush_SendError_FailsOneKeepsRest(t *testing.T) {
	store := convstore.New(nil)
	sender := &fakeSender{connected: false}
	p := New(store, sender, nil)

	m1, _ := p.Submit(req("M1", ""))
	p.Submit(req("M2", ""))

	sender.connected = true
	sender.sendErr = errors.New("write failed")
	assert.Equal(t, 0, p.Flush())

	// First item failed and was dropped; the rest wait for the next flush.
	stored, _ := store.Find(conv, m1.ID)
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.Equal(t, 1, p.Pending())

	sender.sendErr = nil
	assert.Equal(t, 1, p.Flush())
	assert.Equal(t, 0, p.Pending())
}
