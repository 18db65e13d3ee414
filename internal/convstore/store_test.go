// ABOUTME: Tests for the in-memory conversation store
// ABOUTME: Covers append dedup, patch merging, ordering, and conversation isolation

package convstore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlabs/cohort/internal/model"
)

func msg(id, content string) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: "conv-1",
		SenderID:       "me",
		Type:           model.MessageTypeUser,
		Content:        content,
		Timestamp:      time.Now(),
		Status:         model.StatusSending,
	}
}

func TestStore_Append_DeduplicatesByID(t *testing.T) {
	s := New(nil)

	assert.True(t, s.Append("conv-1", msg("m1", "first")))
	assert.False(t, s.Append("conv-1", msg("m1", "duplicate")))

	log := s.Get("conv-1")
	require.Len(t, log, 1)
	// Duplicate is dropped, not merged
	assert.Equal(t, "first", log[0].Content)
}

func TestStore_Append_PreservesArrivalOrder(t *testing.T) {
	s := New(nil)

	for i := 0; i < 5; i++ {
		s.Append("conv-1", msg(fmt.Sprintf("m%d", i), fmt.Sprintf("content %d", i)))
	}

	log := s.Get("conv-1")
	require.Len(t, log, 5)
	for i, m := range log {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.ID)
	}
}

func TestStore_Append_ConcurrentSameID_AppliesOnce(t *testing.T) {
	s := New(nil)

	var wg sync.WaitGroup
	applied := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied <- s.Append("conv-1", msg("m1", "racing"))
		}()
	}
	wg.Wait()
	close(applied)

	wins := 0
	for ok := range applied {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, s.Len("conv-1"))
}

func TestStore_Update_MergesFields(t *testing.T) {
	s := New(nil)
	s.Append("conv-1", msg("m1", "hello"))

	status := model.StatusSent
	require.True(t, s.Update("conv-1", "m1", Patch{Status: &status}))

	m, ok := s.Find("conv-1", "m1")
	require.True(t, ok)
	assert.Equal(t, model.StatusSent, m.Status)
	// Unpatched fields are untouched
	assert.Equal(t, "hello", m.Content)
}

func TestStore_Update_UnknownMessage_NoOp(t *testing.T) {
	s := New(nil)
	s.Append("conv-1", msg("m1", "hello"))

	status := model.StatusDelivered
	assert.False(t, s.Update("conv-1", "missing", Patch{Status: &status}))
	assert.False(t, s.Update("missing-conv", "m1", Patch{Status: &status}))

	m, _ := s.Find("conv-1", "m1")
	assert.Equal(t, model.StatusSending, m.Status)
}

func TestStore_Get_UnknownConversation_Empty(t *testing.T) {
	s := New(nil)
	assert.Empty(t, s.Get("never-seen"))
}

func TestStore_Get_ReturnsCopy(t *testing.T) {
	s := New(nil)
	s.Append("conv-1", msg("m1", "original"))

	log := s.Get("conv-1")
	log[0].Content = "mutated"

	m, _ := s.Find("conv-1", "m1")
	assert.Equal(t, "original", m.Content)
}

func TestStore_Ensure_CreatesOnce(t *testing.T) {
	s := New(nil)

	assert.True(t, s.Ensure("conv-1"))
	assert.False(t, s.Ensure("conv-1"))
	assert.Empty(t, s.Get("conv-1"))
}

func TestStore_ConversationsAreIsolated(t *testing.T) {
	s := New(nil)
	s.Append("conv-1", msg("m1", "one"))
	s.Append("conv-2", msg("m2", "two"))

	assert.Equal(t, 1, s.Len("conv-1"))
	assert.Equal(t, 1, s.Len("conv-2"))
	assert.Equal(t, "one", s.Get("conv-1")[0].Content)
	assert.Equal(t, "two", s.Get("conv-2")[0].Content)
}
