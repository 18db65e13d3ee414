// ABOUTME: Pure reconstruction of a thread forest from a flat message log
// ABOUTME: Unresolvable replies degrade to orphans; nothing is ever dropped

package thread

import (
	"time"

	"github.com/cohortlabs/cohort/internal/model"
)

// Thread is a root message plus its replies in arrival order. Threads are
// derived views: they are rebuilt in full on every log change and never
// mutated in place.
type Thread struct {
	Root         model.Message
	Replies      []model.Message
	UnreadCount  int
	LastActivity time.Time
}

// Forest is the result of reconstruction. RootOrder preserves the arrival
// order of roots so presentation stays stable across rebuilds.
type Forest struct {
	Threads   map[string]*Thread
	RootOrder []string
	Orphans   []model.Message
}

// Reconstruct partitions a flat log into threads keyed by root id plus an
// orphan list for replies whose declared root is not (yet) in the log.
// lastSeen is the viewer's read marker: replies newer than it count as
// unread. Pass the zero time to count every reply.
//
// Total recomputation is deliberate; conversations are bounded to at most a
// few hundred messages.
func Reconstruct(messages []model.Message, lastSeen time.Time) Forest {
	forest := Forest{Threads: make(map[string]*Thread)}

	for _, m := range messages {
		if !m.IsRoot() {
			continue
		}
		forest.Threads[m.ID] = &Thread{Root: m, LastActivity: m.Timestamp}
		forest.RootOrder = append(forest.RootOrder, m.ID)
	}

	for _, m := range messages {
		if m.IsRoot() {
			continue
		}
		th, ok := forest.Threads[m.RootID()]
		if !ok {
			// Dangling reference: the root was never seen or has not
			// arrived yet. Surface the reply flat rather than lose it.
			forest.Orphans = append(forest.Orphans, m)
			continue
		}
		th.Replies = append(th.Replies, m)
		if m.Timestamp.After(th.LastActivity) {
			th.LastActivity = m.Timestamp
		}
		if m.Timestamp.After(lastSeen) {
			th.UnreadCount++
		}
	}

	return forest
}

// HasUnread reports whether any thread in the forest has unread replies.
func (f Forest) HasUnread() bool {
	for _, th := range f.Threads {
		if th.UnreadCount > 0 {
			return true
		}
	}
	return false
}
