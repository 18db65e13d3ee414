// ABOUTME: TTL seen-key cache backing the at-least-once delivery contract
// ABOUTME: Gateway and client both consult it before acting on a redelivered frame

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry pairs a key's last-seen time with its position in the eviction list.
type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers recently seen message ids so a redelivered frame can be
// recognized and skipped. Entries expire after the TTL; when the size cap
// is hit the oldest entry is evicted in O(1) via the insertion-order list.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // keys oldest-first
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts a background sweeper for expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Seen reports whether the key was marked within the TTL window.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	return ok && time.Since(e.seenAt) < c.ttl
}

// SeenAndMark atomically checks and marks a key. It returns true when the
// key was already seen (the caller should skip the frame) and false when
// the key is new and now recorded. A single call avoids the check/mark race
// two separate calls would allow.
func (c *Cache) SeenAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}
	c.mark(key)
	return false
}

// mark records the key, refreshing it if present. Must hold mu.
func (c *Cache) mark(key string) {
	now := time.Now()

	if e, ok := c.seen[key]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[key] = &entry{seenAt: now, element: c.order.PushBack(key)}
}

// sweep drops expired entries once a minute until Close.
func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, e := range c.seen {
				if now.Sub(e.seenAt) > c.ttl {
					c.order.Remove(e.element)
					delete(c.seen, key)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
