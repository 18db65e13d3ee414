// ABOUTME: Collapse state for thread presentation, tracked apart from reconstruction

package thread

import "sync"

// CollapseSet tracks which thread roots the user has collapsed. It only
// affects presentation; reconstruction never consults it.
type CollapseSet struct {
	mu        sync.Mutex
	collapsed map[string]struct{}
}

// NewCollapseSet returns an empty collapse set.
func NewCollapseSet() *CollapseSet {
	return &CollapseSet{collapsed: make(map[string]struct{})}
}

// Toggle flips the collapse state for a root id and returns the new state.
func (c *CollapseSet) Toggle(rootID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.collapsed[rootID]; ok {
		delete(c.collapsed, rootID)
		return false
	}
	c.collapsed[rootID] = struct{}{}
	return true
}

// Collapsed reports whether a root id is currently collapsed.
func (c *CollapseSet) Collapsed(rootID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.collapsed[rootID]
	return ok
}
