package pipeline

import (
	"sync"

	"github.com/hyperengineering/resonance/internal/types"
)

// DefaultMaxPending bounds how many unrated sessions are remembered.
const DefaultMaxPending = 256

// pendingSession is a generated session waiting for its rating.
type pendingSession struct {
	AIProfile    types.Profile
	FinalProfile types.Profile
	MusicPrompt  string
	Params       types.GenerationParams
	Variations   int
}

// pendingCache keeps unrated sessions by ID and drops the oldest when full.
type pendingCache struct {
	mu      sync.Mutex
	max     int
	order   []string
	entries map[string]pendingSession
}

func newPendingCache(max int) *pendingCache {
	if max <= 0 {
		max = DefaultMaxPending
	}
	return &pendingCache{max: max, entries: make(map[string]pendingSession)}
}

func (c *pendingCache) put(id string, p pendingSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		c.order = append(c.order, id)
	}
	c.entries[id] = p
	for len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *pendingCache) get(id string) (pendingSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[id]
	return p, ok
}

func (c *pendingCache) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		return
	}
	delete(c.entries, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *pendingCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
