package kernel

import "sync"

// Counters tracks round-robin positions by key. Next serves position zero
// first and advances the sequence; callers see each slot in turn, modulo
// the current count.
type Counters struct {
	mu   sync.Mutex
	next map[string]int
}

func NewCounters() *Counters {
	return &Counters{next: make(map[string]int)}
}

// Next returns the slot to serve now for a sequence of n entries.
func (c *Counters) Next(key string, n int) int {
	if n <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.next[key] % n
	c.next[key] = i + 1
	return i
}
