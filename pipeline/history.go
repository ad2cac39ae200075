package pipeline

import "sync"

// DefaultHistorySize is the number of comments kept for prompt context.
const DefaultHistorySize = 10

// History is a bounded FIFO of recent comments. Appends go to the tail; once
// the capacity is exceeded the oldest comments are dropped from the head.
//
// Only the pipeline consumer appends. The mutex exists so that the HTTP status
// endpoint can read Len while comments are being processed.
type History struct {
	mu       sync.RWMutex
	capacity int
	items    []Comment
}

// NewHistory returns an empty history. Capacities below 1 are raised to 1.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{capacity: capacity, items: make([]Comment, 0, capacity+1)}
}

// Append adds c at the tail and evicts from the head while over capacity.
func (h *History) Append(c Comment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, c)
	for len(h.items) > h.capacity {
		h.items[0] = Comment{}
		h.items = h.items[1:]
	}
}

// Snapshot returns a copy of the current contents, oldest first. Callers that
// need "history before the newest comment" must take the snapshot before
// calling Append.
func (h *History) Snapshot() []Comment {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Comment, len(h.items))
	copy(out, h.items)
	return out
}

// Len returns the number of comments currently held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

// Cap returns the configured capacity.
func (h *History) Cap() int { return h.capacity }
