package pipeline

import (
	"sort"
	"sync"
)

// OffenderCount is one row of a ledger snapshot.
type OffenderCount struct {
	Identity string `json:"identity"`
	Count    int    `json:"count"`
}

// Ledger counts flagged comments per identity for the process lifetime.
// Entries are never evicted.
type Ledger struct {
	mu     sync.RWMutex
	counts map[string]int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{counts: make(map[string]int)}
}

// Record registers one flagged comment for identity and returns the number of
// flagged comments recorded for it before this one.
func (l *Ledger) Record(identity string) (prior int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prior = l.counts[identity]
	l.counts[identity] = prior + 1
	return prior
}

// Count returns the number of flagged comments recorded for identity.
func (l *Ledger) Count(identity string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[identity]
}

// Snapshot lists every identity, highest count first, ties by identity.
func (l *Ledger) Snapshot() []OffenderCount {
	l.mu.RLock()
	out := make([]OffenderCount, 0, len(l.counts))
	for id, n := range l.counts {
		out = append(out, OffenderCount{Identity: id, Count: n})
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Identity < out[j].Identity
	})
	return out
}
