// Package document tracks the workspace documents sent as extra context
// with every completion request.
package document

import (
	"sync"

	"inlinesuggest/logger"
	"inlinesuggest/types"
)

// Tracker holds the current set of other documents.
// The set is replaced wholesale; callers only ever see immutable snapshots.
type Tracker struct {
	mu        sync.RWMutex
	documents []types.Document
	limit     int
}

// NewTracker creates a tracker seeded with the initial documents
func NewTracker(initial []types.Document) *Tracker {
	t := &Tracker{limit: types.MaxOtherDocuments}
	t.Update(initial)
	return t
}

// Update replaces the tracked set. Only the first MaxOtherDocuments entries
// are kept, in the order given; the rest are dropped.
func (t *Tracker) Update(documents []types.Document) {
	kept := documents
	if len(kept) > t.limit {
		logger.Debug("document tracker: dropping %d documents over the limit of %d", len(kept)-t.limit, t.limit)
		kept = kept[:t.limit]
	}

	next := make([]types.Document, len(kept))
	copy(next, kept)

	t.mu.Lock()
	t.documents = next
	t.mu.Unlock()
}

// Snapshot returns the current set. The returned slice is never mutated by
// the tracker, so in-flight requests keep the set they captured.
func (t *Tracker) Snapshot() []types.Document {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.documents
}

// Len returns the number of tracked documents
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.documents)
}
