package memory

import (
	"context"
	"sync"

	"bid-review/decision/analysis"
	"bid-review/pkg/errors"
)

// HistoryStore keeps the most recent analyses in memory.
type HistoryStore struct {
	order    []string
	analyses map[string]*analysis.Analysis
	capacity int
	mu       sync.RWMutex
}

// NewHistoryStore creates a history store that keeps at most capacity
// analyses; older ones are evicted first. A capacity <= 0 means 1000.
func NewHistoryStore(capacity int) *HistoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &HistoryStore{
		analyses: make(map[string]*analysis.Analysis),
		capacity: capacity,
	}
}

// Save records an analysis.
func (h *HistoryStore) Save(ctx context.Context, a *analysis.Analysis) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.analyses[a.ID]; !ok {
		h.order = append(h.order, a.ID)
	}
	h.analyses[a.ID] = a

	for len(h.order) > h.capacity {
		delete(h.analyses, h.order[0])
		h.order = h.order[1:]
	}
	return nil
}

// Get returns a recorded analysis.
func (h *HistoryStore) Get(ctx context.Context, id string) (*analysis.Analysis, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	a, ok := h.analyses[id]
	if !ok {
		return nil, errors.NewAnalysisNotFoundError(id)
	}
	return a, nil
}

// List returns entries newest first.
func (h *HistoryStore) List(ctx context.Context, filter analysis.HistoryFilter) ([]analysis.HistoryEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	limit := filter.EffectiveLimit()
	out := make([]analysis.HistoryEntry, 0, limit)
	for i := len(h.order) - 1; i >= 0 && len(out) < limit; i-- {
		a := h.analyses[h.order[i]]
		if filter.SessionID != "" && a.SessionID != filter.SessionID {
			continue
		}
		out = append(out, a.Entry())
	}
	return out, nil
}

// Ping always succeeds.
func (h *HistoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (h *HistoryStore) Close() error {
	return nil
}
