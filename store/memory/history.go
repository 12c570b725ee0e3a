package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/MrEthical07/authcore/audit"
)

// History is an in-memory audit.Store. Entries are kept per subject in
// history order.
type History struct {
	mu      sync.RWMutex
	entries map[string][]audit.Entry
}

func NewHistory() *History {
	return &History{entries: make(map[string][]audit.Entry)}
}

func (h *History) Append(ctx context.Context, e audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.Movement.Valid() {
		return fmt.Errorf("%w: unknown movement %q", audit.ErrInvalidSnapshot, e.Movement)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.entries[e.SubjectID], e)
	slices.SortStableFunc(list, func(a, b audit.Entry) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	h.entries[e.SubjectID] = list
	return nil
}

func (h *History) Latest(ctx context.Context, subjectID string, movements ...audit.Movement) (audit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return audit.Entry{}, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.entries[subjectID]
	for i := len(list) - 1; i >= 0; i-- {
		if len(movements) == 0 || slices.Contains(movements, list[i].Movement) {
			return list[i], nil
		}
	}
	return audit.Entry{}, audit.ErrNotFound
}

func (h *History) List(ctx context.Context, subjectID string) ([]audit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	return slices.Clone(h.entries[subjectID]), nil
}
