package handoff

import (
	"sort"
	"sync"
	"time"
)

// Queue manages handoffs between roles. All operations are safe for
// concurrent use. Lookups for unknown ids return false or empty results,
// never errors.
type Queue struct {
	mu       sync.RWMutex
	handoffs map[string]*Handoff
	order    map[string]int // insertion order, tiebreaker within a priority
	seq      int
}

// NewQueue creates an empty handoff queue.
func NewQueue() *Queue {
	return &Queue{
		handoffs: make(map[string]*Handoff),
		order:    make(map[string]int),
	}
}

// Create registers a new pending handoff and returns it.
func (q *Queue) Create(from, to string, ctx Context, priority Priority) *Handoff {
	q.mu.Lock()
	defer q.mu.Unlock()

	h := newHandoff(from, to, ctx, priority)
	q.handoffs[h.ID] = h
	q.order[h.ID] = q.seq
	q.seq++
	return copyHandoff(h)
}

// Get returns the handoff with the given id.
func (q *Queue) Get(id string) (*Handoff, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	h, ok := q.handoffs[id]
	if !ok {
		return nil, false
	}
	return copyHandoff(h), true
}

// ListPending returns pending handoffs at or above minPriority, sorted by
// priority then insertion order. An empty toRole matches every target.
func (q *Queue) ListPending(toRole string, minPriority Priority) []*Handoff {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var pending []*Handoff
	for _, h := range q.handoffs {
		if h.Status != StatusPending {
			continue
		}
		if toRole != "" && h.ToRole != toRole {
			continue
		}
		if h.Priority > minPriority {
			continue
		}
		pending = append(pending, copyHandoff(h))
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority < pending[j].Priority
		}
		return q.order[pending[i].ID] < q.order[pending[j].ID]
	})
	return pending
}

// UpdateStatus moves a handoff to a new state, optionally recording a result
// or error. It returns false when the id is unknown or the handoff already
// reached a terminal state.
func (q *Queue) UpdateStatus(id string, status Status, result, errMsg string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	h, ok := q.handoffs[id]
	if !ok || h.Status.IsTerminal() {
		return false
	}

	h.Status = status
	h.UpdatedAt = time.Now()
	if result != "" {
		h.Result = result
	}
	if errMsg != "" {
		h.Error = errMsg
	}
	return true
}

// Cancel marks a pending handoff cancelled.
func (q *Queue) Cancel(id string) bool {
	return q.UpdateStatus(id, StatusCancelled, "", "")
}

// ContextsFor returns the contexts of all pending handoffs targeting role.
func (q *Queue) ContextsFor(role string) []Context {
	pending := q.ListPending(role, PriorityLow)
	contexts := make([]Context, 0, len(pending))
	for _, h := range pending {
		contexts = append(contexts, h.Context)
	}
	return contexts
}

// ListByRoles filters handoffs by source and/or target role. Empty strings
// match everything.
func (q *Queue) ListByRoles(fromRole, toRole string) []*Handoff {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []*Handoff
	for _, h := range q.handoffs {
		if fromRole != "" && h.FromRole != fromRole {
			continue
		}
		if toRole != "" && h.ToRole != toRole {
			continue
		}
		out = append(out, copyHandoff(h))
	}
	sort.Slice(out, func(i, j int) bool {
		return q.order[out[i].ID] < q.order[out[j].ID]
	})
	return out
}

// PendingCount returns the number of pending handoffs.
func (q *Queue) PendingCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	count := 0
	for _, h := range q.handoffs {
		if h.Status == StatusPending {
			count++
		}
	}
	return count
}

// Clear drops all handoffs. Used between independent pipeline runs.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handoffs = make(map[string]*Handoff)
	q.order = make(map[string]int)
	q.seq = 0
}

func copyHandoff(h *Handoff) *Handoff {
	c := *h
	return &c
}
