package handoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_CreateAndGet(t *testing.T) {
	q := NewQueue()

	h := q.Create("researcher", "analyst", Context{Reasoning: "follow up on pricing"}, PriorityHigh)
	require.NotEmpty(t, h.ID)
	assert.Equal(t, StatusPending, h.Status)
	assert.Equal(t, "researcher", h.FromRole)
	assert.Equal(t, "analyst", h.ToRole)

	got, ok := q.Get(h.ID)
	require.True(t, ok)
	assert.Equal(t, h.ID, got.ID)

	_, ok = q.Get("no-such-id")
	assert.False(t, ok)
}

func TestQueue_ListPendingOrdering(t *testing.T) {
	q := NewQueue()

	// Insert out of priority order.
	q.Create("a", "worker", Context{Reasoning: "low"}, PriorityLow)
	q.Create("a", "worker", Context{Reasoning: "critical"}, PriorityCritical)
	q.Create("a", "worker", Context{Reasoning: "medium"}, PriorityMedium)
	q.Create("a", "worker", Context{Reasoning: "high"}, PriorityHigh)

	pending := q.ListPending("worker", PriorityLow)
	require.Len(t, pending, 4)

	var order []string
	for _, h := range pending {
		order = append(order, h.Context.Reasoning)
	}
	assert.Equal(t, []string{"critical", "high", "medium", "low"}, order)
}

func TestQueue_ListPendingMinPriority(t *testing.T) {
	q := NewQueue()

	q.Create("a", "worker", Context{}, PriorityLow)
	q.Create("a", "worker", Context{}, PriorityMedium)
	high := q.Create("a", "worker", Context{}, PriorityHigh)
	critical := q.Create("a", "worker", Context{}, PriorityCritical)

	pending := q.ListPending("", PriorityHigh)
	require.Len(t, pending, 2)
	assert.Equal(t, critical.ID, pending[0].ID)
	assert.Equal(t, high.ID, pending[1].ID)
}

func TestQueue_InsertionOrderWithinPriority(t *testing.T) {
	q := NewQueue()

	first := q.Create("a", "worker", Context{}, PriorityMedium)
	second := q.Create("a", "worker", Context{}, PriorityMedium)
	third := q.Create("a", "worker", Context{}, PriorityMedium)

	pending := q.ListPending("worker", PriorityLow)
	require.Len(t, pending, 3)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
	assert.Equal(t, third.ID, pending[2].ID)
}

func TestQueue_StatusTransitions(t *testing.T) {
	q := NewQueue()
	h := q.Create("a", "b", Context{}, PriorityMedium)

	assert.True(t, q.UpdateStatus(h.ID, StatusInProgress, "", ""))
	assert.True(t, q.UpdateStatus(h.ID, StatusCompleted, "done", ""))

	// Terminal states reject further updates.
	assert.False(t, q.UpdateStatus(h.ID, StatusFailed, "", "late"))

	got, ok := q.Get(h.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "done", got.Result)
}

func TestQueue_UpdateUnknownID(t *testing.T) {
	q := NewQueue()
	assert.False(t, q.UpdateStatus("missing", StatusInProgress, "", ""))
	assert.False(t, q.Cancel("missing"))
}

func TestQueue_Cancel(t *testing.T) {
	q := NewQueue()
	h := q.Create("a", "b", Context{}, PriorityLow)

	assert.True(t, q.Cancel(h.ID))
	got, _ := q.Get(h.ID)
	assert.Equal(t, StatusCancelled, got.Status)

	// Cancelled handoffs are no longer pending.
	assert.Empty(t, q.ListPending("b", PriorityLow))
	assert.False(t, q.Cancel(h.ID))
}

func TestQueue_ContextsFor(t *testing.T) {
	q := NewQueue()
	q.Create("a", "analyst", Context{Reasoning: "one"}, PriorityMedium)
	q.Create("a", "analyst", Context{Reasoning: "two"}, PriorityHigh)
	q.Create("a", "other", Context{Reasoning: "three"}, PriorityHigh)

	contexts := q.ContextsFor("analyst")
	require.Len(t, contexts, 2)
	assert.Equal(t, "two", contexts[0].Reasoning)
	assert.Equal(t, "one", contexts[1].Reasoning)
}

func TestQueue_ListByRoles(t *testing.T) {
	q := NewQueue()
	q.Create("a", "x", Context{}, PriorityMedium)
	q.Create("a", "y", Context{}, PriorityMedium)
	q.Create("b", "x", Context{}, PriorityMedium)

	assert.Len(t, q.ListByRoles("a", ""), 2)
	assert.Len(t, q.ListByRoles("", "x"), 2)
	assert.Len(t, q.ListByRoles("b", "x"), 1)
	assert.Len(t, q.ListByRoles("", ""), 3)
}

func TestQueue_Clear(t *testing.T) {
	q := NewQueue()
	q.Create("a", "b", Context{}, PriorityMedium)
	require.Equal(t, 1, q.PendingCount())

	q.Clear()
	assert.Equal(t, 0, q.PendingCount())
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityCritical, ParsePriority("critical"))
	assert.Equal(t, PriorityLow, ParsePriority("low"))
	assert.Equal(t, PriorityMedium, ParsePriority("bogus"))
}
