package handoff

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Status represents the lifecycle state of a handoff.
// Allowed transitions: PENDING -> IN_PROGRESS -> {COMPLETED, FAILED} and
// PENDING -> CANCELLED. Terminal states are final.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Priority orders handoffs for processing. Critical sorts first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

var priorityNames = map[Priority]string{
	PriorityCritical: "critical",
	PriorityHigh:     "high",
	PriorityMedium:   "medium",
	PriorityLow:      "low",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "medium"
}

// ParsePriority maps a priority name to its value, defaulting to medium.
func ParsePriority(s string) Priority {
	for p, name := range priorityNames {
		if name == s {
			return p
		}
	}
	return PriorityMedium
}

// Context carries everything the receiving role needs to pick up the work.
type Context struct {
	SourceRecordID   string         `json:"source_record_id,omitempty"`
	Reasoning        string         `json:"reasoning"`
	RelevantData     map[string]any `json:"relevant_data,omitempty"`
	SuggestedActions []string       `json:"suggested_actions,omitempty"`
}

// Handoff is an explicit request from one role to another to pursue
// follow-up work.
type Handoff struct {
	ID        string    `json:"id"`
	FromRole  string    `json:"from_role"`
	ToRole    string    `json:"to_role"`
	Context   Context   `json:"context"`
	Priority  Priority  `json:"priority"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func newHandoff(from, to string, ctx Context, priority Priority) *Handoff {
	now := time.Now()
	return &Handoff{
		ID:        ulid.Make().String(),
		FromRole:  from,
		ToRole:    to,
		Context:   ctx,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
