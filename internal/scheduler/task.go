package scheduler

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// TaskStatus tracks a task through the run. Transitions are monotonic:
// PENDING -> RUNNING -> {COMPLETED, FAILED, CANCELLED}.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskCancelled TaskStatus = "CANCELLED"
)

// Executor is a unit of work the scheduler can run. Implementations are
// supplied by the caller; the scheduler only knows the role name and the
// Execute entry point.
type Executor interface {
	Role() string
	Execute(ctx context.Context, input map[string]any) (any, error)
}

// Task pairs an executor with its input and records the outcome.
type Task struct {
	ID       string
	Role     string
	Executor Executor
	Input    map[string]any

	Status     TaskStatus
	Attempts   int
	Output     any
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewTask creates a pending task for the executor.
func NewTask(executor Executor, input map[string]any) *Task {
	return &Task{
		ID:       ulid.Make().String(),
		Role:     executor.Role(),
		Executor: executor,
		Input:    input,
		Status:   TaskPending,
	}
}

// Duration returns the wall time the task spent running, zero until finished.
func (t *Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Result summarizes one scheduler run.
type Result struct {
	Total     int
	Completed int
	Failed    int
	Cancelled int
	Tasks     []*Task
	Duration  time.Duration
}

func (r *Result) record(t *Task) {
	r.Total++
	r.Tasks = append(r.Tasks, t)
	switch t.Status {
	case TaskCompleted:
		r.Completed++
	case TaskCancelled:
		r.Cancelled++
	default:
		r.Failed++
	}
}
