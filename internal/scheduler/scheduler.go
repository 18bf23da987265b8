package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/colonyhq/colony/internal/handoff"
	"github.com/colonyhq/colony/pkg/cerr"
	"github.com/colonyhq/colony/pkg/panicerr"
)

// Classifier decides whether a failed attempt may be retried. Fatal errors
// stop the task immediately regardless of remaining retries.
type Classifier func(err error) bool

// DefaultClassifier retries everything except context cancellation and
// invalid-argument errors, which no retry can fix.
func DefaultClassifier(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if cerr.IsCode(err, cerr.InvalidArgument) {
		return false
	}
	return true
}

// Callbacks are caller-supplied hooks: OnTaskStart fires before every
// attempt, OnTaskFinish once per task on its terminal state. Both run
// synchronously; panics inside a callback are swallowed, a broken hook must
// never take the run down.
type Callbacks struct {
	OnTaskStart  func(t *Task)
	OnTaskFinish func(t *Task)
}

// Options configures a scheduler run.
type Options struct {
	MaxConcurrent int           // bounded concurrency, default 3
	Timeout       time.Duration // per-attempt timeout, default 5m
	MaxRetries    int           // retries after the first attempt, default 1
	BackoffBase   time.Duration // default 2s
	BackoffCap    time.Duration // default 30s
	Classifier    Classifier
	Callbacks     Callbacks
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 3
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Minute
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 30 * time.Second
	}
	if o.Classifier == nil {
		o.Classifier = DefaultClassifier
	}
	return o
}

// Scheduler runs batches of tasks under bounded concurrency with per-attempt
// timeouts and exponential backoff between retries. Task failures are
// isolated: one task failing, timing out, or panicking never affects the
// others. After the main batch it drains one wave of high-priority handoffs
// from the queue.
type Scheduler struct {
	opts  Options
	queue *handoff.Queue
	sem   chan struct{}
}

// New creates a scheduler. queue may be nil when handoff draining is not
// wanted.
func New(opts Options, queue *handoff.Queue) *Scheduler {
	opts = opts.withDefaults()
	return &Scheduler{
		opts:  opts,
		queue: queue,
		sem:   make(chan struct{}, opts.MaxConcurrent),
	}
}

// Run executes the tasks and then drains handoffs, returning a merged
// summary. Cancellation of ctx marks unstarted tasks cancelled.
func (s *Scheduler) Run(ctx context.Context, tasks []*Task) *Result {
	start := time.Now()

	s.runBatch(ctx, tasks)

	result := &Result{}
	for _, t := range tasks {
		result.record(t)
	}

	for _, t := range s.drainHandoffs(ctx, tasks) {
		result.record(t)
	}

	result.Duration = time.Since(start)
	slog.InfoContext(ctx, "scheduler run finished",
		"total", result.Total,
		"completed", result.Completed,
		"failed", result.Failed,
		"cancelled", result.Cancelled,
		"duration", result.Duration,
	)
	return result
}

func (s *Scheduler) runBatch(ctx context.Context, tasks []*Task) {
	wg := conc.WaitGroup{}
	for _, t := range tasks {
		t := t
		wg.Go(func() {
			select {
			case s.sem <- struct{}{}:
				defer func() { <-s.sem }()
			case <-ctx.Done():
				t.Status = TaskCancelled
				t.Err = ctx.Err()
				return
			}
			s.runTask(ctx, t)
		})
	}
	wg.Wait()
}

// runTask drives a single task through its retry loop.
func (s *Scheduler) runTask(ctx context.Context, t *Task) {
	t.Status = TaskRunning
	t.StartedAt = time.Now()
	defer func() {
		t.FinishedAt = time.Now()
		s.fireFinish(t)
	}()

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if !s.backoff(ctx, attempt) {
				t.Status = TaskCancelled
				t.Err = ctx.Err()
				return
			}
			slog.InfoContext(ctx, "retrying task",
				"task_id", t.ID,
				"role", t.Role,
				"attempt", attempt+1,
			)
		}

		t.Attempts = attempt + 1
		s.fireStart(t)
		output, err := s.attempt(ctx, t, attempt)
		if err == nil {
			t.Status = TaskCompleted
			t.Output = output
			t.Err = nil
			return
		}
		lastErr = err
		slog.WarnContext(ctx, "task attempt failed",
			"task_id", t.ID,
			"role", t.Role,
			"attempt", attempt+1,
			"error", err,
		)

		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			t.Status = TaskCancelled
			t.Err = err
			return
		}
		if !s.opts.Classifier(err) {
			break
		}
	}

	t.Status = TaskFailed
	t.Err = lastErr
}

// attempt runs one execution with the per-attempt timeout. On timeout the
// underlying call keeps running on its goroutine; its result is discarded.
// Each attempt sees its own attempt id in the input so late writes from an
// abandoned attempt remain distinguishable downstream.
func (s *Scheduler) attempt(ctx context.Context, t *Task, attempt int) (any, error) {
	type outcome struct {
		output any
		err    error
	}
	done := make(chan outcome, 1)

	input := maps.Clone(t.Input)
	if input == nil {
		input = make(map[string]any)
	}
	input["attempt_id"] = fmt.Sprintf("%s-%d", t.ID, attempt)

	go func() {
		var o outcome
		err := panicerr.Safe(func() error {
			var execErr error
			o.output, execErr = t.Executor.Execute(ctx, input)
			return execErr
		})()
		o.err = err
		done <- o
	}()

	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.output, o.err
	case <-timer.C:
		return nil, fmt.Errorf("task %s timed out after %s (attempt %d)", t.ID, s.opts.Timeout, attempt+1)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// backoff sleeps min(cap, base * 2^(attempt-1)), returning false if ctx was
// cancelled while waiting.
func (s *Scheduler) backoff(ctx context.Context, attempt int) bool {
	delay := s.opts.BackoffBase << (attempt - 1)
	if delay > s.opts.BackoffCap || delay <= 0 {
		delay = s.opts.BackoffCap
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// drainHandoffs runs a single wave over the pending handoffs of priority
// high or above. Handoffs created during the wave wait for the next run, so
// chains of handoffs cannot recurse unboundedly. Targets with no executor
// among the batch roles stay pending.
func (s *Scheduler) drainHandoffs(ctx context.Context, tasks []*Task) []*Task {
	if s.queue == nil {
		return nil
	}

	executors := make(map[string]Executor)
	for _, t := range tasks {
		if _, ok := executors[t.Role]; !ok && t.Executor != nil {
			executors[t.Role] = t.Executor
		}
	}

	pending := s.queue.ListPending("", handoff.PriorityHigh)
	if len(pending) == 0 {
		return nil
	}
	slog.InfoContext(ctx, "draining high-priority handoffs", "count", len(pending))

	var mu sync.Mutex
	var drained []*Task

	wg := conc.WaitGroup{}
	for _, h := range pending {
		executor, ok := executors[h.ToRole]
		if !ok {
			slog.WarnContext(ctx, "no executor for handoff target, leaving pending",
				"handoff_id", h.ID,
				"to_role", h.ToRole,
			)
			continue
		}
		if !s.queue.UpdateStatus(h.ID, handoff.StatusInProgress, "", "") {
			continue
		}

		h := h
		t := NewTask(executor, handoffInput(h))
		mu.Lock()
		drained = append(drained, t)
		mu.Unlock()

		wg.Go(func() {
			select {
			case s.sem <- struct{}{}:
				defer func() { <-s.sem }()
			case <-ctx.Done():
				t.Status = TaskCancelled
				t.Err = ctx.Err()
				s.queue.UpdateStatus(h.ID, handoff.StatusFailed, "", "run cancelled")
				return
			}
			s.runTask(ctx, t)

			switch t.Status {
			case TaskCompleted:
				s.queue.UpdateStatus(h.ID, handoff.StatusCompleted, fmt.Sprint(t.Output), "")
			default:
				errMsg := "task did not complete"
				if t.Err != nil {
					errMsg = t.Err.Error()
				}
				s.queue.UpdateStatus(h.ID, handoff.StatusFailed, "", errMsg)
			}
		})
	}
	wg.Wait()
	return drained
}

// handoffInput flattens a handoff context into executor input.
func handoffInput(h *handoff.Handoff) map[string]any {
	input := map[string]any{
		"handoff_id": h.ID,
		"from_role":  h.FromRole,
		"reasoning":  h.Context.Reasoning,
		"priority":   h.Priority.String(),
	}
	if h.Context.SourceRecordID != "" {
		input["source_record_id"] = h.Context.SourceRecordID
	}
	if len(h.Context.SuggestedActions) > 0 {
		input["suggested_actions"] = h.Context.SuggestedActions
	}
	for k, v := range h.Context.RelevantData {
		input[k] = v
	}
	return input
}

func (s *Scheduler) fireStart(t *Task) {
	if s.opts.Callbacks.OnTaskStart != nil {
		panicerr.Ignore(func() { s.opts.Callbacks.OnTaskStart(t) })
	}
}

func (s *Scheduler) fireFinish(t *Task) {
	if s.opts.Callbacks.OnTaskFinish != nil {
		panicerr.Ignore(func() { s.opts.Callbacks.OnTaskFinish(t) })
	}
}
