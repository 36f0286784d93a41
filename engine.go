package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"

	"github.com/scholarpress/orchestrator/internal/metrics"
)

// Engine drives workflow instances through their tasks. It is deliberately
// tick based: every state change is derived from persisted state so that a
// restarted engine resumes every non terminal workflow exactly where the
// store last saw it.
type Engine struct {
	store    Store
	agents   AgentClient
	registry *Registry
	clock    clock.Clock
	logger   Logger
	notifier Notifier

	wlocks keyedMutex

	resMu    sync.Mutex
	inflight map[string]bool
	mailbox  map[string][]taskResult
	onResult func(workflowID string)
}

type taskResult struct {
	taskID string
	res    Result
}

type EngineOption func(e *Engine)

func WithEngineClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

func WithEngineLogger(l Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

func WithEngineNotifier(n Notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = n
	}
}

func NewEngine(store Store, agents AgentClient, registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		agents:   agents,
		registry: registry,
		clock:    clock.RealClock{},
		logger:   noopLogger{},
		notifier: noopNotifier{},
		inflight: make(map[string]bool),
		mailbox:  make(map[string][]taskResult),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// OnResultArrival registers the callback invoked whenever an agent result
// lands for a workflow, so the scheduler can tick the owner immediately
// instead of waiting for the next poll.
func (e *Engine) OnResultArrival(fn func(workflowID string)) {
	e.resMu.Lock()
	defer e.resMu.Unlock()

	e.onResult = fn
}

// Tick advances one workflow instance by a single step: it applies arrived
// agent results, fails or completes the workflow, creates newly eligible
// tasks, persists everything atomically and only then dispatches agent
// invocations. A tick that cannot persist is treated as not having
// happened. Tick returns the instance status after the step.
func (e *Engine) Tick(ctx context.Context, workflowID string) (Status, error) {
	e.wlocks.Lock(workflowID)
	defer e.wlocks.Unlock(workflowID)

	ins, err := e.store.LookupInstance(ctx, workflowID)
	if err != nil {
		return StatusUnknown, err
	}

	if ins.Status.Terminal() {
		// Late arriving results for a terminal workflow are discarded and
		// its bookkeeping released.
		tasks, err := e.store.ListTasks(ctx, workflowID)
		if err != nil {
			return StatusUnknown, err
		}

		ids := make([]string, 0, len(tasks))
		for _, t := range tasks {
			ids = append(ids, t.ID)
		}

		e.forget(workflowID, ids)
		return ins.Status, nil
	}

	if ins.Status == StatusPaused {
		return ins.Status, nil
	}

	def, ok := e.registry.Lookup(ins.DefinitionName)
	if !ok {
		return StatusUnknown, errors.Wrap(ErrDefinitionNotFound, "", j.MKV{
			"workflow_id": workflowID,
			"definition":  ins.DefinitionName,
		})
	}

	tasks, err := e.store.ListTasks(ctx, workflowID)
	if err != nil {
		return StatusUnknown, err
	}

	byID := make(map[string]*Task, len(tasks))
	all := make([]*Task, 0, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		byID[t.ID] = t
		all = append(all, t)
	}

	now := e.clock.Now()
	prevStatus := ins.Status
	if ins.Status == StatusPending {
		ins.Status = StatusRunning
	}

	dirty := make(map[string]*Task)
	var events []Event

	// Apply results that arrived since the last tick. The mailbox is only
	// cleared once the tick persisted, a failed persist leaves the results
	// to be re-applied.
	results := e.peekResults(workflowID)
	for _, r := range results {
		t, ok := byID[r.taskID]
		if !ok || t.Status.Terminal() {
			continue
		}

		spec, ok := def.Stage(t.Stage)
		if !ok {
			continue
		}

		e.applyResult(t, spec, r.res, now)
		dirty[t.ID] = t
		events = append(events, Event{
			Type:       EventTaskStatusChanged,
			WorkflowID: workflowID,
			Stage:      t.Stage,
			Status:     t.Status.String(),
			Timestamp:  now,
		})
	}

	// Any permanently failed task fails the whole workflow: the manuscript
	// leaves the automated path and is surfaced for manual escalation.
	failed := false
	completed := make(map[string]bool)
	recorded := make(map[string]bool)
	for _, t := range all {
		recorded[t.Stage] = true
		switch t.Status {
		case TaskFailed:
			failed = true
		case TaskCompleted:
			completed[t.Stage] = true
		}
	}

	if failed {
		ins.Status = StatusFailed
	} else if len(completed) == len(def.Stages) {
		ins.Status = StatusCompleted
	} else {
		for _, spec := range def.Eligible(completed, recorded) {
			t := &Task{
				ID:         uuid.New().String(),
				WorkflowID: workflowID,
				Stage:      spec.Name,
				Agent:      spec.Agent,
				Action:     spec.Action,
				Status:     TaskPending,
				CreatedAt:  now,
				UpdatedAt:  now,
			}

			all = append(all, t)
			dirty[t.ID] = t
		}
	}

	ins.UpdatedAt = now

	updates := make([]*Task, 0, len(dirty))
	for _, t := range dirty {
		updates = append(updates, t)
	}

	err = e.store.SaveTick(ctx, ins, updates)
	if err != nil {
		return StatusUnknown, err
	}

	e.clearResults(workflowID, len(results))

	if ins.Status != prevStatus {
		events = append(events, Event{
			Type:       EventWorkflowStatusChanged,
			WorkflowID: workflowID,
			Status:     ins.Status.String(),
			Timestamp:  now,
		})

		if ins.Status.Terminal() {
			metrics.WorkflowsFinished.WithLabelValues(def.Name, ins.Status.String()).Inc()
		}
	}

	for _, ev := range events {
		e.notifier.Notify(ctx, ev)
	}

	if ins.Status.Terminal() {
		ids := make([]string, 0, len(all))
		for _, t := range all {
			ids = append(ids, t.ID)
		}

		e.forget(workflowID, ids)
		return ins.Status, nil
	}

	if ins.Status == StatusRunning {
		e.dispatchDue(ctx, ins, def, all, now)
	}

	return ins.Status, nil
}

// forget releases the result mailbox and in flight markers of a finished
// workflow, so a long lived process does not accumulate state for every
// workflow it ever ran. Results delivered for a forgotten task are dropped.
func (e *Engine) forget(workflowID string, taskIDs []string) {
	e.resMu.Lock()
	defer e.resMu.Unlock()

	delete(e.mailbox, workflowID)
	for _, id := range taskIDs {
		delete(e.inflight, id)
	}
}

// applyResult folds one agent result into the task record, scheduling a
// retry with exponential backoff for transient failures that still have
// attempts left.
func (e *Engine) applyResult(t *Task, spec StageSpec, res Result, now time.Time) {
	t.UpdatedAt = now
	t.NextRetryAt = time.Time{}

	if res.Success {
		t.Status = TaskCompleted
		t.Result = res.Data
		t.CompletedAt = now
		t.ErrKind = ErrKindNone
		t.ErrDetail = ""
		return
	}

	t.ErrKind = res.Kind
	t.ErrDetail = res.Detail

	if res.Kind.Retryable() && t.Attempts <= spec.Retry.MaxRetries {
		t.Status = TaskRetrying
		t.NextRetryAt = now.Add(spec.Retry.Delay(t.Attempts))
		metrics.TaskRetries.WithLabelValues(t.Stage).Inc()
		return
	}

	t.Status = TaskFailed
	t.CompletedAt = now
}

// dispatchDue starts agent invocations for tasks that are due: newly created
// Pending tasks, Retrying tasks whose backoff has elapsed, and Running tasks
// with no in flight invocation, which only happens after a restart and gives
// the documented at-least-once execution semantics.
func (e *Engine) dispatchDue(ctx context.Context, ins *Instance, def *Definition, all []*Task, now time.Time) {
	for _, t := range all {
		spec, ok := def.Stage(t.Stage)
		if !ok {
			continue
		}

		switch t.Status {
		case TaskPending:
			e.start(ctx, ins, spec, t, now, true)
		case TaskRetrying:
			if !t.NextRetryAt.After(now) {
				e.start(ctx, ins, spec, t, now, true)
			}
		case TaskRunning:
			if !e.isInflight(t.ID) {
				e.start(ctx, ins, spec, t, now, false)
			}
		}
	}
}

// start marks the task Running, persists it and launches the agent
// invocation. The attempt is counted and persisted before the invocation so
// that a crash in between never exceeds the attempt limit.
func (e *Engine) start(ctx context.Context, ins *Instance, spec StageSpec, t *Task, now time.Time, countAttempt bool) {
	if countAttempt {
		t.Attempts++
	}
	t.Status = TaskRunning
	t.NextRetryAt = time.Time{}
	if t.StartedAt.IsZero() {
		t.StartedAt = now
	}
	t.UpdatedAt = now

	err := e.store.UpsertTask(ctx, t)
	if err != nil {
		// NoReturnErr: the task stays due and is redispatched on the next
		// tick.
		e.logger.Error(ctx, errors.Wrap(err, "failed to persist task dispatch", j.MKV{
			"workflow_id": t.WorkflowID,
			"stage":       t.Stage,
		}))
		return
	}

	payload, err := Marshal(&ins.Submission)
	if err != nil {
		e.logger.Error(ctx, errors.Wrap(err, "failed to marshal submission payload", j.KV("workflow_id", ins.ID)))
		return
	}

	e.markInflight(t.ID)

	req := InvokeRequest{
		Agent:      spec.Agent,
		Action:     spec.Action,
		WorkflowID: ins.ID,
		Priority:   ins.Submission.Priority,
		Payload:    payload,
		Timeout:    spec.Timeout,
	}

	workflowID := ins.ID
	taskID := t.ID
	go func() {
		// The invocation deliberately outlives the tick context: an in
		// flight agent call is never force killed, its result is discarded
		// on arrival if the workflow finished in the meantime.
		res := e.agents.Invoke(context.Background(), req)
		e.deliver(workflowID, taskID, res)
	}()

	e.notifier.Notify(ctx, Event{
		Type:       EventTaskStatusChanged,
		WorkflowID: workflowID,
		Stage:      t.Stage,
		Status:     TaskRunning.String(),
		Timestamp:  now,
	})
}

func (e *Engine) deliver(workflowID, taskID string, res Result) {
	e.resMu.Lock()
	if !e.inflight[taskID] {
		// The workflow finished while the invocation was in flight, the
		// result is no longer expected.
		e.resMu.Unlock()
		return
	}
	delete(e.inflight, taskID)
	e.mailbox[workflowID] = append(e.mailbox[workflowID], taskResult{taskID: taskID, res: res})
	fn := e.onResult
	e.resMu.Unlock()

	if fn != nil {
		fn(workflowID)
	}
}

func (e *Engine) peekResults(workflowID string) []taskResult {
	e.resMu.Lock()
	defer e.resMu.Unlock()

	queued := e.mailbox[workflowID]
	out := make([]taskResult, len(queued))
	copy(out, queued)

	return out
}

func (e *Engine) clearResults(workflowID string, n int) {
	e.resMu.Lock()
	defer e.resMu.Unlock()

	queued := e.mailbox[workflowID]
	if n >= len(queued) {
		delete(e.mailbox, workflowID)
		return
	}

	e.mailbox[workflowID] = queued[n:]
}

func (e *Engine) discardResults(workflowID string) {
	e.resMu.Lock()
	defer e.resMu.Unlock()

	delete(e.mailbox, workflowID)
}

func (e *Engine) isInflight(taskID string) bool {
	e.resMu.Lock()
	defer e.resMu.Unlock()

	return e.inflight[taskID]
}

func (e *Engine) markInflight(taskID string) {
	e.resMu.Lock()
	defer e.resMu.Unlock()

	e.inflight[taskID] = true
}

// hasQueuedResults reports whether agent results are waiting to be applied
// for the workflow. The scheduler uses it to skip its poll sleep.
func (e *Engine) hasQueuedResults(workflowID string) bool {
	e.resMu.Lock()
	defer e.resMu.Unlock()

	return len(e.mailbox[workflowID]) > 0
}

// Pause moves a Running workflow into the Paused state. The engine stops
// processing results and scheduling stages for it until Resume is called.
func (e *Engine) Pause(ctx context.Context, workflowID string) error {
	return e.transition(ctx, workflowID, StatusPaused)
}

// Resume moves a Paused workflow back to Running.
func (e *Engine) Resume(ctx context.Context, workflowID string) error {
	return e.transition(ctx, workflowID, StatusRunning)
}

// Cancel terminates a non terminal workflow immediately. In flight agent
// invocations are not interrupted, their results are discarded on arrival.
func (e *Engine) Cancel(ctx context.Context, workflowID string) error {
	err := e.transition(ctx, workflowID, StatusCancelled)
	if err != nil {
		return err
	}

	e.discardResults(workflowID)
	return nil
}

func (e *Engine) transition(ctx context.Context, workflowID string, next Status) error {
	e.wlocks.Lock(workflowID)
	defer e.wlocks.Unlock(workflowID)

	ins, err := e.store.LookupInstance(ctx, workflowID)
	if err != nil {
		return err
	}

	if !ins.Status.CanTransitionTo(next) {
		return errors.Wrap(ErrInvalidTransition, "", j.MKV{
			"workflow_id": workflowID,
			"from":        ins.Status.String(),
			"to":          next.String(),
		})
	}

	now := e.clock.Now()
	ins.Status = next
	ins.UpdatedAt = now

	err = e.store.UpdateInstance(ctx, ins)
	if err != nil {
		return err
	}

	if next.Terminal() {
		if def, ok := e.registry.Lookup(ins.DefinitionName); ok {
			metrics.WorkflowsFinished.WithLabelValues(def.Name, next.String()).Inc()
		}
	}

	e.notifier.Notify(ctx, Event{
		Type:       EventWorkflowStatusChanged,
		WorkflowID: workflowID,
		Status:     next.String(),
		Timestamp:  now,
	})

	return nil
}

// Rerun is the explicit manual escalation action: it resets a permanently
// failed task for a fresh attempt window and reopens a Failed workflow.
// This is the only path by which a Failed task or workflow re-enters
// processing.
func (e *Engine) Rerun(ctx context.Context, workflowID, stageName string) error {
	e.wlocks.Lock(workflowID)
	defer e.wlocks.Unlock(workflowID)

	ins, err := e.store.LookupInstance(ctx, workflowID)
	if err != nil {
		return err
	}

	tasks, err := e.store.ListTasks(ctx, workflowID)
	if err != nil {
		return err
	}

	var task *Task
	for i := range tasks {
		if tasks[i].Stage == stageName {
			task = &tasks[i]
			break
		}
	}

	if task == nil {
		return errors.Wrap(ErrTaskNotFound, "", j.MKV{
			"workflow_id": workflowID,
			"stage":       stageName,
		})
	}

	if task.Status != TaskFailed {
		return errors.Wrap(ErrTaskNotFailed, "", j.MKV{
			"workflow_id": workflowID,
			"stage":       stageName,
			"status":      task.Status.String(),
		})
	}

	now := e.clock.Now()
	task.Status = TaskPending
	task.Attempts = 0
	task.ErrKind = ErrKindNone
	task.ErrDetail = ""
	task.NextRetryAt = time.Time{}
	task.CompletedAt = time.Time{}
	task.UpdatedAt = now

	if ins.Status == StatusFailed {
		ins.Status = StatusRunning
	}
	ins.UpdatedAt = now

	err = e.store.SaveTick(ctx, ins, []*Task{task})
	if err != nil {
		return err
	}

	e.notifier.Notify(ctx, Event{
		Type:       EventTaskStatusChanged,
		WorkflowID: workflowID,
		Stage:      stageName,
		Status:     TaskPending.String(),
		Timestamp:  now,
	})

	return nil
}
