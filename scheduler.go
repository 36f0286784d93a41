package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/robfig/cron/v3"
	"k8s.io/utils/clock"

	"github.com/scholarpress/orchestrator/internal/metrics"
)

const (
	defaultConcurrency  = 8
	defaultPollInterval = time.Second
)

// Scheduler owns the pool of concurrently ticking workflow instances. Each
// active workflow gets exactly one owner goroutine, which serialises all of
// its state mutations. Submissions beyond the concurrency limit queue FIFO
// until a slot frees.
type Scheduler struct {
	engine *Engine
	store  Store
	clock  clock.Clock
	logger Logger

	limit        int
	pollInterval time.Duration
	sweepSpec    string

	mu      sync.Mutex
	active  map[string]chan struct{}
	queue   []string
	queued  map[string]bool
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type SchedulerOption func(s *Scheduler)

// WithConcurrency bounds the number of workflow instances ticked
// concurrently.
func WithConcurrency(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithPollInterval sets how often an idle owner re-ticks its workflow to
// pick up due retries.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithSweepSchedule enables a periodic sweep, in standard cron syntax, that
// re-adopts non terminal workflows that no owner is ticking. A restart
// relies on the startup recovery pass, the sweep covers workflows handed
// over from another instance or missed wakeups.
func WithSweepSchedule(spec string) SchedulerOption {
	return func(s *Scheduler) {
		s.sweepSpec = spec
	}
}

func WithSchedulerClock(c clock.Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithSchedulerLogger(l Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func NewScheduler(engine *Engine, store Store, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		engine:       engine,
		store:        store,
		clock:        clock.RealClock{},
		logger:       noopLogger{},
		limit:        defaultConcurrency,
		pollInterval: defaultPollInterval,
		active:       make(map[string]chan struct{}),
		queued:       make(map[string]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	engine.OnResultArrival(s.Kick)

	return s
}

// Run starts the scheduler: it recovers every non terminal workflow from
// the store, starts owners up to the concurrency limit and, when
// configured, launches the sweep loop. Run is idempotent and non blocking.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.mu.Unlock()

	err := s.recover(s.ctx)
	if err != nil {
		return err
	}

	if s.sweepSpec != "" {
		schedule, err := cron.ParseStandard(s.sweepSpec)
		if err != nil {
			return errors.Wrap(err, "invalid sweep schedule", j.KV("spec", s.sweepSpec))
		}

		s.wg.Add(1)
		go s.sweepForever(schedule)
	}

	return nil
}

// Stop cancels all owners and blocks until they have shut down.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()
}

// Submit registers a workflow for ticking. Duplicate submissions of an
// already active or queued workflow only wake its owner.
func (s *Scheduler) Submit(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[workflowID]; ok {
		s.kickLocked(workflowID)
		return
	}

	if s.queued[workflowID] {
		return
	}

	s.queue = append(s.queue, workflowID)
	s.queued[workflowID] = true
	s.promoteLocked()
	metrics.QueuedWorkflows.Set(float64(len(s.queue)))
}

// Kick wakes the owner of the workflow so it ticks immediately instead of
// waiting for the next poll.
func (s *Scheduler) Kick(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kickLocked(workflowID)
}

func (s *Scheduler) kickLocked(workflowID string) {
	wake, ok := s.active[workflowID]
	if !ok {
		return
	}

	select {
	case wake <- struct{}{}:
	default:
	}
}

// QueueDepth returns the number of workflows waiting for a slot.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// ActiveCount returns the number of workflows currently owned by a slot.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.active)
}

func (s *Scheduler) promoteLocked() {
	if !s.started || s.ctx == nil || s.ctx.Err() != nil {
		return
	}

	for len(s.active) < s.limit && len(s.queue) > 0 {
		workflowID := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, workflowID)

		wake := make(chan struct{}, 1)
		s.active[workflowID] = wake

		s.wg.Add(1)
		go s.own(workflowID, wake)
	}

	metrics.ActiveWorkflows.Set(float64(len(s.active)))
	metrics.QueuedWorkflows.Set(float64(len(s.queue)))
}

// own is the single logical executor of one workflow instance. It ticks
// until the workflow pauses or finishes, waking early on result arrival.
func (s *Scheduler) own(workflowID string, wake chan struct{}) {
	defer s.wg.Done()
	defer s.release(workflowID)

	for {
		if s.ctx.Err() != nil {
			return
		}

		status, err := s.engine.Tick(s.ctx, workflowID)
		if errors.Is(err, context.Canceled) {
			return
		} else if err != nil {
			// NoReturnErr: a tick that failed, store unavailability
			// included, is retried after the poll interval. No state was
			// applied.
			s.logger.Error(s.ctx, errors.Wrap(err, "tick failed", j.KV("workflow_id", workflowID)))
		} else if status.Terminal() || status == StatusPaused {
			// Paused workflows release their slot, Resume resubmits them.
			return
		}

		if s.engine.hasQueuedResults(workflowID) {
			continue
		}

		timer := s.clock.NewTimer(s.pollInterval)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-wake:
			timer.Stop()
		case <-timer.C():
		}
	}
}

func (s *Scheduler) release(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, workflowID)
	s.promoteLocked()
	metrics.ActiveWorkflows.Set(float64(len(s.active)))
}

// recover resubmits every non terminal workflow found in the store so that
// a restarted engine resumes from the last persisted state.
func (s *Scheduler) recover(ctx context.Context) error {
	for _, status := range []Status{StatusPending, StatusRunning} {
		instances, err := s.store.ListInstancesByStatus(ctx, status)
		if err != nil {
			return err
		}

		for _, ins := range instances {
			s.Submit(ins.ID)
		}
	}

	return nil
}

func (s *Scheduler) sweepForever(schedule cron.Schedule) {
	defer s.wg.Done()

	for {
		next := schedule.Next(s.clock.Now())

		timer := s.clock.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}

		err := s.recover(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			// NoReturnErr: sweeps are retried on the next schedule slot.
			s.logger.Error(s.ctx, errors.Wrap(err, "sweep failed", j.KV("spec", s.sweepSpec)))
		}
	}
}
