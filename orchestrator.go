package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/scholarpress/orchestrator/internal/metrics"
)

// Orchestrator is the manuscript processing automation entry point. It wires
// the routing rules, engine, scheduler and reporter around a Store and an
// AgentClient.
type Orchestrator struct {
	store     Store
	router    Router
	registry  *Registry
	engine    *Engine
	scheduler *Scheduler
	reporter  *Reporter
	clock     clock.Clock
	logger    Logger
}

type options struct {
	clock        clock.Clock
	logger       Logger
	notifier     Notifier
	router       Router
	definitions  []*Definition
	concurrency  int
	pollInterval time.Duration
	sweepSpec    string
}

type Option func(o *options)

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithNotifier adds a status change subscriber. Multiple notifiers fan out.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if o.notifier == nil {
			o.notifier = n
			return
		}

		o.notifier = Notifiers(o.notifier, n)
	}
}

// WithRouter overrides the built-in routing rules.
func WithRouter(r Router) Option {
	return func(o *options) {
		o.router = r
	}
}

// WithDefinitions registers additional workflow definitions, needed when a
// custom router selects templates beyond the built-in set.
func WithDefinitions(defs ...*Definition) Option {
	return func(o *options) {
		o.definitions = append(o.definitions, defs...)
	}
}

// WithMaxConcurrency bounds the number of workflow instances processed
// concurrently.
func WithMaxConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithRecoverySweep enables the cron scheduled sweep re-adopting orphaned
// workflows.
func WithRecoverySweep(spec string) Option {
	return func(o *options) {
		o.sweepSpec = spec
	}
}

func New(store Store, agents AgentClient, opts ...Option) *Orchestrator {
	opt := options{
		clock:  clock.RealClock{},
		logger: noopLogger{},
	}
	for _, o := range opts {
		o(&opt)
	}

	router := opt.router
	var registry *Registry
	if router == nil {
		dr := NewDefaultRouter()
		router = dr
		registry = NewRegistry(dr.Definitions()...)
	} else {
		registry = NewRegistry()
	}
	for _, d := range opt.definitions {
		registry.Add(d)
	}

	if opt.notifier == nil {
		opt.notifier = noopNotifier{}
	}

	instrumented := InstrumentAgentClient(agents, store, opt.clock, opt.logger)

	engine := NewEngine(store, instrumented, registry,
		WithEngineClock(opt.clock),
		WithEngineLogger(opt.logger),
		WithEngineNotifier(opt.notifier),
	)

	schedOpts := []SchedulerOption{
		WithSchedulerClock(opt.clock),
		WithSchedulerLogger(opt.logger),
	}
	if opt.concurrency > 0 {
		schedOpts = append(schedOpts, WithConcurrency(opt.concurrency))
	}
	if opt.pollInterval > 0 {
		schedOpts = append(schedOpts, WithPollInterval(opt.pollInterval))
	}
	if opt.sweepSpec != "" {
		schedOpts = append(schedOpts, WithSweepSchedule(opt.sweepSpec))
	}

	scheduler := NewScheduler(engine, store, schedOpts...)

	return &Orchestrator{
		store:     store,
		router:    router,
		registry:  registry,
		engine:    engine,
		scheduler: scheduler,
		reporter:  NewReporter(store, registry, scheduler),
		clock:     opt.clock,
		logger:    opt.logger,
	}
}

// Run starts the background processing: recovery of persisted workflows and
// the scheduler pool. It only needs to be called once and is non blocking.
func (o *Orchestrator) Run(ctx context.Context) error {
	return o.scheduler.Run(ctx)
}

// Stop shuts the scheduler pool down gracefully.
func (o *Orchestrator) Stop() {
	o.scheduler.Stop()
}

// Submit validates the submission, selects a workflow definition via the
// routing rules and creates a Pending workflow instance for it. There are
// no side effects when validation fails.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (string, error) {
	if sub.Priority == "" {
		sub.Priority = PriorityRoutine
	}

	err := sub.Validate()
	if err != nil {
		return "", err
	}

	def := o.router.SelectDefinition(sub)
	now := o.clock.Now()

	ins := &Instance{
		ID:             uuid.New().String(),
		Submission:     sub,
		DefinitionName: def.Name,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = o.store.CreateInstance(ctx, ins)
	if err != nil {
		return "", err
	}

	metrics.WorkflowsStarted.WithLabelValues(def.Name).Inc()
	o.scheduler.Submit(ins.ID)

	o.logger.Debug(ctx, "workflow created", MKV{
		"workflow_id":   ins.ID,
		"manuscript_id": sub.ID,
		"definition":    def.Name,
		"priority":      string(sub.Priority),
	})

	return ins.ID, nil
}

// Pause suspends processing of a Running workflow.
func (o *Orchestrator) Pause(ctx context.Context, workflowID string) error {
	return o.engine.Pause(ctx, workflowID)
}

// Resume continues a Paused workflow.
func (o *Orchestrator) Resume(ctx context.Context, workflowID string) error {
	err := o.engine.Resume(ctx, workflowID)
	if err != nil {
		return err
	}

	// The owner released its slot on pause, adopt the workflow again.
	o.scheduler.Submit(workflowID)
	return nil
}

// Cancel terminates a non terminal workflow immediately. Results of in
// flight agent calls are discarded on arrival.
func (o *Orchestrator) Cancel(ctx context.Context, workflowID string) error {
	err := o.engine.Cancel(ctx, workflowID)
	if err != nil {
		return err
	}

	o.scheduler.Kick(workflowID)
	return nil
}

// Rerun is the manual escalation path for a permanently failed stage.
func (o *Orchestrator) Rerun(ctx context.Context, workflowID, stage string) error {
	err := o.engine.Rerun(ctx, workflowID, stage)
	if err != nil {
		return err
	}

	o.scheduler.Submit(workflowID)
	return nil
}

// Status reports the current stage set, progress and task history of a
// workflow.
func (o *Orchestrator) Status(ctx context.Context, workflowID string) (WorkflowStatus, error) {
	return o.reporter.WorkflowStatus(ctx, workflowID)
}

// AgentMetrics aggregates per agent performance statistics.
func (o *Orchestrator) AgentMetrics(ctx context.Context) (map[AgentType]AgentStats, error) {
	return o.reporter.AgentMetrics(ctx)
}

// Summary aggregates system wide statistics.
func (o *Orchestrator) Summary(ctx context.Context) (SystemSummary, error) {
	return o.reporter.SystemSummary(ctx)
}
