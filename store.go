package orchestrator

import "context"

// Store persists workflow instances, task records and agent performance
// samples. Implementations should all be tested with
// adaptertest.RunStoreTest.
//
// Contract: writes scoped to a single workflow id are serialised by the
// engine's per-id owner, but the store must still guarantee that SaveTick is
// applied atomically per workflow id so that a crash never leaves a tick
// half persisted. Different workflow ids may be written fully in parallel.
// A store error must leave the previously persisted state intact: the engine
// treats a tick it could not persist as not having happened.
type Store interface {
	// CreateInstance persists a new workflow instance.
	CreateInstance(ctx context.Context, ins *Instance) error

	// LookupInstance returns the instance for the workflow id or
	// ErrWorkflowNotFound.
	LookupInstance(ctx context.Context, workflowID string) (*Instance, error)

	// ListInstancesByStatus returns all instances currently in the provided
	// status.
	ListInstancesByStatus(ctx context.Context, s Status) ([]Instance, error)

	// UpdateInstance persists an updated instance.
	UpdateInstance(ctx context.Context, ins *Instance) error

	// UpsertTask creates or updates a task record keyed by task id.
	UpsertTask(ctx context.Context, t *Task) error

	// ListTasks returns all task records of the workflow id in creation
	// order.
	ListTasks(ctx context.Context, workflowID string) ([]Task, error)

	// SaveTick persists an instance update together with its task updates
	// atomically.
	SaveTick(ctx context.Context, ins *Instance, tasks []*Task) error

	// AppendSample appends one agent performance sample to the time ordered
	// log.
	AppendSample(ctx context.Context, s Sample) error

	// ListSamples returns samples for the agent type in append order. An
	// empty agent type lists all samples.
	ListSamples(ctx context.Context, agent AgentType) ([]Sample, error)
}
