package orchestrator

import (
	"context"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// WorkflowStatus is the externally visible state of one workflow instance.
type WorkflowStatus struct {
	WorkflowID string `json:"workflow_id"`
	Definition string `json:"definition"`
	Status     string `json:"status"`
	// CurrentStages are the stages with non terminal task records. A
	// branched definition can be at more than one stage at once.
	CurrentStages []string `json:"current_stages,omitempty"`
	Percent       int      `json:"percent"`
	Tasks         []Task   `json:"tasks"`
}

// AgentStats aggregates the performance samples of one agent type.
type AgentStats struct {
	SuccessRate      float64       `json:"success_rate"`
	AvgLatency       time.Duration `json:"avg_latency"`
	TotalInvocations int           `json:"total_invocations"`
}

// SystemSummary is the aggregate view over all workflows.
type SystemSummary struct {
	ActiveCount       int           `json:"active_count"`
	QueueLength       int           `json:"queue_length"`
	CompletedCount    int           `json:"completed_count"`
	FailedCount       int           `json:"failed_count"`
	AvgCompletionTime time.Duration `json:"avg_completion_time"`
}

// poolStats is the slice of the scheduler the reporter reads.
type poolStats interface {
	QueueDepth() int
	ActiveCount() int
}

// Reporter computes workflow, agent and system level statistics on demand
// from the store. It never mutates state.
type Reporter struct {
	store    Store
	registry *Registry
	pool     poolStats
}

func NewReporter(store Store, registry *Registry, pool poolStats) *Reporter {
	return &Reporter{
		store:    store,
		registry: registry,
		pool:     pool,
	}
}

// WorkflowStatus returns the current stage set, progress percentage and full
// task history of the workflow, or ErrWorkflowNotFound for an unknown id.
func (r *Reporter) WorkflowStatus(ctx context.Context, workflowID string) (WorkflowStatus, error) {
	ins, err := r.store.LookupInstance(ctx, workflowID)
	if err != nil {
		return WorkflowStatus{}, err
	}

	tasks, err := r.store.ListTasks(ctx, workflowID)
	if err != nil {
		return WorkflowStatus{}, err
	}

	def, ok := r.registry.Lookup(ins.DefinitionName)
	if !ok {
		return WorkflowStatus{}, errors.Wrap(ErrDefinitionNotFound, "", j.MKV{
			"workflow_id": workflowID,
			"definition":  ins.DefinitionName,
		})
	}

	return WorkflowStatus{
		WorkflowID:    ins.ID,
		Definition:    def.Name,
		Status:        ins.Status.String(),
		CurrentStages: CurrentStages(tasks),
		Percent:       Progress(def, tasks),
		Tasks:         tasks,
	}, nil
}

// AgentMetrics aggregates the performance sample log per agent type.
func (r *Reporter) AgentMetrics(ctx context.Context) (map[AgentType]AgentStats, error) {
	samples, err := r.store.ListSamples(ctx, "")
	if err != nil {
		return nil, err
	}

	type agg struct {
		total     int
		successes int
		latency   time.Duration
	}

	aggs := make(map[AgentType]*agg)
	for _, s := range samples {
		a, ok := aggs[s.Agent]
		if !ok {
			a = new(agg)
			aggs[s.Agent] = a
		}

		a.total++
		a.latency += s.Latency
		if s.Success {
			a.successes++
		}
	}

	out := make(map[AgentType]AgentStats, len(aggs))
	for agent, a := range aggs {
		out[agent] = AgentStats{
			SuccessRate:      float64(a.successes) / float64(a.total),
			AvgLatency:       a.latency / time.Duration(a.total),
			TotalInvocations: a.total,
		}
	}

	return out, nil
}

// SystemSummary aggregates scheduler occupancy and terminal workflow counts.
func (r *Reporter) SystemSummary(ctx context.Context) (SystemSummary, error) {
	completed, err := r.store.ListInstancesByStatus(ctx, StatusCompleted)
	if err != nil {
		return SystemSummary{}, err
	}

	failed, err := r.store.ListInstancesByStatus(ctx, StatusFailed)
	if err != nil {
		return SystemSummary{}, err
	}

	var totalDuration time.Duration
	for _, ins := range completed {
		totalDuration += ins.UpdatedAt.Sub(ins.CreatedAt)
	}

	var avg time.Duration
	if len(completed) > 0 {
		avg = totalDuration / time.Duration(len(completed))
	}

	return SystemSummary{
		ActiveCount:       r.pool.ActiveCount(),
		QueueLength:       r.pool.QueueDepth(),
		CompletedCount:    len(completed),
		FailedCount:       len(failed),
		AvgCompletionTime: avg,
	}, nil
}
