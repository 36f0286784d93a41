package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	agentType      = "agent_type"
	actionName     = "action"
	outcome        = "outcome"
	definitionName = "definition"
	statusName     = "status"
	stageName      = "stage"
)

var (
	// AgentInvocations counts agent invocations by outcome. Outcome is
	// "success" or the error kind of the failure.
	AgentInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_agent_invocations_total",
		Help: "Agent invocations by agent type, action and outcome",
	}, []string{agentType, actionName, outcome})

	// AgentLatency is the round trip latency of agent invocations.
	AgentLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orchestrator_agent_latency_seconds",
		Help:    "Agent invocation latency in seconds",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{agentType, actionName})

	// WorkflowsStarted counts workflow instances created per definition.
	WorkflowsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_workflows_started_total",
		Help: "Workflow instances created by definition",
	}, []string{definitionName})

	// WorkflowsFinished counts workflow instances reaching a terminal status.
	WorkflowsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_workflows_finished_total",
		Help: "Workflow instances finished by definition and terminal status",
	}, []string{definitionName, statusName})

	// TaskRetries counts scheduled task retries per stage.
	TaskRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_task_retries_total",
		Help: "Task retries scheduled by stage",
	}, []string{stageName})

	// ActiveWorkflows is the number of workflow instances currently owned by
	// a scheduler slot.
	ActiveWorkflows = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_active_workflows",
		Help: "Workflow instances currently being ticked",
	})

	// QueuedWorkflows is the depth of the scheduler's FIFO overflow queue.
	QueuedWorkflows = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_queued_workflows",
		Help: "Workflow instances waiting for a scheduler slot",
	})
)

func init() {
	prometheus.MustRegister(
		AgentInvocations,
		AgentLatency,
		WorkflowsStarted,
		WorkflowsFinished,
		TaskRetries,
		ActiveWorkflows,
		QueuedWorkflows,
	)
}

func Reset() {
	AgentInvocations.Reset()
	AgentLatency.Reset()
	WorkflowsStarted.Reset()
	WorkflowsFinished.Reset()
	TaskRetries.Reset()
	ActiveWorkflows.Set(0)
	QueuedWorkflows.Set(0)
}
