package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/scholarpress/orchestrator"
	"github.com/scholarpress/orchestrator/adapters/memstore"
)

// recordingNotifier collects events for assertions.
type recordingNotifier struct {
	events chan orchestrator.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(chan orchestrator.Event, 256)}
}

func (n *recordingNotifier) Notify(ctx context.Context, e orchestrator.Event) {
	select {
	case n.events <- e:
	default:
	}
}

func newTestOrchestrator(t *testing.T, agent orchestrator.AgentClient, opts ...orchestrator.Option) (*orchestrator.Orchestrator, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	opts = append([]orchestrator.Option{
		orchestrator.WithTickInterval(10 * time.Millisecond),
	}, opts...)

	o := orchestrator.New(store, agent, opts...)
	jtest.RequireNil(t, o.Run(context.Background()))
	t.Cleanup(o.Stop)

	return o, store
}

func awaitStatus(t *testing.T, o *orchestrator.Orchestrator, workflowID string, want orchestrator.Status) orchestrator.WorkflowStatus {
	t.Helper()

	var last orchestrator.WorkflowStatus
	require.Eventually(t, func() bool {
		status, err := o.Status(context.Background(), workflowID)
		if err != nil {
			return false
		}
		last = status
		return status.Status == want.String()
	}, 5*time.Second, 10*time.Millisecond)

	return last
}

func TestSubmitRunsToCompletion(t *testing.T) {
	o, _ := newTestOrchestrator(t, newScriptedAgent())

	id, err := o.Submit(context.Background(), validSubmission())
	jtest.RequireNil(t, err)
	require.NotEmpty(t, id)

	status := awaitStatus(t, o, id, orchestrator.StatusCompleted)
	require.Equal(t, orchestrator.DefinitionGeneral, status.Definition)
	require.Equal(t, 100, status.Percent)
	require.Empty(t, status.CurrentStages)
	require.Len(t, status.Tasks, 7)
}

func TestSubmitRoutesClinical(t *testing.T) {
	o, _ := newTestOrchestrator(t, newScriptedAgent())

	sub := validSubmission()
	sub.FieldOfStudy = "clinical"
	id, err := o.Submit(context.Background(), sub)
	jtest.RequireNil(t, err)

	status := awaitStatus(t, o, id, orchestrator.StatusCompleted)
	require.Equal(t, orchestrator.DefinitionClinical, status.Definition)
	require.Len(t, status.Tasks, 9)
}

func TestSubmitDefaultsPriority(t *testing.T) {
	agent := newScriptedAgent()
	o, _ := newTestOrchestrator(t, agent)

	sub := validSubmission()
	sub.Priority = ""
	id, err := o.Submit(context.Background(), sub)
	jtest.RequireNil(t, err)

	awaitStatus(t, o, id, orchestrator.StatusCompleted)

	agent.mu.Lock()
	defer agent.mu.Unlock()
	require.NotEmpty(t, agent.invoked)
	for _, req := range agent.invoked {
		require.Equal(t, orchestrator.PriorityRoutine, req.Priority)
	}
}

func TestSubmitInvalidHasNoSideEffects(t *testing.T) {
	o, store := newTestOrchestrator(t, newScriptedAgent())

	sub := validSubmission()
	sub.Title = ""
	_, err := o.Submit(context.Background(), sub)
	jtest.Require(t, orchestrator.ErrSubmissionInvalid, err)

	for _, status := range []orchestrator.Status{
		orchestrator.StatusPending,
		orchestrator.StatusRunning,
	} {
		ls, err := store.ListInstancesByStatus(context.Background(), status)
		jtest.RequireNil(t, err)
		require.Empty(t, ls)
	}
}

func TestPauseResumeRoundTrip(t *testing.T) {
	gate := newGatedAgent()
	o, _ := newTestOrchestrator(t, gate)
	ctx := context.Background()

	id, err := o.Submit(ctx, validSubmission())
	jtest.RequireNil(t, err)

	awaitStatus(t, o, id, orchestrator.StatusRunning)

	jtest.RequireNil(t, o.Pause(ctx, id))
	awaitStatus(t, o, id, orchestrator.StatusPaused)

	// Control of a paused workflow is still validated.
	jtest.Require(t, orchestrator.ErrInvalidTransition, o.Pause(ctx, id))

	close(gate.release)

	jtest.RequireNil(t, o.Resume(ctx, id))
	awaitStatus(t, o, id, orchestrator.StatusCompleted)
}

func TestCancel(t *testing.T) {
	gate := newGatedAgent()
	o, _ := newTestOrchestrator(t, gate)
	ctx := context.Background()

	id, err := o.Submit(ctx, validSubmission())
	jtest.RequireNil(t, err)

	awaitStatus(t, o, id, orchestrator.StatusRunning)

	jtest.RequireNil(t, o.Cancel(ctx, id))
	awaitStatus(t, o, id, orchestrator.StatusCancelled)

	close(gate.release)

	// The late agent result does not revive the cancelled workflow.
	time.Sleep(50 * time.Millisecond)
	status, err := o.Status(ctx, id)
	jtest.RequireNil(t, err)
	require.Equal(t, orchestrator.StatusCancelled.String(), status.Status)
}

func TestRerunEscalation(t *testing.T) {
	agent := newScriptedAgent()
	agent.script(orchestrator.ActionValidateSubmission, orchestrator.Result{
		Kind:   orchestrator.ErrKindRejected,
		Detail: "corrupt upload",
	})

	o, _ := newTestOrchestrator(t, agent)
	ctx := context.Background()

	id, err := o.Submit(ctx, validSubmission())
	jtest.RequireNil(t, err)

	awaitStatus(t, o, id, orchestrator.StatusFailed)

	// The editor corrects the manuscript and reruns the failed stage.
	jtest.RequireNil(t, o.Rerun(ctx, id, orchestrator.StageValidation))
	awaitStatus(t, o, id, orchestrator.StatusCompleted)
}

func TestNotifierReceivesLifecycleEvents(t *testing.T) {
	notifier := newRecordingNotifier()
	o, _ := newTestOrchestrator(t, newScriptedAgent(), orchestrator.WithNotifier(notifier))

	id, err := o.Submit(context.Background(), validSubmission())
	jtest.RequireNil(t, err)
	awaitStatus(t, o, id, orchestrator.StatusCompleted)

	timeout := time.After(3 * time.Second)
	var sawRunning, sawCompleted, sawTask bool
	for !(sawRunning && sawCompleted && sawTask) {
		select {
		case e := <-notifier.events:
			require.Equal(t, id, e.WorkflowID)
			switch {
			case e.Type == orchestrator.EventWorkflowStatusChanged && e.Status == orchestrator.StatusRunning.String():
				sawRunning = true
			case e.Type == orchestrator.EventWorkflowStatusChanged && e.Status == orchestrator.StatusCompleted.String():
				sawCompleted = true
			case e.Type == orchestrator.EventTaskStatusChanged:
				sawTask = true
			}
		case <-timeout:
			t.Fatalf("missing events: running=%v completed=%v task=%v", sawRunning, sawCompleted, sawTask)
		}
	}
}

func TestAgentMetricsAggregation(t *testing.T) {
	o, _ := newTestOrchestrator(t, newScriptedAgent())
	ctx := context.Background()

	id, err := o.Submit(ctx, validSubmission())
	jtest.RequireNil(t, err)
	awaitStatus(t, o, id, orchestrator.StatusCompleted)

	stats, err := o.AgentMetrics(ctx)
	jtest.RequireNil(t, err)

	// Every agent of the general template was invoked exactly once.
	require.Len(t, stats, 7)
	for agent, s := range stats {
		require.Equal(t, 1, s.TotalInvocations, string(agent))
		require.Equal(t, 1.0, s.SuccessRate, string(agent))
	}
}

func TestSummary(t *testing.T) {
	o, _ := newTestOrchestrator(t, newScriptedAgent())
	ctx := context.Background()

	id, err := o.Submit(ctx, validSubmission())
	jtest.RequireNil(t, err)
	awaitStatus(t, o, id, orchestrator.StatusCompleted)

	summary, err := o.Summary(ctx)
	jtest.RequireNil(t, err)
	require.Equal(t, 1, summary.CompletedCount)
	require.Equal(t, 0, summary.FailedCount)
	require.Equal(t, 0, summary.QueueLength)
}

func TestCustomDefinitionAndRouter(t *testing.T) {
	def := singleStageDefinition()

	router := staticRouter{def: def}
	o, _ := newTestOrchestrator(t, newScriptedAgent(),
		orchestrator.WithRouter(router),
		orchestrator.WithDefinitions(def),
	)

	id, err := o.Submit(context.Background(), validSubmission())
	jtest.RequireNil(t, err)

	status := awaitStatus(t, o, id, orchestrator.StatusCompleted)
	require.Equal(t, "single", status.Definition)
	require.Len(t, status.Tasks, 1)
}

type staticRouter struct {
	def *orchestrator.Definition
}

func (r staticRouter) SelectDefinition(sub orchestrator.Submission) *orchestrator.Definition {
	return r.def
}
