// Package adaptertest provides the conformance suite that all
// orchestrator.Store implementations should be tested with.
package adaptertest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/scholarpress/orchestrator"
)

// RunStoreTest exercises the orchestrator.Store contract against the stores
// produced by the factory.
func RunStoreTest(t *testing.T, factory func(t *testing.T) orchestrator.Store) {
	tests := []struct {
		name string
		run  func(t *testing.T, store orchestrator.Store)
	}{
		{name: "create and lookup instance", run: testCreateLookup},
		{name: "lookup unknown workflow", run: testLookupUnknown},
		{name: "list instances by status", run: testListByStatus},
		{name: "update instance", run: testUpdateInstance},
		{name: "upsert and list tasks", run: testTasks},
		{name: "tasks are isolated per workflow", run: testTaskIsolation},
		{name: "save tick is applied as a unit", run: testSaveTick},
		{name: "samples append in order and filter by agent", run: testSamples},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			test.run(t, factory(t))
		})
	}
}

func makeInstance() *orchestrator.Instance {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	return &orchestrator.Instance{
		ID: uuid.New().String(),
		Submission: orchestrator.Submission{
			ID:           "m-" + uuid.New().String(),
			Title:        "On the thermal stability of enzymes",
			Authors:      []string{"R. Okafor"},
			FieldOfStudy: "general",
			Priority:     orchestrator.PriorityRoutine,
		},
		DefinitionName: orchestrator.DefinitionGeneral,
		Status:         orchestrator.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func makeTask(workflowID, stage string) *orchestrator.Task {
	now := time.Date(2025, time.March, 10, 12, 1, 0, 0, time.UTC)
	return &orchestrator.Task{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Stage:      stage,
		Agent:      orchestrator.AgentSubmissionValidator,
		Action:     orchestrator.ActionValidateSubmission,
		Status:     orchestrator.TaskPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func testCreateLookup(t *testing.T, store orchestrator.Store) {
	ctx := context.Background()

	ins := makeInstance()
	jtest.RequireNil(t, store.CreateInstance(ctx, ins))

	got, err := store.LookupInstance(ctx, ins.ID)
	jtest.RequireNil(t, err)
	require.Equal(t, ins.ID, got.ID)
	require.Equal(t, ins.Submission, got.Submission)
	require.Equal(t, orchestrator.StatusPending, got.Status)

	// Creating the same instance twice must fail.
	require.Error(t, store.CreateInstance(ctx, ins))
}

func testLookupUnknown(t *testing.T, store orchestrator.Store) {
	ctx := context.Background()

	_, err := store.LookupInstance(ctx, "does-not-exist")
	jtest.Require(t, orchestrator.ErrWorkflowNotFound, err)
}

func testListByStatus(t *testing.T, store orchestrator.Store) {
	ctx := context.Background()

	pending := makeInstance()
	jtest.RequireNil(t, store.CreateInstance(ctx, pending))

	running := makeInstance()
	running.Status = orchestrator.StatusRunning
	jtest.RequireNil(t, store.CreateInstance(ctx, running))

	ls, err := store.ListInstancesByStatus(ctx, orchestrator.StatusRunning)
	jtest.RequireNil(t, err)
	require.Len(t, ls, 1)
	require.Equal(t, running.ID, ls[0].ID)

	ls, err = store.ListInstancesByStatus(ctx, orchestrator.StatusCancelled)
	jtest.RequireNil(t, err)
	require.Empty(t, ls)
}

func testUpdateInstance(t *testing.T, store orchestrator.Store) {
	ctx := context.Background()

	ins := makeInstance()
	jtest.RequireNil(t, store.CreateInstance(ctx, ins))

	ins.Status = orchestrator.StatusRunning
	ins.UpdatedAt = ins.UpdatedAt.Add(time.Minute)
	jtest.RequireNil(t, store.UpdateInstance(ctx, ins))

	got, err := store.LookupInstance(ctx, ins.ID)
	jtest.RequireNil(t, err)
	require.Equal(t, orchestrator.StatusRunning, got.Status)

	unknown := makeInstance()
	jtest.Require(t, orchestrator.ErrWorkflowNotFound, store.UpdateInstance(ctx, unknown))
}

func testTasks(t *testing.T, store orchestrator.Store) {
	ctx := context.Background()

	ins := makeInstance()
	jtest.RequireNil(t, store.CreateInstance(ctx, ins))

	first := makeTask(ins.ID, orchestrator.StageValidation)
	jtest.RequireNil(t, store.UpsertTask(ctx, first))

	second := makeTask(ins.ID, orchestrator.StageResearchAnalysis)
	jtest.RequireNil(t, store.UpsertTask(ctx, second))

	// Update the first task in place.
	first.Status = orchestrator.TaskCompleted
	first.Attempts = 1
	first.Result = []byte(`{"ok":true}`)
	jtest.RequireNil(t, store.UpsertTask(ctx, first))

	ls, err := store.ListTasks(ctx, ins.ID)
	jtest.RequireNil(t, err)
	require.Len(t, ls, 2)
	require.Equal(t, orchestrator.StageValidation, ls[0].Stage)
	require.Equal(t, orchestrator.TaskCompleted, ls[0].Status)
	require.Equal(t, 1, ls[0].Attempts)
	require.JSONEq(t, `{"ok":true}`, string(ls[0].Result))
	require.Equal(t, orchestrator.StageResearchAnalysis, ls[1].Stage)
}

func testTaskIsolation(t *testing.T, store orchestrator.Store) {
	ctx := context.Background()

	a := makeInstance()
	jtest.RequireNil(t, store.CreateInstance(ctx, a))
	b := makeInstance()
	jtest.RequireNil(t, store.CreateInstance(ctx, b))

	jtest.RequireNil(t, store.UpsertTask(ctx, makeTask(a.ID, orchestrator.StageValidation)))
	jtest.RequireNil(t, store.UpsertTask(ctx, makeTask(b.ID, orchestrator.StageValidation)))
	jtest.RequireNil(t, store.UpsertTask(ctx, makeTask(b.ID, orchestrator.StageResearchAnalysis)))

	lsA, err := store.ListTasks(ctx, a.ID)
	jtest.RequireNil(t, err)
	require.Len(t, lsA, 1)
	for _, task := range lsA {
		require.Equal(t, a.ID, task.WorkflowID)
	}

	lsB, err := store.ListTasks(ctx, b.ID)
	jtest.RequireNil(t, err)
	require.Len(t, lsB, 2)
	for _, task := range lsB {
		require.Equal(t, b.ID, task.WorkflowID)
	}
}

func testSaveTick(t *testing.T, store orchestrator.Store) {
	ctx := context.Background()

	ins := makeInstance()
	jtest.RequireNil(t, store.CreateInstance(ctx, ins))

	task := makeTask(ins.ID, orchestrator.StageValidation)
	ins.Status = orchestrator.StatusRunning

	jtest.RequireNil(t, store.SaveTick(ctx, ins, []*orchestrator.Task{task}))

	got, err := store.LookupInstance(ctx, ins.ID)
	jtest.RequireNil(t, err)
	require.Equal(t, orchestrator.StatusRunning, got.Status)

	ls, err := store.ListTasks(ctx, ins.ID)
	jtest.RequireNil(t, err)
	require.Len(t, ls, 1)

	// SaveTick for an unknown workflow must not create anything.
	unknown := makeInstance()
	err = store.SaveTick(ctx, unknown, []*orchestrator.Task{makeTask(unknown.ID, orchestrator.StageValidation)})
	jtest.Require(t, orchestrator.ErrWorkflowNotFound, err)

	ls, err = store.ListTasks(ctx, unknown.ID)
	jtest.RequireNil(t, err)
	require.Empty(t, ls)
}

func testSamples(t *testing.T, store orchestrator.Store) {
	ctx := context.Background()

	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	for i, agent := range []orchestrator.AgentType{
		orchestrator.AgentSubmissionValidator,
		orchestrator.AgentQualityScorer,
		orchestrator.AgentSubmissionValidator,
	} {
		jtest.RequireNil(t, store.AppendSample(ctx, orchestrator.Sample{
			Agent:     agent,
			Action:    orchestrator.ActionValidateSubmission,
			Latency:   time.Duration(i+1) * time.Second,
			Success:   i != 1,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := store.ListSamples(ctx, "")
	jtest.RequireNil(t, err)
	require.Len(t, all, 3)
	require.True(t, all[0].Timestamp.Before(all[1].Timestamp))
	require.True(t, all[1].Timestamp.Before(all[2].Timestamp))

	validator, err := store.ListSamples(ctx, orchestrator.AgentSubmissionValidator)
	jtest.RequireNil(t, err)
	require.Len(t, validator, 2)
	for _, sample := range validator {
		require.Equal(t, orchestrator.AgentSubmissionValidator, sample.Agent)
	}
}
