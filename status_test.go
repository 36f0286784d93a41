package orchestrator_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scholarpress/orchestrator"
)

func TestStatusTransitions(t *testing.T) {
	testCases := []struct {
		from    orchestrator.Status
		to      orchestrator.Status
		allowed bool
	}{
		{orchestrator.StatusPending, orchestrator.StatusRunning, true},
		{orchestrator.StatusPending, orchestrator.StatusCancelled, true},
		{orchestrator.StatusPending, orchestrator.StatusPaused, false},
		{orchestrator.StatusPending, orchestrator.StatusCompleted, false},
		{orchestrator.StatusRunning, orchestrator.StatusPaused, true},
		{orchestrator.StatusRunning, orchestrator.StatusCompleted, true},
		{orchestrator.StatusRunning, orchestrator.StatusFailed, true},
		{orchestrator.StatusRunning, orchestrator.StatusCancelled, true},
		{orchestrator.StatusRunning, orchestrator.StatusPending, false},
		{orchestrator.StatusPaused, orchestrator.StatusRunning, true},
		{orchestrator.StatusPaused, orchestrator.StatusCancelled, true},
		{orchestrator.StatusPaused, orchestrator.StatusCompleted, false},
		{orchestrator.StatusCompleted, orchestrator.StatusRunning, false},
		{orchestrator.StatusFailed, orchestrator.StatusRunning, false},
		{orchestrator.StatusCancelled, orchestrator.StatusRunning, false},
	}

	for _, tc := range testCases {
		t.Run(tc.from.String()+" to "+tc.to.String(), func(t *testing.T) {
			require.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, orchestrator.StatusPending.Terminal())
	require.False(t, orchestrator.StatusRunning.Terminal())
	require.False(t, orchestrator.StatusPaused.Terminal())
	require.True(t, orchestrator.StatusCompleted.Terminal())
	require.True(t, orchestrator.StatusFailed.Terminal())
	require.True(t, orchestrator.StatusCancelled.Terminal())
}

func TestTaskStatusTerminal(t *testing.T) {
	require.False(t, orchestrator.TaskPending.Terminal())
	require.False(t, orchestrator.TaskRunning.Terminal())
	require.False(t, orchestrator.TaskRetrying.Terminal())
	require.True(t, orchestrator.TaskCompleted.Terminal())
	require.True(t, orchestrator.TaskFailed.Terminal())
}

func TestStatusValid(t *testing.T) {
	require.False(t, orchestrator.StatusUnknown.Valid())
	require.True(t, orchestrator.StatusPending.Valid())
	require.True(t, orchestrator.StatusCancelled.Valid())
	require.False(t, orchestrator.Status(99).Valid())

	require.False(t, orchestrator.TaskUnknown.Valid())
	require.True(t, orchestrator.TaskRetrying.Valid())
	require.False(t, orchestrator.TaskStatus(99).Valid())
}
