package webapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luno/jettison/errors"
	"github.com/stretchr/testify/require"

	"github.com/scholarpress/orchestrator"
	"github.com/scholarpress/orchestrator/adapters/webapi"
)

type fakeAPI struct {
	submitted   []orchestrator.Submission
	submitErr   error
	controlled  []string
	controlErr  error
	rerunStages []string
	status      orchestrator.WorkflowStatus
	statusErr   error
}

func (f *fakeAPI) Submit(ctx context.Context, sub orchestrator.Submission) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, sub)
	return "wf-1", nil
}

func (f *fakeAPI) Pause(ctx context.Context, workflowID string) error {
	f.controlled = append(f.controlled, "pause:"+workflowID)
	return f.controlErr
}

func (f *fakeAPI) Resume(ctx context.Context, workflowID string) error {
	f.controlled = append(f.controlled, "resume:"+workflowID)
	return f.controlErr
}

func (f *fakeAPI) Cancel(ctx context.Context, workflowID string) error {
	f.controlled = append(f.controlled, "cancel:"+workflowID)
	return f.controlErr
}

func (f *fakeAPI) Rerun(ctx context.Context, workflowID, stage string) error {
	f.rerunStages = append(f.rerunStages, workflowID+":"+stage)
	return f.controlErr
}

func (f *fakeAPI) Status(ctx context.Context, workflowID string) (orchestrator.WorkflowStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeAPI) AgentMetrics(ctx context.Context) (map[orchestrator.AgentType]orchestrator.AgentStats, error) {
	return map[orchestrator.AgentType]orchestrator.AgentStats{
		orchestrator.AgentQualityScorer: {SuccessRate: 0.5, TotalInvocations: 2},
	}, nil
}

func (f *fakeAPI) Summary(ctx context.Context) (orchestrator.SystemSummary, error) {
	return orchestrator.SystemSummary{CompletedCount: 3}, nil
}

func serve(t *testing.T, api webapi.API, hub *webapi.Hub) *httptest.Server {
	srv := httptest.NewServer(webapi.NewServer(api, hub, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmit(t *testing.T) {
	api := &fakeAPI{}
	srv := serve(t, api, nil)

	body := `{"id":"m-1","title":"A title","authors":["A. Author"],"priority":"high"}`
	resp, err := http.Post(srv.URL+"/api/v1/submissions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, api.submitted, 1)
	require.Equal(t, "m-1", api.submitted[0].ID)
	require.Equal(t, orchestrator.PriorityHigh, api.submitted[0].Priority)
}

func TestSubmitMalformedBody(t *testing.T) {
	srv := serve(t, &fakeAPI{}, nil)

	resp, err := http.Post(srv.URL+"/api/v1/submissions", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		code int
	}{
		{name: "invalid submission", err: orchestrator.ErrSubmissionInvalid, code: http.StatusBadRequest},
		{name: "workflow not found", err: orchestrator.ErrWorkflowNotFound, code: http.StatusNotFound},
		{name: "invalid transition", err: orchestrator.ErrInvalidTransition, code: http.StatusConflict},
		{name: "task not failed", err: orchestrator.ErrTaskNotFailed, code: http.StatusConflict},
		{name: "store unavailable", err: orchestrator.ErrStoreUnavailable, code: http.StatusServiceUnavailable},
		{name: "unclassified", err: errors.New("boom"), code: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := serve(t, &fakeAPI{controlErr: tc.err}, nil)

			resp, err := http.Post(srv.URL+"/api/v1/workflows/wf-1/pause", "application/json", nil)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, tc.code, resp.StatusCode)
		})
	}
}

func TestControlRoutes(t *testing.T) {
	api := &fakeAPI{}
	srv := serve(t, api, nil)

	for _, action := range []string{"pause", "resume", "cancel"} {
		resp, err := http.Post(srv.URL+"/api/v1/workflows/wf-9/"+action, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := http.Post(srv.URL+"/api/v1/workflows/wf-9/stages/quality_assessment/rerun", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, []string{"pause:wf-9", "resume:wf-9", "cancel:wf-9"}, api.controlled)
	require.Equal(t, []string{"wf-9:quality_assessment"}, api.rerunStages)
}

func TestStatusNotFound(t *testing.T) {
	srv := serve(t, &fakeAPI{statusErr: orchestrator.ErrWorkflowNotFound}, nil)

	resp, err := http.Get(srv.URL + "/api/v1/workflows/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	hub := webapi.NewHub(nil)
	srv := serve(t, &fakeAPI{}, hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	sent := orchestrator.Event{
		Type:       orchestrator.EventWorkflowStatusChanged,
		WorkflowID: "wf-1",
		Status:     orchestrator.StatusCompleted.String(),
		Timestamp:  time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
	}
	hub.Notify(context.Background(), sent)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got orchestrator.Event
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, sent, got)
}
