package natsagent

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/scholarpress/orchestrator"
)

func TestSubject(t *testing.T) {
	require.Equal(t,
		"agents.submission_validator.validate_submission",
		Subject(orchestrator.AgentSubmissionValidator, orchestrator.ActionValidateSubmission),
	)
	require.Equal(t,
		"agents.quality_scorer.review_ethics",
		Subject(orchestrator.AgentQualityScorer, orchestrator.ActionReviewEthics),
	)
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		kind orchestrator.ErrKind
	}{
		{name: "no responders", err: nats.ErrNoResponders, kind: orchestrator.ErrKindUnavailable},
		{name: "connection closed", err: nats.ErrConnectionClosed, kind: orchestrator.ErrKindUnavailable},
		{name: "nats timeout", err: nats.ErrTimeout, kind: orchestrator.ErrKindTimeout},
		{name: "deadline exceeded", err: context.DeadlineExceeded, kind: orchestrator.ErrKindTimeout},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.kind, classify(tc.err))
		})
	}
}

func TestRequestEnvelope(t *testing.T) {
	env := request{
		Action:    string(orchestrator.ActionScoreQuality),
		Data:      []byte(`{"manuscript_id":"m-1"}`),
		ContextID: "wf-1",
		Priority:  string(orchestrator.PriorityHigh),
	}

	b, err := orchestrator.Marshal(&env)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"action": "score_quality",
		"data": "eyJtYW51c2NyaXB0X2lkIjoibS0xIn0=",
		"context_id": "wf-1",
		"priority": "high"
	}`, string(b))
}

func TestReplyMapping(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want orchestrator.Result
	}{
		{
			name: "success",
			raw:  `{"success":true,"result":"eyJvayI6dHJ1ZX0="}`,
			want: orchestrator.Result{Success: true, Data: []byte(`{"ok":true}`)},
		},
		{
			name: "explicit rejection",
			raw:  `{"success":false,"error_kind":"rejected","detail":"missing abstract"}`,
			want: orchestrator.Result{Kind: orchestrator.ErrKindRejected, Detail: "missing abstract"},
		},
		{
			name: "unknown kind defaults to rejected",
			raw:  `{"success":false,"error_kind":"exploded","detail":"boom"}`,
			want: orchestrator.Result{Kind: orchestrator.ErrKindRejected, Detail: "boom"},
		},
		{
			name: "unavailable passes through",
			raw:  `{"success":false,"error_kind":"unavailable","detail":"db down"}`,
			want: orchestrator.Result{Kind: orchestrator.ErrKindUnavailable, Detail: "db down"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var rep reply
			require.NoError(t, orchestrator.Unmarshal([]byte(tc.raw), &rep))
			require.Equal(t, tc.want, mapReply(rep))
		})
	}
}
