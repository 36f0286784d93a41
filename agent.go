package orchestrator

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/scholarpress/orchestrator/internal/metrics"
)

// AgentType identifies one of the external agent capability providers.
type AgentType string

const (
	AgentResearchDiscovery   AgentType = "research_discovery"
	AgentSubmissionValidator AgentType = "submission_validator"
	AgentQualityScorer       AgentType = "quality_scorer"
	AgentEditorialDecision   AgentType = "editorial_decision"
	AgentReviewCoordinator   AgentType = "review_coordinator"
	AgentProductionFormatter AgentType = "production_formatter"
	AgentAnalytics           AgentType = "analytics"
)

// Action is a member of the closed capability set understood by the agents.
// Dispatch is by a known action rather than a free-form string so that an
// unhandled action is a visible configuration error, not a silent no-op.
type Action string

const (
	ActionValidateSubmission     Action = "validate_submission"
	ActionVerifyIngredients      Action = "verify_ingredients"
	ActionAnalyzeResearchContext Action = "analyze_research_context"
	ActionScoreQuality           Action = "score_quality"
	ActionReviewEthics           Action = "review_ethics"
	ActionReviewStatistics       Action = "review_statistics"
	ActionRecommendDecision      Action = "recommend_decision"
	ActionCoordinateReview       Action = "coordinate_review"
	ActionFormatManuscript       Action = "format_manuscript"
	ActionCompileAnalytics       Action = "compile_analytics"
)

// agentActions is the exhaustive mapping of which actions each agent type
// serves.
var agentActions = map[AgentType][]Action{
	AgentResearchDiscovery:   {ActionAnalyzeResearchContext},
	AgentSubmissionValidator: {ActionValidateSubmission, ActionVerifyIngredients},
	AgentQualityScorer:       {ActionScoreQuality, ActionReviewEthics, ActionReviewStatistics},
	AgentEditorialDecision:   {ActionRecommendDecision},
	AgentReviewCoordinator:   {ActionCoordinateReview},
	AgentProductionFormatter: {ActionFormatManuscript},
	AgentAnalytics:           {ActionCompileAnalytics},
}

func (a AgentType) Valid() bool {
	_, ok := agentActions[a]
	return ok
}

// Supports reports whether the agent type serves the provided action.
func (a AgentType) Supports(action Action) bool {
	for _, act := range agentActions[a] {
		if act == action {
			return true
		}
	}

	return false
}

// ErrKind classifies an unsuccessful agent invocation. The kind decides the
// retry policy applied by the engine.
type ErrKind string

const (
	// ErrKindNone is set on successful results.
	ErrKindNone ErrKind = ""
	// ErrKindUnavailable covers connection refusals and network failures.
	ErrKindUnavailable ErrKind = "unavailable"
	// ErrKindRejected means the agent explicitly reported the input as
	// invalid. Rejections are never retried without human correction.
	ErrKindRejected ErrKind = "rejected"
	// ErrKindTimeout means the agent did not respond within the stage
	// timeout.
	ErrKindTimeout ErrKind = "timeout"
)

func (k ErrKind) Valid() bool {
	switch k {
	case ErrKindNone, ErrKindUnavailable, ErrKindRejected, ErrKindTimeout:
		return true
	default:
		return false
	}
}

// Retryable reports whether a failure of this kind is eligible for an
// automated retry with backoff.
func (k ErrKind) Retryable() bool {
	switch k {
	case ErrKindUnavailable, ErrKindTimeout:
		return true
	default:
		return false
	}
}

// InvokeRequest describes one agent invocation. WorkflowID is passed to the
// agent as the context identifier of the call.
type InvokeRequest struct {
	Agent      AgentType
	Action     Action
	WorkflowID string
	Priority   Priority
	Payload    []byte
	Timeout    time.Duration
}

// Result is the structured outcome of an agent invocation. Ordinary
// agent-side failures are folded into Success=false with a Kind rather than
// surfaced as errors.
type Result struct {
	Success bool
	// Data is the opaque payload returned by the agent. The orchestrator
	// stores it without interpreting it.
	Data   []byte
	Kind   ErrKind
	Detail string
}

// AgentClient is the uniform interface for invoking any external agent
// capability over a request/response channel.
type AgentClient interface {
	Invoke(ctx context.Context, req InvokeRequest) Result
}

// SampleRecorder is the narrow slice of the Store used to append agent
// performance samples.
type SampleRecorder interface {
	AppendSample(ctx context.Context, s Sample) error
}

// InstrumentAgentClient wraps an AgentClient so that every invocation,
// regardless of outcome, appends one performance Sample and updates the
// invocation metrics. A failure to record a sample is logged and never
// fails the invocation itself.
func InstrumentAgentClient(next AgentClient, recorder SampleRecorder, cl clock.Clock, logger Logger) AgentClient {
	if logger == nil {
		logger = noopLogger{}
	}

	return &instrumentedClient{
		next:     next,
		recorder: recorder,
		clock:    cl,
		logger:   logger,
	}
}

type instrumentedClient struct {
	next     AgentClient
	recorder SampleRecorder
	clock    clock.Clock
	logger   Logger
}

func (c *instrumentedClient) Invoke(ctx context.Context, req InvokeRequest) Result {
	t0 := c.clock.Now()
	res := c.next.Invoke(ctx, req)
	latency := c.clock.Since(t0)

	outcome := "success"
	if !res.Success {
		outcome = string(res.Kind)
	}

	metrics.AgentInvocations.WithLabelValues(string(req.Agent), string(req.Action), outcome).Inc()
	metrics.AgentLatency.WithLabelValues(string(req.Agent), string(req.Action)).Observe(latency.Seconds())

	err := c.recorder.AppendSample(ctx, Sample{
		Agent:     req.Agent,
		Action:    req.Action,
		Latency:   latency,
		Success:   res.Success,
		Timestamp: t0,
	})
	if err != nil {
		// NoReturnErr: samples feed aggregate metrics only and must not
		// affect the invocation outcome.
		c.logger.Error(ctx, err)
	}

	return res
}
