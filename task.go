package orchestrator

import (
	"encoding/json"
	"time"
)

// Task is one execution record of one stage within a workflow instance.
// There is at most one task per stage, attempts are counted on the record.
// A task is owned exclusively by the engine goroutine handling its workflow
// instance and is never mutated concurrently by two executors.
type Task struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Stage      string    `json:"stage"`
	Agent      AgentType `json:"agent"`
	Action     Action    `json:"action"`

	Status TaskStatus `json:"status"`
	// Attempts is the number of agent invocations made for this task. The
	// engine guarantees Attempts <= RetryPolicy.MaxRetries+1.
	Attempts int `json:"attempts"`
	// NextRetryAt is set while the task is Retrying so the backoff state is
	// inspectable via the task history.
	NextRetryAt time.Time `json:"next_retry_at,omitempty"`

	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Result is the opaque payload returned by the agent on success.
	Result json.RawMessage `json:"result,omitempty"`

	ErrKind   ErrKind `json:"err_kind,omitempty"`
	ErrDetail string  `json:"err_detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
