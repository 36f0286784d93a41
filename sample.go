package orchestrator

import "time"

// Sample is one agent performance measurement, appended after every agent
// invocation regardless of outcome. Samples feed aggregate metrics and are
// never read by the engine for control decisions.
type Sample struct {
	Agent     AgentType     `json:"agent"`
	Action    Action        `json:"action"`
	Latency   time.Duration `json:"latency"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
}
