package orchestrator

import "fmt"

// Status is the overall state of a workflow instance.
type Status int

const (
	StatusUnknown   Status = 0
	StatusPending   Status = 1
	StatusRunning   Status = 2
	StatusPaused    Status = 3
	StatusCompleted Status = 4
	StatusFailed    Status = 5
	StatusCancelled Status = 6
	statusSentinel  Status = 7
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "Unknown"
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusPaused:
		return "Paused"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

func (s Status) Valid() bool {
	return s > StatusUnknown && s < statusSentinel
}

// Terminal statuses are final. A workflow instance in a terminal status is
// immutable apart from an explicit manual re-run (see Engine.Rerun).
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is a legal status
// transition. Transitions are monotonic except for the Running <-> Paused
// pair.
func (s Status) CanTransitionTo(next Status) bool {
	valid, ok := statusTransitions[s]
	if !ok {
		return false
	}

	return valid[next]
}

var statusTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusRunning:   true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusPaused:    true,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusPaused: {
		StatusRunning:   true,
		StatusCancelled: true,
	},
}

// TaskStatus is the state of a single stage execution record.
type TaskStatus int

const (
	TaskUnknown   TaskStatus = 0
	TaskPending   TaskStatus = 1
	TaskRunning   TaskStatus = 2
	TaskRetrying  TaskStatus = 3
	TaskCompleted TaskStatus = 4
	TaskFailed    TaskStatus = 5

	taskStatusSentinel TaskStatus = 6
)

func (ts TaskStatus) String() string {
	switch ts {
	case TaskUnknown:
		return "Unknown"
	case TaskPending:
		return "Pending"
	case TaskRunning:
		return "Running"
	case TaskRetrying:
		return "Retrying"
	case TaskCompleted:
		return "Completed"
	case TaskFailed:
		return "Failed"
	default:
		return fmt.Sprintf("TaskStatus(%d)", ts)
	}
}

func (ts TaskStatus) Valid() bool {
	return ts > TaskUnknown && ts < taskStatusSentinel
}

// Terminal task statuses receive no further automated processing. A Failed
// task is only revived by an explicit manual re-run.
func (ts TaskStatus) Terminal() bool {
	switch ts {
	case TaskCompleted, TaskFailed:
		return true
	default:
		return false
	}
}
