package orchestrator

import "time"

// Instance is one manuscript's run through a workflow definition. Instances
// are created at intake, mutated exclusively by the engine owning their
// workflow id, and become immutable once terminal.
type Instance struct {
	ID             string     `json:"id"`
	Submission     Submission `json:"submission"`
	DefinitionName string     `json:"definition_name"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Progress is the completed-stage share of the definition as an integer
// percentage, truncated.
func Progress(d *Definition, tasks []Task) int {
	if d == nil || len(d.Stages) == 0 {
		return 0
	}

	completed := 0
	for _, t := range tasks {
		if t.Status == TaskCompleted {
			completed++
		}
	}

	return completed * 100 / len(d.Stages)
}

// CurrentStages returns the stages with a non-terminal task record, the
// points the workflow is currently at. A branched definition can have more
// than one.
func CurrentStages(tasks []Task) []string {
	var stages []string
	for _, t := range tasks {
		if !t.Status.Terminal() {
			stages = append(stages, t.Stage)
		}
	}

	return stages
}
