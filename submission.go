package orchestrator

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Priority is the processing priority of a manuscript.
type Priority string

const (
	PriorityRoutine Priority = "routine"
	PriorityHigh    Priority = "high"
	PriorityUrgent  Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityRoutine, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Submission is the manuscript data contract received from the journal CMS.
// It is treated as already validated at the business level and is immutable
// once a workflow instance has been created from it.
type Submission struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Authors             []string `json:"authors"`
	Abstract            string   `json:"abstract"`
	Keywords            []string `json:"keywords"`
	ResearchType        string   `json:"research_type"`
	FieldOfStudy        string   `json:"field_of_study"`
	Priority            Priority `json:"priority"`
	SpecialRequirements []string `json:"special_requirements,omitempty"`
}

// Validate performs the structural checks required before a workflow
// instance may be created. It does not inspect the manuscript content
// itself, that is the validation agent's job.
func (s *Submission) Validate() error {
	if s.ID == "" {
		return errors.Wrap(ErrSubmissionInvalid, "missing manuscript id")
	}

	if s.Title == "" {
		return errors.Wrap(ErrSubmissionInvalid, "missing title", j.KV("manuscript_id", s.ID))
	}

	if len(s.Authors) == 0 {
		return errors.Wrap(ErrSubmissionInvalid, "missing author list", j.KV("manuscript_id", s.ID))
	}

	if s.Priority != "" && !s.Priority.Valid() {
		return errors.Wrap(ErrSubmissionInvalid, "unknown priority", j.MKV{
			"manuscript_id": s.ID,
			"priority":      string(s.Priority),
		})
	}

	return nil
}

// HasRequirement reports whether the submission carries the provided
// special requirement tag.
func (s *Submission) HasRequirement(tag string) bool {
	for _, t := range s.SpecialRequirements {
		if t == tag {
			return true
		}
	}

	return false
}
