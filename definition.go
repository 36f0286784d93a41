package orchestrator

import (
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/scholarpress/orchestrator/internal/graph"
)

const defaultStageTimeout = 2 * time.Minute

// StageSpec is one named step of a workflow definition together with its
// agent assignment and failure policy.
type StageSpec struct {
	Name   string
	Agent  AgentType
	Action Action
	// DependsOn lists the stages that must be Completed before this stage
	// becomes eligible. An empty list makes the stage eligible immediately.
	DependsOn []string
	// Timeout bounds a single agent invocation for this stage.
	Timeout time.Duration
	Retry   RetryPolicy
}

// Definition is the ordered catalog of stages a manuscript is routed
// through. Definitions are selected by the routing rules at intake and are
// never mutated at runtime.
type Definition struct {
	Name   string
	Stages []StageSpec

	g *graph.Graph
}

// NewDefinition builds a definition and validates its dependency graph.
func NewDefinition(name string, stages ...StageSpec) (*Definition, error) {
	d := &Definition{
		Name:   name,
		Stages: stages,
	}

	err := d.init()
	if err != nil {
		return nil, err
	}

	return d, nil
}

// MustDefinition is NewDefinition for statically declared templates where an
// invalid graph is a programming error.
func MustDefinition(name string, stages ...StageSpec) *Definition {
	d, err := NewDefinition(name, stages...)
	if err != nil {
		panic(err)
	}

	return d
}

func (d *Definition) init() error {
	if d.Name == "" {
		return errors.New("definition name is required")
	}

	if len(d.Stages) == 0 {
		return errors.New("definition requires at least one stage", j.KV("definition", d.Name))
	}

	g := graph.New()
	seen := make(map[string]bool)
	for i := range d.Stages {
		s := &d.Stages[i]
		if s.Name == "" {
			return errors.New("stage name is required", j.KV("definition", d.Name))
		}

		if seen[s.Name] {
			return errors.New("duplicate stage name", j.MKV{
				"definition": d.Name,
				"stage":      s.Name,
			})
		}
		seen[s.Name] = true

		if !s.Agent.Valid() {
			return errors.New("unknown agent type", j.MKV{
				"definition": d.Name,
				"stage":      s.Name,
				"agent":      string(s.Agent),
			})
		}

		if !s.Agent.Supports(s.Action) {
			return errors.Wrap(ErrAgentNotCapable, "", j.MKV{
				"definition": d.Name,
				"stage":      s.Name,
				"agent":      string(s.Agent),
				"action":     string(s.Action),
			})
		}

		if s.Timeout <= 0 {
			s.Timeout = defaultStageTimeout
		}

		g.AddNode(s.Name)
		for _, p := range s.DependsOn {
			if !seen[p] && !stageExists(d.Stages, p) {
				return errors.New("stage depends on unknown stage", j.MKV{
					"definition": d.Name,
					"stage":      s.Name,
					"depends_on": p,
				})
			}

			g.AddDependency(s.Name, p)
		}
	}

	err := g.Validate()
	if err != nil {
		return errors.Wrap(err, "invalid stage graph", j.KV("definition", d.Name))
	}

	d.g = g
	return nil
}

func stageExists(stages []StageSpec, name string) bool {
	for _, s := range stages {
		if s.Name == name {
			return true
		}
	}

	return false
}

// Stage returns the spec of the named stage.
func (d *Definition) Stage(name string) (StageSpec, bool) {
	for _, s := range d.Stages {
		if s.Name == name {
			return s, true
		}
	}

	return StageSpec{}, false
}

// Eligible returns the stages whose prerequisites are all completed,
// excluding stages that already have a task record. The order follows the
// definition's stage order, no ordering is promised between independent
// stages.
func (d *Definition) Eligible(completed map[string]bool, recorded map[string]bool) []StageSpec {
	ready := d.g.Ready(func(node string) bool {
		return completed[node]
	})

	var eligible []StageSpec
	for _, name := range ready {
		if recorded[name] || completed[name] {
			continue
		}

		s, ok := d.Stage(name)
		if !ok {
			continue
		}

		eligible = append(eligible, s)
	}

	return eligible
}
