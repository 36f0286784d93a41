// Package memstore provides an in-memory implementation of
// orchestrator.Store for testing and single process deployments.
package memstore

import (
	"context"
	"sync"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/scholarpress/orchestrator"
)

func New() *Store {
	return &Store{
		instances: make(map[string]*orchestrator.Instance),
		tasks:     make(map[string][]*orchestrator.Task),
		taskIndex: make(map[string]*orchestrator.Task),
	}
}

var _ orchestrator.Store = (*Store)(nil)

type Store struct {
	mu sync.Mutex

	instances map[string]*orchestrator.Instance
	// tasks keeps creation order per workflow id, taskIndex is keyed by
	// task id.
	tasks     map[string][]*orchestrator.Task
	taskIndex map[string]*orchestrator.Task

	samples []orchestrator.Sample
}

func (s *Store) CreateInstance(ctx context.Context, ins *orchestrator.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[ins.ID]; ok {
		return errors.New("workflow instance already exists", j.KV("workflow_id", ins.ID))
	}

	s.instances[ins.ID] = copyInstance(ins)
	return nil
}

func (s *Store) LookupInstance(ctx context.Context, workflowID string) (*orchestrator.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ins, ok := s.instances[workflowID]
	if !ok {
		return nil, errors.Wrap(orchestrator.ErrWorkflowNotFound, "", j.KV("workflow_id", workflowID))
	}

	return copyInstance(ins), nil
}

func (s *Store) ListInstancesByStatus(ctx context.Context, status orchestrator.Status) ([]orchestrator.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []orchestrator.Instance
	for _, ins := range s.instances {
		if ins.Status == status {
			out = append(out, *copyInstance(ins))
		}
	}

	return out, nil
}

func (s *Store) UpdateInstance(ctx context.Context, ins *orchestrator.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateInstanceLocked(ins)
}

func (s *Store) updateInstanceLocked(ins *orchestrator.Instance) error {
	if _, ok := s.instances[ins.ID]; !ok {
		return errors.Wrap(orchestrator.ErrWorkflowNotFound, "", j.KV("workflow_id", ins.ID))
	}

	s.instances[ins.ID] = copyInstance(ins)
	return nil
}

func (s *Store) UpsertTask(ctx context.Context, t *orchestrator.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertTaskLocked(t)
	return nil
}

func (s *Store) upsertTaskLocked(t *orchestrator.Task) {
	cp := copyTask(t)
	if existing, ok := s.taskIndex[t.ID]; ok {
		*existing = *cp
		return
	}

	s.taskIndex[t.ID] = cp
	s.tasks[t.WorkflowID] = append(s.tasks[t.WorkflowID], cp)
}

func (s *Store) ListTasks(ctx context.Context, workflowID string) ([]orchestrator.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.tasks[workflowID]
	out := make([]orchestrator.Task, 0, len(ts))
	for _, t := range ts {
		out = append(out, *copyTask(t))
	}

	return out, nil
}

// SaveTick applies the instance and task updates under a single lock
// acquisition so a reader never observes a half applied tick.
func (s *Store) SaveTick(ctx context.Context, ins *orchestrator.Instance, tasks []*orchestrator.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.updateInstanceLocked(ins)
	if err != nil {
		return err
	}

	for _, t := range tasks {
		s.upsertTaskLocked(t)
	}

	return nil
}

func (s *Store) AppendSample(ctx context.Context, sample orchestrator.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
	return nil
}

func (s *Store) ListSamples(ctx context.Context, agent orchestrator.AgentType) ([]orchestrator.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []orchestrator.Sample
	for _, sample := range s.samples {
		if agent != "" && sample.Agent != agent {
			continue
		}

		out = append(out, sample)
	}

	return out, nil
}

// Copies keep the store's internal state isolated from caller mutations.

func copyInstance(ins *orchestrator.Instance) *orchestrator.Instance {
	cp := *ins
	return &cp
}

func copyTask(t *orchestrator.Task) *orchestrator.Task {
	cp := *t
	if t.Result != nil {
		cp.Result = append([]byte(nil), t.Result...)
	}

	return &cp
}
