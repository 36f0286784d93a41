// Package sqlstore provides a MySQL backed implementation of
// orchestrator.Store for durable deployments.
package sqlstore

import (
	"context"
	"database/sql"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/scholarpress/orchestrator"
)

type SQLStore struct {
	writer *sql.DB
	reader *sql.DB

	instanceTableName    string
	instanceCols         string
	instanceSelectPrefix string

	taskTableName    string
	taskCols         string
	taskSelectPrefix string

	sampleTableName    string
	sampleCols         string
	sampleSelectPrefix string
}

func New(writer *sql.DB, reader *sql.DB, instanceTableName, taskTableName, sampleTableName string) *SQLStore {
	s := &SQLStore{
		writer:            writer,
		reader:            reader,
		instanceTableName: instanceTableName,
		taskTableName:     taskTableName,
		sampleTableName:   sampleTableName,
	}

	s.instanceCols = " `id`, `submission`, `definition_name`, `status`, `created_at`, `updated_at` "
	s.instanceSelectPrefix = " select " + s.instanceCols + " from " + s.instanceTableName + " where "

	s.taskCols = " `id`, `workflow_id`, `stage`, `agent`, `action`, `status`, `attempts`, " +
		" `next_retry_at`, `started_at`, `completed_at`, `result`, `err_kind`, `err_detail`, `created_at`, `updated_at` "
	s.taskSelectPrefix = " select " + s.taskCols + " from " + s.taskTableName + " where "

	s.sampleCols = " `agent`, `action`, `latency`, `success`, `timestamp` "
	s.sampleSelectPrefix = " select " + s.sampleCols + " from " + s.sampleTableName + " where "

	return s
}

var _ orchestrator.Store = (*SQLStore)(nil)

func (s *SQLStore) CreateInstance(ctx context.Context, ins *orchestrator.Instance) error {
	submission, err := orchestrator.Marshal(&ins.Submission)
	if err != nil {
		return err
	}

	_, err = s.writer.ExecContext(ctx, "insert into "+s.instanceTableName+" set "+
		" id=?, submission=?, definition_name=?, status=?, created_at=?, updated_at=? ",
		ins.ID,
		submission,
		ins.DefinitionName,
		int(ins.Status),
		ins.CreatedAt,
		ins.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create workflow instance", j.KV("workflow_id", ins.ID))
	}

	return nil
}

func (s *SQLStore) LookupInstance(ctx context.Context, workflowID string) (*orchestrator.Instance, error) {
	return instanceScan(s.reader.QueryRowContext(ctx, s.instanceSelectPrefix+"id=?", workflowID))
}

func (s *SQLStore) ListInstancesByStatus(ctx context.Context, status orchestrator.Status) ([]orchestrator.Instance, error) {
	rows, err := s.reader.QueryContext(ctx, s.instanceSelectPrefix+"status=? order by created_at asc", int(status))
	if err != nil {
		return nil, errors.Wrap(err, "list instances")
	}
	defer rows.Close()

	var res []orchestrator.Instance
	for rows.Next() {
		ins, err := instanceScan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *ins)
	}

	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	return res, nil
}

func (s *SQLStore) UpdateInstance(ctx context.Context, ins *orchestrator.Instance) error {
	return s.updateInstance(ctx, s.writer, ins)
}

func (s *SQLStore) UpsertTask(ctx context.Context, t *orchestrator.Task) error {
	return s.upsertTask(ctx, s.writer, t)
}

func (s *SQLStore) ListTasks(ctx context.Context, workflowID string) ([]orchestrator.Task, error) {
	rows, err := s.reader.QueryContext(ctx, s.taskSelectPrefix+"workflow_id=? order by seq asc", workflowID)
	if err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	defer rows.Close()

	var res []orchestrator.Task
	for rows.Next() {
		t, err := taskScan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}

	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	return res, nil
}

// SaveTick writes the instance and task updates in one transaction so a
// crash between them cannot leave a half applied tick behind.
func (s *SQLStore) SaveTick(ctx context.Context, ins *orchestrator.Instance, tasks []*orchestrator.Task) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = s.updateInstance(ctx, tx, ins)
	if err != nil {
		return err
	}

	for _, t := range tasks {
		err = s.upsertTask(ctx, tx, t)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLStore) AppendSample(ctx context.Context, sample orchestrator.Sample) error {
	_, err := s.writer.ExecContext(ctx, "insert into "+s.sampleTableName+" set "+
		" agent=?, action=?, latency=?, success=?, timestamp=? ",
		string(sample.Agent),
		string(sample.Action),
		int64(sample.Latency),
		sample.Success,
		sample.Timestamp,
	)
	if err != nil {
		return errors.Wrap(err, "failed to append sample", j.KV("agent", string(sample.Agent)))
	}

	return nil
}

func (s *SQLStore) ListSamples(ctx context.Context, agent orchestrator.AgentType) ([]orchestrator.Sample, error) {
	where := "1=1 order by id asc"
	var args []any
	if agent != "" {
		where = "agent=? order by id asc"
		args = append(args, string(agent))
	}

	rows, err := s.reader.QueryContext(ctx, s.sampleSelectPrefix+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list samples")
	}
	defer rows.Close()

	var res []orchestrator.Sample
	for rows.Next() {
		sample, err := sampleScan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *sample)
	}

	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	return res, nil
}
