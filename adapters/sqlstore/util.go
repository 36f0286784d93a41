package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/scholarpress/orchestrator"
)

// dbc is a common interface for *sql.DB and *sql.Tx so the write helpers can
// run standalone or inside a SaveTick transaction.
type dbc interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) updateInstance(ctx context.Context, conn dbc, ins *orchestrator.Instance) error {
	submission, err := orchestrator.Marshal(&ins.Submission)
	if err != nil {
		return err
	}

	resp, err := conn.ExecContext(ctx, "update "+s.instanceTableName+" set "+
		" submission=?, definition_name=?, status=?, updated_at=? where id=?",
		submission,
		ins.DefinitionName,
		int(ins.Status),
		ins.UpdatedAt,
		ins.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update workflow instance", j.KV("workflow_id", ins.ID))
	}

	n, err := resp.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		// The update may have matched a row without changing it, so only
		// report not found when the row is genuinely absent.
		var exists int
		err := s.writer.QueryRowContext(ctx, "select exists(select 1 from "+s.instanceTableName+" where id=?)", ins.ID).Scan(&exists)
		if err != nil {
			return errors.Wrap(err, "instance exists")
		}
		if exists == 0 {
			return errors.Wrap(orchestrator.ErrWorkflowNotFound, "", j.KV("workflow_id", ins.ID))
		}
	}

	return nil
}

func (s *SQLStore) upsertTask(ctx context.Context, conn dbc, t *orchestrator.Task) error {
	_, err := conn.ExecContext(ctx, "insert into "+s.taskTableName+
		" (id, workflow_id, stage, agent, action, status, attempts, next_retry_at, started_at, completed_at, result, err_kind, err_detail, created_at, updated_at) "+
		" values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) "+
		" on duplicate key update "+
		" status=values(status), attempts=values(attempts), next_retry_at=values(next_retry_at), "+
		" started_at=values(started_at), completed_at=values(completed_at), result=values(result), "+
		" err_kind=values(err_kind), err_detail=values(err_detail), updated_at=values(updated_at) ",
		t.ID,
		t.WorkflowID,
		t.Stage,
		string(t.Agent),
		string(t.Action),
		int(t.Status),
		t.Attempts,
		nullTime(t.NextRetryAt),
		nullTime(t.StartedAt),
		nullTime(t.CompletedAt),
		[]byte(t.Result),
		string(t.ErrKind),
		t.ErrDetail,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert task", j.MKV{
			"task_id":     t.ID,
			"workflow_id": t.WorkflowID,
			"stage":       t.Stage,
		})
	}

	return nil
}

func instanceScan(row row) (*orchestrator.Instance, error) {
	var (
		ins        orchestrator.Instance
		submission []byte
		status     int
	)
	err := row.Scan(
		&ins.ID,
		&submission,
		&ins.DefinitionName,
		&status,
		&ins.CreatedAt,
		&ins.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(orchestrator.ErrWorkflowNotFound, "")
	} else if err != nil {
		return nil, errors.Wrap(err, "instanceScan")
	}

	err = orchestrator.Unmarshal(submission, &ins.Submission)
	if err != nil {
		return nil, err
	}

	ins.Status = orchestrator.Status(status)

	return &ins, nil
}

func taskScan(row row) (*orchestrator.Task, error) {
	var (
		t           orchestrator.Task
		agent       string
		action      string
		status      int
		errKind     string
		result      []byte
		nextRetryAt sql.NullTime
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.WorkflowID,
		&t.Stage,
		&agent,
		&action,
		&status,
		&t.Attempts,
		&nextRetryAt,
		&startedAt,
		&completedAt,
		&result,
		&errKind,
		&t.ErrDetail,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(orchestrator.ErrTaskNotFound, "")
	} else if err != nil {
		return nil, errors.Wrap(err, "taskScan")
	}

	t.Agent = orchestrator.AgentType(agent)
	t.Action = orchestrator.Action(action)
	t.Status = orchestrator.TaskStatus(status)
	t.ErrKind = orchestrator.ErrKind(errKind)
	if len(result) > 0 {
		t.Result = result
	}
	t.NextRetryAt = nextRetryAt.Time
	t.StartedAt = startedAt.Time
	t.CompletedAt = completedAt.Time

	return &t, nil
}

func sampleScan(row row) (*orchestrator.Sample, error) {
	var (
		sample  orchestrator.Sample
		agent   string
		action  string
		latency int64
	)
	err := row.Scan(
		&agent,
		&action,
		&latency,
		&sample.Success,
		&sample.Timestamp,
	)
	if err != nil {
		return nil, errors.Wrap(err, "sampleScan")
	}

	sample.Agent = orchestrator.AgentType(agent)
	sample.Action = orchestrator.Action(action)
	sample.Latency = time.Duration(latency)

	return &sample, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// row is a common interface for *sql.Rows and *sql.Row.
type row interface {
	Scan(dest ...any) error
}
