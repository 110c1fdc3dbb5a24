package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/spanner"
)

type spannerTx struct {
	txn *spanner.ReadWriteTransaction
}

var _ Tx = (*spannerTx)(nil)

func (t *spannerTx) GetProject(ctx context.Context, projectID string) (*Project, error) {
	return readOne[Project](ctx, t.txn, "Projects", projectID, projectColumns)
}

func (t *spannerTx) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	return readOne[Account](ctx, t.txn, "Accounts", accountID, accountColumns)
}

func (t *spannerTx) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return readOne[Job](ctx, t.txn, "Jobs", jobID, jobColumns)
}

func (t *spannerTx) GetTask(ctx context.Context, taskID string) (*Task, error) {
	return readOne[Task](ctx, t.txn, "Tasks", taskID, taskColumns)
}

func (t *spannerTx) CountTasksByStatus(ctx context.Context, jobID string) (map[TaskStatus]int64, error) {
	stmt := spanner.Statement{
		SQL:    `SELECT Status, COUNT(*) FROM Tasks@{FORCE_INDEX=TasksByJob} WHERE JobId = @jobId GROUP BY Status`,
		Params: map[string]interface{}{"jobId": jobID},
	}
	counts := make(map[TaskStatus]int64)
	err := t.txn.Query(ctx, stmt).Do(func(row *spanner.Row) error {
		var status string
		var n int64
		if err := row.Columns(&status, &n); err != nil {
			return err
		}
		counts[TaskStatus(status)] = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	return counts, nil
}

func (t *spannerTx) CountAccountsByStatus(ctx context.Context, projectID string) (map[AccountStatus]int64, error) {
	stmt := spanner.Statement{
		SQL:    `SELECT Status, COUNT(*) FROM Accounts WHERE ProjectId = @projectId GROUP BY Status`,
		Params: map[string]interface{}{"projectId": projectID},
	}
	counts := make(map[AccountStatus]int64)
	err := t.txn.Query(ctx, stmt).Do(func(row *spanner.Row) error {
		var status string
		var n int64
		if err := row.Columns(&status, &n); err != nil {
			return err
		}
		counts[AccountStatus(status)] = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	return counts, nil
}

func (t *spannerTx) InsertProject(ctx context.Context, p *Project) error {
	p.Version = 1
	return t.buffer(spanner.Insert("Projects", projectColumns, projectValues(p)))
}

func (t *spannerTx) InsertAccount(ctx context.Context, a *Account) error {
	a.Version = 1
	return t.buffer(spanner.Insert("Accounts", accountColumns, accountValues(a)))
}

func (t *spannerTx) InsertJob(ctx context.Context, j *Job) error {
	j.Version = 1
	return t.buffer(spanner.Insert("Jobs", jobColumns, jobValues(j)))
}

func (t *spannerTx) InsertTasks(ctx context.Context, tasks []*Task) error {
	mutations := make([]*spanner.Mutation, 0, len(tasks))
	for _, task := range tasks {
		task.Version = 1
		mutations = append(mutations, spanner.Insert("Tasks", taskColumns, taskValues(task)))
	}
	return t.buffer(mutations...)
}

func (t *spannerTx) InsertAudit(ctx context.Context, e *AuditEntry) error {
	return t.buffer(spanner.Insert("AuditLog", auditColumns, []interface{}{
		e.AuditId, e.Actor, string(e.Action), e.TargetType, e.TargetId, e.Details, e.CreatedAt,
	}))
}

func (t *spannerTx) UpdateProject(ctx context.Context, p *Project) error {
	if err := t.checkVersion(ctx, "Projects", p.ProjectId, p.Version); err != nil {
		return err
	}
	p.Version++
	return t.buffer(spanner.Update("Projects", projectColumns, projectValues(p)))
}

func (t *spannerTx) UpdateAccount(ctx context.Context, a *Account) error {
	if err := t.checkVersion(ctx, "Accounts", a.AccountId, a.Version); err != nil {
		return err
	}
	a.Version++
	return t.buffer(spanner.Update("Accounts", accountColumns, accountValues(a)))
}

func (t *spannerTx) UpdateJob(ctx context.Context, j *Job) error {
	if err := t.checkVersion(ctx, "Jobs", j.JobId, j.Version); err != nil {
		return err
	}
	j.Version++
	return t.buffer(spanner.Update("Jobs", jobColumns, jobValues(j)))
}

func (t *spannerTx) UpdateTask(ctx context.Context, task *Task) error {
	if err := t.checkVersion(ctx, "Tasks", task.TaskId, task.Version); err != nil {
		return err
	}
	task.Version++
	return t.buffer(spanner.Update("Tasks", taskColumns, taskValues(task)))
}

// checkVersion compares the stored row version with the caller's copy.
func (t *spannerTx) checkVersion(ctx context.Context, table, id string, version int64) error {
	row, err := t.txn.ReadRow(ctx, table, spanner.Key{id}, []string{"Version"})
	if err != nil {
		return fmt.Errorf("failed to read %s version: %w", table, err)
	}
	var current int64
	if err := row.Columns(&current); err != nil {
		return fmt.Errorf("failed to parse %s version: %w", table, err)
	}
	if current != version {
		return fmt.Errorf("%s %s: %w", table, id, ErrConflict)
	}
	return nil
}

func (t *spannerTx) buffer(mutations ...*spanner.Mutation) error {
	if err := t.txn.BufferWrite(mutations); err != nil {
		return fmt.Errorf("failed to buffer mutation: %w", err)
	}
	return nil
}
