package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/alphauslabs/buckshot/internal/database"
)

type sqliteTx struct {
	tx *sqlx.Tx
}

var _ database.Tx = (*sqliteTx)(nil)

func (t *sqliteTx) GetProject(ctx context.Context, projectID string) (*database.Project, error) {
	return getProject(ctx, t.tx, projectID)
}

func (t *sqliteTx) GetAccount(ctx context.Context, accountID string) (*database.Account, error) {
	return getAccount(ctx, t.tx, accountID)
}

func (t *sqliteTx) GetJob(ctx context.Context, jobID string) (*database.Job, error) {
	return getJob(ctx, t.tx, jobID)
}

func (t *sqliteTx) GetTask(ctx context.Context, taskID string) (*database.Task, error) {
	return getTask(ctx, t.tx, taskID)
}

func (t *sqliteTx) CountTasksByStatus(ctx context.Context, jobID string) (map[database.TaskStatus]int64, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int64  `db:"n"`
	}
	if err := t.tx.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM tasks WHERE job_id = ? GROUP BY status`, jobID); err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	counts := make(map[database.TaskStatus]int64, len(rows))
	for _, r := range rows {
		counts[database.TaskStatus(r.Status)] = r.N
	}
	return counts, nil
}

func (t *sqliteTx) CountAccountsByStatus(ctx context.Context, projectID string) (map[database.AccountStatus]int64, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int64  `db:"n"`
	}
	if err := t.tx.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM accounts WHERE project_id = ? GROUP BY status`, projectID); err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	counts := make(map[database.AccountStatus]int64, len(rows))
	for _, r := range rows {
		counts[database.AccountStatus(r.Status)] = r.N
	}
	return counts, nil
}

func (t *sqliteTx) InsertProject(ctx context.Context, p *database.Project) error {
	p.Version = 1
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO projects (project_id, label, gcp_project_id, client_id, client_secret, status, max_accounts, account_count, added_by, created_at, updated_at, version)
		VALUES (:project_id, :label, :gcp_project_id, :client_id, :client_secret, :status, :max_accounts, :account_count, :added_by, :created_at, :updated_at, :version)`,
		projectToRow(p))
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (t *sqliteTx) InsertAccount(ctx context.Context, a *database.Account) error {
	a.Version = 1
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO accounts (account_id, project_id, email, channel_id, channel_title, refresh_token, status, status_reason, health_strikes,
			last_health_check, status_changed_at, last_upload_at, auto_delete_at, tags, added_by, created_at, updated_at, version)
		VALUES (:account_id, :project_id, :email, :channel_id, :channel_title, :refresh_token, :status, :status_reason, :health_strikes,
			:last_health_check, :status_changed_at, :last_upload_at, :auto_delete_at, :tags, :added_by, :created_at, :updated_at, :version)`,
		accountToRow(a))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (t *sqliteTx) InsertJob(ctx context.Context, j *database.Job) error {
	j.Version = 1
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO jobs (job_id, video_key, video_filename, video_size, title, description, tags, privacy, template_id, created_by,
			status, total_tasks, completed_tasks, failed_tasks, source_cleaned, created_at, updated_at, version)
		VALUES (:job_id, :video_key, :video_filename, :video_size, :title, :description, :tags, :privacy, :template_id, :created_by,
			:status, :total_tasks, :completed_tasks, :failed_tasks, :source_cleaned, :created_at, :updated_at, :version)`,
		jobToRow(j))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (t *sqliteTx) InsertTasks(ctx context.Context, tasks []*database.Task) error {
	for _, task := range tasks {
		task.Version = 1
		_, err := t.tx.NamedExecContext(ctx, `
			INSERT INTO tasks (task_id, job_id, account_id, status, title_override, description_override, tags_override, video_id, video_url,
				error_code, error_message, attempts, max_attempts, lease_owner, lease_expires_at, started_at, completed_at, created_at, updated_at, version)
			VALUES (:task_id, :job_id, :account_id, :status, :title_override, :description_override, :tags_override, :video_id, :video_url,
				:error_code, :error_message, :attempts, :max_attempts, :lease_owner, :lease_expires_at, :started_at, :completed_at, :created_at, :updated_at, :version)`,
			taskToRow(task))
		if err != nil {
			return fmt.Errorf("insert task %s: %w", task.TaskId, err)
		}
	}
	return nil
}

func (t *sqliteTx) InsertAudit(ctx context.Context, e *database.AuditEntry) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO audit_log (audit_id, actor, action, target_type, target_id, details, created_at)
		VALUES (:audit_id, :actor, :action, :target_type, :target_id, :details, :created_at)`,
		auditToRow(e))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdateProject(ctx context.Context, p *database.Project) error {
	res, err := t.tx.NamedExecContext(ctx, `
		UPDATE projects SET label = :label, gcp_project_id = :gcp_project_id, client_id = :client_id, client_secret = :client_secret,
			status = :status, max_accounts = :max_accounts, account_count = :account_count, updated_at = :updated_at, version = version + 1
		WHERE project_id = :project_id AND version = :version`,
		projectToRow(p))
	if err := checkCAS(res, err, "project"); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (t *sqliteTx) UpdateAccount(ctx context.Context, a *database.Account) error {
	res, err := t.tx.NamedExecContext(ctx, `
		UPDATE accounts SET project_id = :project_id, email = :email, channel_id = :channel_id, channel_title = :channel_title,
			refresh_token = :refresh_token, status = :status, status_reason = :status_reason, health_strikes = :health_strikes,
			last_health_check = :last_health_check, status_changed_at = :status_changed_at, last_upload_at = :last_upload_at,
			auto_delete_at = :auto_delete_at, tags = :tags, updated_at = :updated_at, version = version + 1
		WHERE account_id = :account_id AND version = :version`,
		accountToRow(a))
	if err := checkCAS(res, err, "account"); err != nil {
		return err
	}
	a.Version++
	return nil
}

func (t *sqliteTx) UpdateJob(ctx context.Context, j *database.Job) error {
	res, err := t.tx.NamedExecContext(ctx, `
		UPDATE jobs SET status = :status, total_tasks = :total_tasks, completed_tasks = :completed_tasks, failed_tasks = :failed_tasks,
			source_cleaned = :source_cleaned, updated_at = :updated_at, version = version + 1
		WHERE job_id = :job_id AND version = :version`,
		jobToRow(j))
	if err := checkCAS(res, err, "job"); err != nil {
		return err
	}
	j.Version++
	return nil
}

func (t *sqliteTx) UpdateTask(ctx context.Context, task *database.Task) error {
	res, err := t.tx.NamedExecContext(ctx, `
		UPDATE tasks SET status = :status, video_id = :video_id, video_url = :video_url, error_code = :error_code,
			error_message = :error_message, attempts = :attempts, lease_owner = :lease_owner, lease_expires_at = :lease_expires_at,
			started_at = :started_at, completed_at = :completed_at, updated_at = :updated_at, version = version + 1
		WHERE task_id = :task_id AND version = :version`,
		taskToRow(task))
	if err := checkCAS(res, err, "task"); err != nil {
		return err
	}
	task.Version++
	return nil
}

func checkCAS(res sql.Result, err error, entity string) error {
	if err != nil {
		return fmt.Errorf("update %s: %w", entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", entity, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s: %w", entity, database.ErrConflict)
	}
	return nil
}
