package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/alphauslabs/buckshot/internal/database"
)

func getProject(ctx context.Context, q sqlx.QueryerContext, id string) (*database.Project, error) {
	var row projectRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM projects WHERE project_id = ?`, id); err != nil {
		return nil, notFound(err, "project")
	}
	return rowToProject(row), nil
}

func getAccount(ctx context.Context, q sqlx.QueryerContext, id string) (*database.Account, error) {
	var row accountRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM accounts WHERE account_id = ?`, id); err != nil {
		return nil, notFound(err, "account")
	}
	return rowToAccount(row), nil
}

func getJob(ctx context.Context, q sqlx.QueryerContext, id string) (*database.Job, error) {
	var row jobRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM jobs WHERE job_id = ?`, id); err != nil {
		return nil, notFound(err, "job")
	}
	return rowToJob(row), nil
}

func getTask(ctx context.Context, q sqlx.QueryerContext, id string) (*database.Task, error) {
	var row taskRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM tasks WHERE task_id = ?`, id); err != nil {
		return nil, notFound(err, "task")
	}
	return rowToTask(row), nil
}

func notFound(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", entity, database.ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", entity, err)
}

func (s *Store) GetProject(ctx context.Context, projectID string) (*database.Project, error) {
	return getProject(ctx, s.db, projectID)
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*database.Account, error) {
	return getAccount(ctx, s.db, accountID)
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*database.Job, error) {
	return getJob(ctx, s.db, jobID)
}

func (s *Store) GetTask(ctx context.Context, taskID string) (*database.Task, error) {
	return getTask(ctx, s.db, taskID)
}

func (s *Store) GetTemplate(ctx context.Context, templateID string) (*database.Template, error) {
	var row templateRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM templates WHERE template_id = ?`, templateID); err != nil {
		return nil, notFound(err, "template")
	}
	return rowToTemplate(row), nil
}

// where accumulates AND-ed conditions.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func limitOffset(p database.Page) (int, int) {
	if p.Limit <= 0 {
		return -1, 0
	}
	if p.Page < 1 {
		p.Page = 1
	}
	return p.Limit, p.Offset()
}

func (s *Store) ListProjects(ctx context.Context, f database.ProjectFilter) ([]*database.Project, int64, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM projects`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	limit, offset := limitOffset(f.Page)
	var rows []projectRow
	query := `SELECT * FROM projects` + w.String() + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	if err := s.db.SelectContext(ctx, &rows, query, append(w.args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}

	projects := make([]*database.Project, 0, len(rows))
	for _, r := range rows {
		projects = append(projects, rowToProject(r))
	}
	return projects, total, nil
}

func (s *Store) ListAccounts(ctx context.Context, f database.AccountFilter) ([]*database.Account, int64, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.ProjectId != "" {
		w.add("project_id = ?", f.ProjectId)
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM accounts`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	limit, offset := limitOffset(f.Page)
	var rows []accountRow
	query := `SELECT * FROM accounts` + w.String() + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	if err := s.db.SelectContext(ctx, &rows, query, append(w.args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	return accountsFromRows(rows), total, nil
}

func (s *Store) ListJobs(ctx context.Context, f database.JobFilter) ([]*database.Job, int64, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM jobs`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit, offset := limitOffset(f.Page)
	var rows []jobRow
	query := `SELECT * FROM jobs` + w.String() + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	if err := s.db.SelectContext(ctx, &rows, query, append(w.args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobsFromRows(rows), total, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]*database.Template, error) {
	var rows []templateRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM templates ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	templates := make([]*database.Template, 0, len(rows))
	for _, r := range rows {
		templates = append(templates, rowToTemplate(r))
	}
	return templates, nil
}

func (s *Store) ListTasksByJob(ctx context.Context, jobID string) ([]*database.Task, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM tasks WHERE job_id = ? ORDER BY created_at, task_id`, jobID); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasksFromRows(rows), nil
}

func (s *Store) ListUploadLogs(ctx context.Context, jobID string, limit int) ([]*database.UploadLog, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []uploadLogRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM upload_logs WHERE job_id = ? ORDER BY created_at DESC LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("list upload logs: %w", err)
	}
	logs := make([]*database.UploadLog, 0, len(rows))
	for _, r := range rows {
		logs = append(logs, rowToUploadLog(r))
	}
	return logs, nil
}

func (s *Store) ListEligibleAccounts(ctx context.Context) ([]*database.Account, error) {
	var rows []accountRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.* FROM accounts a
		JOIN projects p ON p.project_id = a.project_id
		WHERE a.status = ? AND p.status = ?`,
		string(database.AccountStatusActive), string(database.ProjectStatusActive))
	if err != nil {
		return nil, fmt.Errorf("list eligible accounts: %w", err)
	}
	return accountsFromRows(rows), nil
}

func (s *Store) ListAccountsByStatus(ctx context.Context, statuses ...database.AccountStatus) ([]*database.Account, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
	}
	query, args, err := sqlx.In(`SELECT * FROM accounts WHERE status IN (?) ORDER BY account_id`, args)
	if err != nil {
		return nil, fmt.Errorf("build account query: %w", err)
	}

	var rows []accountRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list accounts by status: %w", err)
	}
	return accountsFromRows(rows), nil
}

func (s *Store) ListAccountsDueForDeletion(ctx context.Context, now time.Time) ([]*database.Account, error) {
	var rows []accountRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM accounts WHERE status = ? AND auto_delete_at IS NOT NULL AND auto_delete_at <= ?`,
		string(database.AccountStatusDead), toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("list accounts due for deletion: %w", err)
	}
	return accountsFromRows(rows), nil
}

func (s *Store) ListActiveJobs(ctx context.Context) ([]*database.Job, error) {
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM jobs WHERE status IN (?, ?) OR source_cleaned = 0 ORDER BY created_at`,
		string(database.JobStatusPending), string(database.JobStatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	return jobsFromRows(rows), nil
}

func (s *Store) ListStaleTasks(ctx context.Context, cutoff, now time.Time) ([]*database.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM tasks
		WHERE (status IN (?, ?, ?) AND updated_at < ?)
		   OR (status = ? AND (lease_expires_at IS NULL OR lease_expires_at < ?))
		ORDER BY updated_at`,
		string(database.TaskStatusPending), string(database.TaskStatusQueued), string(database.TaskStatusRetrying), toMillis(cutoff),
		string(database.TaskStatusUploading), toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("list stale tasks: %w", err)
	}
	return tasksFromRows(rows), nil
}

func (s *Store) AppendUploadLog(ctx context.Context, l *database.UploadLog) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO upload_logs (log_id, task_id, job_id, account_id, project_id, level, event, message, metadata, duration_ms, created_at)
		VALUES (:log_id, :task_id, :job_id, :account_id, :project_id, :level, :event, :message, :metadata, :duration_ms, :created_at)`,
		uploadLogToRow(l))
	if err != nil {
		return fmt.Errorf("insert upload log: %w", err)
	}
	return nil
}

func (s *Store) InsertTemplate(ctx context.Context, t *database.Template) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO templates (template_id, name, title, description, tags, privacy, created_by, created_at, updated_at)
		VALUES (:template_id, :name, :title, :description, :tags, :privacy, :created_by, :created_at, :updated_at)`,
		templateToRow(t))
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func accountsFromRows(rows []accountRow) []*database.Account {
	accounts := make([]*database.Account, 0, len(rows))
	for _, r := range rows {
		accounts = append(accounts, rowToAccount(r))
	}
	return accounts
}

func jobsFromRows(rows []jobRow) []*database.Job {
	jobs := make([]*database.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, rowToJob(r))
	}
	return jobs
}

func tasksFromRows(rows []taskRow) []*database.Task {
	tasks := make([]*database.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, rowToTask(r))
	}
	return tasks
}
