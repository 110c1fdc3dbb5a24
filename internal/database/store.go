package database

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an optimistic update lost a race.
	// RunInTransaction retries the whole function on this error.
	ErrConflict = errors.New("concurrent modification")
)

// Store is the persistence boundary shared by every component.
type Store interface {
	// RunInTransaction runs fn in a read-write transaction, retrying the
	// whole read-modify-write on conflict. fn must only touch tx.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetProject(ctx context.Context, projectID string) (*Project, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetTask(ctx context.Context, taskID string) (*Task, error)
	GetTemplate(ctx context.Context, templateID string) (*Template, error)

	ListProjects(ctx context.Context, f ProjectFilter) ([]*Project, int64, error)
	ListAccounts(ctx context.Context, f AccountFilter) ([]*Account, int64, error)
	ListJobs(ctx context.Context, f JobFilter) ([]*Job, int64, error)
	ListTemplates(ctx context.Context) ([]*Template, error)
	ListTasksByJob(ctx context.Context, jobID string) ([]*Task, error)
	ListUploadLogs(ctx context.Context, jobID string, limit int) ([]*UploadLog, error)

	// ListEligibleAccounts returns active accounts whose project is active.
	ListEligibleAccounts(ctx context.Context) ([]*Account, error)
	// ListAccountsByStatus returns accounts in any of the given statuses.
	ListAccountsByStatus(ctx context.Context, statuses ...AccountStatus) ([]*Account, error)
	// ListAccountsDueForDeletion returns dead accounts whose AutoDeleteAt <= now.
	ListAccountsDueForDeletion(ctx context.Context, now time.Time) ([]*Account, error)
	// ListActiveJobs returns jobs in pending or processing, and finished jobs
	// whose source video has not been cleaned up yet.
	ListActiveJobs(ctx context.Context) ([]*Job, error)
	// ListStaleTasks returns pending, queued or retrying tasks last updated
	// before the cutoff, plus uploading tasks whose lease expired before now.
	ListStaleTasks(ctx context.Context, cutoff, now time.Time) ([]*Task, error)

	AppendUploadLog(ctx context.Context, l *UploadLog) error
	InsertTemplate(ctx context.Context, t *Template) error

	Close() error
}

// Tx is a read-write transaction. Update methods compare the row's Version
// and return ErrConflict when it changed underneath.
type Tx interface {
	GetProject(ctx context.Context, projectID string) (*Project, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// CountTasksByStatus returns the number of a job's tasks per status.
	CountTasksByStatus(ctx context.Context, jobID string) (map[TaskStatus]int64, error)
	// CountAccountsByStatus returns the number of a project's accounts per status.
	CountAccountsByStatus(ctx context.Context, projectID string) (map[AccountStatus]int64, error)

	InsertProject(ctx context.Context, p *Project) error
	InsertAccount(ctx context.Context, a *Account) error
	InsertJob(ctx context.Context, j *Job) error
	InsertTasks(ctx context.Context, tasks []*Task) error
	InsertAudit(ctx context.Context, e *AuditEntry) error

	UpdateProject(ctx context.Context, p *Project) error
	UpdateAccount(ctx context.Context, a *Account) error
	UpdateJob(ctx context.Context, j *Job) error
	UpdateTask(ctx context.Context, t *Task) error
}
