// Package decomposer turns one upload request into a job with one task per
// target account.
package decomposer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/pool"
	"github.com/alphauslabs/buckshot/internal/queue"
	"github.com/google/uuid"
)

const (
	// MaxVideoSize is the largest accepted source video.
	MaxVideoSize int64 = 256 << 20

	maxTitleLength       = 100
	maxDescriptionLength = 5000
)

// AccountSelector resolves the target accounts of a job.
type AccountSelector interface {
	SelectEligibleAccounts(ctx context.Context, c pool.Criteria) ([]*database.Account, error)
}

// Override replaces job metadata for a single account.
type Override struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SubmitJobRequest describes one video to distribute.
type SubmitJobRequest struct {
	Title         string
	VideoKey      string
	VideoFilename string
	VideoSize     int64
	// AccountIDs targets specific accounts. Nil means every eligible account;
	// an empty non-nil slice is rejected.
	AccountIDs  []string
	Description string
	Tags        []string
	Privacy     database.Privacy
	TemplateID  string
	Overrides   map[string]Override
	CreatedBy   string
}

// Decomposer creates jobs and hands their tasks to the queue.
type Decomposer struct {
	store       database.Store
	accounts    AccountSelector
	queue       queue.Queue
	maxAttempts int64
}

// New returns a Decomposer. maxAttempts is stamped on every task.
func New(store database.Store, accounts AccountSelector, q queue.Queue, maxAttempts int) *Decomposer {
	return &Decomposer{
		store:       store,
		accounts:    accounts,
		queue:       q,
		maxAttempts: int64(maxAttempts),
	}
}

// Validate checks req and fills defaults.
func Validate(req *SubmitJobRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	if n := utf8.RuneCountInString(req.Title); n < 1 || n > maxTitleLength {
		return apperr.Validation("title must be 1 to %d characters", maxTitleLength)
	}
	if req.VideoKey == "" {
		return apperr.Validation("videoKey is required")
	}
	if req.VideoFilename == "" {
		return apperr.Validation("videoFilename is required")
	}
	if req.VideoSize <= 0 || req.VideoSize > MaxVideoSize {
		return apperr.Validation("videoSize must be between 1 and %d bytes", MaxVideoSize)
	}
	if utf8.RuneCountInString(req.Description) > maxDescriptionLength {
		return apperr.Validation("description must be at most %d characters", maxDescriptionLength)
	}
	if req.Privacy == "" {
		req.Privacy = database.PrivacyPublic
	}
	if !req.Privacy.Valid() {
		return apperr.Validation("privacy must be public, unlisted or private")
	}
	if req.AccountIDs != nil && len(req.AccountIDs) == 0 {
		return apperr.Validation("accountIds must not be empty when given")
	}
	for id, o := range req.Overrides {
		if utf8.RuneCountInString(o.Title) > maxTitleLength {
			return apperr.Validation("override title for account %s is too long", id)
		}
		if utf8.RuneCountInString(o.Description) > maxDescriptionLength {
			return apperr.Validation("override description for account %s is too long", id)
		}
	}
	return nil
}

// CreateJob validates req, resolves its accounts and persists the job with
// its tasks in one transaction. Tasks are enqueued after commit; any that
// fail to enqueue stay pending for the reconciler.
func (d *Decomposer) CreateJob(ctx context.Context, req SubmitJobRequest) (*database.Job, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}

	if req.TemplateID != "" {
		if _, err := d.store.GetTemplate(ctx, req.TemplateID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, apperr.NotFound("template %s not found", req.TemplateID)
			}
			return nil, fmt.Errorf("failed to get template: %w", err)
		}
	}

	accounts, err := d.accounts.SelectEligibleAccounts(ctx, pool.Criteria{AccountIDs: req.AccountIDs})
	if err != nil {
		return nil, err
	}
	if len(req.AccountIDs) > len(accounts) {
		log.Printf("Skipping %d requested accounts that are unknown or not eligible", len(req.AccountIDs)-len(accounts))
	}
	if len(accounts) == 0 {
		return nil, apperr.New(apperr.CodeEmptyAccountSet, "no eligible accounts for this job")
	}

	now := time.Now().UTC()
	job := &database.Job{
		JobId:         uuid.New().String(),
		VideoKey:      req.VideoKey,
		VideoFilename: req.VideoFilename,
		VideoSize:     req.VideoSize,
		Title:         req.Title,
		Description:   database.StringPtr(req.Description),
		Tags:          req.Tags,
		Privacy:       req.Privacy,
		TemplateId:    database.StringPtr(req.TemplateID),
		CreatedBy:     database.StringPtr(req.CreatedBy),
		Status:        database.JobStatusPending,
		TotalTasks:    int64(len(accounts)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tasks := make([]*database.Task, 0, len(accounts))
	for _, a := range accounts {
		t := &database.Task{
			TaskId:      uuid.New().String(),
			JobId:       job.JobId,
			AccountId:   a.AccountId,
			Status:      database.TaskStatusPending,
			MaxAttempts: d.maxAttempts,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if o, ok := req.Overrides[a.AccountId]; ok {
			t.TitleOverride = database.StringPtr(o.Title)
			t.DescriptionOverride = database.StringPtr(o.Description)
			t.TagsOverride = o.Tags
		}
		tasks = append(tasks, t)
	}

	err = d.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		if err := tx.InsertJob(ctx, job); err != nil {
			return err
		}
		if err := tx.InsertTasks(ctx, tasks); err != nil {
			return err
		}
		details := map[string]any{"title": job.Title, "videoKey": job.VideoKey, "tasks": len(tasks)}
		return tx.InsertAudit(ctx, database.NewAudit(req.CreatedBy, database.AuditUploadCreated, "job", job.JobId, details))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	log.Printf("Created job %s with %d tasks", job.JobId, len(tasks))

	for _, t := range tasks {
		if err := Dispatch(ctx, d.store, d.queue, t, 0); err != nil {
			log.Printf("Failed to enqueue task %s: %v", t.TaskId, err)
		}
	}
	return job, nil
}

// Dispatch enqueues t after delay and marks it queued. The queued mark is
// skipped when the task already moved on.
func Dispatch(ctx context.Context, store database.Store, q queue.Queue, t *database.Task, delay time.Duration) error {
	msg := queue.Message{
		ID:        uuid.New().String(),
		TaskID:    t.TaskId,
		JobID:     t.JobId,
		AccountID: t.AccountId,
	}
	if err := q.Enqueue(ctx, msg, delay); err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}

	return store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		cur, err := tx.GetTask(ctx, t.TaskId)
		if err != nil {
			return err
		}
		if !cur.Status.CanTransition(database.TaskStatusQueued) {
			return nil
		}
		cur.Status = database.TaskStatusQueued
		cur.UpdatedAt = time.Now().UTC()
		return tx.UpdateTask(ctx, cur)
	})
}
