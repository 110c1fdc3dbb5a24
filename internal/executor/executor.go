// Package executor runs one upload task per queue message.
//
// A task moves through:
//
//	pending → queued → uploading → completed
//	                       │
//	                       ├─ transient → retrying → queued (backoff)
//	                       └─ permanent / attempts exhausted → failed
//
// Messages are delivered at least once, so Handle is idempotent: terminal
// tasks and jobs are skipped and the uploading transition carries a lease
// that keeps a second executor off the same task.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/decomposer"
	"github.com/alphauslabs/buckshot/internal/health"
	"github.com/alphauslabs/buckshot/internal/navigator"
	"github.com/alphauslabs/buckshot/internal/platform"
	"github.com/alphauslabs/buckshot/internal/queue"
	"github.com/alphauslabs/buckshot/internal/router"
	"github.com/alphauslabs/buckshot/internal/storage"
)

// ErrLeased is returned when another executor holds a live lease on the
// task. The message should be retried later.
var ErrLeased = errors.New("task is leased by another executor")

// errCoolingDown marks an account resting in upload_limit. Its tasks wait
// for the cool-down instead of failing.
var errCoolingDown = errors.New("account is cooling down after an upload limit")

// Uploader publishes one video.
type Uploader interface {
	Upload(ctx context.Context, req platform.UploadRequest) (*platform.UploadResult, error)
}

// HealthRecorder receives upload outcomes.
type HealthRecorder interface {
	OnTaskOutcome(ctx context.Context, accountID string, o health.Outcome) error
}

// JobTracker keeps job status in step with its tasks.
type JobTracker interface {
	MarkProcessing(ctx context.Context, jobID string) error
	Recompute(ctx context.Context, jobID string) (*database.Job, error)
}

// Options bounds a single execution.
type Options struct {
	// WorkerID is recorded as the lease owner.
	WorkerID      string
	UploadTimeout time.Duration
	// LeaseDuration defaults to UploadTimeout plus one minute.
	LeaseDuration  time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// UploadLimitCooldown is how long an upload_limit account rests before
	// the health monitor may restore it.
	UploadLimitCooldown time.Duration
}

// Executor carries out upload tasks.
type Executor struct {
	store    database.Store
	vault    health.Decrypter
	source   storage.Source
	uploader Uploader
	health   HealthRecorder
	jobs     JobTracker
	queue    queue.Queue
	opts     Options
	now      func() time.Time
}

func New(
	store database.Store,
	vault health.Decrypter,
	source storage.Source,
	uploader Uploader,
	healthRecorder HealthRecorder,
	jobs JobTracker,
	q queue.Queue,
	opts Options,
) *Executor {
	if opts.LeaseDuration <= 0 {
		opts.LeaseDuration = opts.UploadTimeout + time.Minute
	}
	return &Executor{
		store:    store,
		vault:    vault,
		source:   source,
		uploader: uploader,
		health:   healthRecorder,
		jobs:     jobs,
		queue:    q,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes one delivery of a task message. A nil return means the
// message may be acknowledged; retries of the upload itself are scheduled
// as new messages.
func (e *Executor) Handle(ctx context.Context, msg queue.Message) error {
	task, err := e.store.GetTask(ctx, msg.TaskID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			log.Printf("Dropping message %s for unknown task %s", msg.ID, msg.TaskID)
			return nil
		}
		return fmt.Errorf("failed to get task: %w", err)
	}
	if task.Status.Terminal() {
		return nil
	}

	job, err := e.store.GetJob(ctx, task.JobId)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job.Status.Terminal() {
		return nil
	}

	account, project, err := e.loadAccount(ctx, task.AccountId)
	if err != nil {
		if errors.Is(err, errCoolingDown) {
			return e.deferTask(ctx, task, account)
		}
		if apperr.Is(err, apperr.CodeAccountUnavailable) {
			return e.fail(ctx, task, router.RouteFailure(err), err, false)
		}
		return err
	}

	claimed, err := e.claim(ctx, task.TaskId)
	if err != nil {
		return err
	}
	if claimed == nil {
		return nil
	}
	if err := e.jobs.MarkProcessing(ctx, job.JobId); err != nil {
		log.Printf("Failed to mark job %s processing: %v", job.JobId, err)
	}

	start := time.Now()
	database.AppendLog(ctx, e.store, database.NewUploadLog(database.LogLevelInfo, database.EventUploadStart,
		fmt.Sprintf("upload attempt %d/%d started", claimed.Attempts+1, claimed.MaxAttempts)).ForTask(claimed))

	result, err := e.upload(ctx, claimed, job, account, project)
	if err != nil {
		return e.onFailure(ctx, claimed, err, start)
	}
	return e.onSuccess(ctx, claimed, result, start)
}

// loadAccount returns the task's account and project, or an
// account_unavailable error when either left the pool. An account in
// upload_limit is returned with errCoolingDown.
func (e *Executor) loadAccount(ctx context.Context, accountID string) (*database.Account, *database.Project, error) {
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, apperr.New(apperr.CodeAccountUnavailable, "account %s no longer exists", accountID)
		}
		return nil, nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account.Status != database.AccountStatusActive && account.Status != database.AccountStatusUploadLimit {
		return nil, nil, apperr.New(apperr.CodeAccountUnavailable, "account %s is %s", accountID, account.Status)
	}

	project, err := e.store.GetProject(ctx, account.ProjectId)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get project: %w", err)
	}
	if project.Status != database.ProjectStatusActive {
		return nil, nil, apperr.New(apperr.CodeAccountUnavailable, "project %s is %s", project.ProjectId, project.Status)
	}
	if account.Status == database.AccountStatusUploadLimit {
		return account, project, errCoolingDown
	}
	return account, project, nil
}

// deferTask re-enqueues a task whose account is in upload_limit for when
// the cool-down ends. No attempt is consumed. The wait is capped at
// RetryMaxDelay so the task stays fresh for the reconciler.
func (e *Executor) deferTask(ctx context.Context, task *database.Task, account *database.Account) error {
	delay := e.opts.UploadLimitCooldown
	if account.StatusChangedAt != nil {
		delay -= e.now().Sub(*account.StatusChangedAt)
	}
	if delay < e.opts.RetryBaseDelay {
		delay = e.opts.RetryBaseDelay
	}
	if e.opts.RetryMaxDelay > 0 && delay > e.opts.RetryMaxDelay {
		delay = e.opts.RetryMaxDelay
	}

	deferred := false
	err := e.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		deferred = false
		t, err := tx.GetTask(ctx, task.TaskId)
		if err != nil {
			return err
		}
		if t.Status.Terminal() || t.Status == database.TaskStatusUploading {
			return nil
		}
		t.UpdatedAt = e.now()
		if err := tx.UpdateTask(ctx, t); err != nil {
			return err
		}
		deferred = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to defer task %s: %w", task.TaskId, err)
	}
	if !deferred {
		return nil
	}

	database.AppendLog(ctx, e.store, database.NewUploadLog(database.LogLevelInfo, database.EventRetry,
		fmt.Sprintf("account is in upload_limit, waiting %s", delay.Round(time.Second))).ForTask(task))
	if err := decomposer.Dispatch(ctx, e.store, e.queue, task, delay); err != nil {
		return fmt.Errorf("failed to defer task %s: %w", task.TaskId, err)
	}
	return nil
}

// claim moves the task to uploading under this worker's lease. It returns
// nil without error when the task already finished.
func (e *Executor) claim(ctx context.Context, taskID string) (*database.Task, error) {
	var claimed *database.Task
	err := e.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		claimed = nil
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return nil
		}

		now := e.now()
		if t.Status == database.TaskStatusUploading {
			if database.Deref(t.LeaseOwner) != e.opts.WorkerID && t.LeaseExpiresAt != nil && t.LeaseExpiresAt.After(now) {
				return ErrLeased
			}
		} else if !t.Status.CanTransition(database.TaskStatusUploading) {
			return fmt.Errorf("task %s cannot start from %s", t.TaskId, t.Status)
		}

		t.Status = database.TaskStatusUploading
		t.LeaseOwner = database.StringPtr(e.opts.WorkerID)
		t.LeaseExpiresAt = database.TimePtr(now.Add(e.opts.LeaseDuration))
		if t.StartedAt == nil {
			t.StartedAt = database.TimePtr(now)
		}
		t.UpdatedAt = now
		if err := tx.UpdateTask(ctx, t); err != nil {
			return err
		}
		claimed = t
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLeased) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to claim task %s: %w", taskID, err)
	}
	return claimed, nil
}

// upload decrypts credentials, opens the source and publishes it.
func (e *Executor) upload(ctx context.Context, task *database.Task, job *database.Job, account *database.Account, project *database.Project) (*platform.UploadResult, error) {
	secret, err := e.vault.Decrypt(project.ClientSecret)
	if err != nil {
		return nil, err
	}
	token, err := e.vault.Decrypt(account.RefreshToken)
	if err != nil {
		return nil, err
	}

	var tmpl *database.Template
	if id := database.Deref(job.TemplateId); id != "" {
		tmpl, err = e.store.GetTemplate(ctx, id)
		if err != nil {
			if !errors.Is(err, database.ErrNotFound) {
				return nil, apperr.Transient(apperr.ReasonNone, err, "failed to get template")
			}
			log.Printf("Template %s of job %s no longer exists, using job metadata", id, job.JobId)
			tmpl = nil
		}
	}
	plan, err := navigator.Navigate(navigator.Input{Task: task, Job: job, Account: account, Template: tmpl})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "failed to build upload metadata")
	}

	fetchStart := time.Now()
	video, err := e.source.Get(ctx, job.VideoKey)
	fetchLog := database.NewUploadLog(database.LogLevelInfo, database.EventSourceFetch, "source opened").ForTask(task)
	if err != nil {
		fetchLog.Level = database.LogLevelError
		fetchLog.Message = fmt.Sprintf("source fetch failed: %v", err)
	}
	database.AppendLog(ctx, e.store, fetchLog.WithDuration(fetchStart).WithMetadata(map[string]string{"videoKey": job.VideoKey}))
	if err != nil {
		return nil, err
	}
	defer video.Close()

	log.Printf("Uploading %s", plan.Summary)

	uploadCtx, cancel := context.WithTimeout(ctx, e.opts.UploadTimeout)
	defer cancel()
	return e.uploader.Upload(uploadCtx, platform.UploadRequest{
		Credentials: platform.Credentials{
			ClientID:     project.ClientId,
			ClientSecret: secret,
			RefreshToken: token,
		},
		Video:       video,
		Size:        job.VideoSize,
		Filename:    job.VideoFilename,
		Title:       plan.Title,
		Description: plan.Description,
		Tags:        plan.Tags,
		Privacy:     string(plan.Privacy),
	})
}

func (e *Executor) onSuccess(ctx context.Context, task *database.Task, result *platform.UploadResult, start time.Time) error {
	err := e.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		t, err := tx.GetTask(ctx, task.TaskId)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return nil
		}
		now := e.now()
		t.Status = database.TaskStatusCompleted
		t.VideoId = database.StringPtr(result.VideoID)
		t.VideoUrl = database.StringPtr(result.URL)
		t.ErrorCode = nil
		t.ErrorMessage = nil
		t.Attempts++
		t.LeaseOwner = nil
		t.LeaseExpiresAt = nil
		t.CompletedAt = database.TimePtr(now)
		t.UpdatedAt = now
		return tx.UpdateTask(ctx, t)
	})
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", task.TaskId, err)
	}

	log.Printf("Task %s uploaded as %s", task.TaskId, result.VideoID)
	database.AppendLog(ctx, e.store, database.NewUploadLog(database.LogLevelInfo, database.EventUploadComplete, "upload completed").
		ForTask(task).WithDuration(start).WithMetadata(map[string]string{"videoId": result.VideoID, "url": result.URL}))

	if err := e.health.OnTaskOutcome(ctx, task.AccountId, health.Outcome{Success: true}); err != nil {
		log.Printf("Failed to record upload for account %s: %v", task.AccountId, err)
	}
	e.recompute(ctx, task.JobId)
	return nil
}

func (e *Executor) onFailure(ctx context.Context, task *database.Task, cause error, start time.Time) error {
	decision := router.RouteFailure(cause)
	if ctx.Err() != nil {
		decision = router.RoutingDecision{
			Disposition: router.DispositionRequeue,
			Code:        apperr.CodeTransientUpload,
			Reason:      "worker stopping",
		}
	}
	if decision.Disposition == router.DispositionRequeue {
		return e.release(context.WithoutCancel(ctx), task, decision, cause)
	}
	log.Printf("Task %s failed, %s: %s (%v)", task.TaskId, decision.Disposition, decision.Reason, cause)

	if decision.Health != apperr.ReasonNone {
		o := health.Outcome{Reason: decision.Health, Message: cause.Error()}
		if err := e.health.OnTaskOutcome(ctx, task.AccountId, o); err != nil {
			log.Printf("Failed to record failure for account %s: %v", task.AccountId, err)
		}
	}

	entry := database.NewUploadLog(database.LogLevelError, database.EventError, cause.Error()).ForTask(task).WithDuration(start)
	database.AppendLog(ctx, e.store, entry.WithMetadata(map[string]string{
		"code":        string(decision.Code),
		"disposition": decision.Disposition.String(),
	}))

	if decision.Disposition == router.DispositionRetry {
		return e.retry(ctx, task, decision, cause)
	}
	return e.fail(ctx, task, decision, cause, decision.Disposition != router.DispositionUnavailable)
}

// retry consumes an attempt and schedules the next one, or fails the task
// once attempts are exhausted.
func (e *Executor) retry(ctx context.Context, task *database.Task, decision router.RoutingDecision, cause error) error {
	var updated *database.Task
	err := e.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		updated = nil
		t, err := tx.GetTask(ctx, task.TaskId)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return nil
		}
		now := e.now()
		t.Attempts++
		t.LeaseOwner = nil
		t.LeaseExpiresAt = nil
		t.UpdatedAt = now
		if t.Attempts >= t.MaxAttempts {
			t.Status = database.TaskStatusFailed
			t.ErrorCode = database.StringPtr(string(apperr.CodeMaxAttemptsExceeded))
			t.ErrorMessage = database.StringPtr(fmt.Sprintf("gave up after %d attempts: %v", t.Attempts, cause))
			t.CompletedAt = database.TimePtr(now)
		} else {
			t.Status = database.TaskStatusRetrying
			t.ErrorCode = database.StringPtr(string(decision.Code))
			t.ErrorMessage = database.StringPtr(cause.Error())
		}
		if err := tx.UpdateTask(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record retry for task %s: %w", task.TaskId, err)
	}
	if updated == nil {
		return nil
	}

	if updated.Status == database.TaskStatusFailed {
		log.Printf("Task %s exhausted %d attempts", updated.TaskId, updated.Attempts)
		e.recompute(ctx, updated.JobId)
		return nil
	}

	delay := e.backoff(updated.Attempts)
	database.AppendLog(ctx, e.store, database.NewUploadLog(database.LogLevelWarn, database.EventRetry,
		fmt.Sprintf("retry %d/%d scheduled in %s", updated.Attempts, updated.MaxAttempts, delay.Round(time.Second))).ForTask(updated))

	if err := decomposer.Dispatch(ctx, e.store, e.queue, updated, delay); err != nil {
		// The reconciler re-enqueues stale retrying tasks.
		log.Printf("Failed to re-enqueue task %s: %v", updated.TaskId, err)
	}
	return nil
}

// release hands an interrupted upload back without counting the attempt.
// The returned error makes the dispatcher redeliver the message.
func (e *Executor) release(ctx context.Context, task *database.Task, decision router.RoutingDecision, cause error) error {
	err := e.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		t, err := tx.GetTask(ctx, task.TaskId)
		if err != nil {
			return err
		}
		if t.Status != database.TaskStatusUploading || database.Deref(t.LeaseOwner) != e.opts.WorkerID {
			return nil
		}
		t.Status = database.TaskStatusRetrying
		t.LeaseOwner = nil
		t.LeaseExpiresAt = nil
		t.UpdatedAt = e.now()
		return tx.UpdateTask(ctx, t)
	})
	if err != nil {
		return fmt.Errorf("failed to release task %s: %w", task.TaskId, err)
	}

	log.Printf("Task %s released, %s: %v", task.TaskId, decision.Reason, cause)
	database.AppendLog(ctx, e.store, database.NewUploadLog(database.LogLevelWarn, database.EventRetry,
		fmt.Sprintf("%s, attempt not counted", decision.Reason)).ForTask(task))
	return fmt.Errorf("upload of task %s interrupted: %w", task.TaskId, cause)
}

// fail marks the task failed. consume controls whether the attempt counts.
func (e *Executor) fail(ctx context.Context, task *database.Task, decision router.RoutingDecision, cause error, consume bool) error {
	done := false
	err := e.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		done = false
		t, err := tx.GetTask(ctx, task.TaskId)
		if err != nil {
			return err
		}
		if t.Status.Terminal() {
			return nil
		}
		now := e.now()
		if consume {
			t.Attempts++
		}
		t.Status = database.TaskStatusFailed
		t.ErrorCode = database.StringPtr(string(decision.Code))
		t.ErrorMessage = database.StringPtr(cause.Error())
		t.LeaseOwner = nil
		t.LeaseExpiresAt = nil
		t.CompletedAt = database.TimePtr(now)
		t.UpdatedAt = now
		if err := tx.UpdateTask(ctx, t); err != nil {
			return err
		}
		done = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to fail task %s: %w", task.TaskId, err)
	}
	if done {
		if decision.Disposition == router.DispositionUnavailable {
			database.AppendLog(ctx, e.store, database.NewUploadLog(database.LogLevelWarn, database.EventError, cause.Error()).
				ForTask(task).WithMetadata(map[string]string{"code": string(decision.Code)}))
		}
		e.recompute(ctx, task.JobId)
	}
	return nil
}

func (e *Executor) recompute(ctx context.Context, jobID string) {
	if _, err := e.jobs.Recompute(ctx, jobID); err != nil {
		// The reconciler recomputes jobs whose tasks are all terminal.
		log.Printf("Failed to recompute job %s: %v", jobID, err)
	}
}

// backoff returns the delay before the given retry.
func (e *Executor) backoff(attempt int64) time.Duration {
	return queue.Backoff(e.opts.RetryBaseDelay, e.opts.RetryMaxDelay, attempt)
}
