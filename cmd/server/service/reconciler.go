package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/decomposer"
	"github.com/alphauslabs/buckshot/internal/pool"
	"github.com/alphauslabs/buckshot/internal/queue"
)

// JobRecomputer rolls task outcomes up into the job row.
type JobRecomputer interface {
	Recompute(ctx context.Context, jobID string) (*database.Job, error)
}

// Reconciler recovers work that fell through the cracks: tasks whose queue
// message was lost, uploads whose worker died mid-lease, and jobs whose
// final recompute or source cleanup never landed. It also sweeps dead
// accounts.
type Reconciler struct {
	store      database.Store
	queue      queue.Queue
	jobs       JobRecomputer
	registry   *pool.Registry
	staleAfter time.Duration
	now        func() time.Time

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ReconcileResult counts what one pass touched.
type ReconcileResult struct {
	Requeued   int
	Expired    int
	Recomputed int
	Deleted    int
}

func NewReconciler(store database.Store, q queue.Queue, jobs JobRecomputer, registry *pool.Registry, staleAfter time.Duration) *Reconciler {
	return &Reconciler{
		store:      store,
		queue:      q,
		jobs:       jobs,
		registry:   registry,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
		done:       make(chan struct{}),
	}
}

// Start runs one pass immediately and then one per interval until ctx is
// cancelled or Stop is called.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.RunOnce(ctx); err != nil {
			log.Printf("Initial reconcile failed: %v", err)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("Reconciler stopped")
				return
			case <-r.done:
				log.Println("Reconciler stopped")
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil {
					log.Printf("Reconcile tick failed: %v", err)
				}
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight pass.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
	r.wg.Wait()
}

// RunOnce performs a single reconcile pass.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	now := r.now()

	tasks, err := r.store.ListStaleTasks(ctx, now.Add(-r.staleAfter), now)
	if err != nil {
		return res, fmt.Errorf("failed to list stale tasks: %w", err)
	}
	for _, t := range tasks {
		if t.Status == database.TaskStatusUploading {
			ok, err := r.expireLease(ctx, t)
			if err != nil {
				log.Printf("Failed to expire lease on task %s: %v", t.TaskId, err)
				continue
			}
			if ok {
				res.Expired++
			}
			continue
		}
		if err := decomposer.Dispatch(ctx, r.store, r.queue, t, 0); err != nil {
			log.Printf("Failed to requeue task %s: %v", t.TaskId, err)
			continue
		}
		res.Requeued++
	}

	jobs, err := r.store.ListActiveJobs(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list active jobs: %w", err)
	}
	for _, j := range jobs {
		if _, err := r.jobs.Recompute(ctx, j.JobId); err != nil {
			log.Printf("Failed to recompute job %s: %v", j.JobId, err)
			continue
		}
		res.Recomputed++
	}

	res.Deleted, err = r.registry.SweepAutoDeletes(ctx, now)
	if err != nil {
		return res, fmt.Errorf("failed to sweep auto-deletes: %w", err)
	}

	if res != (ReconcileResult{}) {
		log.Printf("Reconcile pass: requeued=%d expired=%d recomputed=%d deleted=%d",
			res.Requeued, res.Expired, res.Recomputed, res.Deleted)
	}
	return res, nil
}

// expireLease treats an abandoned upload as a transient failure: the
// attempt is consumed and the task either retries or gives up.
func (r *Reconciler) expireLease(ctx context.Context, task *database.Task) (bool, error) {
	var updated *database.Task
	err := r.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		updated = nil
		t, err := tx.GetTask(ctx, task.TaskId)
		if err != nil {
			return err
		}
		now := r.now()
		if t.Status != database.TaskStatusUploading || (t.LeaseExpiresAt != nil && t.LeaseExpiresAt.After(now)) {
			return nil
		}
		owner := database.Deref(t.LeaseOwner)
		t.Attempts++
		t.LeaseOwner = nil
		t.LeaseExpiresAt = nil
		t.UpdatedAt = now
		if t.Attempts >= t.MaxAttempts {
			t.Status = database.TaskStatusFailed
			t.ErrorCode = database.StringPtr(string(apperr.CodeMaxAttemptsExceeded))
			t.ErrorMessage = database.StringPtr(fmt.Sprintf("upload lease held by %s expired after %d attempts", owner, t.Attempts))
			t.CompletedAt = database.TimePtr(now)
		} else {
			t.Status = database.TaskStatusRetrying
			t.ErrorCode = database.StringPtr(string(apperr.CodeTransientUpload))
			t.ErrorMessage = database.StringPtr(fmt.Sprintf("upload lease held by %s expired", owner))
		}
		if err := tx.UpdateTask(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil || updated == nil {
		return false, err
	}

	database.AppendLog(ctx, r.store, database.NewUploadLog(database.LogLevelWarn, database.EventRetry,
		database.Deref(updated.ErrorMessage)).ForTask(updated))

	if updated.Status == database.TaskStatusFailed {
		if _, err := r.jobs.Recompute(ctx, updated.JobId); err != nil {
			log.Printf("Failed to recompute job %s: %v", updated.JobId, err)
		}
		return true, nil
	}
	return true, decomposer.Dispatch(ctx, r.store, r.queue, updated, 0)
}
