// Package aggregator rolls task outcomes up into job status and cleans up
// the source video once every task is done.
package aggregator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/alphauslabs/buckshot/internal/database"
)

// SourceDeleter removes a job's source video.
type SourceDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Aggregator recomputes job counters from task rows.
type Aggregator struct {
	store  database.Store
	source SourceDeleter
}

func New(store database.Store, source SourceDeleter) *Aggregator {
	return &Aggregator{store: store, source: source}
}

// DeriveStatus maps task counters to a job status.
func DeriveStatus(total, completed, failed int64) database.JobStatus {
	switch {
	case total > 0 && completed == total:
		return database.JobStatusCompleted
	case total > 0 && failed == total:
		return database.JobStatusFailed
	case completed > 0 && failed > 0 && completed+failed == total:
		return database.JobStatusPartial
	}
	return database.JobStatusProcessing
}

// Recompute recounts the job's tasks and stores the derived status. When
// every task is terminal the source is deleted. The transaction claims the
// cleanup so concurrent recomputes delete once; a failed delete releases the
// claim and a later Recompute tries again.
func (a *Aggregator) Recompute(ctx context.Context, jobID string) (*database.Job, error) {
	var (
		out     *database.Job
		cleanup bool
	)
	err := a.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		cleanup = false
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		counts, err := tx.CountTasksByStatus(ctx, jobID)
		if err != nil {
			return err
		}

		completed := counts[database.TaskStatusCompleted]
		failed := counts[database.TaskStatusFailed]
		status := DeriveStatus(job.TotalTasks, completed, failed)
		done := completed+failed == job.TotalTasks

		changed := job.CompletedTasks != completed || job.FailedTasks != failed || job.Status != status
		if done && !job.SourceCleaned {
			job.SourceCleaned = true
			cleanup = true
			changed = true
		}
		out = job
		if !changed {
			return nil
		}

		job.CompletedTasks = completed
		job.FailedTasks = failed
		job.Status = status
		job.UpdatedAt = time.Now().UTC()
		return tx.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to recompute job %s: %w", jobID, err)
	}

	if out.Status.Terminal() && cleanup {
		log.Printf("Job %s finished as %s (%d/%d completed)", jobID, out.Status, out.CompletedTasks, out.TotalTasks)
	}
	if cleanup {
		if err := a.cleanup(ctx, out); err != nil {
			if rerr := a.releaseCleanup(ctx, jobID); rerr != nil {
				log.Printf("Failed to release cleanup of job %s: %v", jobID, rerr)
			} else {
				out.SourceCleaned = false
			}
		}
	}
	return out, nil
}

// MarkProcessing moves a pending job to processing once a task starts.
func (a *Aggregator) MarkProcessing(ctx context.Context, jobID string) error {
	return a.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != database.JobStatusPending {
			return nil
		}
		job.Status = database.JobStatusProcessing
		job.UpdatedAt = time.Now().UTC()
		return tx.UpdateJob(ctx, job)
	})
}

func (a *Aggregator) cleanup(ctx context.Context, job *database.Job) error {
	start := time.Now()
	entry := database.NewUploadLog(database.LogLevelInfo, database.EventSourceCleanup, "source video deleted").ForJob(job.JobId)
	err := a.source.Delete(ctx, job.VideoKey)
	if err != nil {
		log.Printf("Failed to delete source %s for job %s: %v", job.VideoKey, job.JobId, err)
		entry.Level = database.LogLevelError
		entry.Message = fmt.Sprintf("source cleanup failed: %v", err)
	}
	database.AppendLog(ctx, a.store, entry.WithDuration(start).WithMetadata(map[string]string{"videoKey": job.VideoKey}))
	return err
}

// releaseCleanup clears the cleanup claim after a failed delete.
func (a *Aggregator) releaseCleanup(ctx context.Context, jobID string) error {
	return a.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		job, err := tx.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if !job.SourceCleaned {
			return nil
		}
		job.SourceCleaned = false
		job.UpdatedAt = time.Now().UTC()
		return tx.UpdateJob(ctx, job)
	})
}
