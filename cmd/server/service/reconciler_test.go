package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alphauslabs/buckshot/internal/aggregator"
	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/database/sqlite"
	"github.com/alphauslabs/buckshot/internal/pool"
	"github.com/alphauslabs/buckshot/internal/queue"
	"github.com/alphauslabs/buckshot/internal/storage"
	"github.com/alphauslabs/buckshot/internal/vault"
)

type reconcileFixture struct {
	store    *sqlite.Store
	registry *pool.Registry
	queue    *queue.Memory
	rec      *Reconciler
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "reconcile.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cipher, err := vault.New(testKey)
	if err != nil {
		t.Fatal(err)
	}
	registry := pool.NewRegistry(store, cipher, pool.Options{StrikeThreshold: 1, AutoDeleteAfter: time.Hour})
	q := queue.NewMemory(queue.DefaultMaxDeliveries)
	agg := aggregator.New(store, storage.NewDir(t.TempDir()))
	return &reconcileFixture{
		store:    store,
		registry: registry,
		queue:    q,
		rec:      NewReconciler(store, q, agg, registry, 10*time.Minute),
	}
}

// job inserts a processing job with the given tasks, creating the accounts
// they reference.
func (f *reconcileFixture) job(t *testing.T, tasks ...*database.Task) *database.Job {
	t.Helper()
	now := time.Now().UTC()
	project := &database.Project{
		ProjectId: "project-1", Label: "p", ClientId: "c", ClientSecret: "s",
		Status: database.ProjectStatusActive, CreatedAt: now, UpdatedAt: now,
	}
	job := &database.Job{
		JobId:         "job-1",
		Title:         "Launch",
		VideoKey:      "uploads/launch.mp4",
		VideoFilename: "launch.mp4",
		VideoSize:     10,
		Privacy:       database.PrivacyPublic,
		Status:        database.JobStatusProcessing,
		TotalTasks:    int64(len(tasks)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, task := range tasks {
		task.JobId = job.JobId
		if task.MaxAttempts == 0 {
			task.MaxAttempts = 3
		}
		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}
		if task.UpdatedAt.IsZero() {
			task.UpdatedAt = now
		}
	}
	err := f.store.RunInTransaction(context.Background(), func(ctx context.Context, tx database.Tx) error {
		if err := tx.InsertProject(ctx, project); err != nil {
			return err
		}
		for _, task := range tasks {
			err := tx.InsertAccount(ctx, &database.Account{
				AccountId: task.AccountId, ProjectId: project.ProjectId, Email: task.AccountId + "@example.com",
				RefreshToken: "token", Status: database.AccountStatusActive, CreatedAt: now, UpdatedAt: now,
			})
			if err != nil {
				return err
			}
		}
		if err := tx.InsertJob(ctx, job); err != nil {
			return err
		}
		return tx.InsertTasks(ctx, tasks)
	})
	if err != nil {
		t.Fatalf("failed to insert job: %v", err)
	}
	return job
}

func (f *reconcileFixture) task(t *testing.T, id string) *database.Task {
	t.Helper()
	task, err := f.store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func TestReconcileRequeuesStaleTasks(t *testing.T) {
	f := newReconcileFixture(t)
	old := time.Now().UTC().Add(-time.Hour)
	f.job(t,
		&database.Task{TaskId: "stale", AccountId: "a1", Status: database.TaskStatusPending, UpdatedAt: old},
		&database.Task{TaskId: "fresh", AccountId: "a2", Status: database.TaskStatusPending},
	)

	res, err := f.rec.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if res.Requeued != 1 {
		t.Errorf("Requeued = %d, want 1", res.Requeued)
	}
	if f.queue.Len() != 1 {
		t.Errorf("queue length = %d, want 1", f.queue.Len())
	}
	if got := f.task(t, "stale").Status; got != database.TaskStatusQueued {
		t.Errorf("stale task status = %s, want queued", got)
	}
	if got := f.task(t, "fresh").Status; got != database.TaskStatusPending {
		t.Errorf("fresh task status = %s, want pending", got)
	}
}

func TestReconcileExpiresLeases(t *testing.T) {
	f := newReconcileFixture(t)
	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	owner := "worker-2"
	f.job(t,
		&database.Task{TaskId: "expired", AccountId: "a1", Status: database.TaskStatusUploading,
			Attempts: 0, LeaseOwner: &owner, LeaseExpiresAt: &past},
		&database.Task{TaskId: "live", AccountId: "a2", Status: database.TaskStatusUploading,
			LeaseOwner: &owner, LeaseExpiresAt: &future},
	)

	res, err := f.rec.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if res.Expired != 1 {
		t.Errorf("Expired = %d, want 1", res.Expired)
	}

	expired := f.task(t, "expired")
	if expired.Status != database.TaskStatusQueued || expired.Attempts != 1 || expired.LeaseOwner != nil {
		t.Errorf("expired task = status %s, attempts %d, owner %v", expired.Status, expired.Attempts, expired.LeaseOwner)
	}
	if database.Deref(expired.ErrorCode) != string(apperr.CodeTransientUpload) {
		t.Errorf("ErrorCode = %q, want transient", database.Deref(expired.ErrorCode))
	}
	if f.queue.Len() != 1 {
		t.Errorf("queue length = %d, want 1", f.queue.Len())
	}

	live := f.task(t, "live")
	if live.Status != database.TaskStatusUploading || live.Attempts != 0 {
		t.Errorf("live task = status %s, attempts %d", live.Status, live.Attempts)
	}
}

func TestReconcileExpiredLeaseExhaustsAttempts(t *testing.T) {
	f := newReconcileFixture(t)
	past := time.Now().UTC().Add(-time.Minute)
	job := f.job(t, &database.Task{TaskId: "last", AccountId: "a1", Status: database.TaskStatusUploading,
		Attempts: 2, MaxAttempts: 3, LeaseExpiresAt: &past})

	if _, err := f.rec.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	task := f.task(t, "last")
	if task.Status != database.TaskStatusFailed || database.Deref(task.ErrorCode) != string(apperr.CodeMaxAttemptsExceeded) {
		t.Errorf("task = status %s, code %q", task.Status, database.Deref(task.ErrorCode))
	}
	if f.queue.Len() != 0 {
		t.Errorf("queue length = %d, want 0", f.queue.Len())
	}

	got, err := f.store.GetJob(context.Background(), job.JobId)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != database.JobStatusFailed || got.FailedTasks != 1 || !got.SourceCleaned {
		t.Errorf("job = status %s, failed %d, cleaned %v", got.Status, got.FailedTasks, got.SourceCleaned)
	}
}

func TestReconcileRecomputesActiveJobs(t *testing.T) {
	f := newReconcileFixture(t)
	job := f.job(t,
		&database.Task{TaskId: "t1", AccountId: "a1", Status: database.TaskStatusCompleted},
		&database.Task{TaskId: "t2", AccountId: "a2", Status: database.TaskStatusFailed},
	)

	res, err := f.rec.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if res.Recomputed != 1 {
		t.Errorf("Recomputed = %d, want 1", res.Recomputed)
	}
	got, err := f.store.GetJob(context.Background(), job.JobId)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != database.JobStatusPartial || got.CompletedTasks != 1 || got.FailedTasks != 1 {
		t.Errorf("job = status %s, completed %d, failed %d", got.Status, got.CompletedTasks, got.FailedTasks)
	}

	// Terminal jobs drop out of the active set.
	res, err = f.rec.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Recomputed != 0 {
		t.Errorf("second pass Recomputed = %d, want 0", res.Recomputed)
	}
}

func TestReconcileSweepsDeadAccounts(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	p, err := f.registry.AddProject(ctx, pool.AddProjectRequest{Label: "p", ClientId: "c", ClientSecret: "s"})
	if err != nil {
		t.Fatal(err)
	}
	a, err := f.registry.AddAccount(ctx, pool.AddAccountRequest{ProjectId: p.ProjectId, Email: "a@example.com", RefreshToken: "t"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.registry.RecordStrike(ctx, a.AccountId, "unknown"); err != nil {
			t.Fatal(err)
		}
	}

	res, err := f.rec.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 0 {
		t.Errorf("Deleted = %d before the grace period, want 0", res.Deleted)
	}

	f.rec.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	res, err = f.rec.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", res.Deleted)
	}
	got, err := f.store.GetAccount(ctx, a.AccountId)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != database.AccountStatusDisabled {
		t.Errorf("status = %s, want disabled", got.Status)
	}
}

func TestReconcilerStartAndStop(t *testing.T) {
	f := newReconcileFixture(t)
	old := time.Now().UTC().Add(-time.Hour)
	f.job(t, &database.Task{TaskId: "stale", AccountId: "a1", Status: database.TaskStatusRetrying, UpdatedAt: old})

	f.rec.Start(context.Background(), time.Hour)
	deadline := time.Now().Add(5 * time.Second)
	for f.queue.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	f.rec.Stop()
	f.rec.Stop()

	if f.queue.Len() != 1 {
		t.Errorf("queue length = %d, want 1 after the startup pass", f.queue.Len())
	}
}
