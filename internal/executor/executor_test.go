package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alphauslabs/buckshot/internal/aggregator"
	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/database/sqlite"
	"github.com/alphauslabs/buckshot/internal/decomposer"
	"github.com/alphauslabs/buckshot/internal/health"
	"github.com/alphauslabs/buckshot/internal/platform"
	"github.com/alphauslabs/buckshot/internal/pool"
	"github.com/alphauslabs/buckshot/internal/queue"
	"github.com/alphauslabs/buckshot/internal/storage"
	"github.com/alphauslabs/buckshot/internal/vault"
)

const (
	testKey  = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	videoKey = "uploads/launch.mp4"
)

// fakeUploader fails per refresh token with the scripted errors, in order,
// then succeeds. With block set it waits for ctx to end instead, closing
// started first.
type fakeUploader struct {
	mu      sync.Mutex
	script  map[string][]error
	calls   map[string]int
	content string
	block   bool
	started chan struct{}
}

func (u *fakeUploader) Upload(ctx context.Context, req platform.UploadRequest) (*platform.UploadResult, error) {
	u.mu.Lock()
	token := req.Credentials.RefreshToken
	u.calls[token]++
	if u.block {
		if u.started != nil {
			close(u.started)
			u.started = nil
		}
		u.mu.Unlock()
		<-ctx.Done()
		return nil, apperr.Transient(apperr.ReasonUnknown, ctx.Err(), "upload timed out")
	}
	defer u.mu.Unlock()
	if errs := u.script[token]; len(errs) > 0 {
		u.script[token] = errs[1:]
		return nil, errs[0]
	}
	b, err := io.ReadAll(req.Video)
	if err != nil {
		return nil, err
	}
	u.content = string(b)
	id := fmt.Sprintf("vid-%s-%d", token, u.calls[token])
	return &platform.UploadResult{VideoID: id, URL: "https://www.youtube.com/watch?v=" + id}, nil
}

type countingSource struct {
	*storage.Dir
	mu      sync.Mutex
	deletes int
}

func (s *countingSource) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.Dir.Delete(ctx, key)
}

type fixture struct {
	store    *sqlite.Store
	registry *pool.Registry
	queue    *queue.Memory
	source   *countingSource
	uploader *fakeUploader
	d        *decomposer.Decomposer
	exec     *Executor
	root     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "exec.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cipher, err := vault.New(testKey)
	if err != nil {
		t.Fatal(err)
	}
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "uploads"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, videoKey), []byte("video-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	registry := pool.NewRegistry(store, cipher, pool.Options{StrikeThreshold: 3, AutoDeleteAfter: time.Hour})
	monitor := health.New(registry, store, nil, cipher, nil, health.Options{UploadLimitCooldown: time.Hour})
	source := &countingSource{Dir: storage.NewDir(root)}
	agg := aggregator.New(store, source)
	q := queue.NewMemory(queue.DefaultMaxDeliveries)
	uploader := &fakeUploader{script: map[string][]error{}, calls: map[string]int{}}

	exec := New(store, cipher, source, uploader, monitor, agg, q, Options{
		WorkerID:            "worker-1",
		UploadTimeout:       time.Minute,
		UploadLimitCooldown: time.Hour,
	})
	return &fixture{
		store:    store,
		registry: registry,
		queue:    q,
		source:   source,
		uploader: uploader,
		d:        decomposer.New(store, registry, q, 5),
		exec:     exec,
		root:     root,
	}
}

// accounts adds n accounts whose refresh tokens are "token-0".."token-n-1".
func (f *fixture) accounts(t *testing.T, n int) []*database.Account {
	t.Helper()
	ctx := context.Background()
	p, err := f.registry.AddProject(ctx, pool.AddProjectRequest{Label: "p", ClientId: "c", ClientSecret: "s"})
	if err != nil {
		t.Fatal(err)
	}
	var out []*database.Account
	for i := 0; i < n; i++ {
		a, err := f.registry.AddAccount(ctx, pool.AddAccountRequest{
			ProjectId:    p.ProjectId,
			Email:        fmt.Sprintf("user%d@example.com", i),
			RefreshToken: fmt.Sprintf("token-%d", i),
		})
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, a)
	}
	return out
}

func (f *fixture) submit(t *testing.T) *database.Job {
	t.Helper()
	job, err := f.d.CreateJob(context.Background(), decomposer.SubmitJobRequest{
		Title:         "Launch",
		VideoKey:      videoKey,
		VideoFilename: "launch.mp4",
		VideoSize:     11,
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	return job
}

// drain delivers queued messages until the queue is empty.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		msgs, err := f.queue.Receive(ctx, 10, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) == 0 {
			return
		}
		for _, m := range msgs {
			if err := f.exec.Handle(ctx, m); err != nil {
				t.Fatalf("Handle(%s) failed: %v", m.TaskID, err)
			}
			if err := f.queue.Ack(ctx, m); err != nil {
				t.Fatal(err)
			}
		}
	}
	t.Fatal("queue did not drain")
}

func (f *fixture) job(t *testing.T, id string) (*database.Job, []*database.Task) {
	t.Helper()
	job, err := f.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	tasks, err := f.store.ListTasksByJob(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return job, tasks
}

func TestHandleCompletesJob(t *testing.T) {
	f := newFixture(t)
	accounts := f.accounts(t, 2)
	job := f.submit(t)

	f.drain(t)

	got, tasks := f.job(t, job.JobId)
	if got.Status != database.JobStatusCompleted || got.CompletedTasks != 2 {
		t.Errorf("job = %s %d/%d, want completed 2/2", got.Status, got.CompletedTasks, got.TotalTasks)
	}
	for _, task := range tasks {
		if task.Status != database.TaskStatusCompleted || task.VideoId == nil || task.VideoUrl == nil {
			t.Errorf("task %s = %s video %v", task.TaskId, task.Status, task.VideoId)
		}
		if task.LeaseOwner != nil {
			t.Errorf("task %s still leased", task.TaskId)
		}
	}
	if f.uploader.content != "video-bytes" {
		t.Errorf("uploaded content = %q", f.uploader.content)
	}
	if f.source.deletes != 1 {
		t.Errorf("source deleted %d times, want 1", f.source.deletes)
	}
	if _, err := os.Stat(filepath.Join(f.root, videoKey)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("source still present: %v", err)
	}
	for _, a := range accounts {
		acc, _ := f.store.GetAccount(context.Background(), a.AccountId)
		if acc.LastUploadAt == nil {
			t.Errorf("account %s LastUploadAt not set", a.Email)
		}
	}
}

func TestHandleRedeliveryIsNoop(t *testing.T) {
	f := newFixture(t)
	f.accounts(t, 1)
	f.submit(t)

	ctx := context.Background()
	msgs, _ := f.queue.Receive(ctx, 10, time.Minute)
	if len(msgs) != 1 {
		t.Fatalf("received %d messages, want 1", len(msgs))
	}
	for i := 0; i < 3; i++ {
		if err := f.exec.Handle(ctx, msgs[0]); err != nil {
			t.Fatalf("Handle #%d failed: %v", i, err)
		}
	}
	if n := f.uploader.calls["token-0"]; n != 1 {
		t.Errorf("uploader called %d times, want 1", n)
	}
}

func TestHandleTransientExhaustsAttempts(t *testing.T) {
	f := newFixture(t)
	f.accounts(t, 1)
	transient := apperr.Transient(apperr.ReasonNone, nil, "connection reset")
	f.uploader.script["token-0"] = []error{transient, transient, transient, transient, transient, transient}
	job := f.submit(t)

	f.drain(t)

	got, tasks := f.job(t, job.JobId)
	task := tasks[0]
	if task.Status != database.TaskStatusFailed || task.Attempts != 5 {
		t.Errorf("task = %s after %d attempts, want failed after 5", task.Status, task.Attempts)
	}
	if database.Deref(task.ErrorCode) != string(apperr.CodeMaxAttemptsExceeded) {
		t.Errorf("ErrorCode = %s", database.Deref(task.ErrorCode))
	}
	if n := f.uploader.calls["token-0"]; n != 5 {
		t.Errorf("uploader called %d times, want 5", n)
	}
	if got.Status != database.JobStatusFailed || f.source.deletes != 1 {
		t.Errorf("job = %s, deletes %d; want failed with one cleanup", got.Status, f.source.deletes)
	}
}

func TestHandleTransientThenSuccess(t *testing.T) {
	f := newFixture(t)
	f.accounts(t, 1)
	f.uploader.script["token-0"] = []error{apperr.Transient(apperr.ReasonNone, nil, "503")}
	job := f.submit(t)

	f.drain(t)

	got, tasks := f.job(t, job.JobId)
	if got.Status != database.JobStatusCompleted || tasks[0].Attempts != 2 {
		t.Errorf("job = %s, attempts %d; want completed after 2", got.Status, tasks[0].Attempts)
	}
}

func TestHandlePartialJob(t *testing.T) {
	f := newFixture(t)
	accounts := f.accounts(t, 3)
	f.uploader.script["token-1"] = []error{apperr.Permanent(apperr.ReasonBanned, nil, "account suspended")}
	job := f.submit(t)

	f.drain(t)

	got, _ := f.job(t, job.JobId)
	if got.Status != database.JobStatusPartial || got.CompletedTasks != 2 || got.FailedTasks != 1 {
		t.Errorf("job = %s %d completed %d failed, want partial 2/1", got.Status, got.CompletedTasks, got.FailedTasks)
	}
	if f.source.deletes != 1 {
		t.Errorf("source deleted %d times, want 1", f.source.deletes)
	}
	banned, _ := f.store.GetAccount(context.Background(), accounts[1].AccountId)
	if banned.Status != database.AccountStatusAccountDisabled {
		t.Errorf("banned account status = %s", banned.Status)
	}
	if n := f.uploader.calls["token-1"]; n != 1 {
		t.Errorf("permanent failure retried: %d calls", n)
	}
}

func TestHandleRateLimitWaitsForCooldown(t *testing.T) {
	f := newFixture(t)
	accounts := f.accounts(t, 1)
	f.uploader.script["token-0"] = []error{apperr.Transient(apperr.ReasonRateLimited, nil, "quotaExceeded")}
	job := f.submit(t)
	ctx := context.Background()

	f.drain(t)

	acc, _ := f.store.GetAccount(ctx, accounts[0].AccountId)
	if acc.Status != database.AccountStatusUploadLimit {
		t.Errorf("account status = %s, want upload_limit", acc.Status)
	}
	// The retry finds the account resting and waits for the cool-down.
	got, tasks := f.job(t, job.JobId)
	task := tasks[0]
	if task.Status != database.TaskStatusQueued || task.Attempts != 1 {
		t.Errorf("task = %s attempts %d, want queued with 1", task.Status, task.Attempts)
	}
	if got.Status.Terminal() {
		t.Errorf("job = %s, want it still running", got.Status)
	}
	if f.queue.Len() != 1 {
		t.Errorf("queue length = %d, want 1 deferred message", f.queue.Len())
	}
	if n := f.uploader.calls["token-0"]; n != 1 {
		t.Errorf("uploader called %d times during the cool-down", n)
	}

	if _, err := f.registry.SetStatus(ctx, acc.AccountId, database.AccountStatusActive, "cool-down elapsed"); err != nil {
		t.Fatal(err)
	}
	msg := queue.Message{ID: "deferred", TaskID: task.TaskId, JobID: job.JobId, AccountID: acc.AccountId}
	if err := f.exec.Handle(ctx, msg); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	got, tasks = f.job(t, job.JobId)
	if tasks[0].Status != database.TaskStatusCompleted || tasks[0].Attempts != 2 {
		t.Errorf("task = %s attempts %d, want completed with 2", tasks[0].Status, tasks[0].Attempts)
	}
	if got.Status != database.JobStatusCompleted {
		t.Errorf("job = %s, want completed", got.Status)
	}
}

func TestHandleDecryptionFailureStrikes(t *testing.T) {
	f := newFixture(t)
	accounts := f.accounts(t, 1)
	job := f.submit(t)
	ctx := context.Background()

	otherKey := "ff0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	sealed, err := vault.Encrypt("token-0", otherKey)
	if err != nil {
		t.Fatal(err)
	}
	err = f.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		a, err := tx.GetAccount(ctx, accounts[0].AccountId)
		if err != nil {
			return err
		}
		a.RefreshToken = sealed
		return tx.UpdateAccount(ctx, a)
	})
	if err != nil {
		t.Fatal(err)
	}

	f.drain(t)

	_, tasks := f.job(t, job.JobId)
	if tasks[0].Status != database.TaskStatusFailed || database.Deref(tasks[0].ErrorCode) != string(apperr.CodeDecryption) {
		t.Errorf("task = %s (%s), want failed with decryption", tasks[0].Status, database.Deref(tasks[0].ErrorCode))
	}
	acc, _ := f.store.GetAccount(ctx, accounts[0].AccountId)
	if acc.HealthStrikes != 1 {
		t.Errorf("HealthStrikes = %d, want 1", acc.HealthStrikes)
	}
	if len(f.uploader.calls) != 0 {
		t.Errorf("uploader called with an undecryptable credential: %v", f.uploader.calls)
	}
}

func TestHandleUploadTimeoutIsTransient(t *testing.T) {
	f := newFixture(t)
	f.accounts(t, 1)
	f.uploader.block = true
	f.exec.opts.UploadTimeout = 20 * time.Millisecond
	job := f.submit(t)
	ctx := context.Background()

	msgs, err := f.queue.Receive(ctx, 1, time.Minute)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Receive = %d messages, %v", len(msgs), err)
	}
	if err := f.exec.Handle(ctx, msgs[0]); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	_, tasks := f.job(t, job.JobId)
	task := tasks[0]
	if task.Status != database.TaskStatusQueued || task.Attempts != 1 {
		t.Errorf("task = %s attempts %d, want queued with 1", task.Status, task.Attempts)
	}
	if database.Deref(task.ErrorCode) != string(apperr.CodeTransientUpload) {
		t.Errorf("ErrorCode = %q, want transient", database.Deref(task.ErrorCode))
	}
	if task.LeaseOwner != nil {
		t.Errorf("lease still held by %s", *task.LeaseOwner)
	}
}

func TestHandleShutdownReleasesAttempt(t *testing.T) {
	f := newFixture(t)
	accounts := f.accounts(t, 1)
	started := make(chan struct{})
	f.uploader.block = true
	f.uploader.started = started
	job := f.submit(t)

	msgs, err := f.queue.Receive(context.Background(), 1, time.Minute)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Receive = %d messages, %v", len(msgs), err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
	}()
	if err := f.exec.Handle(ctx, msgs[0]); !errors.Is(err, context.Canceled) {
		t.Fatalf("Handle error = %v, want context.Canceled", err)
	}

	_, tasks := f.job(t, job.JobId)
	task := tasks[0]
	if task.Status != database.TaskStatusRetrying || task.Attempts != 0 || task.LeaseOwner != nil {
		t.Errorf("task = %s attempts %d owner %v, want retrying with 0 and no lease", task.Status, task.Attempts, task.LeaseOwner)
	}
	acc, _ := f.store.GetAccount(context.Background(), accounts[0].AccountId)
	if acc.HealthStrikes != 0 || acc.Status != database.AccountStatusActive {
		t.Errorf("account = %s strikes %d, want untouched", acc.Status, acc.HealthStrikes)
	}

	f.uploader.mu.Lock()
	f.uploader.block = false
	f.uploader.mu.Unlock()
	if err := f.exec.Handle(context.Background(), msgs[0]); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	_, tasks = f.job(t, job.JobId)
	if tasks[0].Status != database.TaskStatusCompleted || tasks[0].Attempts != 1 {
		t.Errorf("task = %s attempts %d, want completed with 1", tasks[0].Status, tasks[0].Attempts)
	}
}

func TestHandleUnavailableAccountConsumesNoAttempt(t *testing.T) {
	f := newFixture(t)
	accounts := f.accounts(t, 1)
	job := f.submit(t)

	disabled := database.AccountStatusDisabled
	if _, err := f.registry.UpdateAccount(context.Background(), accounts[0].AccountId, pool.UpdateAccountRequest{Status: &disabled}); err != nil {
		t.Fatal(err)
	}

	f.drain(t)

	got, tasks := f.job(t, job.JobId)
	task := tasks[0]
	if task.Status != database.TaskStatusFailed || task.Attempts != 0 {
		t.Errorf("task = %s attempts %d, want failed with 0", task.Status, task.Attempts)
	}
	if got.Status != database.JobStatusFailed {
		t.Errorf("job = %s, want failed", got.Status)
	}
	if n := f.uploader.calls["token-0"]; n != 0 {
		t.Errorf("uploader called %d times", n)
	}
	acc, _ := f.store.GetAccount(context.Background(), accounts[0].AccountId)
	if acc.HealthStrikes != 0 {
		t.Errorf("HealthStrikes = %d, want 0", acc.HealthStrikes)
	}
}

func TestHandleMissingSourceFailsWithoutStrike(t *testing.T) {
	f := newFixture(t)
	accounts := f.accounts(t, 1)
	job := f.submit(t)
	os.Remove(filepath.Join(f.root, videoKey))

	f.drain(t)

	_, tasks := f.job(t, job.JobId)
	if tasks[0].Status != database.TaskStatusFailed || database.Deref(tasks[0].ErrorCode) != string(apperr.CodePermanentUpload) {
		t.Errorf("task = %s (%s)", tasks[0].Status, database.Deref(tasks[0].ErrorCode))
	}
	acc, _ := f.store.GetAccount(context.Background(), accounts[0].AccountId)
	if acc.HealthStrikes != 0 || acc.Status != database.AccountStatusActive {
		t.Errorf("account = %s strikes %d, want untouched", acc.Status, acc.HealthStrikes)
	}
}

func TestHandleForeignLease(t *testing.T) {
	f := newFixture(t)
	f.accounts(t, 1)
	job := f.submit(t)
	_, tasks := f.job(t, job.JobId)

	ctx := context.Background()
	err := f.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		task, err := tx.GetTask(ctx, tasks[0].TaskId)
		if err != nil {
			return err
		}
		task.Status = database.TaskStatusUploading
		task.LeaseOwner = database.StringPtr("worker-2")
		task.LeaseExpiresAt = database.TimePtr(time.Now().UTC().Add(time.Hour))
		return tx.UpdateTask(ctx, task)
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs, _ := f.queue.Receive(ctx, 10, time.Minute)
	if err := f.exec.Handle(ctx, msgs[0]); !errors.Is(err, ErrLeased) {
		t.Errorf("Handle error = %v, want ErrLeased", err)
	}
	if n := f.uploader.calls["token-0"]; n != 0 {
		t.Errorf("uploader called %d times under a foreign lease", n)
	}
}
