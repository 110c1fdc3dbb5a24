package decomposer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/database/sqlite"
	"github.com/alphauslabs/buckshot/internal/pool"
	"github.com/alphauslabs/buckshot/internal/queue"
	"github.com/alphauslabs/buckshot/internal/vault"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fixture struct {
	store    *sqlite.Store
	registry *pool.Registry
	queue    *queue.Memory
	d        *Decomposer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cipher, err := vault.New(testKey)
	if err != nil {
		t.Fatal(err)
	}
	registry := pool.NewRegistry(store, cipher, pool.Options{StrikeThreshold: 3, AutoDeleteAfter: time.Hour})
	q := queue.NewMemory(queue.DefaultMaxDeliveries)
	return &fixture{store: store, registry: registry, queue: q, d: New(store, registry, q, 5)}
}

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
			ProjectId: p.ProjectId, Email: string(rune('a'+i)) + "@example.com", RefreshToken: "t",
		})
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, a)
	}
	return out
}

func validRequest() SubmitJobRequest {
	return SubmitJobRequest{
		Title:         "Launch video",
		VideoKey:      "uploads/launch.mp4",
		VideoFilename: "launch.mp4",
		VideoSize:     1 << 20,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *SubmitJobRequest)
	}{
		{"empty title", func(r *SubmitJobRequest) { r.Title = "  " }},
		{"long title", func(r *SubmitJobRequest) { r.Title = strings.Repeat("t", 101) }},
		{"missing key", func(r *SubmitJobRequest) { r.VideoKey = "" }},
		{"missing filename", func(r *SubmitJobRequest) { r.VideoFilename = "" }},
		{"zero size", func(r *SubmitJobRequest) { r.VideoSize = 0 }},
		{"oversized", func(r *SubmitJobRequest) { r.VideoSize = MaxVideoSize + 1 }},
		{"long description", func(r *SubmitJobRequest) { r.Description = strings.Repeat("d", 5001) }},
		{"bad privacy", func(r *SubmitJobRequest) { r.Privacy = "friends" }},
		{"empty account list", func(r *SubmitJobRequest) { r.AccountIDs = []string{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			if err := Validate(&req); !apperr.Is(err, apperr.CodeValidation) {
				t.Errorf("Validate = %v, want validation error", err)
			}
		})
	}

	req := validRequest()
	req.VideoSize = MaxVideoSize
	if err := Validate(&req); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}
	if req.Privacy != database.PrivacyPublic {
		t.Errorf("Privacy default = %q, want public", req.Privacy)
	}
}

func TestCreateJobFansOutToAllEligibleAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accounts := f.accounts(t, 3)

	req := validRequest()
	req.Overrides = map[string]Override{accounts[1].AccountId: {Title: "Custom"}}
	job, err := f.d.CreateJob(ctx, req)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.TotalTasks != 3 || job.Status != database.JobStatusPending {
		t.Errorf("job = total %d status %s", job.TotalTasks, job.Status)
	}

	tasks, err := f.store.ListTasksByJob(ctx, job.JobId)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	for _, task := range tasks {
		if task.Status != database.TaskStatusQueued {
			t.Errorf("task %s status = %s, want queued", task.TaskId, task.Status)
		}
		if task.MaxAttempts != 5 {
			t.Errorf("MaxAttempts = %d, want 5", task.MaxAttempts)
		}
		if task.AccountId == accounts[1].AccountId && database.Deref(task.TitleOverride) != "Custom" {
			t.Errorf("override not applied: %v", task.TitleOverride)
		}
	}
	if f.queue.Len() != 3 {
		t.Errorf("queue length = %d, want 3", f.queue.Len())
	}
}

func TestCreateJobExplicitAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accounts := f.accounts(t, 3)

	if _, err := f.registry.SetStatus(ctx, accounts[2].AccountId, database.AccountStatusTokenRevoked, "revoked"); err != nil {
		t.Fatal(err)
	}

	req := validRequest()
	req.AccountIDs = []string{accounts[0].AccountId, accounts[2].AccountId, "unknown"}
	job, err := f.d.CreateJob(ctx, req)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.TotalTasks != 1 {
		t.Errorf("TotalTasks = %d, want 1", job.TotalTasks)
	}
}

func TestCreateJobEmptyAccountSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.d.CreateJob(ctx, validRequest())
	if !apperr.Is(err, apperr.CodeEmptyAccountSet) {
		t.Fatalf("CreateJob err = %v, want empty account set", err)
	}
	jobs, total, err := f.store.ListJobs(ctx, database.JobFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || len(jobs) != 0 {
		t.Errorf("job persisted despite empty account set: %d", total)
	}
}

func TestCreateJobUnknownTemplate(t *testing.T) {
	f := newFixture(t)
	f.accounts(t, 1)

	req := validRequest()
	req.TemplateID = "missing"
	if _, err := f.d.CreateJob(context.Background(), req); !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("CreateJob err = %v, want not found", err)
	}
}
