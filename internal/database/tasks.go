package database

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
)

var taskColumns = []string{
	"TaskId", "JobId", "AccountId", "Status", "TitleOverride", "DescriptionOverride",
	"TagsOverride", "VideoId", "VideoUrl", "ErrorCode", "ErrorMessage", "Attempts",
	"MaxAttempts", "LeaseOwner", "LeaseExpiresAt", "StartedAt", "CompletedAt",
	"CreatedAt", "UpdatedAt", "Version",
}

func taskValues(t *Task) []interface{} {
	return []interface{}{
		t.TaskId, t.JobId, t.AccountId, string(t.Status), t.TitleOverride, t.DescriptionOverride,
		t.TagsOverride, t.VideoId, t.VideoUrl, t.ErrorCode, t.ErrorMessage, t.Attempts,
		t.MaxAttempts, t.LeaseOwner, t.LeaseExpiresAt, t.StartedAt, t.CompletedAt,
		t.CreatedAt, t.UpdatedAt, t.Version,
	}
}

// GetTask retrieves a task by ID.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	return readOne[Task](ctx, c.client.Single(), "Tasks", taskID, taskColumns)
}

// ListTasksByJob returns every task of a job.
func (c *Client) ListTasksByJob(ctx context.Context, jobID string) ([]*Task, error) {
	stmt := spanner.Statement{
		SQL:    `SELECT * FROM Tasks@{FORCE_INDEX=TasksByJob} WHERE JobId = @jobId ORDER BY CreatedAt, TaskId`,
		Params: map[string]interface{}{"jobId": jobID},
	}
	tasks, err := queryAll[Task](ctx, c.client.Single(), stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// ListStaleTasks returns waiting tasks untouched since cutoff and uploading
// tasks whose lease expired.
func (c *Client) ListStaleTasks(ctx context.Context, cutoff, now time.Time) ([]*Task, error) {
	stmt := spanner.Statement{
		SQL: `SELECT * FROM Tasks
		      WHERE (Status IN (@pending, @queued, @retrying) AND UpdatedAt < @cutoff)
		         OR (Status = @uploading AND (LeaseExpiresAt IS NULL OR LeaseExpiresAt < @now))
		      ORDER BY UpdatedAt`,
		Params: map[string]interface{}{
			"pending":   string(TaskStatusPending),
			"queued":    string(TaskStatusQueued),
			"retrying":  string(TaskStatusRetrying),
			"uploading": string(TaskStatusUploading),
			"cutoff":    cutoff,
			"now":       now,
		},
	}
	tasks, err := queryAll[Task](ctx, c.client.Single(), stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale tasks: %w", err)
	}
	return tasks, nil
}
