package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/spanner"
)

var jobColumns = []string{
	"JobId", "VideoKey", "VideoFilename", "VideoSize", "Title", "Description", "Tags",
	"Privacy", "TemplateId", "CreatedBy", "Status", "TotalTasks", "CompletedTasks",
	"FailedTasks", "SourceCleaned", "CreatedAt", "UpdatedAt", "Version",
}

func jobValues(j *Job) []interface{} {
	return []interface{}{
		j.JobId, j.VideoKey, j.VideoFilename, j.VideoSize, j.Title, j.Description, j.Tags,
		string(j.Privacy), j.TemplateId, j.CreatedBy, string(j.Status), j.TotalTasks, j.CompletedTasks,
		j.FailedTasks, j.SourceCleaned, j.CreatedAt, j.UpdatedAt, j.Version,
	}
}

// GetJob retrieves a job by ID.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return readOne[Job](ctx, c.client.Single(), "Jobs", jobID, jobColumns)
}

// ListJobs returns a page of jobs, newest first, and the total count.
func (c *Client) ListJobs(ctx context.Context, f JobFilter) ([]*Job, int64, error) {
	where, params := "", map[string]interface{}{}
	if f.Status != "" {
		where = " WHERE Status = @status"
		params["status"] = string(f.Status)
	}

	ro := c.client.ReadOnlyTransaction()
	defer ro.Close()

	total, err := queryCount(ctx, ro, spanner.Statement{SQL: `SELECT COUNT(*) FROM Jobs` + where, Params: params})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	jobs, err := queryAll[Job](ctx, ro, pagedStatement("Jobs", where, params, f.Page))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, total, nil
}

// ListActiveJobs returns all jobs that have not reached a terminal status,
// plus finished jobs still waiting for source cleanup.
func (c *Client) ListActiveJobs(ctx context.Context) ([]*Job, error) {
	stmt := spanner.Statement{
		SQL: `SELECT * FROM Jobs
		      WHERE Status IN (@pending, @processing) OR SourceCleaned = FALSE
		      ORDER BY CreatedAt`,
		Params: map[string]interface{}{
			"pending":    string(JobStatusPending),
			"processing": string(JobStatusProcessing),
		},
	}
	jobs, err := queryAll[Job](ctx, c.client.Single(), stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	return jobs, nil
}
