package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/spanner"
)

var templateColumns = []string{
	"TemplateId", "Name", "Title", "Description", "Tags", "Privacy", "CreatedBy", "CreatedAt", "UpdatedAt",
}

var uploadLogColumns = []string{
	"LogId", "TaskId", "JobId", "AccountId", "ProjectId", "Level", "Event", "Message",
	"Metadata", "DurationMs", "CreatedAt",
}

var auditColumns = []string{
	"AuditId", "Actor", "Action", "TargetType", "TargetId", "Details", "CreatedAt",
}

// GetTemplate retrieves a template by ID.
func (c *Client) GetTemplate(ctx context.Context, templateID string) (*Template, error) {
	return readOne[Template](ctx, c.client.Single(), "Templates", templateID, templateColumns)
}

// ListTemplates returns all templates ordered by name.
func (c *Client) ListTemplates(ctx context.Context) ([]*Template, error) {
	templates, err := queryAll[Template](ctx, c.client.Single(), spanner.Statement{SQL: `SELECT * FROM Templates ORDER BY Name`})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// InsertTemplate creates a template.
func (c *Client) InsertTemplate(ctx context.Context, t *Template) error {
	_, err := c.client.Apply(ctx, []*spanner.Mutation{
		spanner.Insert("Templates", templateColumns, []interface{}{
			t.TemplateId, t.Name, t.Title, t.Description, t.Tags, string(t.Privacy), t.CreatedBy, t.CreatedAt, t.UpdatedAt,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

// AppendUploadLog writes a diagnostic log entry.
func (c *Client) AppendUploadLog(ctx context.Context, l *UploadLog) error {
	_, err := c.client.Apply(ctx, []*spanner.Mutation{
		spanner.Insert("UploadLogs", uploadLogColumns, []interface{}{
			l.LogId, l.TaskId, l.JobId, l.AccountId, l.ProjectId, string(l.Level), string(l.Event), l.Message,
			l.Metadata, l.DurationMs, l.CreatedAt,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to insert upload log: %w", err)
	}
	return nil
}

// ListUploadLogs returns the most recent log entries for a job.
func (c *Client) ListUploadLogs(ctx context.Context, jobID string, limit int) ([]*UploadLog, error) {
	sql := `SELECT * FROM UploadLogs@{FORCE_INDEX=UploadLogsByJob} WHERE JobId = @jobId ORDER BY CreatedAt DESC`
	params := map[string]interface{}{"jobId": jobID}
	if limit > 0 {
		sql += ` LIMIT @limit`
		params["limit"] = int64(limit)
	}
	logs, err := queryAll[UploadLog](ctx, c.client.Single(), spanner.Statement{SQL: sql, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to list upload logs: %w", err)
	}
	return logs, nil
}
