package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/spanner"
)

var projectColumns = []string{
	"ProjectId", "Label", "GcpProjectId", "ClientId", "ClientSecret", "Status",
	"MaxAccounts", "AccountCount", "AddedBy", "CreatedAt", "UpdatedAt", "Version",
}

func projectValues(p *Project) []interface{} {
	return []interface{}{
		p.ProjectId, p.Label, p.GcpProjectId, p.ClientId, p.ClientSecret, string(p.Status),
		p.MaxAccounts, p.AccountCount, p.AddedBy, p.CreatedAt, p.UpdatedAt, p.Version,
	}
}

// GetProject retrieves a project by ID.
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	return readOne[Project](ctx, c.client.Single(), "Projects", projectID, projectColumns)
}

// ListProjects returns a page of projects, newest first, and the total count.
func (c *Client) ListProjects(ctx context.Context, f ProjectFilter) ([]*Project, int64, error) {
	where, params := "", map[string]interface{}{}
	if f.Status != "" {
		where = " WHERE Status = @status"
		params["status"] = string(f.Status)
	}

	ro := c.client.ReadOnlyTransaction()
	defer ro.Close()

	total, err := queryCount(ctx, ro, spanner.Statement{SQL: `SELECT COUNT(*) FROM Projects` + where, Params: params})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	projects, err := queryAll[Project](ctx, ro, pagedStatement("Projects", where, params, f.Page))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, total, nil
}

// pagedStatement selects every column of table ordered newest first.
func pagedStatement(table, where string, params map[string]interface{}, p Page) spanner.Statement {
	sql := `SELECT * FROM ` + table + where + ` ORDER BY CreatedAt DESC`
	if p.Limit > 0 {
		if p.Page < 1 {
			p.Page = 1
		}
		sql += ` LIMIT @limit OFFSET @offset`
		params["limit"] = int64(p.Limit)
		params["offset"] = int64(p.Offset())
	}
	return spanner.Statement{SQL: sql, Params: params}
}
