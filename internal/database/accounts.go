package database

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
)

var accountColumns = []string{
	"AccountId", "ProjectId", "Email", "ChannelId", "ChannelTitle", "RefreshToken",
	"Status", "StatusReason", "HealthStrikes", "LastHealthCheck", "StatusChangedAt",
	"LastUploadAt", "AutoDeleteAt", "Tags", "AddedBy", "CreatedAt", "UpdatedAt", "Version",
}

func accountValues(a *Account) []interface{} {
	return []interface{}{
		a.AccountId, a.ProjectId, a.Email, a.ChannelId, a.ChannelTitle, a.RefreshToken,
		string(a.Status), a.StatusReason, a.HealthStrikes, a.LastHealthCheck, a.StatusChangedAt,
		a.LastUploadAt, a.AutoDeleteAt, a.Tags, a.AddedBy, a.CreatedAt, a.UpdatedAt, a.Version,
	}
}

// GetAccount retrieves an account by ID.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	return readOne[Account](ctx, c.client.Single(), "Accounts", accountID, accountColumns)
}

// ListAccounts returns a page of accounts, newest first, and the total count.
func (c *Client) ListAccounts(ctx context.Context, f AccountFilter) ([]*Account, int64, error) {
	var conds []string
	params := map[string]interface{}{}
	if f.Status != "" {
		conds = append(conds, "Status = @status")
		params["status"] = string(f.Status)
	}
	if f.ProjectId != "" {
		conds = append(conds, "ProjectId = @projectId")
		params["projectId"] = f.ProjectId
	}
	where := whereClause(conds)

	ro := c.client.ReadOnlyTransaction()
	defer ro.Close()

	total, err := queryCount(ctx, ro, spanner.Statement{SQL: `SELECT COUNT(*) FROM Accounts` + where, Params: params})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count accounts: %w", err)
	}

	accounts, err := queryAll[Account](ctx, ro, pagedStatement("Accounts", where, params, f.Page))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, total, nil
}

// ListEligibleAccounts returns active accounts under active projects.
func (c *Client) ListEligibleAccounts(ctx context.Context) ([]*Account, error) {
	stmt := spanner.Statement{
		SQL: `SELECT a.* FROM Accounts a
		      JOIN Projects p ON p.ProjectId = a.ProjectId
		      WHERE a.Status = @accountStatus AND p.Status = @projectStatus`,
		Params: map[string]interface{}{
			"accountStatus": string(AccountStatusActive),
			"projectStatus": string(ProjectStatusActive),
		},
	}
	accounts, err := queryAll[Account](ctx, c.client.Single(), stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible accounts: %w", err)
	}
	return accounts, nil
}

// ListAccountsByStatus returns accounts in any of the given statuses.
func (c *Client) ListAccountsByStatus(ctx context.Context, statuses ...AccountStatus) ([]*Account, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	stmt := spanner.Statement{
		SQL:    `SELECT * FROM Accounts@{FORCE_INDEX=AccountsByStatus} WHERE Status IN UNNEST(@statuses) ORDER BY AccountId`,
		Params: map[string]interface{}{"statuses": values},
	}
	accounts, err := queryAll[Account](ctx, c.client.Single(), stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts by status: %w", err)
	}
	return accounts, nil
}

// ListAccountsDueForDeletion returns dead accounts whose auto-delete time passed.
func (c *Client) ListAccountsDueForDeletion(ctx context.Context, now time.Time) ([]*Account, error) {
	stmt := spanner.Statement{
		SQL: `SELECT * FROM Accounts
		      WHERE Status = @status AND AutoDeleteAt IS NOT NULL AND AutoDeleteAt <= @now`,
		Params: map[string]interface{}{
			"status": string(AccountStatusDead),
			"now":    now,
		},
	}
	accounts, err := queryAll[Account](ctx, c.client.Single(), stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts due for deletion: %w", err)
	}
	return accounts, nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	w := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		w += " AND " + c
	}
	return w
}
