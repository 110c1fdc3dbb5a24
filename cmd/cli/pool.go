package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alphauslabs/buckshot/cmd/server/service"
)

// ─── Projects ───────────────────────────────────────────────────────────────

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage OAuth projects",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var projectAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register an OAuth project",
	Long:  "buckshot project add --label <label> --client-id <id> --client-secret <secret> [--max-accounts N]",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := service.AddProjectRequest{}
		req.Label, _ = cmd.Flags().GetString("label")
		req.GcpProjectId, _ = cmd.Flags().GetString("gcp-project")
		req.ClientId, _ = cmd.Flags().GetString("client-id")
		req.ClientSecret, _ = cmd.Flags().GetString("client-secret")
		if cmd.Flags().Changed("max-accounts") {
			max, _ := cmd.Flags().GetInt64("max-accounts")
			req.MaxAccounts = &max
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		var p service.Project
		if err := c.call("AddProject", req, &p); err != nil {
			return fmt.Errorf("failed to add project: %w", err)
		}
		if wantJSON(cmd) {
			printJSON(p)
			return nil
		}
		fmt.Printf("✓ Project added\n")
		fmt.Printf("  Label:      %s\n", p.Label)
		fmt.Printf("  Project ID: %s\n", p.ProjectId)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List OAuth projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		var resp service.ListProjectsResponse
		if err := c.call("ListProjects", service.ListProjectsRequest{Status: status, Page: page, Limit: limit}, &resp); err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}
		if wantJSON(cmd) {
			printJSON(resp)
			return nil
		}
		if len(resp.Projects) == 0 {
			fmt.Println("No projects found.")
			return nil
		}

		fmt.Printf("%-36s  %-20s  %-8s  %-9s  %s\n", "PROJECT ID", "LABEL", "STATUS", "ACCOUNTS", "CREATED")
		fmt.Println(rule(100))
		for _, p := range resp.Projects {
			capacity := fmt.Sprintf("%d", p.AccountCount)
			if p.MaxAccounts != nil {
				capacity = fmt.Sprintf("%d/%d", p.AccountCount, *p.MaxAccounts)
			}
			fmt.Printf("%-36s  %-20s  %-8s  %-9s  %s\n", p.ProjectId, truncate(p.Label, 20), p.Status, capacity, formatTime(p.CreatedAt))
		}
		return nil
	},
}

var projectUpdateCmd = &cobra.Command{
	Use:   "update <project-id>",
	Short: "Relabel, resize, enable or disable a project",
	Long:  "buckshot project update <project-id> [--label <label>] [--status active|disabled] [--max-accounts N]",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := service.UpdateProjectRequest{ProjectId: args[0]}
		if cmd.Flags().Changed("label") {
			label, _ := cmd.Flags().GetString("label")
			req.Label = &label
		}
		if cmd.Flags().Changed("status") {
			status, _ := cmd.Flags().GetString("status")
			req.Status = &status
		}
		if cmd.Flags().Changed("max-accounts") {
			max, _ := cmd.Flags().GetInt64("max-accounts")
			req.MaxAccounts = &max
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		var p service.Project
		if err := c.call("UpdateProject", req, &p); err != nil {
			return fmt.Errorf("failed to update project: %w", err)
		}
		fmt.Printf("✓ Project %s is %s\n", p.ProjectId, p.Status)
		return nil
	},
}

// ─── Accounts ───────────────────────────────────────────────────────────────

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage platform accounts",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Connect an account with its refresh token",
	Long:  "buckshot account add --email <email> --refresh-token <token> [--project <project-id>] [--tags a,b]",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := service.AddAccountRequest{}
		req.ProjectId, _ = cmd.Flags().GetString("project")
		req.Email, _ = cmd.Flags().GetString("email")
		req.RefreshToken, _ = cmd.Flags().GetString("refresh-token")
		req.ChannelId, _ = cmd.Flags().GetString("channel-id")
		req.Tags, _ = cmd.Flags().GetStringSlice("tags")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		var a service.Account
		if err := c.call("AddAccount", req, &a); err != nil {
			return fmt.Errorf("failed to add account: %w", err)
		}
		if wantJSON(cmd) {
			printJSON(a)
			return nil
		}
		fmt.Printf("✓ Account connected\n")
		fmt.Printf("  Email:      %s\n", a.Email)
		fmt.Printf("  Account ID: %s\n", a.AccountId)
		fmt.Printf("  Project:    %s\n", a.ProjectId)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts with their health",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := service.ListAccountsRequest{}
		req.Status, _ = cmd.Flags().GetString("status")
		req.ProjectId, _ = cmd.Flags().GetString("project")
		req.Page, _ = cmd.Flags().GetInt("page")
		req.Limit, _ = cmd.Flags().GetInt("limit")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		var resp service.ListAccountsResponse
		if err := c.call("ListAccounts", req, &resp); err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}
		if wantJSON(cmd) {
			printJSON(resp)
			return nil
		}
		if len(resp.Accounts) == 0 {
			fmt.Println("No accounts found.")
			return nil
		}

		fmt.Printf("%-36s  %-28s  %-17s  %-7s  %-19s  %s\n", "ACCOUNT ID", "EMAIL", "STATUS", "STRIKES", "LAST UPLOAD", "TAGS")
		fmt.Println(rule(130))
		for _, a := range resp.Accounts {
			fmt.Printf("%-36s  %-28s  %-17s  %-7d  %-19s  %s\n", a.AccountId, truncate(a.Email, 28), a.Status,
				a.HealthStrikes, formatTime(a.LastUploadAt), strings.Join(a.Tags, ","))
		}
		fmt.Printf("\nPage %d, showing %d of %d\n", resp.Page, len(resp.Accounts), resp.Total)
		return nil
	},
}

var accountUpdateCmd = &cobra.Command{
	Use:   "update <account-id>",
	Short: "Retag, disable or reactivate an account",
	Long:  "buckshot account update <account-id> [--status active|disabled] [--tags a,b]",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := service.UpdateAccountRequest{AccountId: args[0]}
		if cmd.Flags().Changed("status") {
			status, _ := cmd.Flags().GetString("status")
			req.Status = &status
		}
		if cmd.Flags().Changed("tags") {
			tags, _ := cmd.Flags().GetStringSlice("tags")
			req.Tags = &tags
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		var a service.Account
		if err := c.call("UpdateAccount", req, &a); err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}
		fmt.Printf("✓ Account %s is %s\n", a.AccountId, a.Status)
		return nil
	},
}

var accountCheckCmd = &cobra.Command{
	Use:   "check <account-id>",
	Short: "Probe an account's credential and channel now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		var a service.Account
		if err := c.call("CheckAccount", service.CheckAccountRequest{AccountId: args[0]}, &a); err != nil {
			return fmt.Errorf("failed to check account: %w", err)
		}
		if wantJSON(cmd) {
			printJSON(a)
			return nil
		}
		fmt.Printf("Account:  %s (%s)\n", a.AccountId, a.Email)
		fmt.Printf("Status:   %s\n", a.Status)
		if a.StatusReason != "" {
			fmt.Printf("Reason:   %s\n", a.StatusReason)
		}
		fmt.Printf("Channel:  %s %s\n", orDash(a.ChannelId), a.ChannelTitle)
		fmt.Printf("Strikes:  %d\n", a.HealthStrikes)
		fmt.Printf("Checked:  %s\n", formatTime(a.LastHealthCheck))
		return nil
	},
}

func init() {
	projectAddCmd.Flags().String("label", "", "Display label (required)")
	projectAddCmd.Flags().String("gcp-project", "", "GCP project ID owning the OAuth client")
	projectAddCmd.Flags().String("client-id", "", "OAuth client ID (required)")
	projectAddCmd.Flags().String("client-secret", "", "OAuth client secret (required)")
	projectAddCmd.Flags().Int64("max-accounts", 0, "Maximum accounts on this project")
	projectListCmd.Flags().String("status", "", "Filter by status: active, disabled, error")
	projectListCmd.Flags().Int("page", 1, "Page number")
	projectListCmd.Flags().Int("limit", 50, "Projects per page (max 100)")
	projectUpdateCmd.Flags().String("label", "", "New label")
	projectUpdateCmd.Flags().String("status", "", "active or disabled")
	projectUpdateCmd.Flags().Int64("max-accounts", 0, "New account cap")
	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectUpdateCmd)

	accountAddCmd.Flags().String("project", "", "Project ID (default: the project with the most free capacity)")
	accountAddCmd.Flags().String("email", "", "Account email (required)")
	accountAddCmd.Flags().String("refresh-token", "", "OAuth refresh token (required)")
	accountAddCmd.Flags().String("channel-id", "", "Channel ID, if known")
	accountAddCmd.Flags().StringSlice("tags", nil, "Comma-separated tags")
	accountListCmd.Flags().String("status", "", "Filter by status")
	accountListCmd.Flags().String("project", "", "Filter by project ID")
	accountListCmd.Flags().Int("page", 1, "Page number")
	accountListCmd.Flags().Int("limit", 50, "Accounts per page (max 100)")
	accountUpdateCmd.Flags().String("status", "", "active or disabled")
	accountUpdateCmd.Flags().StringSlice("tags", nil, "Replace tags")
	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountUpdateCmd)
	accountCmd.AddCommand(accountCheckCmd)
}
