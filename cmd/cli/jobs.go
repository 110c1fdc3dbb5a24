package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alphauslabs/buckshot/cmd/server/service"
)

// terminalJobStatuses end a job's lifecycle.
var terminalJobStatuses = map[string]bool{
	"completed": true,
	"partial":   true,
	"failed":    true,
}

func getJob(c *Client, jobID string, logs int) (*service.GetJobResponse, error) {
	var resp service.GetJobResponse
	if err := c.call("GetJob", service.GetJobRequest{JobId: jobID, Logs: logs}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs",
	Long:  "buckshot jobs [--status <status>] [--page N] [--limit N]\n\nLists jobs, newest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}

		var resp service.ListJobsResponse
		if err := c.call("ListJobs", service.ListJobsRequest{Status: status, Page: page, Limit: limit}, &resp); err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}
		if wantJSON(cmd) {
			printJSON(resp)
			return nil
		}

		if len(resp.Jobs) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}

		fmt.Printf("%-36s  %-10s  %-11s  %-32s  %s\n", "JOB ID", "STATUS", "DONE/FAIL", "TITLE", "CREATED")
		fmt.Println(rule(112))
		for _, j := range resp.Jobs {
			progress := fmt.Sprintf("%d/%d of %d", j.CompletedTasks, j.FailedTasks, j.TotalTasks)
			fmt.Printf("%-36s  %-10s  %-11s  %-32s  %s\n", j.JobId, j.Status, progress, truncate(j.Title, 32), formatTime(j.CreatedAt))
		}
		fmt.Printf("\nPage %d, showing %d of %d\n", resp.Page, len(resp.Jobs), resp.Total)
		return nil
	},
}

var jobCmd = &cobra.Command{
	Use:   "job <job-id>",
	Short: "Show a job with its tasks",
	Long:  "buckshot job <job-id> [--logs N]\n\nShows a job, the upload task for every account and optionally recent upload logs.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logs, _ := cmd.Flags().GetInt("logs")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		resp, err := getJob(c, args[0], logs)
		if err != nil {
			return fmt.Errorf("failed to get job: %w", err)
		}
		if wantJSON(cmd) {
			printJSON(resp)
			return nil
		}

		j := resp.Job
		fmt.Println("Job Details")
		fmt.Println("───────────")
		fmt.Printf("Job ID:    %s\n", j.JobId)
		fmt.Printf("Title:     %s\n", j.Title)
		fmt.Printf("Status:    %s\n", j.Status)
		fmt.Printf("Video:     %s (%s, %d bytes)\n", j.VideoKey, j.VideoFilename, j.VideoSize)
		fmt.Printf("Privacy:   %s\n", j.Privacy)
		fmt.Printf("Tasks:     %d completed, %d failed, %d total\n", j.CompletedTasks, j.FailedTasks, j.TotalTasks)
		fmt.Printf("Cleaned:   %v\n", j.SourceCleaned)
		fmt.Printf("Created:   %s by %s\n", formatTime(j.CreatedAt), orDash(j.CreatedBy))

		fmt.Println()
		fmt.Printf("%-36s  %-10s  %-8s  %-24s  %s\n", "ACCOUNT", "STATUS", "ATTEMPTS", "VIDEO", "ERROR")
		fmt.Println(rule(112))
		for _, t := range resp.Tasks {
			errText := ""
			if t.ErrorCode != "" {
				errText = t.ErrorCode + ": " + truncate(t.ErrorMessage, 40)
			}
			fmt.Printf("%-36s  %-10s  %-8s  %-24s  %s\n", t.AccountId, t.Status,
				fmt.Sprintf("%d/%d", t.Attempts, t.MaxAttempts), orDash(t.VideoId), errText)
		}

		if len(resp.Logs) > 0 {
			fmt.Println()
			fmt.Println("Recent logs")
			fmt.Println("───────────")
			for _, l := range resp.Logs {
				fmt.Printf("  [%s]  %-5s  %-16s  %s\n", formatTime(l.CreatedAt), l.Level, l.Event, l.Message)
			}
		}
		return nil
	},
}

func init() {
	jobsCmd.Flags().String("status", "", "Filter by status: pending, processing, completed, partial, failed")
	jobsCmd.Flags().Int("page", 1, "Page number")
	jobsCmd.Flags().Int("limit", 20, "Jobs per page (max 100)")
	jobCmd.Flags().Int("logs", 0, "Include up to N recent upload log entries")
}
