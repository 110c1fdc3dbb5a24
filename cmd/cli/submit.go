package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphauslabs/buckshot/cmd/server/service"
)

var submitCmd = &cobra.Command{
	Use:   "submit [job.json]",
	Short: "Submit a video to the account pool",
	Long: "buckshot submit [job.json] [--key <object>] [--title <title>] [--size <bytes>] [--wait]\n\n" +
		"Reads job parameters from a JSON file and/or flags and submits the job.\n" +
		"Without --accounts the video goes to every eligible account.\n" +
		"Use --wait to stream progress until every upload has finished.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var req service.SubmitJobRequest
		if len(args) == 1 {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("invalid JSON in %s: %w", args[0], err)
			}
		}
		applySubmitFlags(cmd, &req)

		c, err := newClient(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("Server: %s\n", c.baseURL)
		target := "all eligible accounts"
		if req.AccountIds != nil {
			target = fmt.Sprintf("%d selected accounts", len(req.AccountIds))
		}
		fmt.Printf("Submitting %q (%s) to %s...\n", req.Title, req.VideoKey, target)

		var job service.Job
		if err := c.call("SubmitJob", req, &job); err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}
		wait, _ := cmd.Flags().GetBool("wait")
		if wantJSON(cmd) && !wait {
			printJSON(job)
			return nil
		}

		fmt.Println("✅ Job submitted successfully!")
		fmt.Printf("Job ID: %s (%d uploads)\n", job.JobId, job.TotalTasks)

		if !wait {
			return nil
		}
		return waitForJob(c, &job)
	},
}

// applySubmitFlags overrides file values with any flags that were set.
func applySubmitFlags(cmd *cobra.Command, req *service.SubmitJobRequest) {
	flags := cmd.Flags()
	if flags.Changed("key") {
		req.VideoKey, _ = flags.GetString("key")
	}
	if flags.Changed("filename") {
		req.VideoFilename, _ = flags.GetString("filename")
	}
	if req.VideoFilename == "" && req.VideoKey != "" {
		req.VideoFilename = path.Base(req.VideoKey)
	}
	if flags.Changed("size") {
		req.VideoSize, _ = flags.GetInt64("size")
	}
	if flags.Changed("title") {
		req.Title, _ = flags.GetString("title")
	}
	if flags.Changed("description") {
		req.Description, _ = flags.GetString("description")
	}
	if flags.Changed("tags") {
		req.Tags, _ = flags.GetStringSlice("tags")
	}
	if flags.Changed("privacy") {
		req.Privacy, _ = flags.GetString("privacy")
	}
	if flags.Changed("template") {
		req.TemplateId, _ = flags.GetString("template")
	}
	if flags.Changed("accounts") {
		req.AccountIds, _ = flags.GetStringSlice("accounts")
		if req.AccountIds == nil {
			req.AccountIds = []string{}
		}
	}
}

// waitForJob polls the job until it reaches a terminal status.
func waitForJob(c *Client, job *service.Job) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println()
	fmt.Println("Streaming progress...")
	fmt.Println("============================================")

	last := fmt.Sprintf("%s %d/%d", job.Status, job.CompletedTasks, job.FailedTasks)
	fmt.Printf("  [%s]  %s, %d completed, %d failed of %d\n", time.Now().Format("15:04:05"),
		job.Status, job.CompletedTasks, job.FailedTasks, job.TotalTasks)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-ticker.C:
			resp, err := getJob(c, job.JobId, 0)
			if err != nil {
				fmt.Printf("  [%s]  polling error: %v\n", time.Now().Format("15:04:05"), err)
				continue
			}
			j := resp.Job
			state := fmt.Sprintf("%s %d/%d", j.Status, j.CompletedTasks, j.FailedTasks)
			if state != last {
				fmt.Printf("  [%s]  %s, %d completed, %d failed of %d\n", time.Now().Format("15:04:05"),
					j.Status, j.CompletedTasks, j.FailedTasks, j.TotalTasks)
				last = state
			}
			if terminalJobStatuses[j.Status] {
				fmt.Println("============================================")
				for _, t := range resp.Tasks {
					if t.Status == "failed" {
						fmt.Printf("  ✗ %s  %s: %s\n", t.AccountId, t.ErrorCode, t.ErrorMessage)
					}
				}
				fmt.Println("Done!")
				return nil
			}
		}
	}
}

func init() {
	submitCmd.Flags().String("key", "", "Object key of the uploaded source video")
	submitCmd.Flags().String("filename", "", "Original filename (defaults to the key's base name)")
	submitCmd.Flags().Int64("size", 0, "Video size in bytes")
	submitCmd.Flags().String("title", "", "Video title")
	submitCmd.Flags().String("description", "", "Video description")
	submitCmd.Flags().StringSlice("tags", nil, "Comma-separated tags")
	submitCmd.Flags().String("privacy", "", "public, unlisted or private (default public)")
	submitCmd.Flags().String("template", "", "Template ID to render per account")
	submitCmd.Flags().StringSlice("accounts", nil, "Comma-separated account IDs (default: every eligible account)")
	submitCmd.Flags().Bool("wait", false, "Stream progress until the job finishes")
}
