package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alphauslabs/buckshot/cmd/server/service"
	"github.com/alphauslabs/buckshot/internal/navigator"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage metadata templates",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var templateCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a metadata template",
	Long: "buckshot template create --name <name> --title <title> [--description <text>] [--tags a,b] [--privacy <privacy>]\n\n" +
		"Titles, descriptions and tags may use {{placeholders}}: " + strings.Join(navigator.VariableNames, ", ") + ".",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := service.CreateTemplateRequest{}
		req.Name, _ = cmd.Flags().GetString("name")
		req.Title, _ = cmd.Flags().GetString("title")
		req.Description, _ = cmd.Flags().GetString("description")
		req.Tags, _ = cmd.Flags().GetStringSlice("tags")
		req.Privacy, _ = cmd.Flags().GetString("privacy")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		var t service.Template
		if err := c.call("CreateTemplate", req, &t); err != nil {
			return fmt.Errorf("failed to create template: %w", err)
		}
		if wantJSON(cmd) {
			printJSON(t)
			return nil
		}
		fmt.Printf("✓ Template %q created\n", t.Name)
		fmt.Printf("  Template ID: %s\n", t.TemplateId)
		return nil
	},
}

func init() {
	templateCreateCmd.Flags().String("name", "", "Template name (required)")
	templateCreateCmd.Flags().String("title", "", "Title pattern (required)")
	templateCreateCmd.Flags().String("description", "", "Description pattern")
	templateCreateCmd.Flags().StringSlice("tags", nil, "Comma-separated tag patterns")
	templateCreateCmd.Flags().String("privacy", "", "public, unlisted or private (default public)")
	templateCmd.AddCommand(templateCreateCmd)
}
