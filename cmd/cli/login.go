package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alphauslabs/buckshot/cmd/server/service"
)

// Config holds the saved server and operator identity.
type Config struct {
	Server string `json:"server"`
	Email  string `json:"email"`
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "buckshot", "config.json"), nil
}

func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Printf("%s: ", label)
	val, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(val), nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save the server URL and your operator email",
	Long:  "buckshot login\n\nSaves the server URL and your email locally so you don't need to provide them on every command.",
	RunE: func(cmd *cobra.Command, args []string) error {
		existing, err := loadConfig()
		if err != nil {
			return err
		}
		if existing != nil {
			fmt.Printf("Already logged in as \033[36m%s\033[0m on %s.\n", existing.Email, existing.Server)
			fmt.Println("Run 'buckshot logout' first before logging in again.")
			return nil
		}

		fmt.Println("Log in to Buckshot")
		fmt.Println("──────────────────")

		reader := bufio.NewReader(os.Stdin)
		server, err := prompt(reader, fmt.Sprintf("Server URL [%s]", defaultServer))
		if err != nil {
			return err
		}
		if server == "" {
			server = defaultServer
		}
		email, err := prompt(reader, "Email")
		if err != nil {
			return err
		}
		if email == "" {
			return fmt.Errorf("email cannot be empty")
		}

		fmt.Println()
		fmt.Println("Checking server...")
		c := &Client{baseURL: strings.TrimRight(server, "/"), email: email, http: newHTTPClient()}
		var jobs service.ListJobsResponse
		if err := c.call("ListJobs", service.ListJobsRequest{Limit: 1}, &jobs); err != nil {
			return fmt.Errorf("could not reach server: %w", err)
		}

		if err := saveConfig(&Config{Server: server, Email: email}); err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}

		fmt.Printf("✅ Logged in as \033[36m%s\033[0m (%d jobs on server)\n", email, jobs.Total)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved login",
	Long:  "buckshot logout\n\nRemoves your locally saved server and email.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg == nil {
			fmt.Println("Not logged in.")
			return nil
		}

		path, err := configPath()
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		fmt.Println("✅ Logged out successfully.")
		return nil
	},
}
