package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alphauslabs/buckshot/cmd/server/service"
)

const defaultServer = "http://localhost:8080"

// Client sends requests to the buckshot upload API.
type Client struct {
	baseURL string
	email   string
	http    *http.Client
}

// APIError is a connect error returned by the server.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// newClient builds a Client from flags, env vars, or saved config.
func newClient(cmd *cobra.Command) (*Client, error) {
	server, _ := cmd.Flags().GetString("server")
	email, _ := cmd.Flags().GetString("email")

	if server == "" {
		server = os.Getenv("BUCKSHOT_SERVER")
	}
	if email == "" {
		email = os.Getenv("BUCKSHOT_EMAIL")
	}

	// Fall back to saved config from `buckshot login`
	if server == "" || email == "" {
		if cfg, err := loadConfig(); err == nil && cfg != nil {
			if server == "" {
				server = cfg.Server
			}
			if email == "" {
				email = cfg.Email
			}
		}
	}

	if server == "" {
		server = defaultServer
	}
	if email == "" {
		return nil, fmt.Errorf("not logged in: run 'buckshot login' or set BUCKSHOT_EMAIL")
	}

	return &Client{
		baseURL: strings.TrimRight(server, "/"),
		email:   email,
		http:    newHTTPClient(),
	}, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// call invokes a procedure of the upload service and decodes the response
// into out.
func (c *Client) call(method string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/"+service.ServiceName+"/"+method, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-OAuth-Email", c.email)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}
