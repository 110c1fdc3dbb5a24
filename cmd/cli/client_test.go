package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alphauslabs/buckshot/cmd/server/service"
)

func TestClientCall(t *testing.T) {
	var gotPath, gotEmail string
	var gotBody service.GetJobRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotEmail = r.Header.Get("X-OAuth-Email")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(service.GetJobResponse{Job: &service.Job{JobId: "job-1", Status: "processing"}})
	}))
	defer srv.Close()

	c := &Client{baseURL: srv.URL, email: "ops@example.com", http: newHTTPClient()}
	var resp service.GetJobResponse
	if err := c.call("GetJob", service.GetJobRequest{JobId: "job-1", Logs: 10}, &resp); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	if want := "/" + service.ServiceName + "/GetJob"; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if gotEmail != "ops@example.com" {
		t.Errorf("X-OAuth-Email = %q", gotEmail)
	}
	if gotBody.JobId != "job-1" || gotBody.Logs != 10 {
		t.Errorf("request body = %+v", gotBody)
	}
	if resp.Job == nil || resp.Job.Status != "processing" {
		t.Errorf("response = %+v", resp.Job)
	}
}

func TestClientCallError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"connect error", http.StatusNotFound, `{"code":"not_found","message":"job job-9 not found"}`, "not_found", "job job-9 not found"},
		{"plain text", http.StatusBadGateway, "upstream down\n", "", "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := &Client{baseURL: srv.URL, email: "ops@example.com", http: newHTTPClient()}
			err := c.call("GetJob", service.GetJobRequest{JobId: "job-9"}, nil)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Status != tt.status || apiErr.Code != tt.wantCode || apiErr.Message != tt.wantMsg {
				t.Errorf("APIError = %+v", apiErr)
			}
		})
	}
}

func TestApplySubmitFlags(t *testing.T) {
	req := service.SubmitJobRequest{Title: "from file", VideoKey: "uploads/a.mp4"}
	cmd := submitCmd
	if err := cmd.Flags().Set("title", "from flag"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("accounts", "a1,a2"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cmd.Flags().Set("title", "")
		cmd.Flags().Lookup("title").Changed = false
		cmd.Flags().Lookup("accounts").Changed = false
	})

	applySubmitFlags(cmd, &req)

	if req.Title != "from flag" {
		t.Errorf("Title = %q, want flag value", req.Title)
	}
	if req.VideoFilename != "a.mp4" {
		t.Errorf("VideoFilename = %q, want key base name", req.VideoFilename)
	}
	if len(req.AccountIds) != 2 || req.AccountIds[1] != "a2" {
		t.Errorf("AccountIds = %v", req.AccountIds)
	}
}
