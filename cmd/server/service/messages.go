package service

import (
	"encoding/json"
	"time"

	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/decomposer"
)

// jsonCodec lets connect carry plain Go structs as application/json.
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// ─── Requests ───────────────────────────────────────────────────────────────

type SubmitJobRequest struct {
	Title         string                         `json:"title"`
	VideoKey      string                         `json:"videoKey"`
	VideoFilename string                         `json:"videoFilename"`
	VideoSize     int64                          `json:"videoSize"`
	// AccountIds nil selects every eligible account; an empty list is rejected.
	AccountIds    []string                       `json:"accountIds"`
	Description   string                         `json:"description,omitempty"`
	Tags          []string                       `json:"tags,omitempty"`
	Privacy       string                         `json:"privacy,omitempty"`
	TemplateId    string                         `json:"templateId,omitempty"`
	Overrides     map[string]decomposer.Override `json:"overrides,omitempty"`
}

type GetJobRequest struct {
	JobId string `json:"jobId"`
	// Logs is the number of recent upload log entries to include.
	Logs int `json:"logs,omitempty"`
}

type ListJobsRequest struct {
	Status string `json:"status,omitempty"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type AddProjectRequest struct {
	Label        string `json:"label"`
	GcpProjectId string `json:"gcpProjectId,omitempty"`
	ClientId     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	MaxAccounts  *int64 `json:"maxAccounts,omitempty"`
}

type UpdateProjectRequest struct {
	ProjectId   string  `json:"projectId"`
	Label       *string `json:"label,omitempty"`
	Status      *string `json:"status,omitempty"`
	MaxAccounts *int64  `json:"maxAccounts,omitempty"`
}

type ListProjectsRequest struct {
	Status string `json:"status,omitempty"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type AddAccountRequest struct {
	ProjectId    string   `json:"projectId,omitempty"`
	Email        string   `json:"email"`
	ChannelId    string   `json:"channelId,omitempty"`
	ChannelTitle string   `json:"channelTitle,omitempty"`
	RefreshToken string   `json:"refreshToken"`
	Tags         []string `json:"tags,omitempty"`
}

type UpdateAccountRequest struct {
	AccountId string    `json:"accountId"`
	Tags      *[]string `json:"tags,omitempty"`
	Status    *string   `json:"status,omitempty"`
}

type ListAccountsRequest struct {
	Status    string `json:"status,omitempty"`
	ProjectId string `json:"projectId,omitempty"`
	Page      int    `json:"page,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type CheckAccountRequest struct {
	AccountId string `json:"accountId"`
}

type CreateTemplateRequest struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Privacy     string   `json:"privacy,omitempty"`
}

// ─── Responses ──────────────────────────────────────────────────────────────

type Job struct {
	JobId          string   `json:"jobId"`
	Title          string   `json:"title"`
	VideoKey       string   `json:"videoKey"`
	VideoFilename  string   `json:"videoFilename"`
	VideoSize      int64    `json:"videoSize"`
	Description    string   `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Privacy        string   `json:"privacy"`
	TemplateId     string   `json:"templateId,omitempty"`
	CreatedBy      string   `json:"createdBy,omitempty"`
	Status         string   `json:"status"`
	TotalTasks     int64    `json:"totalTasks"`
	CompletedTasks int64    `json:"completedTasks"`
	FailedTasks    int64    `json:"failedTasks"`
	SourceCleaned  bool     `json:"sourceCleaned"`
	CreatedAt      string   `json:"createdAt"`
	UpdatedAt      string   `json:"updatedAt"`
}

type Task struct {
	TaskId       string `json:"taskId"`
	AccountId    string `json:"accountId"`
	Status       string `json:"status"`
	VideoId      string `json:"videoId,omitempty"`
	VideoUrl     string `json:"videoUrl,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Attempts     int64  `json:"attempts"`
	MaxAttempts  int64  `json:"maxAttempts"`
	StartedAt    string `json:"startedAt,omitempty"`
	CompletedAt  string `json:"completedAt,omitempty"`
}

type UploadLog struct {
	TaskId     string `json:"taskId,omitempty"`
	AccountId  string `json:"accountId,omitempty"`
	Level      string `json:"level"`
	Event      string `json:"event"`
	Message    string `json:"message"`
	DurationMs *int64 `json:"durationMs,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

type GetJobResponse struct {
	Job   *Job         `json:"job"`
	Tasks []*Task      `json:"tasks"`
	Logs  []*UploadLog `json:"logs,omitempty"`
}

type ListJobsResponse struct {
	Jobs  []*Job `json:"jobs"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// Project omits the client secret.
type Project struct {
	ProjectId    string `json:"projectId"`
	Label        string `json:"label"`
	GcpProjectId string `json:"gcpProjectId,omitempty"`
	ClientId     string `json:"clientId"`
	Status       string `json:"status"`
	MaxAccounts  *int64 `json:"maxAccounts,omitempty"`
	AccountCount int64  `json:"accountCount"`
	CreatedAt    string `json:"createdAt"`
}

type ListProjectsResponse struct {
	Projects []*Project `json:"projects"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
}

// Account omits the refresh token.
type Account struct {
	AccountId       string   `json:"accountId"`
	ProjectId       string   `json:"projectId"`
	Email           string   `json:"email"`
	ChannelId       string   `json:"channelId,omitempty"`
	ChannelTitle    string   `json:"channelTitle,omitempty"`
	Status          string   `json:"status"`
	StatusReason    string   `json:"statusReason,omitempty"`
	HealthStrikes   int64    `json:"healthStrikes"`
	LastHealthCheck string   `json:"lastHealthCheck,omitempty"`
	LastUploadAt    string   `json:"lastUploadAt,omitempty"`
	AutoDeleteAt    string   `json:"autoDeleteAt,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	CreatedAt       string   `json:"createdAt"`
}

type ListAccountsResponse struct {
	Accounts []*Account `json:"accounts"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
}

type Template struct {
	TemplateId  string   `json:"templateId"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Privacy     string   `json:"privacy"`
	CreatedAt   string   `json:"createdAt"`
}

// ─── Conversions ────────────────────────────────────────────────────────────

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func toJob(j *database.Job) *Job {
	return &Job{
		JobId:          j.JobId,
		Title:          j.Title,
		VideoKey:       j.VideoKey,
		VideoFilename:  j.VideoFilename,
		VideoSize:      j.VideoSize,
		Description:    database.Deref(j.Description),
		Tags:           j.Tags,
		Privacy:        string(j.Privacy),
		TemplateId:     database.Deref(j.TemplateId),
		CreatedBy:      database.Deref(j.CreatedBy),
		Status:         string(j.Status),
		TotalTasks:     j.TotalTasks,
		CompletedTasks: j.CompletedTasks,
		FailedTasks:    j.FailedTasks,
		SourceCleaned:  j.SourceCleaned,
		CreatedAt:      formatTime(j.CreatedAt),
		UpdatedAt:      formatTime(j.UpdatedAt),
	}
}

func toTask(t *database.Task) *Task {
	return &Task{
		TaskId:       t.TaskId,
		AccountId:    t.AccountId,
		Status:       string(t.Status),
		VideoId:      database.Deref(t.VideoId),
		VideoUrl:     database.Deref(t.VideoUrl),
		ErrorCode:    database.Deref(t.ErrorCode),
		ErrorMessage: database.Deref(t.ErrorMessage),
		Attempts:     t.Attempts,
		MaxAttempts:  t.MaxAttempts,
		StartedAt:    formatTimePtr(t.StartedAt),
		CompletedAt:  formatTimePtr(t.CompletedAt),
	}
}

func toUploadLog(l *database.UploadLog) *UploadLog {
	return &UploadLog{
		TaskId:     database.Deref(l.TaskId),
		AccountId:  database.Deref(l.AccountId),
		Level:      string(l.Level),
		Event:      string(l.Event),
		Message:    l.Message,
		DurationMs: l.DurationMs,
		CreatedAt:  formatTime(l.CreatedAt),
	}
}

func toProject(p *database.Project) *Project {
	return &Project{
		ProjectId:    p.ProjectId,
		Label:        p.Label,
		GcpProjectId: database.Deref(p.GcpProjectId),
		ClientId:     p.ClientId,
		Status:       string(p.Status),
		MaxAccounts:  p.MaxAccounts,
		AccountCount: p.AccountCount,
		CreatedAt:    formatTime(p.CreatedAt),
	}
}

func toAccount(a *database.Account) *Account {
	return &Account{
		AccountId:       a.AccountId,
		ProjectId:       a.ProjectId,
		Email:           a.Email,
		ChannelId:       database.Deref(a.ChannelId),
		ChannelTitle:    database.Deref(a.ChannelTitle),
		Status:          string(a.Status),
		StatusReason:    database.Deref(a.StatusReason),
		HealthStrikes:   a.HealthStrikes,
		LastHealthCheck: formatTimePtr(a.LastHealthCheck),
		LastUploadAt:    formatTimePtr(a.LastUploadAt),
		AutoDeleteAt:    formatTimePtr(a.AutoDeleteAt),
		Tags:            a.Tags,
		CreatedAt:       formatTime(a.CreatedAt),
	}
}

func toTemplate(t *database.Template) *Template {
	return &Template{
		TemplateId:  t.TemplateId,
		Name:        t.Name,
		Title:       t.Title,
		Description: database.Deref(t.Description),
		Tags:        t.Tags,
		Privacy:     string(t.Privacy),
		CreatedAt:   formatTime(t.CreatedAt),
	}
}
