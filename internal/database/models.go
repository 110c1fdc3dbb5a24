package database

import "time"

// Project is a pooled OAuth client that owns accounts.
type Project struct {
	ProjectId    string        `spanner:"ProjectId"`
	Label        string        `spanner:"Label"`
	GcpProjectId *string       `spanner:"GcpProjectId"`
	ClientId     string        `spanner:"ClientId"`
	ClientSecret string        `spanner:"ClientSecret"` // encrypted envelope
	Status       ProjectStatus `spanner:"Status"`
	MaxAccounts  *int64        `spanner:"MaxAccounts"`
	AccountCount int64         `spanner:"AccountCount"`
	AddedBy      *string       `spanner:"AddedBy"`
	CreatedAt    time.Time     `spanner:"CreatedAt"`
	UpdatedAt    time.Time     `spanner:"UpdatedAt"`
	Version      int64         `spanner:"Version"`
}

// Account is one publishing identity bound to a project.
type Account struct {
	AccountId       string        `spanner:"AccountId"`
	ProjectId       string        `spanner:"ProjectId"`
	Email           string        `spanner:"Email"`
	ChannelId       *string       `spanner:"ChannelId"`
	ChannelTitle    *string       `spanner:"ChannelTitle"`
	RefreshToken    string        `spanner:"RefreshToken"` // encrypted envelope
	Status          AccountStatus `spanner:"Status"`
	StatusReason    *string       `spanner:"StatusReason"`
	HealthStrikes   int64         `spanner:"HealthStrikes"`
	LastHealthCheck *time.Time    `spanner:"LastHealthCheck"`
	StatusChangedAt *time.Time    `spanner:"StatusChangedAt"`
	LastUploadAt    *time.Time    `spanner:"LastUploadAt"`
	AutoDeleteAt    *time.Time    `spanner:"AutoDeleteAt"`
	Tags            []string      `spanner:"Tags"`
	AddedBy         *string       `spanner:"AddedBy"`
	CreatedAt       time.Time     `spanner:"CreatedAt"`
	UpdatedAt       time.Time     `spanner:"UpdatedAt"`
	Version         int64         `spanner:"Version"`
}

// Template holds reusable upload metadata with {{variable}} placeholders.
type Template struct {
	TemplateId  string    `spanner:"TemplateId"`
	Name        string    `spanner:"Name"`
	Title       string    `spanner:"Title"`
	Description *string   `spanner:"Description"`
	Tags        []string  `spanner:"Tags"`
	Privacy     Privacy   `spanner:"Privacy"`
	CreatedBy   *string   `spanner:"CreatedBy"`
	CreatedAt   time.Time `spanner:"CreatedAt"`
	UpdatedAt   time.Time `spanner:"UpdatedAt"`
}

// Job is one source video distributed to many accounts.
type Job struct {
	JobId          string    `spanner:"JobId"`
	VideoKey       string    `spanner:"VideoKey"`
	VideoFilename  string    `spanner:"VideoFilename"`
	VideoSize      int64     `spanner:"VideoSize"`
	Title          string    `spanner:"Title"`
	Description    *string   `spanner:"Description"`
	Tags           []string  `spanner:"Tags"`
	Privacy        Privacy   `spanner:"Privacy"`
	TemplateId     *string   `spanner:"TemplateId"`
	CreatedBy      *string   `spanner:"CreatedBy"`
	Status         JobStatus `spanner:"Status"`
	TotalTasks     int64     `spanner:"TotalTasks"`
	CompletedTasks int64     `spanner:"CompletedTasks"`
	FailedTasks    int64     `spanner:"FailedTasks"`
	SourceCleaned  bool      `spanner:"SourceCleaned"`
	CreatedAt      time.Time `spanner:"CreatedAt"`
	UpdatedAt      time.Time `spanner:"UpdatedAt"`
	Version        int64     `spanner:"Version"`
}

// Task is one (job, account) unit of upload work.
type Task struct {
	TaskId              string     `spanner:"TaskId"`
	JobId               string     `spanner:"JobId"`
	AccountId           string     `spanner:"AccountId"`
	Status              TaskStatus `spanner:"Status"`
	TitleOverride       *string    `spanner:"TitleOverride"`
	DescriptionOverride *string    `spanner:"DescriptionOverride"`
	TagsOverride        []string   `spanner:"TagsOverride"`
	VideoId             *string    `spanner:"VideoId"`
	VideoUrl            *string    `spanner:"VideoUrl"`
	ErrorCode           *string    `spanner:"ErrorCode"`
	ErrorMessage        *string    `spanner:"ErrorMessage"`
	Attempts            int64      `spanner:"Attempts"`
	MaxAttempts         int64      `spanner:"MaxAttempts"`
	LeaseOwner          *string    `spanner:"LeaseOwner"`
	LeaseExpiresAt      *time.Time `spanner:"LeaseExpiresAt"`
	StartedAt           *time.Time `spanner:"StartedAt"`
	CompletedAt         *time.Time `spanner:"CompletedAt"`
	CreatedAt           time.Time  `spanner:"CreatedAt"`
	UpdatedAt           time.Time  `spanner:"UpdatedAt"`
	Version             int64      `spanner:"Version"`
}

// UploadLog is an append-only diagnostic record.
type UploadLog struct {
	LogId      string    `spanner:"LogId"`
	TaskId     *string   `spanner:"TaskId"`
	JobId      *string   `spanner:"JobId"`
	AccountId  *string   `spanner:"AccountId"`
	ProjectId  *string   `spanner:"ProjectId"`
	Level      LogLevel  `spanner:"Level"`
	Event      LogEvent  `spanner:"Event"`
	Message    string    `spanner:"Message"`
	Metadata   *string   `spanner:"Metadata"` // JSON
	DurationMs *int64    `spanner:"DurationMs"`
	CreatedAt  time.Time `spanner:"CreatedAt"`
}

// AuditEntry is an append-only record of an operator or system action.
type AuditEntry struct {
	AuditId    string      `spanner:"AuditId"`
	Actor      *string     `spanner:"Actor"`
	Action     AuditAction `spanner:"Action"`
	TargetType string      `spanner:"TargetType"`
	TargetId   string      `spanner:"TargetId"`
	Details    *string     `spanner:"Details"` // JSON
	CreatedAt  time.Time   `spanner:"CreatedAt"`
}

// Page selects a window of a listing. Page is 1-based.
type Page struct {
	Page  int
	Limit int
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	Status JobStatus
	Page
}

// AccountFilter narrows ListAccounts.
type AccountFilter struct {
	Status    AccountStatus
	ProjectId string
	Page
}

// ProjectFilter narrows ListProjects.
type ProjectFilter struct {
	Status ProjectStatus
	Page
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// Deref returns *s or "" when s is nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
