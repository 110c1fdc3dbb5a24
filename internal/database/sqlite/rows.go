package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/alphauslabs/buckshot/internal/database"
)

// Times are stored as unix milliseconds so range comparisons stay numeric.

type projectRow struct {
	ProjectID    string         `db:"project_id"`
	Label        string         `db:"label"`
	GcpProjectID sql.NullString `db:"gcp_project_id"`
	ClientID     string         `db:"client_id"`
	ClientSecret string         `db:"client_secret"`
	Status       string         `db:"status"`
	MaxAccounts  sql.NullInt64  `db:"max_accounts"`
	AccountCount int64          `db:"account_count"`
	AddedBy      sql.NullString `db:"added_by"`
	CreatedAt    int64          `db:"created_at"`
	UpdatedAt    int64          `db:"updated_at"`
	Version      int64          `db:"version"`
}

type accountRow struct {
	AccountID       string         `db:"account_id"`
	ProjectID       string         `db:"project_id"`
	Email           string         `db:"email"`
	ChannelID       sql.NullString `db:"channel_id"`
	ChannelTitle    sql.NullString `db:"channel_title"`
	RefreshToken    string         `db:"refresh_token"`
	Status          string         `db:"status"`
	StatusReason    sql.NullString `db:"status_reason"`
	HealthStrikes   int64          `db:"health_strikes"`
	LastHealthCheck sql.NullInt64  `db:"last_health_check"`
	StatusChangedAt sql.NullInt64  `db:"status_changed_at"`
	LastUploadAt    sql.NullInt64  `db:"last_upload_at"`
	AutoDeleteAt    sql.NullInt64  `db:"auto_delete_at"`
	Tags            string         `db:"tags"`
	AddedBy         sql.NullString `db:"added_by"`
	CreatedAt       int64          `db:"created_at"`
	UpdatedAt       int64          `db:"updated_at"`
	Version         int64          `db:"version"`
}

type templateRow struct {
	TemplateID  string         `db:"template_id"`
	Name        string         `db:"name"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	Tags        string         `db:"tags"`
	Privacy     string         `db:"privacy"`
	CreatedBy   sql.NullString `db:"created_by"`
	CreatedAt   int64          `db:"created_at"`
	UpdatedAt   int64          `db:"updated_at"`
}

type jobRow struct {
	JobID          string         `db:"job_id"`
	VideoKey       string         `db:"video_key"`
	VideoFilename  string         `db:"video_filename"`
	VideoSize      int64          `db:"video_size"`
	Title          string         `db:"title"`
	Description    sql.NullString `db:"description"`
	Tags           string         `db:"tags"`
	Privacy        string         `db:"privacy"`
	TemplateID     sql.NullString `db:"template_id"`
	CreatedBy      sql.NullString `db:"created_by"`
	Status         string         `db:"status"`
	TotalTasks     int64          `db:"total_tasks"`
	CompletedTasks int64          `db:"completed_tasks"`
	FailedTasks    int64          `db:"failed_tasks"`
	SourceCleaned  bool           `db:"source_cleaned"`
	CreatedAt      int64          `db:"created_at"`
	UpdatedAt      int64          `db:"updated_at"`
	Version        int64          `db:"version"`
}

type taskRow struct {
	TaskID              string         `db:"task_id"`
	JobID               string         `db:"job_id"`
	AccountID           string         `db:"account_id"`
	Status              string         `db:"status"`
	TitleOverride       sql.NullString `db:"title_override"`
	DescriptionOverride sql.NullString `db:"description_override"`
	TagsOverride        string         `db:"tags_override"`
	VideoID             sql.NullString `db:"video_id"`
	VideoURL            sql.NullString `db:"video_url"`
	ErrorCode           sql.NullString `db:"error_code"`
	ErrorMessage        sql.NullString `db:"error_message"`
	Attempts            int64          `db:"attempts"`
	MaxAttempts         int64          `db:"max_attempts"`
	LeaseOwner          sql.NullString `db:"lease_owner"`
	LeaseExpiresAt      sql.NullInt64  `db:"lease_expires_at"`
	StartedAt           sql.NullInt64  `db:"started_at"`
	CompletedAt         sql.NullInt64  `db:"completed_at"`
	CreatedAt           int64          `db:"created_at"`
	UpdatedAt           int64          `db:"updated_at"`
	Version             int64          `db:"version"`
}

type uploadLogRow struct {
	LogID      string         `db:"log_id"`
	TaskID     sql.NullString `db:"task_id"`
	JobID      sql.NullString `db:"job_id"`
	AccountID  sql.NullString `db:"account_id"`
	ProjectID  sql.NullString `db:"project_id"`
	Level      string         `db:"level"`
	Event      string         `db:"event"`
	Message    string         `db:"message"`
	Metadata   sql.NullString `db:"metadata"`
	DurationMs sql.NullInt64  `db:"duration_ms"`
	CreatedAt  int64          `db:"created_at"`
}

type auditRow struct {
	AuditID    string         `db:"audit_id"`
	Actor      sql.NullString `db:"actor"`
	Action     string         `db:"action"`
	TargetType string         `db:"target_type"`
	TargetID   string         `db:"target_id"`
	Details    sql.NullString `db:"details"`
	CreatedAt  int64          `db:"created_at"`
}

func projectToRow(p *database.Project) projectRow {
	return projectRow{
		ProjectID:    p.ProjectId,
		Label:        p.Label,
		GcpProjectID: nullString(p.GcpProjectId),
		ClientID:     p.ClientId,
		ClientSecret: p.ClientSecret,
		Status:       string(p.Status),
		MaxAccounts:  nullInt(p.MaxAccounts),
		AccountCount: p.AccountCount,
		AddedBy:      nullString(p.AddedBy),
		CreatedAt:    toMillis(p.CreatedAt),
		UpdatedAt:    toMillis(p.UpdatedAt),
		Version:      p.Version,
	}
}

func rowToProject(r projectRow) *database.Project {
	return &database.Project{
		ProjectId:    r.ProjectID,
		Label:        r.Label,
		GcpProjectId: stringPtr(r.GcpProjectID),
		ClientId:     r.ClientID,
		ClientSecret: r.ClientSecret,
		Status:       database.ProjectStatus(r.Status),
		MaxAccounts:  intPtr(r.MaxAccounts),
		AccountCount: r.AccountCount,
		AddedBy:      stringPtr(r.AddedBy),
		CreatedAt:    fromMillis(r.CreatedAt),
		UpdatedAt:    fromMillis(r.UpdatedAt),
		Version:      r.Version,
	}
}

func accountToRow(a *database.Account) accountRow {
	return accountRow{
		AccountID:       a.AccountId,
		ProjectID:       a.ProjectId,
		Email:           a.Email,
		ChannelID:       nullString(a.ChannelId),
		ChannelTitle:    nullString(a.ChannelTitle),
		RefreshToken:    a.RefreshToken,
		Status:          string(a.Status),
		StatusReason:    nullString(a.StatusReason),
		HealthStrikes:   a.HealthStrikes,
		LastHealthCheck: nullMillis(a.LastHealthCheck),
		StatusChangedAt: nullMillis(a.StatusChangedAt),
		LastUploadAt:    nullMillis(a.LastUploadAt),
		AutoDeleteAt:    nullMillis(a.AutoDeleteAt),
		Tags:            encodeTags(a.Tags),
		AddedBy:         nullString(a.AddedBy),
		CreatedAt:       toMillis(a.CreatedAt),
		UpdatedAt:       toMillis(a.UpdatedAt),
		Version:         a.Version,
	}
}

func rowToAccount(r accountRow) *database.Account {
	return &database.Account{
		AccountId:       r.AccountID,
		ProjectId:       r.ProjectID,
		Email:           r.Email,
		ChannelId:       stringPtr(r.ChannelID),
		ChannelTitle:    stringPtr(r.ChannelTitle),
		RefreshToken:    r.RefreshToken,
		Status:          database.AccountStatus(r.Status),
		StatusReason:    stringPtr(r.StatusReason),
		HealthStrikes:   r.HealthStrikes,
		LastHealthCheck: timePtr(r.LastHealthCheck),
		StatusChangedAt: timePtr(r.StatusChangedAt),
		LastUploadAt:    timePtr(r.LastUploadAt),
		AutoDeleteAt:    timePtr(r.AutoDeleteAt),
		Tags:            decodeTags(r.Tags),
		AddedBy:         stringPtr(r.AddedBy),
		CreatedAt:       fromMillis(r.CreatedAt),
		UpdatedAt:       fromMillis(r.UpdatedAt),
		Version:         r.Version,
	}
}

func templateToRow(t *database.Template) templateRow {
	return templateRow{
		TemplateID:  t.TemplateId,
		Name:        t.Name,
		Title:       t.Title,
		Description: nullString(t.Description),
		Tags:        encodeTags(t.Tags),
		Privacy:     string(t.Privacy),
		CreatedBy:   nullString(t.CreatedBy),
		CreatedAt:   toMillis(t.CreatedAt),
		UpdatedAt:   toMillis(t.UpdatedAt),
	}
}

func rowToTemplate(r templateRow) *database.Template {
	return &database.Template{
		TemplateId:  r.TemplateID,
		Name:        r.Name,
		Title:       r.Title,
		Description: stringPtr(r.Description),
		Tags:        decodeTags(r.Tags),
		Privacy:     database.Privacy(r.Privacy),
		CreatedBy:   stringPtr(r.CreatedBy),
		CreatedAt:   fromMillis(r.CreatedAt),
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}
}

func jobToRow(j *database.Job) jobRow {
	return jobRow{
		JobID:          j.JobId,
		VideoKey:       j.VideoKey,
		VideoFilename:  j.VideoFilename,
		VideoSize:      j.VideoSize,
		Title:          j.Title,
		Description:    nullString(j.Description),
		Tags:           encodeTags(j.Tags),
		Privacy:        string(j.Privacy),
		TemplateID:     nullString(j.TemplateId),
		CreatedBy:      nullString(j.CreatedBy),
		Status:         string(j.Status),
		TotalTasks:     j.TotalTasks,
		CompletedTasks: j.CompletedTasks,
		FailedTasks:    j.FailedTasks,
		SourceCleaned:  j.SourceCleaned,
		CreatedAt:      toMillis(j.CreatedAt),
		UpdatedAt:      toMillis(j.UpdatedAt),
		Version:        j.Version,
	}
}

func rowToJob(r jobRow) *database.Job {
	return &database.Job{
		JobId:          r.JobID,
		VideoKey:       r.VideoKey,
		VideoFilename:  r.VideoFilename,
		VideoSize:      r.VideoSize,
		Title:          r.Title,
		Description:    stringPtr(r.Description),
		Tags:           decodeTags(r.Tags),
		Privacy:        database.Privacy(r.Privacy),
		TemplateId:     stringPtr(r.TemplateID),
		CreatedBy:      stringPtr(r.CreatedBy),
		Status:         database.JobStatus(r.Status),
		TotalTasks:     r.TotalTasks,
		CompletedTasks: r.CompletedTasks,
		FailedTasks:    r.FailedTasks,
		SourceCleaned:  r.SourceCleaned,
		CreatedAt:      fromMillis(r.CreatedAt),
		UpdatedAt:      fromMillis(r.UpdatedAt),
		Version:        r.Version,
	}
}

func taskToRow(t *database.Task) taskRow {
	return taskRow{
		TaskID:              t.TaskId,
		JobID:               t.JobId,
		AccountID:           t.AccountId,
		Status:              string(t.Status),
		TitleOverride:       nullString(t.TitleOverride),
		DescriptionOverride: nullString(t.DescriptionOverride),
		TagsOverride:        encodeTags(t.TagsOverride),
		VideoID:             nullString(t.VideoId),
		VideoURL:            nullString(t.VideoUrl),
		ErrorCode:           nullString(t.ErrorCode),
		ErrorMessage:        nullString(t.ErrorMessage),
		Attempts:            t.Attempts,
		MaxAttempts:         t.MaxAttempts,
		LeaseOwner:          nullString(t.LeaseOwner),
		LeaseExpiresAt:      nullMillis(t.LeaseExpiresAt),
		StartedAt:           nullMillis(t.StartedAt),
		CompletedAt:         nullMillis(t.CompletedAt),
		CreatedAt:           toMillis(t.CreatedAt),
		UpdatedAt:           toMillis(t.UpdatedAt),
		Version:             t.Version,
	}
}

func rowToTask(r taskRow) *database.Task {
	return &database.Task{
		TaskId:              r.TaskID,
		JobId:               r.JobID,
		AccountId:           r.AccountID,
		Status:              database.TaskStatus(r.Status),
		TitleOverride:       stringPtr(r.TitleOverride),
		DescriptionOverride: stringPtr(r.DescriptionOverride),
		TagsOverride:        decodeTags(r.TagsOverride),
		VideoId:             stringPtr(r.VideoID),
		VideoUrl:            stringPtr(r.VideoURL),
		ErrorCode:           stringPtr(r.ErrorCode),
		ErrorMessage:        stringPtr(r.ErrorMessage),
		Attempts:            r.Attempts,
		MaxAttempts:         r.MaxAttempts,
		LeaseOwner:          stringPtr(r.LeaseOwner),
		LeaseExpiresAt:      timePtr(r.LeaseExpiresAt),
		StartedAt:           timePtr(r.StartedAt),
		CompletedAt:         timePtr(r.CompletedAt),
		CreatedAt:           fromMillis(r.CreatedAt),
		UpdatedAt:           fromMillis(r.UpdatedAt),
		Version:             r.Version,
	}
}

func uploadLogToRow(l *database.UploadLog) uploadLogRow {
	return uploadLogRow{
		LogID:      l.LogId,
		TaskID:     nullString(l.TaskId),
		JobID:      nullString(l.JobId),
		AccountID:  nullString(l.AccountId),
		ProjectID:  nullString(l.ProjectId),
		Level:      string(l.Level),
		Event:      string(l.Event),
		Message:    l.Message,
		Metadata:   nullString(l.Metadata),
		DurationMs: nullInt(l.DurationMs),
		CreatedAt:  toMillis(l.CreatedAt),
	}
}

func rowToUploadLog(r uploadLogRow) *database.UploadLog {
	return &database.UploadLog{
		LogId:      r.LogID,
		TaskId:     stringPtr(r.TaskID),
		JobId:      stringPtr(r.JobID),
		AccountId:  stringPtr(r.AccountID),
		ProjectId:  stringPtr(r.ProjectID),
		Level:      database.LogLevel(r.Level),
		Event:      database.LogEvent(r.Event),
		Message:    r.Message,
		Metadata:   stringPtr(r.Metadata),
		DurationMs: intPtr(r.DurationMs),
		CreatedAt:  fromMillis(r.CreatedAt),
	}
}

func auditToRow(e *database.AuditEntry) auditRow {
	return auditRow{
		AuditID:    e.AuditId,
		Actor:      nullString(e.Actor),
		Action:     string(e.Action),
		TargetType: e.TargetType,
		TargetID:   e.TargetId,
		Details:    nullString(e.Details),
		CreatedAt:  toMillis(e.CreatedAt),
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeTags(s string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil || len(tags) == 0 {
		return nil
	}
	return tags
}
