package database

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusDisabled ProjectStatus = "disabled"
	ProjectStatusError    ProjectStatus = "error"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusActive, ProjectStatusDisabled, ProjectStatusError:
		return true
	}
	return false
}

// AccountStatus is the health state of an Account.
type AccountStatus string

const (
	AccountStatusActive           AccountStatus = "active"
	AccountStatusExpired          AccountStatus = "expired"
	AccountStatusUploadLimit      AccountStatus = "upload_limit"
	AccountStatusTokenRevoked     AccountStatus = "token_revoked"
	AccountStatusChannelDeleted   AccountStatus = "channel_deleted"
	AccountStatusChannelSuspended AccountStatus = "channel_suspended"
	AccountStatusPlatformBlocked  AccountStatus = "platform_blocked"
	AccountStatusAccountDisabled  AccountStatus = "account_disabled"
	AccountStatusError            AccountStatus = "error"
	AccountStatusDead             AccountStatus = "dead"
	AccountStatusDisabled         AccountStatus = "disabled"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusExpired, AccountStatusUploadLimit,
		AccountStatusTokenRevoked, AccountStatusChannelDeleted, AccountStatusChannelSuspended,
		AccountStatusPlatformBlocked, AccountStatusAccountDisabled, AccountStatusError,
		AccountStatusDead, AccountStatusDisabled:
		return true
	}
	return false
}

// CanTransition reports whether an account may move from s to next.
// Dead accounts can only be soft-deleted; disabled is final.
func (s AccountStatus) CanTransition(next AccountStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case AccountStatusDead:
		return next == AccountStatusDisabled
	case AccountStatusDisabled:
		return false
	}
	return next.Valid()
}

// JobStatus is the aggregate state of a Job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusPartial    JobStatus = "partial"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusPartial, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transition occurs.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusPartial || s == JobStatusFailed
}

// TaskStatus is the state of a Task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusUploading TaskStatus = "uploading"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusRetrying  TaskStatus = "retrying"
)

var allowedTaskTransitions = map[TaskStatus]map[TaskStatus]bool{
	// Delivery can race the queued mark after enqueue.
	TaskStatusPending: {
		TaskStatusQueued:    true,
		TaskStatusUploading: true,
		TaskStatusFailed:    true,
	},
	TaskStatusQueued: {
		TaskStatusUploading: true,
		TaskStatusFailed:    true,
	},
	TaskStatusUploading: {
		TaskStatusCompleted: true,
		TaskStatusFailed:    true,
		TaskStatusRetrying:  true,
	},
	TaskStatusRetrying: {
		TaskStatusQueued:    true,
		TaskStatusUploading: true,
		TaskStatusFailed:    true,
	},
	TaskStatusCompleted: {},
	TaskStatusFailed:    {},
}

func (s TaskStatus) Valid() bool {
	_, ok := allowedTaskTransitions[s]
	return ok
}

// Terminal reports whether s is completed or failed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransition reports whether a task may move from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	return allowedTaskTransitions[s][next]
}

// Privacy is the visibility of an uploaded video.
type Privacy string

const (
	PrivacyPublic   Privacy = "public"
	PrivacyUnlisted Privacy = "unlisted"
	PrivacyPrivate  Privacy = "private"
)

func (p Privacy) Valid() bool {
	return p == PrivacyPublic || p == PrivacyUnlisted || p == PrivacyPrivate
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type LogEvent string

const (
	EventTokenRefresh       LogEvent = "token_refresh"
	EventUploadStart        LogEvent = "upload_start"
	EventUploadComplete     LogEvent = "upload_complete"
	EventRetry              LogEvent = "retry"
	EventError              LogEvent = "error"
	EventSourceFetch        LogEvent = "source_fetch"
	EventSourceCleanup      LogEvent = "source_cleanup"
	EventHealthCheck        LogEvent = "health_check"
	EventAccountFlagged     LogEvent = "account_flagged"
	EventAccountAutoDeleted LogEvent = "account_auto_deleted"
)

type AuditAction string

const (
	AuditProjectAdded       AuditAction = "project_added"
	AuditProjectUpdated     AuditAction = "project_updated"
	AuditAccountConnected   AuditAction = "account_connected"
	AuditAccountUpdated     AuditAction = "account_updated"
	AuditAccountAutoRemoved AuditAction = "account_auto_removed"
	AuditAccountFlagged     AuditAction = "account_flagged"
	AuditUploadCreated      AuditAction = "upload_created"
	AuditTemplateCreated    AuditAction = "template_created"
)
