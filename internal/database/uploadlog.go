package database

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// NewUploadLog returns a log entry stamped now with a fresh ID.
func NewUploadLog(level LogLevel, event LogEvent, message string) *UploadLog {
	return &UploadLog{
		LogId:     uuid.New().String(),
		Level:     level,
		Event:     event,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// ForTask attaches task, job and account references.
func (l *UploadLog) ForTask(t *Task) *UploadLog {
	l.TaskId = StringPtr(t.TaskId)
	l.JobId = StringPtr(t.JobId)
	l.AccountId = StringPtr(t.AccountId)
	return l
}

// ForAccount attaches account and project references.
func (l *UploadLog) ForAccount(a *Account) *UploadLog {
	l.AccountId = StringPtr(a.AccountId)
	l.ProjectId = StringPtr(a.ProjectId)
	return l
}

// ForJob attaches a job reference.
func (l *UploadLog) ForJob(jobID string) *UploadLog {
	l.JobId = StringPtr(jobID)
	return l
}

// WithDuration records the elapsed time since start.
func (l *UploadLog) WithDuration(start time.Time) *UploadLog {
	ms := time.Since(start).Milliseconds()
	l.DurationMs = &ms
	return l
}

// WithMetadata stores v as JSON.
func (l *UploadLog) WithMetadata(v interface{}) *UploadLog {
	if b, err := json.Marshal(v); err == nil {
		s := string(b)
		l.Metadata = &s
	}
	return l
}

// AppendLog writes l and only reports failures, since logs never drive
// control flow.
func AppendLog(ctx context.Context, s Store, l *UploadLog) {
	if err := s.AppendUploadLog(ctx, l); err != nil {
		log.Printf("Failed to append upload log (%s): %v", l.Event, err)
	}
}

// NewAudit returns an audit entry stamped now with a fresh ID.
func NewAudit(actor string, action AuditAction, targetType, targetID string, details interface{}) *AuditEntry {
	e := &AuditEntry{
		AuditId:    uuid.New().String(),
		Actor:      StringPtr(actor),
		Action:     action,
		TargetType: targetType,
		TargetId:   targetID,
		CreatedAt:  time.Now().UTC(),
	}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			s := string(b)
			e.Details = &s
		}
	}
	return e
}
