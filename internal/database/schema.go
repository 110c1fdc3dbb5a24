package database

import (
	"context"
	"fmt"

	adminapi "cloud.google.com/go/spanner/admin/database/apiv1"
	"cloud.google.com/go/spanner/admin/database/apiv1/databasepb"
)

// Schema is the Spanner DDL for every table the service uses.
var Schema = []string{
	`CREATE TABLE Projects (
		ProjectId    STRING(36) NOT NULL,
		Label        STRING(100) NOT NULL,
		GcpProjectId STRING(MAX),
		ClientId     STRING(MAX) NOT NULL,
		ClientSecret STRING(MAX) NOT NULL,
		Status       STRING(16) NOT NULL,
		MaxAccounts  INT64,
		AccountCount INT64 NOT NULL,
		AddedBy      STRING(MAX),
		CreatedAt    TIMESTAMP NOT NULL,
		UpdatedAt    TIMESTAMP NOT NULL,
		Version      INT64 NOT NULL,
	) PRIMARY KEY (ProjectId)`,
	`CREATE TABLE Accounts (
		AccountId       STRING(36) NOT NULL,
		ProjectId       STRING(36) NOT NULL,
		Email           STRING(MAX) NOT NULL,
		ChannelId       STRING(MAX),
		ChannelTitle    STRING(MAX),
		RefreshToken    STRING(MAX) NOT NULL,
		Status          STRING(32) NOT NULL,
		StatusReason    STRING(MAX),
		HealthStrikes   INT64 NOT NULL,
		LastHealthCheck TIMESTAMP,
		StatusChangedAt TIMESTAMP,
		LastUploadAt    TIMESTAMP,
		AutoDeleteAt    TIMESTAMP,
		Tags            ARRAY<STRING(MAX)>,
		AddedBy         STRING(MAX),
		CreatedAt       TIMESTAMP NOT NULL,
		UpdatedAt       TIMESTAMP NOT NULL,
		Version         INT64 NOT NULL,
		CONSTRAINT FK_AccountsProject FOREIGN KEY (ProjectId) REFERENCES Projects (ProjectId),
	) PRIMARY KEY (AccountId)`,
	`CREATE INDEX AccountsByStatus ON Accounts(Status)`,
	`CREATE INDEX AccountsByProject ON Accounts(ProjectId)`,
	`CREATE TABLE Templates (
		TemplateId  STRING(36) NOT NULL,
		Name        STRING(MAX) NOT NULL,
		Title       STRING(MAX) NOT NULL,
		Description STRING(MAX),
		Tags        ARRAY<STRING(MAX)>,
		Privacy     STRING(16) NOT NULL,
		CreatedBy   STRING(MAX),
		CreatedAt   TIMESTAMP NOT NULL,
		UpdatedAt   TIMESTAMP NOT NULL,
	) PRIMARY KEY (TemplateId)`,
	`CREATE TABLE Jobs (
		JobId          STRING(36) NOT NULL,
		VideoKey       STRING(MAX) NOT NULL,
		VideoFilename  STRING(MAX) NOT NULL,
		VideoSize      INT64 NOT NULL,
		Title          STRING(100) NOT NULL,
		Description    STRING(MAX),
		Tags           ARRAY<STRING(MAX)>,
		Privacy        STRING(16) NOT NULL,
		TemplateId     STRING(36),
		CreatedBy      STRING(MAX),
		Status         STRING(16) NOT NULL,
		TotalTasks     INT64 NOT NULL,
		CompletedTasks INT64 NOT NULL,
		FailedTasks    INT64 NOT NULL,
		SourceCleaned  BOOL NOT NULL,
		CreatedAt      TIMESTAMP NOT NULL,
		UpdatedAt      TIMESTAMP NOT NULL,
		Version        INT64 NOT NULL,
	) PRIMARY KEY (JobId)`,
	`CREATE INDEX JobsByStatus ON Jobs(Status)`,
	`CREATE TABLE Tasks (
		TaskId              STRING(36) NOT NULL,
		JobId               STRING(36) NOT NULL,
		AccountId           STRING(36) NOT NULL,
		Status              STRING(16) NOT NULL,
		TitleOverride       STRING(MAX),
		DescriptionOverride STRING(MAX),
		TagsOverride        ARRAY<STRING(MAX)>,
		VideoId             STRING(MAX),
		VideoUrl            STRING(MAX),
		ErrorCode           STRING(64),
		ErrorMessage        STRING(MAX),
		Attempts            INT64 NOT NULL,
		MaxAttempts         INT64 NOT NULL,
		LeaseOwner          STRING(MAX),
		LeaseExpiresAt      TIMESTAMP,
		StartedAt           TIMESTAMP,
		CompletedAt         TIMESTAMP,
		CreatedAt           TIMESTAMP NOT NULL,
		UpdatedAt           TIMESTAMP NOT NULL,
		Version             INT64 NOT NULL,
		CONSTRAINT FK_TasksJob FOREIGN KEY (JobId) REFERENCES Jobs (JobId),
	) PRIMARY KEY (TaskId)`,
	`CREATE INDEX TasksByJob ON Tasks(JobId)`,
	`CREATE INDEX TasksByStatus ON Tasks(Status, UpdatedAt)`,
	`CREATE TABLE UploadLogs (
		LogId      STRING(36) NOT NULL,
		TaskId     STRING(36),
		JobId      STRING(36),
		AccountId  STRING(36),
		ProjectId  STRING(36),
		Level      STRING(8) NOT NULL,
		Event      STRING(32) NOT NULL,
		Message    STRING(MAX) NOT NULL,
		Metadata   STRING(MAX),
		DurationMs INT64,
		CreatedAt  TIMESTAMP NOT NULL,
	) PRIMARY KEY (LogId)`,
	`CREATE INDEX UploadLogsByJob ON UploadLogs(JobId, CreatedAt DESC)`,
	`CREATE TABLE AuditLog (
		AuditId    STRING(36) NOT NULL,
		Actor      STRING(MAX),
		Action     STRING(32) NOT NULL,
		TargetType STRING(32) NOT NULL,
		TargetId   STRING(36) NOT NULL,
		Details    STRING(MAX),
		CreatedAt  TIMESTAMP NOT NULL,
	) PRIMARY KEY (AuditId)`,
}

// ApplySchema runs the DDL statements against an existing database.
func ApplySchema(ctx context.Context, dbPath string, statements []string) error {
	admin, err := adminapi.NewDatabaseAdminClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create database admin client: %w", err)
	}
	defer admin.Close()

	op, err := admin.UpdateDatabaseDdl(ctx, &databasepb.UpdateDatabaseDdlRequest{
		Database:   dbPath,
		Statements: statements,
	})
	if err != nil {
		return fmt.Errorf("failed to start schema update: %w", err)
	}
	if err := op.Wait(ctx); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
