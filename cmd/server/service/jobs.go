package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/decomposer"
	"github.com/alphauslabs/buckshot/internal/navigator"
	"github.com/alphauslabs/buckshot/internal/template"
)

const maxJobLogs = 200

func (s *UploadService) SubmitJob(
	ctx context.Context,
	req *connect.Request[SubmitJobRequest],
) (*connect.Response[Job], error) {
	m := req.Msg
	createdBy := actor(req.Header())
	log.Printf("Received job submission from %s: %q (%s)", createdBy, m.Title, m.VideoKey)

	job, err := s.decomposer.CreateJob(ctx, decomposer.SubmitJobRequest{
		Title:         m.Title,
		VideoKey:      m.VideoKey,
		VideoFilename: m.VideoFilename,
		VideoSize:     m.VideoSize,
		AccountIDs:    m.AccountIds,
		Description:   m.Description,
		Tags:          m.Tags,
		Privacy:       database.Privacy(m.Privacy),
		TemplateID:    m.TemplateId,
		Overrides:     m.Overrides,
		CreatedBy:     createdBy,
	})
	if err != nil {
		log.Printf("Failed to create job: %v", err)
		return nil, toConnectError(err)
	}

	log.Printf("Job submitted successfully: jobId=%s, tasks=%d", job.JobId, job.TotalTasks)
	return connect.NewResponse(toJob(job)), nil
}

func (s *UploadService) GetJob(
	ctx context.Context,
	req *connect.Request[GetJobRequest],
) (*connect.Response[GetJobResponse], error) {
	if req.Msg.JobId == "" {
		return nil, toConnectError(apperr.Validation("jobId is required"))
	}

	job, err := s.store.GetJob(ctx, req.Msg.JobId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, toConnectError(apperr.NotFound("job %s not found", req.Msg.JobId))
		}
		log.Printf("Failed to get job %s: %v", req.Msg.JobId, err)
		return nil, toConnectError(err)
	}
	tasks, err := s.store.ListTasksByJob(ctx, job.JobId)
	if err != nil {
		log.Printf("Failed to list tasks for job %s: %v", job.JobId, err)
		return nil, toConnectError(err)
	}

	resp := &GetJobResponse{Job: toJob(job), Tasks: make([]*Task, 0, len(tasks))}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, toTask(t))
	}

	if n := req.Msg.Logs; n > 0 {
		if n > maxJobLogs {
			n = maxJobLogs
		}
		logs, err := s.store.ListUploadLogs(ctx, job.JobId, n)
		if err != nil {
			log.Printf("Failed to list upload logs for job %s: %v", job.JobId, err)
			return nil, toConnectError(err)
		}
		for _, l := range logs {
			resp.Logs = append(resp.Logs, toUploadLog(l))
		}
	}
	return connect.NewResponse(resp), nil
}

func (s *UploadService) ListJobs(
	ctx context.Context,
	req *connect.Request[ListJobsRequest],
) (*connect.Response[ListJobsResponse], error) {
	p, err := page(req.Msg.Page, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	status := database.JobStatus(req.Msg.Status)
	if status != "" && !status.Valid() {
		return nil, toConnectError(apperr.Validation("unknown job status %q", req.Msg.Status))
	}

	jobs, total, err := s.store.ListJobs(ctx, database.JobFilter{Status: status, Page: p})
	if err != nil {
		log.Printf("Failed to list jobs: %v", err)
		return nil, toConnectError(err)
	}

	resp := &ListJobsResponse{Jobs: make([]*Job, 0, len(jobs)), Total: total, Page: p.Page, Limit: p.Limit}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJob(j))
	}
	return connect.NewResponse(resp), nil
}

func (s *UploadService) CreateTemplate(
	ctx context.Context,
	req *connect.Request[CreateTemplateRequest],
) (*connect.Response[Template], error) {
	t, err := s.createTemplate(ctx, *req.Msg, actor(req.Header()))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toTemplate(t)), nil
}

// createTemplate validates and stores a template. It also backs startup
// seeding.
func (s *UploadService) createTemplate(ctx context.Context, m CreateTemplateRequest, createdBy string) (*database.Template, error) {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return nil, apperr.Validation("template name is required")
	}
	if n := utf8.RuneCountInString(m.Title); n < 1 || n > 100 {
		return nil, apperr.Validation("template title must be 1 to 100 characters")
	}
	if utf8.RuneCountInString(m.Description) > 5000 {
		return nil, apperr.Validation("template description must be at most 5000 characters")
	}
	privacy := database.Privacy(m.Privacy)
	if privacy == "" {
		privacy = database.PrivacyPublic
	}
	if !privacy.Valid() {
		return nil, apperr.Validation("privacy must be public, unlisted or private")
	}
	texts := append([]string{m.Title, m.Description}, m.Tags...)
	for _, text := range texts {
		for _, p := range template.Placeholders(text) {
			if !slices.Contains(navigator.VariableNames, p) {
				return nil, apperr.Validation("unknown placeholder {{%s}}; available: %s", p, strings.Join(navigator.VariableNames, ", "))
			}
		}
	}

	now := time.Now().UTC()
	t := &database.Template{
		TemplateId:  uuid.New().String(),
		Name:        name,
		Title:       m.Title,
		Description: database.StringPtr(m.Description),
		Tags:        m.Tags,
		Privacy:     privacy,
		CreatedBy:   database.StringPtr(createdBy),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		return tx.InsertAudit(ctx, database.NewAudit(createdBy, database.AuditTemplateCreated, "template", t.TemplateId, map[string]string{"name": name}))
	})
	if err != nil {
		log.Printf("Failed to audit template %s: %v", t.TemplateId, err)
	}
	log.Printf("Created template %s (%s)", t.Name, t.TemplateId)
	return t, nil
}
