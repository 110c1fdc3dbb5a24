package pool

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/google/uuid"
)

// AddProjectRequest registers an OAuth client.
type AddProjectRequest struct {
	Label        string
	GcpProjectId string
	ClientId     string
	ClientSecret string
	MaxAccounts  *int64
	AddedBy      string
}

// UpdateProjectRequest changes operator-managed project fields. Nil fields
// are left untouched.
type UpdateProjectRequest struct {
	Label       *string
	Status      *database.ProjectStatus
	MaxAccounts *int64
	UpdatedBy   string
}

func validateLabel(label string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(label))
	if n < 1 || n > 100 {
		return apperr.Validation("label must be 1 to 100 characters")
	}
	return nil
}

func validateMaxAccounts(max *int64) error {
	if max != nil && *max <= 0 {
		return apperr.Validation("maxAccounts must be positive")
	}
	return nil
}

// AddProject validates req and stores the project with its client secret
// encrypted.
func (r *Registry) AddProject(ctx context.Context, req AddProjectRequest) (*database.Project, error) {
	if err := validateLabel(req.Label); err != nil {
		return nil, err
	}
	if req.ClientId == "" {
		return nil, apperr.Validation("clientId is required")
	}
	if req.ClientSecret == "" {
		return nil, apperr.Validation("clientSecret is required")
	}
	if err := validateMaxAccounts(req.MaxAccounts); err != nil {
		return nil, err
	}

	secret, err := r.cipher.Encrypt(req.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt client secret: %w", err)
	}

	now := r.now()
	p := &database.Project{
		ProjectId:    uuid.New().String(),
		Label:        strings.TrimSpace(req.Label),
		GcpProjectId: database.StringPtr(req.GcpProjectId),
		ClientId:     req.ClientId,
		ClientSecret: secret,
		Status:       database.ProjectStatusActive,
		MaxAccounts:  req.MaxAccounts,
		AddedBy:      database.StringPtr(req.AddedBy),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = r.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		if err := tx.InsertProject(ctx, p); err != nil {
			return err
		}
		details := map[string]any{"label": p.Label, "clientId": p.ClientId}
		return tx.InsertAudit(ctx, database.NewAudit(req.AddedBy, database.AuditProjectAdded, "project", p.ProjectId, details))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add project: %w", err)
	}

	log.Printf("Added project %s (%s)", p.ProjectId, p.Label)
	return p, nil
}

// UpdateProject applies req to the project. Operators may only set active
// or disabled; error is reserved for automatic eviction.
func (r *Registry) UpdateProject(ctx context.Context, projectID string, req UpdateProjectRequest) (*database.Project, error) {
	if req.Label != nil {
		if err := validateLabel(*req.Label); err != nil {
			return nil, err
		}
	}
	if req.Status != nil && *req.Status != database.ProjectStatusActive && *req.Status != database.ProjectStatusDisabled {
		return nil, apperr.Validation("status must be active or disabled")
	}
	if err := validateMaxAccounts(req.MaxAccounts); err != nil {
		return nil, err
	}

	var out *database.Project
	err := r.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		p, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		changes := map[string]any{}
		if req.Label != nil {
			p.Label = strings.TrimSpace(*req.Label)
			changes["label"] = p.Label
		}
		if req.Status != nil {
			p.Status = *req.Status
			changes["status"] = p.Status
		}
		if req.MaxAccounts != nil {
			if *req.MaxAccounts < p.AccountCount {
				return apperr.Validation("maxAccounts %d is below the current account count %d", *req.MaxAccounts, p.AccountCount)
			}
			p.MaxAccounts = req.MaxAccounts
			changes["maxAccounts"] = *req.MaxAccounts
		}
		p.UpdatedAt = r.now()
		if err := tx.UpdateProject(ctx, p); err != nil {
			return err
		}
		out = p
		return tx.InsertAudit(ctx, database.NewAudit(req.UpdatedBy, database.AuditProjectUpdated, "project", p.ProjectId, changes))
	})
	if err != nil {
		return nil, wrapNotFound(err, "project %s", projectID)
	}
	return out, nil
}

// SetProjectStatus moves a project to status without operator checks. The
// health monitor uses it to put a project in error.
func (r *Registry) SetProjectStatus(ctx context.Context, projectID string, status database.ProjectStatus, reason string) (*database.Project, error) {
	var out *database.Project
	err := r.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		p, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		out = p
		if p.Status == status {
			return nil
		}
		p.Status = status
		p.UpdatedAt = r.now()
		if err := tx.UpdateProject(ctx, p); err != nil {
			return err
		}
		details := map[string]any{"status": status, "reason": reason}
		return tx.InsertAudit(ctx, database.NewAudit("system", database.AuditProjectUpdated, "project", p.ProjectId, details))
	})
	if err != nil {
		return nil, wrapNotFound(err, "project %s", projectID)
	}
	return out, nil
}

// ListProjects returns a page of projects.
func (r *Registry) ListProjects(ctx context.Context, f database.ProjectFilter) ([]*database.Project, int64, error) {
	projects, total, err := r.store.ListProjects(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, total, nil
}

// pickProject returns the active project with the most free capacity.
// Projects without a cap count as unlimited.
func (r *Registry) pickProject(ctx context.Context) (string, error) {
	projects, _, err := r.store.ListProjects(ctx, database.ProjectFilter{Status: database.ProjectStatusActive})
	if err != nil {
		return "", fmt.Errorf("failed to list projects: %w", err)
	}

	var (
		best     string
		bestFree int64 = -1
	)
	for _, p := range projects {
		free := int64(1<<62) - p.AccountCount
		if p.MaxAccounts != nil {
			free = *p.MaxAccounts - p.AccountCount
		}
		if free > bestFree {
			best, bestFree = p.ProjectId, free
		}
	}
	if best == "" || bestFree <= 0 {
		return "", apperr.New(apperr.CodeProjectCapacityExceeded, "no active project has free capacity")
	}
	return best, nil
}
