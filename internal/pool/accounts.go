package pool

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"time"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/google/uuid"
)

// AddAccountRequest connects an account whose refresh token was obtained
// by the OAuth exchange.
type AddAccountRequest struct {
	ProjectId    string // optional; the least loaded active project is used when empty
	Email        string
	ChannelId    string
	ChannelTitle string
	RefreshToken string
	Tags         []string
	AddedBy      string
}

// UpdateAccountRequest holds operator changes. Nil fields are left untouched.
type UpdateAccountRequest struct {
	Tags      *[]string
	Status    *database.AccountStatus
	UpdatedBy string
}

// AddAccount stores the account with its refresh token encrypted and bumps
// the project's account count in the same transaction.
func (r *Registry) AddAccount(ctx context.Context, req AddAccountRequest) (*database.Account, error) {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, apperr.Validation("invalid email %q", req.Email)
	}
	if req.RefreshToken == "" {
		return nil, apperr.Validation("refreshToken is required")
	}

	projectID := req.ProjectId
	if projectID == "" {
		id, err := r.pickProject(ctx)
		if err != nil {
			return nil, err
		}
		projectID = id
	}

	token, err := r.cipher.Encrypt(req.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	now := r.now()
	a := &database.Account{
		AccountId:    uuid.New().String(),
		ProjectId:    projectID,
		Email:        req.Email,
		ChannelId:    database.StringPtr(req.ChannelId),
		ChannelTitle: database.StringPtr(req.ChannelTitle),
		RefreshToken: token,
		Status:       database.AccountStatusActive,
		Tags:         req.Tags,
		AddedBy:      database.StringPtr(req.AddedBy),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = r.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		if err := r.adjustAccountCount(ctx, tx, projectID, 1); err != nil {
			return err
		}
		if err := tx.InsertAccount(ctx, a); err != nil {
			return err
		}
		details := map[string]any{"email": a.Email, "projectId": projectID}
		return tx.InsertAudit(ctx, database.NewAudit(req.AddedBy, database.AuditAccountConnected, "account", a.AccountId, details))
	})
	if err != nil {
		return nil, wrapNotFound(err, "project %s", projectID)
	}

	log.Printf("Connected account %s (%s) to project %s", a.AccountId, a.Email, projectID)
	return a, nil
}

// UpdateAccount applies operator changes. Disabling is allowed from any
// status and frees a project slot. Reactivation is refused for dead
// accounts and clears the strike history.
func (r *Registry) UpdateAccount(ctx context.Context, accountID string, req UpdateAccountRequest) (*database.Account, error) {
	if req.Status != nil && *req.Status != database.AccountStatusActive && *req.Status != database.AccountStatusDisabled {
		return nil, apperr.Validation("status must be active or disabled")
	}

	return r.mutate(ctx, accountID, func(ctx context.Context, tx database.Tx, a *database.Account) error {
		changes := map[string]any{}
		if req.Tags != nil {
			a.Tags = *req.Tags
			changes["tags"] = a.Tags
		}

		if req.Status != nil && *req.Status != a.Status {
			switch *req.Status {
			case database.AccountStatusDisabled:
				if err := r.adjustAccountCount(ctx, tx, a.ProjectId, -1); err != nil {
					return err
				}
			case database.AccountStatusActive:
				if a.Status == database.AccountStatusDead {
					return apperr.Validation("account %s is dead and cannot be reactivated", a.AccountId)
				}
				if a.Status == database.AccountStatusDisabled {
					if err := r.adjustAccountCount(ctx, tx, a.ProjectId, 1); err != nil {
						return err
					}
				}
				a.HealthStrikes = 0
				a.AutoDeleteAt = nil
			}
			now := r.now()
			changes["status"] = *req.Status
			changes["previousStatus"] = a.Status
			a.Status = *req.Status
			a.StatusReason = database.StringPtr("operator")
			a.StatusChangedAt = &now
		}

		if len(changes) == 0 {
			return errUnchanged
		}
		return tx.InsertAudit(ctx, database.NewAudit(req.UpdatedBy, database.AuditAccountUpdated, "account", a.AccountId, changes))
	})
}

// ListAccounts returns a page of accounts.
func (r *Registry) ListAccounts(ctx context.Context, f database.AccountFilter) ([]*database.Account, int64, error) {
	accounts, total, err := r.store.ListAccounts(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, total, nil
}

// SweepAutoDeletes soft-deletes dead accounts whose auto-delete time has
// passed and returns how many were removed.
func (r *Registry) SweepAutoDeletes(ctx context.Context, now time.Time) (int, error) {
	due, err := r.store.ListAccountsDueForDeletion(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts due for deletion: %w", err)
	}

	removed := 0
	for _, d := range due {
		var swept bool
		account, err := r.mutate(ctx, d.AccountId, func(ctx context.Context, tx database.Tx, a *database.Account) error {
			swept = false
			if a.Status != database.AccountStatusDead || a.AutoDeleteAt == nil || a.AutoDeleteAt.After(now) {
				return errUnchanged
			}
			if err := r.adjustAccountCount(ctx, tx, a.ProjectId, -1); err != nil {
				return err
			}
			a.Status = database.AccountStatusDisabled
			a.StatusReason = database.StringPtr("auto-deleted")
			a.StatusChangedAt = &now
			a.AutoDeleteAt = nil
			swept = true
			details := map[string]any{"strikes": a.HealthStrikes}
			return tx.InsertAudit(ctx, database.NewAudit("system", database.AuditAccountAutoRemoved, "account", a.AccountId, details))
		})
		if err != nil {
			log.Printf("Failed to auto-delete account %s: %v", d.AccountId, err)
			continue
		}
		if swept {
			removed++
			database.AppendLog(ctx, r.store, database.NewUploadLog(database.LogLevelInfo, database.EventAccountAutoDeleted,
				"dead account soft-deleted").ForAccount(account))
		}
	}

	if removed > 0 {
		log.Printf("Auto-deleted %d dead accounts", removed)
	}
	return removed, nil
}

// adjustAccountCount changes a project's account count by delta, refusing
// growth past MaxAccounts.
func (r *Registry) adjustAccountCount(ctx context.Context, tx database.Tx, projectID string, delta int64) error {
	p, err := tx.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	next := p.AccountCount + delta
	if delta > 0 && p.MaxAccounts != nil && next > *p.MaxAccounts {
		return apperr.New(apperr.CodeProjectCapacityExceeded, "project %s is at capacity (%d accounts)", projectID, *p.MaxAccounts)
	}
	if next < 0 {
		next = 0
	}
	p.AccountCount = next
	p.UpdatedAt = r.now()
	return tx.UpdateProject(ctx, p)
}
