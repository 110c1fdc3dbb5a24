// Package pool owns project and account records and exposes health-aware
// account selection.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
)

// Encrypter seals secrets before they are stored.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Options holds the eviction policy.
type Options struct {
	// StrikeThreshold is the count an account's strikes must exceed to die.
	StrikeThreshold int
	// AutoDeleteAfter schedules soft-deletion of dead accounts.
	AutoDeleteAfter time.Duration
}

// Registry is the single writer of project and account state.
type Registry struct {
	store  database.Store
	cipher Encrypter
	opts   Options
	now    func() time.Time
}

// NewRegistry returns a Registry over store.
func NewRegistry(store database.Store, cipher Encrypter, opts Options) *Registry {
	return &Registry{
		store:  store,
		cipher: cipher,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Criteria narrows account selection.
type Criteria struct {
	// AccountIDs restricts selection to these accounts when non-empty.
	AccountIDs []string
}

// SelectEligibleAccounts returns active accounts under active projects,
// least recently used for upload first. Accounts never used come first.
func (r *Registry) SelectEligibleAccounts(ctx context.Context, c Criteria) ([]*database.Account, error) {
	accounts, err := r.store.ListEligibleAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible accounts: %w", err)
	}

	if len(c.AccountIDs) > 0 {
		wanted := make(map[string]bool, len(c.AccountIDs))
		for _, id := range c.AccountIDs {
			wanted[id] = true
		}
		filtered := accounts[:0]
		for _, a := range accounts {
			if wanted[a.AccountId] {
				filtered = append(filtered, a)
			}
		}
		accounts = filtered
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		return lessRecentlyUsed(accounts[i], accounts[j])
	})
	return accounts, nil
}

func lessRecentlyUsed(a, b *database.Account) bool {
	switch {
	case a.LastUploadAt == nil && b.LastUploadAt != nil:
		return true
	case a.LastUploadAt != nil && b.LastUploadAt == nil:
		return false
	case a.LastUploadAt != nil && !a.LastUploadAt.Equal(*b.LastUploadAt):
		return a.LastUploadAt.Before(*b.LastUploadAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.AccountId < b.AccountId
}

// RecordStrike adds a health strike. Once strikes exceed the threshold the
// account becomes dead and is scheduled for auto-deletion.
func (r *Registry) RecordStrike(ctx context.Context, accountID, reason string) (*database.Account, error) {
	var died bool
	account, err := r.mutate(ctx, accountID, func(ctx context.Context, tx database.Tx, a *database.Account) error {
		died = false
		if a.Status == database.AccountStatusDead || a.Status == database.AccountStatusDisabled {
			return errUnchanged
		}

		now := r.now()
		a.HealthStrikes++
		a.StatusReason = database.StringPtr(reason)
		if int(a.HealthStrikes) > r.opts.StrikeThreshold {
			a.Status = database.AccountStatusDead
			a.StatusChangedAt = &now
			a.AutoDeleteAt = database.TimePtr(now.Add(r.opts.AutoDeleteAfter))
			died = true
			details := map[string]any{"strikes": a.HealthStrikes, "reason": reason}
			if err := tx.InsertAudit(ctx, database.NewAudit("system", database.AuditAccountFlagged, "account", a.AccountId, details)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if died {
		log.Printf("Account %s marked dead after %d strikes: %s", accountID, account.HealthStrikes, reason)
		database.AppendLog(ctx, r.store, database.NewUploadLog(database.LogLevelWarn, database.EventAccountFlagged,
			fmt.Sprintf("account marked dead after %d strikes: %s", account.HealthStrikes, reason)).ForAccount(account))
	}
	return account, nil
}

// ClearStrikes resets the strike counter after a verified healthy check.
func (r *Registry) ClearStrikes(ctx context.Context, accountID string) (*database.Account, error) {
	return r.mutate(ctx, accountID, func(ctx context.Context, tx database.Tx, a *database.Account) error {
		if a.HealthStrikes == 0 {
			return errUnchanged
		}
		a.HealthStrikes = 0
		return nil
	})
}

// SetStatus moves an account to status, honoring the automatic transition
// rules. A dead account is never revived.
func (r *Registry) SetStatus(ctx context.Context, accountID string, status database.AccountStatus, reason string) (*database.Account, error) {
	return r.mutate(ctx, accountID, func(ctx context.Context, tx database.Tx, a *database.Account) error {
		if a.Status == status {
			return errUnchanged
		}
		if !a.Status.CanTransition(status) {
			return apperr.Validation("account %s cannot move from %s to %s", a.AccountId, a.Status, status)
		}
		now := r.now()
		a.Status = status
		a.StatusReason = database.StringPtr(reason)
		a.StatusChangedAt = &now
		return nil
	})
}

// MarkUploaded stamps lastUploadAt so the account moves to the back of the
// selection order.
func (r *Registry) MarkUploaded(ctx context.Context, accountID string) (*database.Account, error) {
	return r.mutate(ctx, accountID, func(ctx context.Context, tx database.Tx, a *database.Account) error {
		a.LastUploadAt = database.TimePtr(r.now())
		return nil
	})
}

// MarkChecked records a health check and the channel identity it found.
func (r *Registry) MarkChecked(ctx context.Context, accountID, channelID, channelTitle string) (*database.Account, error) {
	return r.mutate(ctx, accountID, func(ctx context.Context, tx database.Tx, a *database.Account) error {
		a.LastHealthCheck = database.TimePtr(r.now())
		if channelID != "" {
			a.ChannelId = database.StringPtr(channelID)
			a.ChannelTitle = database.StringPtr(channelTitle)
		}
		return nil
	})
}

// errUnchanged skips the write in mutate.
var errUnchanged = errors.New("unchanged")

func (r *Registry) mutate(ctx context.Context, accountID string, fn func(ctx context.Context, tx database.Tx, a *database.Account) error) (*database.Account, error) {
	var out *database.Account
	err := r.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		a, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, a); err != nil {
			if errors.Is(err, errUnchanged) {
				out = a
				return nil
			}
			return err
		}
		a.UpdatedAt = r.now()
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, wrapNotFound(err, "account %s", accountID)
	}
	return out, nil
}

func wrapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, database.ErrNotFound) {
		return apperr.Wrap(apperr.CodeNotFound, err, format+" not found", args...)
	}
	return err
}
