// Package health turns task outcomes and scheduled probes into account
// status changes.
package health

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/platform"
	"github.com/alphauslabs/buckshot/internal/pool"
)

// Decrypter opens stored credential envelopes.
type Decrypter interface {
	Decrypt(envelope string) (string, error)
}

// Prober verifies an account's credential and channel.
type Prober interface {
	Probe(ctx context.Context, creds platform.Credentials) (*platform.ChannelInfo, error)
}

// Outcome is the result of one upload attempt as seen by the monitor.
type Outcome struct {
	Success bool
	// Reason categorises a failure. ReasonNone on success.
	Reason  apperr.Reason
	Message string
}

// Options configures the monitor.
type Options struct {
	// UploadLimitCooldown is how long an account stays in upload_limit
	// before a healthy check may restore it.
	UploadLimitCooldown time.Duration
	// ProjectBanThreshold puts a project in error once this many of its
	// accounts are banned, blocked or revoked. Zero disables it.
	ProjectBanThreshold int
}

// Monitor applies health signals to accounts through the pool registry.
type Monitor struct {
	registry *pool.Registry
	store    database.Store
	prober   Prober
	vault    Decrypter
	ring     *Ring
	opts     Options
	now      func() time.Time
}

func New(registry *pool.Registry, store database.Store, prober Prober, vault Decrypter, ring *Ring, opts Options) *Monitor {
	return &Monitor{
		registry: registry,
		store:    store,
		prober:   prober,
		vault:    vault,
		ring:     ring,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// demotions maps failure categories to the status they put an account in.
var demotions = map[apperr.Reason]database.AccountStatus{
	apperr.ReasonCredentialInvalid: database.AccountStatusTokenRevoked,
	apperr.ReasonBanned:            database.AccountStatusAccountDisabled,
	apperr.ReasonChannelAbsent:     database.AccountStatusChannelDeleted,
	apperr.ReasonChannelSuspended:  database.AccountStatusChannelSuspended,
	apperr.ReasonPlatformBlocked:   database.AccountStatusPlatformBlocked,
	apperr.ReasonRateLimited:       database.AccountStatusUploadLimit,
}

// banStatuses count toward project eviction.
var banStatuses = []database.AccountStatus{
	database.AccountStatusTokenRevoked,
	database.AccountStatusAccountDisabled,
	database.AccountStatusPlatformBlocked,
}

// OnTaskOutcome updates the account after an upload attempt. Success moves
// the account to the back of the selection order; known failure categories
// demote it; anything else is a strike.
func (m *Monitor) OnTaskOutcome(ctx context.Context, accountID string, o Outcome) error {
	if o.Success {
		_, err := m.registry.MarkUploaded(ctx, accountID)
		return err
	}

	status, ok := demotions[o.Reason]
	if !ok {
		_, err := m.registry.RecordStrike(ctx, accountID, strikeReason(o))
		return err
	}

	account, err := m.registry.SetStatus(ctx, accountID, status, o.Message)
	if err != nil {
		if apperr.Is(err, apperr.CodeValidation) {
			// Dead or disabled accounts keep their status.
			return nil
		}
		return err
	}
	log.Printf("Account %s demoted to %s: %s", accountID, status, o.Message)

	if isBanStatus(status) {
		return m.checkProject(ctx, account.ProjectId)
	}
	return nil
}

func strikeReason(o Outcome) string {
	if o.Message != "" {
		return o.Message
	}
	if o.Reason != apperr.ReasonNone {
		return string(o.Reason)
	}
	return "unknown error"
}

func isBanStatus(s database.AccountStatus) bool {
	for _, b := range banStatuses {
		if s == b {
			return true
		}
	}
	return false
}

// checkProject puts the project in error once enough of its accounts are
// banned or revoked.
func (m *Monitor) checkProject(ctx context.Context, projectID string) error {
	if m.opts.ProjectBanThreshold <= 0 {
		return nil
	}

	var banned int64
	err := m.store.RunInTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		counts, err := tx.CountAccountsByStatus(ctx, projectID)
		if err != nil {
			return err
		}
		banned = 0
		for _, s := range banStatuses {
			banned += counts[s]
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to count banned accounts: %w", err)
	}

	if banned < int64(m.opts.ProjectBanThreshold) {
		return nil
	}

	reason := fmt.Sprintf("%d accounts banned or revoked", banned)
	p, err := m.registry.SetProjectStatus(ctx, projectID, database.ProjectStatusError, reason)
	if err != nil {
		return err
	}
	log.Printf("Project %s (%s) moved to error: %s", p.ProjectId, p.Label, reason)
	return nil
}
