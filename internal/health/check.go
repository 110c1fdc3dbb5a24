package health

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alphauslabs/buckshot/internal/apperr"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/platform"
)

const checkConcurrency = 4

// CheckAccount probes the account's credential and channel. A failed probe
// is a strike. A healthy probe clears strikes, records the channel and
// restores error or cooled-down upload_limit accounts to active. Store
// failures and cancellation return an error without a strike.
func (m *Monitor) CheckAccount(ctx context.Context, account *database.Account) (*database.Account, error) {
	project, err := m.store.GetProject(ctx, account.ProjectId)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	start := time.Now()
	entry := database.NewUploadLog(database.LogLevelInfo, database.EventHealthCheck, "health check passed").ForAccount(account)

	info, err := m.probe(ctx, account, project)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		entry.Level = database.LogLevelWarn
		entry.Message = fmt.Sprintf("health check failed: %v", err)
		database.AppendLog(ctx, m.store, entry.WithDuration(start).WithMetadata(map[string]string{"reason": string(apperr.ReasonOf(err))}))

		if _, merr := m.registry.MarkChecked(ctx, account.AccountId, "", ""); merr != nil {
			log.Printf("Failed to record health check for %s: %v", account.AccountId, merr)
		}
		return m.registry.RecordStrike(ctx, account.AccountId, "health check: "+probeReason(err))
	}

	database.AppendLog(ctx, m.store, entry.WithDuration(start).WithMetadata(map[string]string{"channelId": info.ID}))

	if _, err := m.registry.ClearStrikes(ctx, account.AccountId); err != nil {
		return nil, err
	}
	updated, err := m.registry.MarkChecked(ctx, account.AccountId, info.ID, info.Title)
	if err != nil {
		return nil, err
	}

	if m.restorable(updated) {
		updated, err = m.registry.SetStatus(ctx, account.AccountId, database.AccountStatusActive, "health check passed")
		if err != nil {
			return nil, err
		}
		log.Printf("Account %s restored to active", account.AccountId)
	}
	return updated, nil
}

func (m *Monitor) restorable(a *database.Account) bool {
	switch a.Status {
	case database.AccountStatusError:
		return true
	case database.AccountStatusUploadLimit:
		if a.StatusChangedAt == nil {
			return true
		}
		return m.now().Sub(*a.StatusChangedAt) >= m.opts.UploadLimitCooldown
	}
	return false
}

func (m *Monitor) probe(ctx context.Context, account *database.Account, project *database.Project) (*platform.ChannelInfo, error) {
	secret, err := m.vault.Decrypt(project.ClientSecret)
	if err != nil {
		return nil, err
	}
	token, err := m.vault.Decrypt(account.RefreshToken)
	if err != nil {
		return nil, err
	}
	return m.prober.Probe(ctx, platform.Credentials{
		ClientID:     project.ClientId,
		ClientSecret: secret,
		RefreshToken: token,
	})
}

func probeReason(err error) string {
	if r := apperr.ReasonOf(err); r != apperr.ReasonNone {
		return string(r)
	}
	return string(apperr.CodeOf(err))
}

// RunChecks probes every checkable account owned by this worker and returns
// how many were checked.
func (m *Monitor) RunChecks(ctx context.Context) (int, error) {
	accounts, err := m.store.ListAccountsByStatus(ctx,
		database.AccountStatusActive,
		database.AccountStatusUploadLimit,
		database.AccountStatusError,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts for health check: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkConcurrency)

	checked := 0
	for _, a := range accounts {
		if m.ring != nil && !m.ring.Owns(a.AccountId) {
			continue
		}
		checked++
		g.Go(func() error {
			if _, err := m.CheckAccount(gctx, a); err != nil {
				log.Printf("Health check for account %s failed: %v", a.AccountId, err)
			}
			return nil
		})
	}
	g.Wait()
	return checked, nil
}

// Start runs RunChecks every interval until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("Health monitor stopped")
				return
			case <-ticker.C:
				n, err := m.RunChecks(ctx)
				if err != nil {
					log.Printf("Health check tick failed: %v", err)
					continue
				}
				log.Printf("Health check complete: %d account(s) probed", n)
			}
		}
	}()
}
