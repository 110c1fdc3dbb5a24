package youtube

import (
	"context"
	"errors"
	"net"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/alphauslabs/buckshot/internal/apperr"
)

// Error reasons reported by the YouTube Data API in googleapi.ErrorItem.
var (
	rateLimitReasons = map[string]bool{
		"quotaExceeded":         true,
		"rateLimitExceeded":     true,
		"userRateLimitExceeded": true,
		"uploadLimitExceeded":   true,
		"dailyLimitExceeded":    true,
	}
	channelAbsentReasons = map[string]bool{
		"youtubeSignupRequired": true,
		"channelNotFound":       true,
		"channelClosed":         true,
	}
	channelSuspendedReasons = map[string]bool{
		"channelSuspended": true,
	}
	bannedReasons = map[string]bool{
		"accountClosed":    true,
		"accountSuspended": true,
		"accountDisabled":  true,
		"suspended":        true,
	}
	credentialReasons = map[string]bool{
		"authError":               true,
		"insufficientPermissions": true,
		"invalidCredentials":      true,
	}
)

// classify maps a client error to an *apperr.Error.
//
//   - OAuth invalid_grant or 401 → permanent / credential_invalid
//   - 403 with a quota reason or 429 → transient / rate_limited
//   - 403 channel or account reasons → permanent with that category
//   - other 403 → permanent / platform_blocked
//   - 400 → validation (the metadata, not the account, is at fault)
//   - deadlines, network errors and 5xx → transient / unknown
func classify(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Transient(apperr.ReasonUnknown, err, "%s timed out", op)
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		switch rerr.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return apperr.Permanent(apperr.ReasonCredentialInvalid, err, "token refresh rejected: %s", rerr.ErrorCode)
		}
		if rerr.Response != nil && rerr.Response.StatusCode >= 500 {
			return apperr.Transient(apperr.ReasonUnknown, err, "token refresh failed")
		}
		return apperr.Permanent(apperr.ReasonCredentialInvalid, err, "token refresh failed")
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyAPIError(gerr, op)
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return apperr.Transient(apperr.ReasonUnknown, err, "%s network error", op)
	}

	return apperr.Transient(apperr.ReasonUnknown, err, "%s failed", op)
}

func classifyAPIError(gerr *googleapi.Error, op string) error {
	reason := firstReason(gerr)

	switch {
	case gerr.Code == http.StatusUnauthorized || credentialReasons[reason]:
		return apperr.Permanent(apperr.ReasonCredentialInvalid, gerr, "%s unauthorized", op)
	case gerr.Code == http.StatusTooManyRequests || rateLimitReasons[reason]:
		return apperr.Transient(apperr.ReasonRateLimited, gerr, "%s rate limited (%s)", op, reason)
	case channelAbsentReasons[reason]:
		return apperr.Permanent(apperr.ReasonChannelAbsent, gerr, "%s: channel unavailable (%s)", op, reason)
	case channelSuspendedReasons[reason]:
		return apperr.Permanent(apperr.ReasonChannelSuspended, gerr, "%s: channel suspended", op)
	case bannedReasons[reason]:
		return apperr.Permanent(apperr.ReasonBanned, gerr, "%s: account banned (%s)", op, reason)
	case gerr.Code == http.StatusForbidden:
		return apperr.Permanent(apperr.ReasonPlatformBlocked, gerr, "%s forbidden (%s)", op, reason)
	case gerr.Code == http.StatusBadRequest:
		return apperr.Wrap(apperr.CodeValidation, gerr, "%s rejected the request (%s)", op, reason)
	}
	return apperr.Transient(apperr.ReasonUnknown, gerr, "%s failed with status %d", op, gerr.Code)
}

func firstReason(gerr *googleapi.Error) string {
	for _, item := range gerr.Errors {
		if item.Reason != "" {
			return item.Reason
		}
	}
	return ""
}
