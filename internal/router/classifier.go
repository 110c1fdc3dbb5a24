// Package router decides where a failed upload attempt goes next.
//
// RouteFailure inspects the error returned by one execution attempt and
// returns the Disposition for the task together with the health signal the
// account should receive:
//
//   - RETRY      → attempts++, requeue with backoff (transient errors)
//   - FAIL       → task failed now (permanent, decryption, validation)
//   - UNAVAILABLE → task failed without consuming attempts (account inactive)
//   - REQUEUE    → attempt abandoned by this worker, requeue without consuming it
package router

import (
	"context"
	"errors"

	"github.com/alphauslabs/buckshot/internal/apperr"
)

// Disposition is what happens to the task after a failed attempt.
type Disposition int

const (
	DispositionUnspecified Disposition = iota
	// DispositionRetry consumes an attempt and requeues the task.
	DispositionRetry
	// DispositionFail marks the task failed immediately.
	DispositionFail
	// DispositionUnavailable marks the task failed without touching attempts.
	DispositionUnavailable
	// DispositionRequeue releases the task for another attempt without
	// counting the interrupted one.
	DispositionRequeue
)

// String returns a human-readable label for the disposition.
func (d Disposition) String() string {
	switch d {
	case DispositionRetry:
		return "RETRY"
	case DispositionFail:
		return "FAIL"
	case DispositionUnavailable:
		return "UNAVAILABLE"
	case DispositionRequeue:
		return "REQUEUE"
	default:
		return "UNSPECIFIED"
	}
}

// RoutingDecision is the output of RouteFailure.
type RoutingDecision struct {
	Disposition Disposition
	// Code is persisted as the task's error code.
	Code apperr.Code
	// Health is the outcome reported to the health monitor. ReasonNone means
	// the account is not to blame.
	Health apperr.Reason
	// Reason is a short human-readable explanation of the decision.
	Reason string
}

// RouteFailure maps err to a routing decision.
//
// Decision logic (first match wins):
//  1. Account no longer active → UNAVAILABLE, no health signal.
//  2. Missing source video → FAIL, no health signal.
//  3. Permanent platform error → FAIL, health gets its category.
//  4. Credential decryption failure → FAIL, health gets a strike.
//  5. Validation or not-found → FAIL, no health signal.
//  6. Cancelled by this worker → REQUEUE, no health signal.
//  7. Transient error or deadline → RETRY; rate limits are reported to health.
//  8. Anything else → RETRY as an unknown transient failure.
func RouteFailure(err error) RoutingDecision {
	code := apperr.CodeOf(err)
	reason := apperr.ReasonOf(err)

	// --- Rule 1: account left the pool ---
	if code == apperr.CodeAccountUnavailable {
		return RoutingDecision{
			Disposition: DispositionUnavailable,
			Code:        code,
			Reason:      "account is not active",
		}
	}

	// --- Rules 2 and 3: permanent failures ---
	if code == apperr.CodePermanentUpload {
		if reason == apperr.ReasonSourceMissing {
			return RoutingDecision{
				Disposition: DispositionFail,
				Code:        code,
				Reason:      "source video is missing",
			}
		}
		health := reason
		if health == apperr.ReasonNone {
			health = apperr.ReasonUnknown
		}
		return RoutingDecision{
			Disposition: DispositionFail,
			Code:        code,
			Health:      health,
			Reason:      "permanent platform error: " + string(health),
		}
	}

	// --- Rule 4: corrupted credential ---
	if code == apperr.CodeDecryption {
		return RoutingDecision{
			Disposition: DispositionFail,
			Code:        code,
			Health:      apperr.ReasonUnknown,
			Reason:      "credential could not be decrypted",
		}
	}

	// --- Rule 5: bad input ---
	if code == apperr.CodeValidation || code == apperr.CodeNotFound {
		return RoutingDecision{
			Disposition: DispositionFail,
			Code:        code,
			Reason:      "request rejected",
		}
	}

	// --- Rule 6: interrupted, the platform never answered ---
	if errors.Is(err, context.Canceled) {
		return RoutingDecision{
			Disposition: DispositionRequeue,
			Code:        apperr.CodeTransientUpload,
			Reason:      "upload interrupted",
		}
	}

	// --- Rule 7: transient failures ---
	if code == apperr.CodeTransientUpload {
		d := RoutingDecision{
			Disposition: DispositionRetry,
			Code:        code,
			Reason:      "transient error",
		}
		if reason == apperr.ReasonRateLimited {
			d.Health = apperr.ReasonRateLimited
			d.Reason = "rate limited by platform"
		}
		return d
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RoutingDecision{
			Disposition: DispositionRetry,
			Code:        apperr.CodeTransientUpload,
			Reason:      "upload timed out",
		}
	}

	// --- Rule 8: everything else ---
	return RoutingDecision{
		Disposition: DispositionRetry,
		Code:        apperr.CodeTransientUpload,
		Reason:      "unclassified error",
	}
}
