package router

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alphauslabs/buckshot/internal/apperr"
)

// ---------------------------------------------------------------------------
// RETRY
// ---------------------------------------------------------------------------

func TestRetry_Transient(t *testing.T) {
	err := apperr.Transient(apperr.ReasonUnknown, errors.New("reset"), "upload failed")
	got := RouteFailure(err)
	assertDecision(t, "transient", got, DispositionRetry, apperr.CodeTransientUpload, apperr.ReasonNone)
}

func TestRetry_RateLimitedReportsHealth(t *testing.T) {
	err := apperr.Transient(apperr.ReasonRateLimited, nil, "quota")
	got := RouteFailure(err)
	assertDecision(t, "rate limited", got, DispositionRetry, apperr.CodeTransientUpload, apperr.ReasonRateLimited)
}

func TestRetry_Deadline(t *testing.T) {
	err := fmt.Errorf("upload: %w", context.DeadlineExceeded)
	got := RouteFailure(err)
	assertDecision(t, "deadline", got, DispositionRetry, apperr.CodeTransientUpload, apperr.ReasonNone)
}

func TestRetry_Unclassified(t *testing.T) {
	got := RouteFailure(errors.New("boom"))
	assertDecision(t, "plain error", got, DispositionRetry, apperr.CodeTransientUpload, apperr.ReasonNone)
}

// ---------------------------------------------------------------------------
// FAIL
// ---------------------------------------------------------------------------

func TestFail_PermanentCarriesCategory(t *testing.T) {
	reasons := []apperr.Reason{
		apperr.ReasonCredentialInvalid,
		apperr.ReasonBanned,
		apperr.ReasonChannelAbsent,
		apperr.ReasonChannelSuspended,
		apperr.ReasonPlatformBlocked,
	}
	for _, r := range reasons {
		got := RouteFailure(apperr.Permanent(r, nil, "rejected"))
		assertDecision(t, string(r), got, DispositionFail, apperr.CodePermanentUpload, r)
	}
}

func TestFail_PermanentWithoutReasonStrikes(t *testing.T) {
	got := RouteFailure(apperr.Permanent(apperr.ReasonNone, nil, "rejected"))
	assertDecision(t, "no reason", got, DispositionFail, apperr.CodePermanentUpload, apperr.ReasonUnknown)
}

func TestFail_SourceMissingSparesAccount(t *testing.T) {
	got := RouteFailure(apperr.Permanent(apperr.ReasonSourceMissing, nil, "gone"))
	assertDecision(t, "source missing", got, DispositionFail, apperr.CodePermanentUpload, apperr.ReasonNone)
}

func TestFail_Decryption(t *testing.T) {
	got := RouteFailure(apperr.New(apperr.CodeDecryption, "bad envelope"))
	assertDecision(t, "decryption", got, DispositionFail, apperr.CodeDecryption, apperr.ReasonUnknown)
}

func TestFail_Validation(t *testing.T) {
	got := RouteFailure(apperr.Validation("title too long"))
	assertDecision(t, "validation", got, DispositionFail, apperr.CodeValidation, apperr.ReasonNone)
}

// ---------------------------------------------------------------------------
// UNAVAILABLE
// ---------------------------------------------------------------------------

func TestUnavailable_AccountInactive(t *testing.T) {
	got := RouteFailure(apperr.New(apperr.CodeAccountUnavailable, "account is expired"))
	assertDecision(t, "inactive", got, DispositionUnavailable, apperr.CodeAccountUnavailable, apperr.ReasonNone)
}

// ---------------------------------------------------------------------------
// REQUEUE
// ---------------------------------------------------------------------------

func TestRequeue_Cancelled(t *testing.T) {
	// The platform adapter wraps cancellation as a transient error.
	err := apperr.Transient(apperr.ReasonUnknown, context.Canceled, "upload timed out")
	got := RouteFailure(err)
	assertDecision(t, "cancelled", got, DispositionRequeue, apperr.CodeTransientUpload, apperr.ReasonNone)
}

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

func TestDispositionString(t *testing.T) {
	cases := map[Disposition]string{
		DispositionRetry:       "RETRY",
		DispositionFail:        "FAIL",
		DispositionUnavailable: "UNAVAILABLE",
		DispositionRequeue:     "REQUEUE",
		DispositionUnspecified: "UNSPECIFIED",
	}
	for d, want := range cases {
		if got := d.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", d, got, want)
		}
	}
}

func assertDecision(t *testing.T, label string, got RoutingDecision, disp Disposition, code apperr.Code, health apperr.Reason) {
	t.Helper()
	if got.Disposition != disp {
		t.Errorf("[%s] disposition: got %s, want %s", label, got.Disposition, disp)
	}
	if got.Code != code {
		t.Errorf("[%s] code: got %s, want %s", label, got.Code, code)
	}
	if got.Health != health {
		t.Errorf("[%s] health: got %q, want %q", label, got.Health, health)
	}
	if got.Reason == "" {
		t.Errorf("[%s] reason must not be empty", label)
	}
}
