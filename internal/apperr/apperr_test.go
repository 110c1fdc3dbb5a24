package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfWrapped(t *testing.T) {
	base := Permanent(ReasonCredentialInvalid, errors.New("invalid_grant"), "token revoked")
	wrapped := fmt.Errorf("failed to upload: %w", base)

	if got := CodeOf(wrapped); got != CodePermanentUpload {
		t.Errorf("CodeOf = %s, want %s", got, CodePermanentUpload)
	}
	if got := ReasonOf(wrapped); got != ReasonCredentialInvalid {
		t.Errorf("ReasonOf = %s, want %s", got, ReasonCredentialInvalid)
	}
	if IsTransient(wrapped) {
		t.Error("permanent error reported as transient")
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != CodeInternal {
		t.Errorf("CodeOf = %s, want %s", got, CodeInternal)
	}
	if Is(nil, CodeInternal) {
		t.Error("nil error matched a code")
	}
}

func TestErrorString(t *testing.T) {
	err := Validation("title is required")
	if got, want := err.Error(), "validation: title is required"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
