package database

import "testing"

func TestTaskTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskStatusPending, TaskStatusQueued, true},
		{TaskStatusQueued, TaskStatusUploading, true},
		{TaskStatusUploading, TaskStatusCompleted, true},
		{TaskStatusUploading, TaskStatusRetrying, true},
		{TaskStatusRetrying, TaskStatusQueued, true},
		{TaskStatusCompleted, TaskStatusUploading, false},
		{TaskStatusFailed, TaskStatusQueued, false},
		{TaskStatusQueued, TaskStatusCompleted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestDeadAccountIsNotRevived(t *testing.T) {
	if AccountStatusDead.CanTransition(AccountStatusActive) {
		t.Error("dead account must not return to active")
	}
	if !AccountStatusDead.CanTransition(AccountStatusDisabled) {
		t.Error("dead account must be soft-deletable")
	}
	if !AccountStatusUploadLimit.CanTransition(AccountStatusActive) {
		t.Error("upload_limit account must be restorable")
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusPartial, JobStatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if JobStatusProcessing.Terminal() {
		t.Error("processing should not be terminal")
	}
	if TaskStatusRetrying.Terminal() {
		t.Error("retrying should not be terminal")
	}
}

func TestPageOffset(t *testing.T) {
	if got := (Page{Page: 3, Limit: 50}).Offset(); got != 100 {
		t.Errorf("Offset = %d, want 100", got)
	}
}
