package services

import (
	"testing"
	"time"

	"panel-service/internal/models"
)

func timeptr(t time.Time) *time.Time { return &t }

func TestTransitionAllowed(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"pending to processing", models.OperationStatusPending, models.OperationStatusProcessing, true},
		{"processing to captcha wait", models.OperationStatusProcessing, models.OperationStatusAwaitingCaptcha, true},
		{"captcha loops back to processing", models.OperationStatusAwaitingCaptcha, models.OperationStatusProcessing, true},
		{"package wait to final confirm", models.OperationStatusAwaitingPackage, models.OperationStatusAwaitingFinalConfirm, true},
		{"final confirm to completing", models.OperationStatusAwaitingFinalConfirm, models.OperationStatusCompleting, true},
		{"completing to completed", models.OperationStatusCompleting, models.OperationStatusCompleted, true},
		{"failure from pending", models.OperationStatusPending, models.OperationStatusFailed, true},
		{"failure from captcha wait", models.OperationStatusAwaitingCaptcha, models.OperationStatusFailed, true},
		{"failure from completing", models.OperationStatusCompleting, models.OperationStatusFailed, true},
		{"no returning to pending", models.OperationStatusProcessing, models.OperationStatusPending, false},
		{"no skipping to completed from pending", models.OperationStatusPending, models.OperationStatusCompleted, false},
		{"completed is terminal", models.OperationStatusCompleted, models.OperationStatusProcessing, false},
		{"failed is terminal", models.OperationStatusFailed, models.OperationStatusProcessing, false},
		{"failed cannot complete", models.OperationStatusFailed, models.OperationStatusCompleted, false},
		{"captcha wait cannot jump to completed", models.OperationStatusAwaitingCaptcha, models.OperationStatusCompleted, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := TransitionAllowed(tt.from, tt.to); got != tt.want {
				t.Fatalf("TransitionAllowed(%q, %q): got %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCaptchaExpiresIn(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		op   models.Operation
		want int64
	}{
		{
			name: "sixty seconds left",
			op:   models.Operation{CaptchaExpiresAt: timeptr(now.Add(60 * time.Second))},
			want: 60,
		},
		{
			name: "expired image floors at zero",
			op:   models.Operation{CaptchaExpiresAt: timeptr(now.Add(-1 * time.Second))},
			want: 0,
		},
		{
			name: "no expiry recorded",
			op:   models.Operation{},
			want: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := CaptchaExpiresIn(&tt.op, now); got != tt.want {
				t.Fatalf("expiresIn: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConfirmWindowOpen(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		op   models.Operation
		want bool
	}{
		{
			name: "window still open",
			op:   models.Operation{FinalConfirmExpires: timeptr(now.Add(time.Minute))},
			want: true,
		},
		{
			name: "exactly at expiry is still valid",
			op:   models.Operation{FinalConfirmExpires: timeptr(now)},
			want: true,
		},
		{
			name: "past expiry",
			op:   models.Operation{FinalConfirmExpires: timeptr(now.Add(-time.Second))},
			want: false,
		},
		{
			name: "no window recorded",
			op:   models.Operation{},
			want: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := ConfirmWindowOpen(&tt.op, now); got != tt.want {
				t.Fatalf("window open: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperationIsTerminal(t *testing.T) {
	for _, status := range []string{
		models.OperationStatusPending,
		models.OperationStatusProcessing,
		models.OperationStatusAwaitingCaptcha,
		models.OperationStatusAwaitingPackage,
		models.OperationStatusAwaitingFinalConfirm,
		models.OperationStatusCompleting,
	} {
		op := models.Operation{Status: status}
		if op.IsTerminal() {
			t.Fatalf("%s should not be terminal", status)
		}
	}

	for _, status := range []string{models.OperationStatusCompleted, models.OperationStatusFailed} {
		op := models.Operation{Status: status}
		if !op.IsTerminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
}
