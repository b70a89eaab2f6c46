package services

import (
	"time"

	"panel-service/internal/models"
)

// allowedTransitions is the operation state machine. FAILED is reachable
// from every non-terminal state; AWAITING_CAPTCHA loops back to
// PROCESSING once a solution has been consumed by the worker.
var allowedTransitions = map[string]map[string]bool{
	models.OperationStatusPending: {
		models.OperationStatusProcessing: true,
		models.OperationStatusFailed:     true,
	},
	models.OperationStatusProcessing: {
		models.OperationStatusAwaitingCaptcha:      true,
		models.OperationStatusAwaitingPackage:      true,
		models.OperationStatusAwaitingFinalConfirm: true,
		models.OperationStatusCompleting:           true,
		models.OperationStatusCompleted:            true,
		models.OperationStatusFailed:               true,
	},
	models.OperationStatusAwaitingCaptcha: {
		models.OperationStatusProcessing: true,
		models.OperationStatusFailed:     true,
	},
	models.OperationStatusAwaitingPackage: {
		models.OperationStatusProcessing:           true,
		models.OperationStatusAwaitingFinalConfirm: true,
		models.OperationStatusFailed:               true,
	},
	models.OperationStatusAwaitingFinalConfirm: {
		models.OperationStatusProcessing: true,
		models.OperationStatusCompleting: true,
		models.OperationStatusFailed:     true,
	},
	models.OperationStatusCompleting: {
		models.OperationStatusCompleted: true,
		models.OperationStatusFailed:    true,
	},
}

// TransitionAllowed reports whether the state machine permits moving
// from one status to another.
func TransitionAllowed(from, to string) bool {
	return allowedTransitions[from][to]
}

// CaptchaExpiresIn returns the whole seconds left on the challenge
// image, floored at zero. A zero value does not force a transition; the
// image is simply stale.
func CaptchaExpiresIn(op *models.Operation, now time.Time) int64 {
	if op.CaptchaExpiresAt == nil {
		return 0
	}
	remaining := int64(op.CaptchaExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ConfirmWindowOpen reports whether the final purchase confirmation may
// still be triggered.
func ConfirmWindowOpen(op *models.Operation, now time.Time) bool {
	return op.FinalConfirmExpires != nil && !now.After(*op.FinalConfirmExpires)
}
