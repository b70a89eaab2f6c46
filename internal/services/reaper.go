package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"panel-service/internal/models"
	"panel-service/internal/repositories/postgresrepo"

	log "github.com/sirupsen/logrus"
)

// Refunder force-fails one operation and reverses its charge.
// OperationService satisfies it; tests inject fakes.
type Refunder interface {
	FailAndRefund(ctx context.Context, operationID, expectedStatus, message, actor string) error
}

// sweepStatuses lists every status an operation can be stranded in with
// its charge taken: a dispatch whose compensation failed (PENDING), a
// crashed or wedged worker (PROCESSING, COMPLETING), or a user who
// walked away mid-interaction (the AWAITING_* states).
var sweepStatuses = []string{
	models.OperationStatusPending,
	models.OperationStatusProcessing,
	models.OperationStatusAwaitingCaptcha,
	models.OperationStatusAwaitingPackage,
	models.OperationStatusAwaitingFinalConfirm,
	models.OperationStatusCompleting,
}

// ReaperService force-fails operations stuck in a non-terminal status
// past the staleness threshold and reverses their charge. It is a pure
// function over the current time and the operation table; any external
// scheduler may trigger it.
type ReaperService struct {
	operations Refunder
	store      OperationStore
	staleAfter time.Duration
}

func NewReaperService(operations Refunder, store OperationStore, staleAfter time.Duration) *ReaperService {
	return &ReaperService{
		operations: operations,
		store:      store,
		staleAfter: staleAfter,
	}
}

type SweepResult struct {
	Processed int      `json:"processed"`
	Refunded  int      `json:"refunded"`
	Errors    []string `json:"errors"`
}

// Sweep processes each stuck operation in its own transaction. A failed
// reversal leaves the operation in its current status, so it is picked
// up again on the next cycle rather than left debited without its
// compensating credit. One operation's failure never aborts the rest of
// the sweep.
func (s *ReaperService) Sweep(ctx context.Context, now time.Time) SweepResult {
	result := SweepResult{Errors: []string{}}

	cutoff := now.Add(-s.staleAfter)
	stuck, err := s.store.ListStuck(ctx, sweepStatuses, cutoff)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list stuck operations: %v", err))
		return result
	}

	result.Processed = len(stuck)

	for _, op := range stuck {
		// The listed status is the compare-and-swap guard: if a late
		// worker callback advances the operation first, the reversal is
		// a no-op
		err := s.operations.FailAndRefund(ctx, op.ID, op.Status, "Operation timed out", models.ActorReaper)
		if err != nil {
			if errors.Is(err, postgresrepo.ErrStaleTransition) {
				log.WithField("operation_id", op.ID).Info("Operation advanced during sweep, skipping")
				continue
			}
			log.WithError(err).WithField("operation_id", op.ID).Error("Failed to reap operation")
			result.Errors = append(result.Errors, fmt.Sprintf("operation %s: %v", op.ID, err))
			continue
		}
		result.Refunded++
	}

	log.WithFields(log.Fields{
		"processed": result.Processed,
		"refunded":  result.Refunded,
		"errors":    len(result.Errors),
	}).Info("Timeout sweep finished")

	return result
}
