package worker

import (
	"context"
	"errors"

	"panel-service/internal/models"
	"panel-service/internal/repositories/postgresrepo"
	"panel-service/internal/services"

	log "github.com/sirupsen/logrus"
)

// EventProcessor applies worker callbacks in arrival order. Duplicate
// and out-of-order deliveries lose the compare-and-swap and are dropped,
// never applied on top of a newer status.
type EventProcessor struct {
	partitionID      int
	operationService *services.OperationService
}

func NewEventProcessor(partitionID int, operationService *services.OperationService) *EventProcessor {
	return &EventProcessor{
		partitionID:      partitionID,
		operationService: operationService,
	}
}

func (p *EventProcessor) Apply(ctx context.Context, event models.OperationEvent) {
	logCtx := log.WithFields(log.Fields{
		"partition":    p.partitionID,
		"operation_id": event.OperationID,
		"from":         event.ExpectedStatus,
		"to":           event.NewStatus,
	})

	err := p.operationService.ApplyEvent(ctx, event)
	if err == nil {
		logCtx.Info("Applied worker callback")
		return
	}

	switch {
	case errors.Is(err, postgresrepo.ErrStaleTransition):
		// A concurrent callback won the race; the losing one is rejected
		logCtx.Info("Dropping stale worker callback")
	case errors.Is(err, services.ErrInvalidTransition):
		logCtx.WithError(err).Warn("Dropping callback with invalid transition")
	case errors.Is(err, postgresrepo.ErrOperationNotFound):
		logCtx.Warn("Dropping callback for unknown operation")
	default:
		logCtx.WithError(err).Error("Failed to apply worker callback")
	}
}
