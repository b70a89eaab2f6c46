package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"panel-service/internal/models"
	"panel-service/internal/ratelimit"
	"panel-service/internal/repositories/postgresrepo"
	"panel-service/internal/repositories/redisrepo"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// OperationStore is the persistence surface the lifecycle needs. The
// postgres repository satisfies it; tests inject fakes.
type OperationStore interface {
	BeginTx(ctx context.Context) (postgresrepo.Tx, error)
	GetOperation(ctx context.Context, operationID string) (*models.Operation, error)
	ListStuck(ctx context.Context, statuses []string, cutoff time.Time) ([]models.Operation, error)
	TransitionStatus(ctx context.Context, operationID, expectedStatus string, upd models.OperationUpdate) error
	SubmitCaptchaSolution(ctx context.Context, operationID, solution string) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// JobDispatcher hands jobs to the automation worker pool.
type JobDispatcher interface {
	SendJob(ctx context.Context, msg models.JobMessage) error
}

// BalanceCache is the read-side cache of an owner's spendable pools.
type BalanceCache interface {
	GetBalance(ctx context.Context, ownerID string) (models.BalanceSnapshot, error)
	SetBalance(ctx context.Context, ownerID string, snap models.BalanceSnapshot) error
	DeleteBalance(ctx context.Context, ownerID string) error
}

type OperationService struct {
	operationRepo OperationStore
	jobRepo       JobDispatcher
	balanceCache  BalanceCache
	limiter       ratelimit.Limiter
}

func NewOperationService(
	operationRepo OperationStore,
	jobRepo JobDispatcher,
	balanceCache BalanceCache,
	limiter ratelimit.Limiter,
) *OperationService {
	return &OperationService{
		operationRepo: operationRepo,
		jobRepo:       jobRepo,
		balanceCache:  balanceCache,
		limiter:       limiter,
	}
}

// Create admits the request, reserves funds and inserts the operation in
// one database transaction, then dispatches the job. If dispatch fails
// the already-committed charge is reversed in the same request so the
// client never observes "charged but queued nowhere".
func (s *OperationService) Create(ctx context.Context, principal models.Principal, req models.OperationCreateRequest) (string, error) {
	allowed, err := s.limiter.Allow(ctx, principal.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check rate limit: %w", err)
	}
	if !allowed {
		return "", ErrRateLimited
	}

	amount, err := PriceFor(req.OperationType, req.Duration)
	if err != nil {
		return "", err
	}

	op := &models.Operation{
		ID:            uuid.New().String(),
		OwnerID:       principal.ID,
		OperationType: req.OperationType,
		CardNumber:    req.CardNumber,
		Duration:      req.Duration,
		Amount:        amount,
		Status:        models.OperationStatusPending,
	}

	if err := s.reserveAndInsert(ctx, op); err != nil {
		return "", err
	}

	s.invalidateBalance(op.OwnerID)

	job, err := models.NewJobMessage(op, op.OperationType)
	if err != nil {
		// Should not happen for a validated type; reverse the charge anyway
		s.failAndRefundLogged(ctx, op.ID, models.OperationStatusPending,
			"job encoding failed", models.ActorSystem)
		return "", fmt.Errorf("%w: %v", ErrDispatchFailure, err)
	}

	if err := s.jobRepo.SendJob(ctx, job); err != nil {
		log.WithError(err).WithField("operation_id", op.ID).Error("Job dispatch failed, reversing charge")
		s.failAndRefundLogged(ctx, op.ID, models.OperationStatusPending,
			"job dispatch failed", models.ActorSystem)
		return "", fmt.Errorf("%w: %v", ErrDispatchFailure, err)
	}

	return op.ID, nil
}

// reserveAndInsert runs the atomic unit: owner row lock, duplicate-card
// guard, mixed-source deduction, operation insert, ledger entry and
// audit entry. Any failure rolls the whole unit back.
func (s *OperationService) reserveAndInsert(ctx context.Context, op *models.Operation) error {
	txRepo, err := s.operationRepo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txRepo.Rollback()

	user, err := txRepo.LockUserForUpdate(ctx, op.OwnerID)
	if err != nil {
		return err
	}

	// Evaluated under the owner row lock so two submissions for the same
	// card cannot both see "no live operation"
	live, err := txRepo.LiveOperationExistsForCard(ctx, op.CardNumber)
	if err != nil {
		return err
	}
	if live {
		return ErrDuplicateOperation
	}

	newBalance, newCredit, walletPortion, ok := SplitDeduction(user.Balance, user.StoreCredit, op.Amount)
	if !ok {
		return ErrInsufficientFunds
	}

	if err := txRepo.InsertOperation(ctx, op); err != nil {
		if errors.Is(err, postgresrepo.ErrDuplicateCard) {
			return ErrDuplicateOperation
		}
		return err
	}

	if err := txRepo.UpdateBalances(ctx, user.ID, newBalance, newCredit); err != nil {
		return err
	}

	notes := fmt.Sprintf("%s for card %s", op.OperationType, op.CardNumber)
	if err := txRepo.InsertTransaction(ctx, models.Transaction{
		OwnerID:      user.ID,
		Type:         models.TransactionTypeOperationDeduct,
		Amount:       walletPortion,
		BalanceAfter: newBalance,
		OperationID:  &op.ID,
		Actor:        models.ActorSystem,
		Notes:        &notes,
	}); err != nil {
		return err
	}

	if err := txRepo.InsertActivity(ctx, models.ActivityEntry{
		OwnerID:     user.ID,
		Actor:       models.ActorSystem,
		Action:      "operation.create",
		Details:     &notes,
		OperationID: &op.ID,
	}); err != nil {
		return err
	}

	if err := txRepo.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Get returns the sanitized status view, enforcing ownership.
func (s *OperationService) Get(ctx context.Context, principal models.Principal, operationID string) (*models.OperationStatusResponse, error) {
	op, err := s.operationRepo.GetOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}

	if !principal.CanAccess(op.OwnerID) {
		return nil, ErrForbidden
	}

	return &models.OperationStatusResponse{
		OperationID:     op.ID,
		OperationType:   op.OperationType,
		CardNumber:      op.CardNumber,
		Amount:          op.Amount,
		Status:          op.Status,
		ResponseMessage: op.ResponseMessage,
		SelectedPackage: op.SelectedPackage,
		CreatedAt:       op.CreatedAt,
		UpdatedAt:       op.UpdatedAt,
		CompletedAt:     op.CompletedAt,
	}, nil
}

// GetCaptcha returns the pending challenge image and its remaining
// lifetime in whole seconds (floored at zero).
func (s *OperationService) GetCaptcha(ctx context.Context, principal models.Principal, operationID string) (*models.CaptchaResponse, error) {
	op, err := s.operationRepo.GetOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}

	if !principal.CanAccess(op.OwnerID) {
		return nil, ErrForbidden
	}

	if op.Status != models.OperationStatusAwaitingCaptcha || op.CaptchaImage == nil {
		return nil, postgresrepo.ErrNotAwaitingCaptcha
	}

	return &models.CaptchaResponse{
		OperationID: op.ID,
		Image:       *op.CaptchaImage,
		ExpiresIn:   CaptchaExpiresIn(op, time.Now()),
	}, nil
}

// SubmitCaptcha stores the human-provided solution for the worker's next
// poll. The conditional update rejects submissions once the operation
// has moved on.
func (s *OperationService) SubmitCaptcha(ctx context.Context, principal models.Principal, operationID, solution string) error {
	op, err := s.operationRepo.GetOperation(ctx, operationID)
	if err != nil {
		return err
	}

	if !principal.CanAccess(op.OwnerID) {
		return ErrForbidden
	}

	return s.operationRepo.SubmitCaptchaSolution(ctx, operationID, solution)
}

// ConfirmPurchase enqueues the CONFIRM_PURCHASE job while the
// confirmation window is still open.
func (s *OperationService) ConfirmPurchase(ctx context.Context, principal models.Principal, operationID string) error {
	op, err := s.operationRepo.GetOperation(ctx, operationID)
	if err != nil {
		return err
	}

	if !principal.CanAccess(op.OwnerID) {
		return ErrForbidden
	}

	if op.Status != models.OperationStatusAwaitingFinalConfirm {
		return postgresrepo.ErrStaleTransition
	}

	if !ConfirmWindowOpen(op, time.Now()) {
		// Left for the timeout reaper to fail and refund
		return ErrConfirmationExpired
	}

	job, err := models.NewJobMessage(op, models.OperationTypeConfirmPurchase)
	if err != nil {
		return fmt.Errorf("failed to build confirm job: %w", err)
	}

	if err := s.jobRepo.SendJob(ctx, job); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailure, err)
	}

	return nil
}

// ApplyEvent applies a worker callback to the operation row. The
// compare-and-swap on the expected status makes redelivered and
// out-of-order callbacks harmless.
func (s *OperationService) ApplyEvent(ctx context.Context, ev models.OperationEvent) error {
	if !TransitionAllowed(ev.ExpectedStatus, ev.NewStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ev.ExpectedStatus, ev.NewStatus)
	}

	// A worker-reported failure also reverses the charge, atomically
	// with the status flip
	if ev.NewStatus == models.OperationStatusFailed {
		message := "operation failed"
		if ev.Message != nil {
			message = *ev.Message
		}
		return s.FailAndRefund(ctx, ev.OperationID, ev.ExpectedStatus, message, models.ActorSystem)
	}

	upd := models.OperationUpdate{
		NewStatus:       ev.NewStatus,
		ResponseMessage: ev.Message,
		ResponsePayload: ev.ResponsePayload,
		SelectedPackage: ev.SelectedPackage,
		RetryIncrement:  ev.RetryIncrement,
	}

	if ev.CaptchaImage != nil {
		expiry := time.Now().Add(time.Duration(ev.CaptchaTTLSeconds) * time.Second)
		upd.CaptchaImage = ev.CaptchaImage
		upd.CaptchaExpiresAt = &expiry
	}

	if ev.NewStatus == models.OperationStatusAwaitingFinalConfirm && ev.ConfirmTTLSeconds > 0 {
		expiry := time.Now().Add(time.Duration(ev.ConfirmTTLSeconds) * time.Second)
		upd.FinalConfirmExpiresAt = &expiry
	}

	return s.operationRepo.TransitionStatus(ctx, ev.OperationID, ev.ExpectedStatus, upd)
}

// FailAndRefund transitions the operation to FAILED and restores its
// charge in one database transaction. The refund is idempotent: an
// existing REFUND entry for the operation turns the credit into a no-op.
// The status flip uses the expected status as a compare-and-swap guard.
func (s *OperationService) FailAndRefund(ctx context.Context, operationID, expectedStatus, message, actor string) error {
	txRepo, err := s.operationRepo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txRepo.Rollback()

	op, err := txRepo.GetOperationForUpdate(ctx, operationID)
	if err != nil {
		return err
	}

	if err := txRepo.UpdateOperationStatus(ctx, operationID, expectedStatus, models.OperationStatusFailed, &message); err != nil {
		return err
	}

	refunded, err := txRepo.HasRefundForOperation(ctx, operationID)
	if err != nil {
		return err
	}

	if !refunded {
		debit, err := txRepo.GetDebitForOperation(ctx, operationID)
		if err != nil {
			return err
		}

		walletPortion := debit.Amount
		creditPortion := op.Amount - walletPortion

		user, err := txRepo.LockUserForUpdate(ctx, op.OwnerID)
		if err != nil {
			return err
		}

		newBalance := user.Balance + walletPortion
		newCredit := user.StoreCredit + creditPortion

		if err := txRepo.UpdateBalances(ctx, user.ID, newBalance, newCredit); err != nil {
			return err
		}

		notes := fmt.Sprintf("refund: %s", message)
		if err := txRepo.InsertTransaction(ctx, models.Transaction{
			OwnerID:      user.ID,
			Type:         models.TransactionTypeRefund,
			Amount:       walletPortion,
			BalanceAfter: newBalance,
			OperationID:  &operationID,
			Actor:        actor,
			Notes:        &notes,
		}); err != nil {
			return err
		}

		if err := txRepo.InsertNotification(ctx, models.Notification{
			OwnerID: user.ID,
			Title:   "Operation failed",
			Body:    fmt.Sprintf("Operation for card %s failed: %s. Your balance was refunded.", op.CardNumber, message),
		}); err != nil {
			return err
		}
	}

	details := message
	if err := txRepo.InsertActivity(ctx, models.ActivityEntry{
		OwnerID:     op.OwnerID,
		Actor:       actor,
		Action:      "operation.fail",
		Details:     &details,
		OperationID: &operationID,
	}); err != nil {
		return err
	}

	if err := txRepo.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.invalidateBalance(op.OwnerID)

	return nil
}

// GetBalance serves the owner's wallet view, cache first. A cache hit
// answers without touching postgres; a miss reads the row and refreshes
// the cache asynchronously.
func (s *OperationService) GetBalance(ctx context.Context, principal models.Principal) (*models.BalanceResponse, error) {
	if snap, cacheErr := s.balanceCache.GetBalance(ctx, principal.ID); cacheErr == nil {
		return &models.BalanceResponse{
			OwnerID:     principal.ID,
			Balance:     snap.Balance,
			StoreCredit: snap.StoreCredit,
		}, nil
	} else if !errors.Is(cacheErr, redisrepo.ErrBalanceNotFound) {
		log.WithError(cacheErr).Warn("Redis cache error (non-critical)")
	}

	user, err := s.operationRepo.GetUser(ctx, principal.ID)
	if err != nil {
		return nil, err
	}

	// Refresh the cache asynchronously with fresh data
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		snap := models.BalanceSnapshot{Balance: user.Balance, StoreCredit: user.StoreCredit}
		if err := s.balanceCache.SetBalance(cacheCtx, user.ID, snap); err != nil {
			log.WithError(err).WithField("owner_id", user.ID).Warn("Failed to update balance cache")
		}
	}()

	return &models.BalanceResponse{
		OwnerID:     user.ID,
		Balance:     user.Balance,
		StoreCredit: user.StoreCredit,
	}, nil
}

func (s *OperationService) failAndRefundLogged(ctx context.Context, operationID, expectedStatus, message, actor string) {
	if err := s.FailAndRefund(ctx, operationID, expectedStatus, message, actor); err != nil {
		log.WithError(err).WithField("operation_id", operationID).Error("Failed to reverse charge after dispatch failure")
	}
}

func (s *OperationService) invalidateBalance(ownerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.balanceCache.DeleteBalance(ctx, ownerID); err != nil {
		log.WithError(err).WithField("owner_id", ownerID).Warn("Failed to invalidate balance cache")
	}
}
