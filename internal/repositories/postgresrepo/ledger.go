package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"panel-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Tx is the set of statements available inside one transaction. Services
// depend on this interface so the transactional flows can be exercised
// against a fake in unit tests.
type Tx interface {
	Commit() error
	Rollback() error
	LockUserForUpdate(ctx context.Context, userID string) (*models.User, error)
	LiveOperationExistsForCard(ctx context.Context, cardNumber string) (bool, error)
	UpdateBalances(ctx context.Context, userID string, balance, storeCredit int64) error
	InsertOperation(ctx context.Context, op *models.Operation) error
	InsertTransaction(ctx context.Context, entry models.Transaction) error
	HasRefundForOperation(ctx context.Context, operationID string) (bool, error)
	GetDebitForOperation(ctx context.Context, operationID string) (*models.Transaction, error)
	GetOperationForUpdate(ctx context.Context, operationID string) (*models.Operation, error)
	UpdateOperationStatus(ctx context.Context, operationID, expectedStatus, newStatus string, message *string) error
	InsertActivity(ctx context.Context, entry models.ActivityEntry) error
	InsertNotification(ctx context.Context, n models.Notification) error
}

// TxRepo bundles every statement that must commit or roll back together:
// balance mutation, ledger insert, operation row and audit entries.
type TxRepo struct {
	tx *sqlx.Tx
}

func NewTxRepo(tx *sqlx.Tx) *TxRepo {
	return &TxRepo{tx: tx}
}

func (r *TxRepo) Commit() error {
	return r.tx.Commit()
}

func (r *TxRepo) Rollback() error {
	return r.tx.Rollback()
}

// LockUserForUpdate takes the row lock that serializes every balance
// mutation for one owner.
func (r *TxRepo) LockUserForUpdate(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	query := `SELECT id, role, balance, store_credit, created_at, updated_at FROM users WHERE id = $1 FOR UPDATE`
	err := r.tx.GetContext(ctx, &user, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	return &user, nil
}

// LiveOperationExistsForCard reports whether a non-terminal operation
// already targets the card. Callers must hold the owner row lock so two
// concurrent submissions cannot both observe "no live operation".
func (r *TxRepo) LiveOperationExistsForCard(ctx context.Context, cardNumber string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM operations
			WHERE card_number = $1 AND status NOT IN ($2, $3)
		)
	`

	err := r.tx.GetContext(ctx, &exists, query, cardNumber,
		models.OperationStatusCompleted, models.OperationStatusFailed)
	if err != nil {
		return false, fmt.Errorf("failed to check live operations for card: %w", err)
	}

	return exists, nil
}

// UpdateBalances writes the owner's new wallet balance and store credit.
func (r *TxRepo) UpdateBalances(ctx context.Context, userID string, balance, storeCredit int64) error {
	query := `UPDATE users SET balance = $1, store_credit = $2, updated_at = NOW() WHERE id = $3`
	result, err := r.tx.ExecContext(ctx, query, balance, storeCredit, userID)
	if err != nil {
		return fmt.Errorf("failed to update balances: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

// InsertOperation create a new operation row with the status PENDING
func (r *TxRepo) InsertOperation(ctx context.Context, op *models.Operation) error {
	query := `
		INSERT INTO operations
		(id, owner_id, operation_type, card_number, duration, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`

	_, err := r.tx.ExecContext(ctx, query,
		op.ID, op.OwnerID, op.OperationType, op.CardNumber, op.Duration, op.Amount, op.Status)
	if err != nil {
		// The partial unique index on live card numbers backstops the
		// duplicate guard across concurrent owners
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateCard
		}
		return fmt.Errorf("failed to insert operation: %w", err)
	}

	return nil
}

// InsertTransaction appends a ledger entry. BalanceAfter must be the
// owner's wallet balance as of this entry, computed under the row lock.
func (r *TxRepo) InsertTransaction(ctx context.Context, entry models.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, owner_id, type, amount, balance_after, operation_id, actor, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`

	_, err := r.tx.ExecContext(ctx, query,
		uuid.New().String(), entry.OwnerID, entry.Type, entry.Amount,
		entry.BalanceAfter, entry.OperationID, entry.Actor, entry.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return nil
}

// HasRefundForOperation reports whether a compensating credit already
// exists. This is what makes refunds idempotent.
func (r *TxRepo) HasRefundForOperation(ctx context.Context, operationID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE operation_id = $1 AND type = $2)`

	err := r.tx.GetContext(ctx, &exists, query, operationID, models.TransactionTypeRefund)
	if err != nil {
		return false, fmt.Errorf("failed to check refund existence: %w", err)
	}

	return exists, nil
}

// GetDebitForOperation returns the original charge so a refund can
// mirror its wallet/store-credit split.
func (r *TxRepo) GetDebitForOperation(ctx context.Context, operationID string) (*models.Transaction, error) {
	var entry models.Transaction
	query := `
		SELECT id, owner_id, type, amount, balance_after, operation_id, actor, notes, created_at
		FROM transactions
		WHERE operation_id = $1 AND type = $2
	`

	err := r.tx.GetContext(ctx, &entry, query, operationID, models.TransactionTypeOperationDeduct)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no debit entry for operation %s", operationID)
		}
		return nil, fmt.Errorf("failed to get debit entry: %w", err)
	}

	return &entry, nil
}

// GetOperationForUpdate locks the operation row inside the transaction.
func (r *TxRepo) GetOperationForUpdate(ctx context.Context, operationID string) (*models.Operation, error) {
	var operation models.Operation
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = $1 FOR UPDATE`

	err := r.tx.GetContext(ctx, &operation, query, operationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOperationNotFound
		}
		return nil, fmt.Errorf("failed to lock operation: %w", err)
	}

	return &operation, nil
}

// UpdateOperationStatus applies a compare-and-swap transition inside the
// transaction, mirroring OperationRepository.TransitionStatus.
func (r *TxRepo) UpdateOperationStatus(ctx context.Context, operationID, expectedStatus, newStatus string, message *string) error {
	query := `
		UPDATE operations
		SET status = $1,
			response_message = COALESCE($2, response_message),
			completed_at = CASE WHEN $1 IN ('COMPLETED', 'FAILED') THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	result, err := r.tx.ExecContext(ctx, query, newStatus, message, operationID, expectedStatus)
	if err != nil {
		return fmt.Errorf("failed to update operation status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrStaleTransition
	}

	return nil
}

// InsertActivity appends an audit entry inside the same transaction as
// the money movement it describes.
func (r *TxRepo) InsertActivity(ctx context.Context, entry models.ActivityEntry) error {
	query := `
		INSERT INTO activity_log (id, owner_id, actor, action, details, operation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	_, err := r.tx.ExecContext(ctx, query,
		uuid.New().String(), entry.OwnerID, entry.Actor, entry.Action, entry.Details, entry.OperationID)
	if err != nil {
		return fmt.Errorf("failed to insert activity entry: %w", err)
	}

	return nil
}

// InsertNotification queues a user-facing notification.
func (r *TxRepo) InsertNotification(ctx context.Context, n models.Notification) error {
	query := `
		INSERT INTO notifications (id, owner_id, title, body, read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
	`

	_, err := r.tx.ExecContext(ctx, query, uuid.New().String(), n.OwnerID, n.Title, n.Body)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}
