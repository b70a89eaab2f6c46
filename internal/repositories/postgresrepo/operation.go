package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"panel-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrOperationNotFound  = errors.New("operation not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrStaleTransition    = errors.New("operation status does not match expected status")
	ErrNotAwaitingCaptcha = errors.New("operation is not awaiting a captcha solution")
	ErrDuplicateCard      = errors.New("a live operation already exists for this card")
)

const operationColumns = `
	id, owner_id, operation_type, card_number, duration, amount, status,
	response_message, response_payload, captcha_image, captcha_solution,
	captcha_expires_at, selected_package, final_confirm_expires_at,
	retry_count, created_at, updated_at, completed_at
`

type OperationRepository struct {
	db *sqlx.DB
}

func NewOperationRepository(db *sqlx.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// BeginTx starts a transaction and returns a transactional repository
func (r *OperationRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return NewTxRepo(tx), nil
}

// GetOperation get an operation by ID
func (r *OperationRepository) GetOperation(ctx context.Context, operationID string) (*models.Operation, error) {
	var operation models.Operation

	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = $1`

	err := r.db.GetContext(ctx, &operation, query, operationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOperationNotFound
		}
		return nil, fmt.Errorf("failed to get operation from postgres: %w", err)
	}

	return &operation, nil
}

// ListStuck returns operations sitting in one of the given statuses
// since before the cutoff, oldest first. Operations whose final
// confirmation window has lapsed are included regardless of the cutoff;
// their deadline is the window itself.
func (r *OperationRepository) ListStuck(ctx context.Context, statuses []string, cutoff time.Time) ([]models.Operation, error) {
	query := `SELECT ` + operationColumns + `
		FROM operations
		WHERE status = ANY($1)
		AND (updated_at < $2
			OR (status = 'AWAITING_FINAL_CONFIRM' AND final_confirm_expires_at < NOW()))
		ORDER BY updated_at ASC`

	var operations []models.Operation
	if err := r.db.SelectContext(ctx, &operations, query, pq.Array(statuses), cutoff); err != nil {
		return nil, fmt.Errorf("failed to list stuck operations: %w", err)
	}

	return operations, nil
}

// TransitionStatus advances an operation with a compare-and-swap on the
// status column. A zero-row update means a concurrent callback won the
// race (or the operation vanished); the row is left untouched either way.
func (r *OperationRepository) TransitionStatus(ctx context.Context, operationID, expectedStatus string, upd models.OperationUpdate) error {
	query := `
		UPDATE operations
		SET status = $1,
			response_message = COALESCE($2, response_message),
			response_payload = COALESCE($3, response_payload),
			captcha_image = COALESCE($4, captcha_image),
			captcha_expires_at = COALESCE($5, captcha_expires_at),
			selected_package = COALESCE($6, selected_package),
			final_confirm_expires_at = COALESCE($7, final_confirm_expires_at),
			retry_count = retry_count + $8,
			completed_at = CASE WHEN $1 IN ('COMPLETED', 'FAILED') THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $9 AND status = $10
	`

	retryIncrement := 0
	if upd.RetryIncrement {
		retryIncrement = 1
	}

	result, err := r.db.ExecContext(ctx, query,
		upd.NewStatus,
		upd.ResponseMessage,
		upd.ResponsePayload,
		upd.CaptchaImage,
		upd.CaptchaExpiresAt,
		upd.SelectedPackage,
		upd.FinalConfirmExpiresAt,
		retryIncrement,
		operationID,
		expectedStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to transition operation status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, getErr := r.GetOperation(ctx, operationID); getErr != nil {
			return getErr
		}
		return ErrStaleTransition
	}

	return nil
}

// SubmitCaptchaSolution stores the solution verbatim for the worker to
// read on its next poll. Conditional on the captcha state so a late
// submission cannot clobber an operation that already moved on.
func (r *OperationRepository) SubmitCaptchaSolution(ctx context.Context, operationID, solution string) error {
	query := `
		UPDATE operations
		SET captcha_solution = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := r.db.ExecContext(ctx, query, solution, operationID, models.OperationStatusAwaitingCaptcha)
	if err != nil {
		return fmt.Errorf("failed to submit captcha solution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, getErr := r.GetOperation(ctx, operationID); getErr != nil {
			return getErr
		}
		return ErrNotAwaitingCaptcha
	}

	return nil
}

// GetUser get a panel user by ID
func (r *OperationRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User

	query := `SELECT id, role, balance, store_credit, created_at, updated_at FROM users WHERE id = $1`

	err := r.db.GetContext(ctx, &user, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user from postgres: %w", err)
	}

	return &user, nil
}
