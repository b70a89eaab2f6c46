package models

import "time"

// Operation status constants
const (
	OperationStatusPending              = "PENDING"
	OperationStatusProcessing           = "PROCESSING"
	OperationStatusAwaitingCaptcha      = "AWAITING_CAPTCHA"
	OperationStatusAwaitingPackage      = "AWAITING_PACKAGE"
	OperationStatusAwaitingFinalConfirm = "AWAITING_FINAL_CONFIRM"
	OperationStatusCompleting           = "COMPLETING"
	OperationStatusCompleted            = "COMPLETED"
	OperationStatusFailed               = "FAILED"
)

// Operation type constants
const (
	OperationTypeRenew           = "RENEW"
	OperationTypeCheck           = "CHECK"
	OperationTypeSignalRefresh   = "SIGNAL_REFRESH"
	OperationTypeSignalCheck     = "SIGNAL_CHECK"
	OperationTypeConfirmPurchase = "CONFIRM_PURCHASE"
)

// Database model
type Operation struct {
	ID                  string     `db:"id"`
	OwnerID             string     `db:"owner_id"`
	OperationType       string     `db:"operation_type"`
	CardNumber          string     `db:"card_number"`
	Duration            int        `db:"duration"`
	Amount              int64      `db:"amount"`
	Status              string     `db:"status"`
	ResponseMessage     *string    `db:"response_message"`
	ResponsePayload     *string    `db:"response_payload"`
	CaptchaImage        *string    `db:"captcha_image"`
	CaptchaSolution     *string    `db:"captcha_solution"`
	CaptchaExpiresAt    *time.Time `db:"captcha_expires_at"`
	SelectedPackage     *string    `db:"selected_package"`
	FinalConfirmExpires *time.Time `db:"final_confirm_expires_at"`
	RetryCount          int        `db:"retry_count"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
	CompletedAt         *time.Time `db:"completed_at"`
}

// IsTerminal reports whether the operation can no longer change.
func (o *Operation) IsTerminal() bool {
	return o.Status == OperationStatusCompleted || o.Status == OperationStatusFailed
}

// OperationUpdate carries the column changes applied together with a
// compare-and-swap status transition. Nil fields keep the stored value.
type OperationUpdate struct {
	NewStatus             string
	ResponseMessage       *string
	ResponsePayload       *string
	CaptchaImage          *string
	CaptchaExpiresAt      *time.Time
	SelectedPackage       *string
	FinalConfirmExpiresAt *time.Time
	RetryIncrement        bool
}

// Request/response models
type OperationCreateRequest struct {
	OperationType string `json:"type" validate:"required,oneof=RENEW CHECK SIGNAL_REFRESH SIGNAL_CHECK"`
	// number, not numeric: card numbers are bare digits, no sign or
	// decimal point
	CardNumber string `json:"cardNumber" validate:"required,number,min=10,max=12"`
	Duration   int    `json:"duration,omitempty" validate:"omitempty,gt=0,lte=120"`
}

type OperationCreateResponse struct {
	OperationID string `json:"operationId"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

type OperationStatusResponse struct {
	OperationID     string     `json:"operationId"`
	OperationType   string     `json:"operationType"`
	CardNumber      string     `json:"cardNumber"`
	Amount          int64      `json:"amount"`
	Status          string     `json:"status"`
	ResponseMessage *string    `json:"responseMessage,omitempty"`
	SelectedPackage *string    `json:"selectedPackage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

type CaptchaResponse struct {
	OperationID string `json:"operationId"`
	Image       string `json:"image"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type CaptchaSolutionRequest struct {
	Solution string `json:"solution" validate:"required"`
}

// Message constants
const (
	MessageOperationQueued = "Operation queued for processing"
	MessageConfirmQueued   = "Purchase confirmation queued"
	MessageTimedOut        = "Operation timed out and was refunded"
)
