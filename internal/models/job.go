package models

import (
	"encoding/json"
	"fmt"
)

// JobMessage is the unit of work handed to the automation worker pool.
// Payload is a tagged union keyed by Type: each variant carries exactly
// the fields that worker needs.
type JobMessage struct {
	OperationID string          `json:"operation_id"`
	OwnerID     string          `json:"owner_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
}

type RenewJobPayload struct {
	CardNumber string `json:"card_number"`
	Duration   int    `json:"duration"`
}

type CheckJobPayload struct {
	CardNumber string `json:"card_number"`
}

type SignalJobPayload struct {
	CardNumber string `json:"card_number"`
}

type ConfirmPurchaseJobPayload struct {
	CardNumber      string `json:"card_number"`
	SelectedPackage string `json:"selected_package"`
}

// NewJobMessage builds a JobMessage for the given operation, marshalling
// the matching payload variant.
func NewJobMessage(op *Operation, jobType string) (JobMessage, error) {
	var payload interface{}

	switch jobType {
	case OperationTypeRenew:
		payload = RenewJobPayload{CardNumber: op.CardNumber, Duration: op.Duration}
	case OperationTypeCheck:
		payload = CheckJobPayload{CardNumber: op.CardNumber}
	case OperationTypeSignalRefresh, OperationTypeSignalCheck:
		payload = SignalJobPayload{CardNumber: op.CardNumber}
	case OperationTypeConfirmPurchase:
		selected := ""
		if op.SelectedPackage != nil {
			selected = *op.SelectedPackage
		}
		payload = ConfirmPurchaseJobPayload{CardNumber: op.CardNumber, SelectedPackage: selected}
	default:
		return JobMessage{}, fmt.Errorf("unknown job type: %s", jobType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return JobMessage{}, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	return JobMessage{
		OperationID: op.ID,
		OwnerID:     op.OwnerID,
		Type:        jobType,
		Payload:     raw,
	}, nil
}

// OperationEvent is the worker callback reported on the events topic.
// ExpectedStatus is the status the worker last observed; the transition
// is applied with a compare-and-swap against it.
type OperationEvent struct {
	OperationID       string  `json:"operation_id"`
	ExpectedStatus    string  `json:"expected_status"`
	NewStatus         string  `json:"new_status"`
	Message           *string `json:"message,omitempty"`
	ResponsePayload   *string `json:"response_payload,omitempty"`
	CaptchaImage      *string `json:"captcha_image,omitempty"`
	CaptchaTTLSeconds int64   `json:"captcha_ttl_seconds,omitempty"`
	SelectedPackage   *string `json:"selected_package,omitempty"`
	ConfirmTTLSeconds int64   `json:"confirm_ttl_seconds,omitempty"`
	RetryIncrement    bool    `json:"retry_increment,omitempty"`
}
