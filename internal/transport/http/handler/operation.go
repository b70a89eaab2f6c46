package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"panel-service/internal/models"
	"panel-service/internal/repositories/postgresrepo"
	"panel-service/internal/services"

	"github.com/go-playground/validator"
	log "github.com/sirupsen/logrus"
)

type Operation struct {
	operationService *services.OperationService
	validate         *validator.Validate
}

func NewOperation(mux *http.ServeMux, operationService *services.OperationService) *Operation {
	h := &Operation{
		operationService: operationService,
		validate:         validator.New(),
	}

	mux.HandleFunc("POST /api/v1/operations", withPrincipal(h.createOperation))
	mux.HandleFunc("GET /api/v1/operations/{operationId}", withPrincipal(h.getOperation))
	mux.HandleFunc("GET /api/v1/operations/{operationId}/captcha", withPrincipal(h.getCaptcha))
	mux.HandleFunc("POST /api/v1/operations/{operationId}/captcha", withPrincipal(h.submitCaptcha))
	mux.HandleFunc("POST /api/v1/operations/{operationId}/confirm-purchase", withPrincipal(h.confirmPurchase))
	mux.HandleFunc("GET /api/v1/balance", withPrincipal(h.getBalance))

	return h
}

func (h *Operation) createOperation(w http.ResponseWriter, r *http.Request) {
	var req models.OperationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Card number must be 10-12 digits and type must be a known operation type")
		return
	}

	ctx := r.Context()
	operationID, err := h.operationService.Create(ctx, principalFrom(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := models.OperationCreateResponse{
		OperationID: operationID,
		Status:      models.OperationStatusPending,
		Message:     models.MessageOperationQueued,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

func (h *Operation) getOperation(w http.ResponseWriter, r *http.Request) {
	operationID := r.PathValue("operationId")

	if err := h.validate.Var(operationID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid operation ID format")
		return
	}

	status, err := h.operationService.Get(r.Context(), principalFrom(r), operationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (h *Operation) getCaptcha(w http.ResponseWriter, r *http.Request) {
	operationID := r.PathValue("operationId")

	if err := h.validate.Var(operationID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid operation ID format")
		return
	}

	captcha, err := h.operationService.GetCaptcha(r.Context(), principalFrom(r), operationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(captcha)
}

func (h *Operation) submitCaptcha(w http.ResponseWriter, r *http.Request) {
	operationID := r.PathValue("operationId")

	if err := h.validate.Var(operationID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid operation ID format")
		return
	}

	var req models.CaptchaSolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Solution is required")
		return
	}

	if err := h.operationService.SubmitCaptcha(r.Context(), principalFrom(r), operationID, req.Solution); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (h *Operation) confirmPurchase(w http.ResponseWriter, r *http.Request) {
	operationID := r.PathValue("operationId")

	if err := h.validate.Var(operationID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid operation ID format")
		return
	}

	if err := h.operationService.ConfirmPurchase(r.Context(), principalFrom(r), operationID); err != nil {
		writeServiceError(w, err)
		return
	}

	response := models.OperationCreateResponse{
		OperationID: operationID,
		Status:      models.OperationStatusAwaitingFinalConfirm,
		Message:     models.MessageConfirmQueued,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(response)
}

func (h *Operation) getBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.operationService.GetBalance(r.Context(), principalFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(balance)
}

// writeServiceError maps the business-error taxonomy to HTTP status
// codes. Infrastructure errors are logged with detail and surfaced as a
// generic server error.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "Insufficient funds")
	case errors.Is(err, services.ErrDuplicateOperation):
		writeError(w, http.StatusBadRequest, "A live operation already exists for this card")
	case errors.Is(err, services.ErrConfirmationExpired):
		writeError(w, http.StatusBadRequest, "Confirmation window has expired")
	case errors.Is(err, services.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "Too many operations, try again later")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, services.ErrProxyUnavailable):
		writeError(w, http.StatusBadRequest, "Proxy is not active")
	case errors.Is(err, postgresrepo.ErrStaleTransition):
		writeError(w, http.StatusBadRequest, "Operation is not in the expected status")
	case errors.Is(err, postgresrepo.ErrNotAwaitingCaptcha):
		writeError(w, http.StatusBadRequest, "Operation is not awaiting a captcha solution")
	case errors.Is(err, postgresrepo.ErrOperationNotFound):
		writeError(w, http.StatusNotFound, "Operation not found")
	case errors.Is(err, postgresrepo.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, postgresrepo.ErrProxyNotFound):
		writeError(w, http.StatusNotFound, "Proxy not found")
	case errors.Is(err, postgresrepo.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Provider account not found")
	default:
		log.WithError(err).Error("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Helper for sending error responses
func writeError(w http.ResponseWriter, statusCode int, message string) {
	errorResponse := map[string]interface{}{
		"error":   http.StatusText(statusCode),
		"message": message,
		"code":    statusCode,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse)
}
