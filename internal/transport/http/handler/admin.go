package handler

import (
	"encoding/json"
	"net/http"

	"panel-service/internal/models"
	"panel-service/internal/services"

	"github.com/go-playground/validator"
)

type Admin struct {
	poolService *services.PoolService
	validate    *validator.Validate
}

func NewAdmin(mux *http.ServeMux, poolService *services.PoolService) *Admin {
	h := &Admin{
		poolService: poolService,
		validate:    validator.New(),
	}

	mux.HandleFunc("POST /api/v1/admin/proxies/{proxyId}/test", requireAdmin(h.reportProxyTest))
	mux.HandleFunc("PUT /api/v1/admin/accounts/{accountId}/assign-proxy", requireAdmin(h.assignProxy))
	mux.HandleFunc("POST /api/v1/admin/accounts/{accountId}/toggle", requireAdmin(h.toggleAccount))

	return h
}

func (h *Admin) reportProxyTest(w http.ResponseWriter, r *http.Request) {
	proxyID := r.PathValue("proxyId")

	if err := h.validate.Var(proxyID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid proxy ID format")
		return
	}

	var req models.ProxyTestResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid test result payload")
		return
	}

	proxy, err := h.poolService.ReportTestResult(r.Context(), proxyID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(proxy)
}

func (h *Admin) assignProxy(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountId")

	if err := h.validate.Var(accountID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account ID format")
		return
	}

	var req models.AssignProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid proxy ID format")
		return
	}

	account, err := h.poolService.AssignProxy(r.Context(), accountID, req.ProxyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

func (h *Admin) toggleAccount(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountId")

	if err := h.validate.Var(accountID, "required,uuid4"); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account ID format")
		return
	}

	account, err := h.poolService.ToggleAccount(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}
