package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"panel-service/internal/services"
)

// Cron exposes the timeout sweep to an external scheduler. The trigger
// is authenticated with a shared secret rather than a user session.
type Cron struct {
	reaperService *services.ReaperService
	secret        string
}

func NewCron(mux *http.ServeMux, reaperService *services.ReaperService, secret string) *Cron {
	h := &Cron{
		reaperService: reaperService,
		secret:        secret,
	}

	mux.HandleFunc("GET /cron/timeout-operations", h.timeoutOperations)

	return h
}

func (h *Cron) timeoutOperations(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Cron-Secret")
	if secret == "" {
		secret = r.URL.Query().Get("secret")
	}

	if h.secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		writeError(w, http.StatusUnauthorized, "Invalid cron secret")
		return
	}

	result := h.reaperService.Sweep(r.Context(), time.Now())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
