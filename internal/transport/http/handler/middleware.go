package handler

import (
	"context"
	"net/http"

	"panel-service/internal/models"
)

type contextKey string

const principalKey contextKey = "principal"

// withPrincipal resolves the authenticated caller from the identity
// headers set by the session gateway. Session/JWT mechanics live
// upstream; this service only consumes the resolved owner id and role.
func withPrincipal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "Missing authenticated principal")
			return
		}

		role := r.Header.Get("X-User-Role")
		if role == "" {
			role = models.RoleUser
		}

		principal := models.Principal{ID: userID, Role: role}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin layers an elevated-role check on top of withPrincipal.
func requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return withPrincipal(func(w http.ResponseWriter, r *http.Request) {
		if !principalFrom(r).IsAdmin() {
			writeError(w, http.StatusForbidden, "Administrator role required")
			return
		}
		next(w, r)
	})
}

func principalFrom(r *http.Request) models.Principal {
	principal, _ := r.Context().Value(principalKey).(models.Principal)
	return principal
}
