package api

import (
	"net/http"

	"github.com/notes-bin/pictureteam/internal/auth"
	"github.com/notes-bin/pictureteam/internal/errs"
)

// AuthMiddleware resolves the bearer token into an identity that lives in
// the request context until the request completes.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.gate.Authorize(r.Header.Get("Authorization"))
		if err != nil {
			respondServiceError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// AdminMiddleware requires the token's admin claim and checks it against
// the stored user, so revoked rights take effect before the token
// expires.
func (h *Handler) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identity(r)
		if !id.Admin {
			respondServiceError(w, auth.ErrAdminOnly)
			return
		}
		admin, err := h.users.IsAdmin(r.Context(), id.UserID)
		if err != nil && errs.KindOf(err) != errs.KindNotFound {
			respondServiceError(w, err)
			return
		}
		if !admin {
			respondServiceError(w, auth.ErrAdminOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}
