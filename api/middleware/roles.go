package middleware

import (
	"net/http"

	"github.com/angelmondragon/quotehub-backend/api/responses"
	pkgerrors "github.com/angelmondragon/quotehub-backend/pkg/errors"
	"github.com/angelmondragon/quotehub-backend/pkg/logger"
)

// RequireRole rejects callers whose token carries a different role. Tokens
// without a role pass through; ownership checks in the service still apply.
func RequireRole(role string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := RoleFromContext(r.Context()); got != "" && got != role {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required").
					WithDetails(pkgerrors.Details{"required_role": role}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
