package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/handlers/render"
	"github.com/nkiryanov/clearance/internal/handlers/userctx"
	"github.com/nkiryanov/clearance/internal/models"
)

type authService interface {
	AuthenticateRequest(ctx context.Context, r *http.Request) (models.Employee, error)
}

// AuthMiddleware puts employee the access token belongs to into request context
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			employee, err := as.AuthenticateRequest(r.Context(), r)
			switch {
			case errors.Is(err, apperrors.ErrStoreUnavailable):
				render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
				return
			case err != nil:
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), employee)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
