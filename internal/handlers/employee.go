package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/handlers/render"
	"github.com/nkiryanov/clearance/internal/handlers/userctx"
	"github.com/nkiryanov/clearance/internal/logger"
	"github.com/nkiryanov/clearance/internal/models"
)

func handleMe() http.Handler {
	type response struct {
		ID         uuid.UUID   `json:"id"`
		Name       string      `json:"name"`
		Department string      `json:"department"`
		Role       models.Role `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		employee, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{
			ID:         employee.ID,
			Name:       employee.Name,
			Department: employee.Department,
			Role:       employee.Role,
		})
	})
}

func handleSessions(authService authService, logger logger.Logger) http.Handler {
	type response struct {
		ActiveSessions int64 `json:"activeSessions"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		employee, _ := userctx.FromContext(r.Context())

		count, err := authService.ActiveSessionCount(r.Context(), employee.Subject())
		switch {
		case errors.Is(err, apperrors.ErrStoreUnavailable):
			logger.Error("session count failed", "error", err)
			render.Error(w, storeUnavailableErrorType, "Service temporarily unavailable", nil, http.StatusServiceUnavailable)
			return
		case err != nil:
			logger.Error("session count failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{ActiveSessions: count})
	})
}
