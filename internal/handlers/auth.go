package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/handlers/clientip"
	"github.com/nkiryanov/clearance/internal/handlers/render"
	"github.com/nkiryanov/clearance/internal/logger"
	"github.com/nkiryanov/clearance/internal/models"
	"github.com/nkiryanov/clearance/internal/service/auth"
)

// Error types clients may switch on
const (
	passwordRequiredErrorType   = "password_required"
	departmentRequiredErrorType = "department_required"
	invalidCredentialsErrorType = "invalid_credentials"
	passwordExpiredErrorType    = "password_expired"
	passwordUnchangedErrorType  = "password_unchanged"
	rateLimitedErrorType        = "rate_limited"
	storeUnavailableErrorType   = "store_unavailable"
)

type tokensResponse struct {
	Message                 string `json:"message"`
	AccessToken             string `json:"accessToken"`
	AccessTokenExpirationMs int64  `json:"accessTokenExpirationMs"`
}

func handleLogin(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Name       string `json:"name" validate:"required,max=200"`
		Department string `json:"department" validate:"max=200"`
		Role       string `json:"role" validate:"omitempty,oneof=admin employee corps_member"`
		Password   string `json:"password"`
	}
	type employeeResponse struct {
		tokensResponse
		Name string      `json:"name"`
		Role models.Role `json:"role"`
	}
	type corpsMember struct {
		ID         uuid.UUID   `json:"id"`
		Name       string      `json:"name"`
		Department string      `json:"department"`
		Role       models.Role `json:"role"`
	}
	type corpsMemberResponse struct {
		Message     string      `json:"message"`
		CorpsMember corpsMember `json:"corpsMember"`
		Created     bool        `json:"created"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := authService.Login(r.Context(), auth.LoginParams{
			Name:       data.Name,
			Department: data.Department,
			Role:       models.Role(data.Role),
			Password:   data.Password,
			ClientID:   clientip.FromRequest(r),
			DeviceInfo: r.UserAgent(),
		})
		if err != nil {
			renderAuthError(w, err, logger)
			return
		}

		switch p := res.Principal.(type) {
		case *models.Employee:
			authService.SetTokens(w, res.Tokens)
			render.JSON(w, employeeResponse{
				tokensResponse: tokensResponse{
					Message:                 "Logged in successfully",
					AccessToken:             res.Tokens.Access.Value,
					AccessTokenExpirationMs: authService.AccessTokenLifetime(res.Tokens.Access.Value).Milliseconds(),
				},
				Name: p.Name,
				Role: p.PrincipalRole(),
			})
		case *models.CorpsMember:
			message := "Corps member recognized"
			if res.Created {
				message = "Corps member registered"
			}
			render.JSON(w, corpsMemberResponse{
				Message:     message,
				CorpsMember: corpsMember{ID: p.ID, Name: p.Name, Department: p.Department, Role: p.PrincipalRole()},
				Created:     res.Created,
			})
		default:
			logger.Error("login returned unknown principal", "principal", res.Principal)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// renderAuthError maps login and password change failures
func renderAuthError(w http.ResponseWriter, err error, logger logger.Logger) {
	var (
		rateLimitErr   *apperrors.RateLimitError
		credentialsErr *apperrors.CredentialsError
		expiredErr     *apperrors.PasswordExpiredError
	)

	switch {
	case errors.As(err, &rateLimitErr):
		seconds := int(math.Ceil(rateLimitErr.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		render.Error(w, rateLimitedErrorType, "Too many login attempts", map[string]any{
			"retryAfterMinutes": rateLimitErr.RetryAfterMinutes(),
			"remainingAttempts": 0,
		}, http.StatusTooManyRequests)
	case errors.As(err, &credentialsErr):
		render.Error(w, invalidCredentialsErrorType, "Invalid credentials", map[string]any{
			"remainingAttempts": credentialsErr.RemainingAttempts,
		}, http.StatusUnauthorized)
	case errors.As(err, &expiredErr):
		render.Error(w, passwordExpiredErrorType, "Password expired, it has to be changed", map[string]any{
			"passwordExpiredAt": expiredErr.ExpiredAt.Format(time.RFC3339),
		}, http.StatusForbidden)
	case errors.Is(err, apperrors.ErrPasswordRequired):
		render.Error(w, passwordRequiredErrorType, "Password required", nil, http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrDepartmentRequired):
		render.Error(w, departmentRequiredErrorType, "Department required", nil, http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrPasswordUnchanged):
		render.Error(w, passwordUnchangedErrorType, "New password must differ from the current one", nil, http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		logger.Error("store unavailable", "error", err)
		render.Error(w, storeUnavailableErrorType, "Service temporarily unavailable", nil, http.StatusServiceUnavailable)
	default:
		logger.Error("auth request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleChangePassword works without access token, employee with expired password can't get one
func handleChangePassword(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Name        string `json:"name" validate:"required,max=200"`
		Department  string `json:"department" validate:"max=200"`
		OldPassword string `json:"oldPassword" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,max=200"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = authService.ChangePassword(r.Context(), auth.ChangePasswordParams{
			Name:        data.Name,
			Department:  data.Department,
			OldPassword: data.OldPassword,
			NewPassword: data.NewPassword,
			ClientID:    clientip.FromRequest(r),
		})
		if err != nil {
			renderAuthError(w, err, logger)
			return
		}

		// Every session was revoked, including the one of this client if any
		authService.ClearRefreshCookie(w)
		w.WriteHeader(http.StatusNoContent)
	})
}

func handleRefresh(authService authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := authService.GetRefreshString(r)
		if err != nil {
			render.ServiceError(w, "Invalid refresh token", http.StatusUnauthorized)
			return
		}

		pair, err := authService.Refresh(r.Context(), refresh, r.UserAgent())
		switch {
		case errors.Is(err, apperrors.ErrStoreUnavailable):
			logger.Error("refresh failed, store unavailable", "error", err)
			render.Error(w, storeUnavailableErrorType, "Service temporarily unavailable", nil, http.StatusServiceUnavailable)
			return
		case err != nil:
			render.ServiceError(w, "Invalid refresh token", http.StatusUnauthorized)
			return
		}

		authService.SetTokens(w, pair)
		render.JSON(w, tokensResponse{
			Message:                 "Tokens refreshed successfully",
			AccessToken:             pair.Access.Value,
			AccessTokenExpirationMs: authService.AccessTokenLifetime(pair.Access.Value).Milliseconds(),
		})
	})
}

func handleLogout(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		AllDevices bool `json:"allDevices"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Body is optional
		var data request
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
			render.DecodeError(w, err)
			return
		}

		// Client is logged out whatever happens to the token
		authService.ClearRefreshCookie(w)

		refresh, err := authService.GetRefreshString(r)
		if err == nil {
			_, err = authService.Logout(r.Context(), refresh, data.AllDevices)
			if errors.Is(err, apperrors.ErrStoreUnavailable) {
				logger.Error("logout could not revoke tokens", "error", err)
			}
		}

		render.JSON(w, response{Message: "Logged out"})
	})
}

func handleRateLimit(authService authService) http.Handler {
	type response struct {
		RemainingAttempts int   `json:"remainingAttempts"`
		RetryAfterSeconds int64 `json:"retryAfterSeconds"`
		RetryAfterMinutes int   `json:"retryAfterMinutes"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, retryAfter := authService.RateLimitStatus(clientip.FromRequest(r))

		render.JSON(w, response{
			RemainingAttempts: remaining,
			RetryAfterSeconds: int64(math.Ceil(retryAfter.Seconds())),
			RetryAfterMinutes: apperrors.CeilMinutes(retryAfter),
		})
	})
}
