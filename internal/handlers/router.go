package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nkiryanov/clearance/internal/handlers/middleware"
	"github.com/nkiryanov/clearance/internal/logger"
	"github.com/nkiryanov/clearance/internal/models"
	"github.com/nkiryanov/clearance/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

// NewRouter mounts auth api under /api/auth and metrics exposition under /metrics
// metrics may be nil, then /metrics is not served
func NewRouter(authService authService, metrics http.Handler, logger logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /login", handleLogin(authService, logger))
	apiauth.Handle("POST /change-password", handleChangePassword(authService, logger))
	apiauth.Handle("POST /refresh", handleRefresh(authService, logger))
	apiauth.Handle("POST /logout", handleLogout(authService, logger))
	apiauth.Handle("GET /rate-limit", handleRateLimit(authService))
	apiauth.Handle("GET /sessions", withAuth(handleSessions(authService, logger)))
	apiauth.Handle("GET /me", withAuth(handleMe()))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	if metrics != nil {
		root.Handle("GET /metrics", metrics)
	}

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Login employee by password or register corps member without it
	// Errors are described on auth.AuthService.Login
	Login(ctx context.Context, p auth.LoginParams) (auth.LoginResult, error)

	// Replace password checked the same way as login, works for expired password
	// Errors are described on auth.AuthService.ChangePassword
	ChangePassword(ctx context.Context, p auth.ChangePasswordParams) error

	// Rotate refresh token
	// Has to return apperrors.ErrInvalidRefreshToken for any token problem
	Refresh(ctx context.Context, raw string, deviceInfo string) (models.TokenPair, error)

	// Revoke token family or every family of the token owner
	Logout(ctx context.Context, raw string, allDevices bool) (int64, error)

	ActiveSessionCount(ctx context.Context, owner string) (int64, error)
	RateLimitStatus(clientID string) (remaining int, retryAfter time.Duration)
	AccessTokenLifetime(access string) time.Duration

	// Set access token header and refresh token cookie
	SetTokens(w http.ResponseWriter, pair models.TokenPair)
	ClearRefreshCookie(w http.ResponseWriter)

	// Get refresh token from request cookie
	GetRefreshString(r *http.Request) (string, error)

	// Get request and return employee if it authenticated or error
	AuthenticateRequest(ctx context.Context, r *http.Request) (models.Employee, error)
}
