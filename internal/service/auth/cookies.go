package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/models"
)

var errNoAccessToken = errors.New("access token not found")

// SetTokens puts access token to response header and refresh token to HttpOnly cookie
// Refresh token is never put to response body
func (s *AuthService) SetTokens(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	s.SetRefreshCookie(w, pair.Refresh)
}

func (s *AuthService) SetRefreshCookie(w http.ResponseWriter, refresh models.IssuedToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    refresh.Value,
		Path:     "/",
		Expires:  refresh.ExpiresAt,
		MaxAge:   max(int(refresh.ExpiresAt.Sub(s.clock.Now()).Seconds()), 1),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearRefreshCookie asks client to drop refresh cookie
func (s *AuthService) ClearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetRefreshString returns refresh token from request cookie
func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return "", apperrors.ErrInvalidRefreshToken
	}
	if cookie.Value == "" {
		return "", apperrors.ErrInvalidRefreshToken
	}
	return cookie.Value, nil
}

// GetAccessString returns access token from 'Authorization: Bearer <token>' header
func (s *AuthService) GetAccessString(r *http.Request) (string, error) {
	header := r.Header.Get(s.accessHeaderName)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, s.accessAuthScheme) || token == "" {
		return "", errNoAccessToken
	}
	return strings.TrimSpace(token), nil
}

// AuthenticateRequest returns employee the request access token belongs to
func (s *AuthService) AuthenticateRequest(ctx context.Context, r *http.Request) (models.Employee, error) {
	access, err := s.GetAccessString(r)
	if err != nil {
		return models.Employee{}, err
	}
	return s.Authenticate(ctx, access)
}
