package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/clock"
	"github.com/nkiryanov/clearance/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 24 * time.Hour
)

type Claims struct {
	jwt.RegisteredClaims
	Type   models.TokenType `json:"token_type"`
	Family string           `json:"family,omitempty"`
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm, one of HS256, HS384, HS512
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// System clock if not set
	Clock clock.Clock
}

// TokenManager issues and verifies signed access and refresh tokens
// It never touches storage: refresh token bookkeeping belongs to the credentials store
type TokenManager struct {
	key []byte
	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration

	clock     clock.Clock
	validator *jwt.Validator
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: secret key must not be empty", apperrors.ErrSigningMisconfigured)
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", apperrors.ErrSigningMisconfigured, cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field <= 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	return &TokenManager{
		key:        []byte(cfg.SecretKey),
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		clock:      cfg.Clock,
		validator:  jwt.NewValidator(jwt.WithTimeFunc(cfg.Clock.Now), jwt.WithExpirationRequired()),
	}, nil
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// Issue short lived access token for the subject
func (m *TokenManager) IssueAccess(subject string) (models.IssuedToken, error) {
	return m.issue(subject, models.TokenTypeAccess, uuid.Nil, m.accessTTL)
}

// Issue refresh token bound to the family
func (m *TokenManager) IssueRefresh(subject string, family uuid.UUID) (models.IssuedToken, error) {
	if family == uuid.Nil {
		return models.IssuedToken{}, errors.New("refresh token requires family")
	}
	return m.issue(subject, models.TokenTypeRefresh, family, m.refreshTTL)
}

func (m *TokenManager) issue(subject string, tokenType models.TokenType, family uuid.UUID, ttl time.Duration) (models.IssuedToken, error) {
	// JWT dates have seconds precision, so truncate to report exactly what is signed
	now := m.clock.Now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type: tokenType,
	}
	if family != uuid.Nil {
		claims.Family = family.String()
	}

	signed, err := jwt.NewWithClaims(m.alg, claims).SignedString(m.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing %s token. Err: %w", tokenType, err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Decode verifies signature and claims
// For expired but otherwise valid token the payload is returned together with apperrors.ErrExpiredToken
func (m *TokenManager) Decode(raw string) (models.TokenPayload, error) {
	claims, err := m.parse(raw)
	if err != nil {
		return models.TokenPayload{}, err
	}

	payload, err := toPayload(claims)
	if err != nil {
		return models.TokenPayload{}, err
	}

	if err := m.validator.Validate(claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return payload, apperrors.ErrExpiredToken
		}
		return models.TokenPayload{}, fmt.Errorf("%w: %w", apperrors.ErrMalformedToken, err)
	}

	return payload, nil
}

// RemainingLifetime returns time left before token expires
// Zero for expired or not decodable token
func (m *TokenManager) RemainingLifetime(raw string) time.Duration {
	claims, err := m.parse(raw)
	if err != nil || claims.ExpiresAt == nil {
		return 0
	}
	return max(claims.ExpiresAt.Sub(m.clock.Now()), 0)
}

// Parse and check signature only, claims are validated by caller
func (m *TokenManager) parse(raw string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(t *jwt.Token) (any, error) {
			return m.key, nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrMalformedToken, err)
	}

	return claims, nil
}

func toPayload(c *Claims) (models.TokenPayload, error) {
	if c.Subject == "" {
		return models.TokenPayload{}, fmt.Errorf("%w: no subject", apperrors.ErrMalformedToken)
	}

	payload := models.TokenPayload{
		ID:      c.ID,
		Subject: c.Subject,
		Type:    c.Type,
	}
	if c.IssuedAt != nil {
		payload.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		payload.ExpiresAt = c.ExpiresAt.Time
	}

	switch c.Type {
	case models.TokenTypeAccess:
	case models.TokenTypeRefresh:
		family, err := uuid.Parse(c.Family)
		if err != nil || family == uuid.Nil {
			return models.TokenPayload{}, fmt.Errorf("%w: refresh token without family", apperrors.ErrMalformedToken)
		}
		payload.Family = family
	default:
		return models.TokenPayload{}, fmt.Errorf("%w: unknown token type %q", apperrors.ErrMalformedToken, c.Type)
	}

	return payload, nil
}
