package auth

import (
	"errors"
	"fmt"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/clock"
	"github.com/nkiryanov/clearance/internal/logger"
	"github.com/nkiryanov/clearance/internal/metrics"
	"github.com/nkiryanov/clearance/internal/repository"
	"github.com/nkiryanov/clearance/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/clearance/internal/service/credentials"
	"github.com/nkiryanov/clearance/internal/service/ratelimit"
)

const (
	defaultAccessHeaderName     = "Authorization"
	defaultAccessAuthScheme     = "Bearer"
	defaultRefreshCookieName    = "refreshtoken"
	defaultPasswordExpiryMonths = 3

	// Compared against when employee is unknown, so both failures take the same time
	dummyPassword = "dummy-password-for-timing"
)

// Interface to create or compare password and refresh token hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type Config struct {
	// Hasher for passwords and refresh tokens
	// BcryptHasher with default cost if not set
	Hasher PasswordHasher

	// Password is not accepted after this number of months without change
	PasswordExpiryMonths int

	// Where access token is sent: header 'Authorization: Bearer <token>' by default
	AccessHeaderName string
	AccessAuthScheme string

	// Name of HttpOnly cookie refresh token is kept in
	RefreshCookieName string

	// Send refresh cookie over https only
	CookieSecure bool

	Clock   clock.Clock
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Auth service
// Composes token manager, refresh token store and login rate limiter
type AuthService struct {
	storage     repository.Storage
	tokens      *tokenmanager.TokenManager
	credentials *credentials.Store
	limiter     *ratelimit.Limiter

	hasher    PasswordHasher
	dummyHash string

	passwordExpiryMonths int
	accessHeaderName     string
	accessAuthScheme     string
	refreshCookieName    string
	cookieSecure         bool

	clock   clock.Clock
	log     logger.Logger
	metrics *metrics.Metrics
}

func NewService(cfg Config, storage repository.Storage, tokens *tokenmanager.TokenManager, limiter *ratelimit.Limiter) (*AuthService, error) {
	if storage == nil || tokens == nil || limiter == nil {
		return nil, errors.New("storage, token manager and limiter must not be nil")
	}

	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)

	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{}
	}
	if cfg.PasswordExpiryMonths <= 0 {
		cfg.PasswordExpiryMonths = defaultPasswordExpiryMonths
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	dummyHash, err := cfg.Hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("hasher is not usable. Err: %w", err)
	}

	return &AuthService{
		storage:              storage,
		tokens:               tokens,
		credentials:          credentials.New(storage.Refresh(), cfg.Hasher, cfg.Clock),
		limiter:              limiter,
		hasher:               cfg.Hasher,
		dummyHash:            dummyHash,
		passwordExpiryMonths: cfg.PasswordExpiryMonths,
		accessHeaderName:     cfg.AccessHeaderName,
		accessAuthScheme:     cfg.AccessAuthScheme,
		refreshCookieName:    cfg.RefreshCookieName,
		cookieSecure:         cfg.CookieSecure,
		clock:                cfg.Clock,
		log:                  cfg.Logger,
		metrics:              cfg.Metrics,
	}, nil
}

// storeError makes sure storage failure is reported as apperrors.ErrStoreUnavailable
func storeError(err error) error {
	if errors.Is(err, apperrors.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
}
