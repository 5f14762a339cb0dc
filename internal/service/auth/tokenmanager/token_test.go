package tokenmanager

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/clock"
	"github.com/nkiryanov/clearance/internal/models"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

func newManager(t *testing.T, c clock.Clock) *TokenManager {
	t.Helper()
	m, err := New(Config{SecretKey: "test-secret-key", AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour, Clock: c})
	require.NoError(t, err, "token manager should be created without errors")
	return m
}

func Test_New(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err, "token manager should be created without errors")

		assert.Equal(t, []byte("secret"), m.key, "secret key should be set")
		assert.Equal(t, defaultAccessTokenTTL, m.accessTTL, "default access token TTL should be set")
		assert.Equal(t, defaultRefreshTokenTTL, m.refreshTTL, "default refresh token TTL")
		assert.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
		assert.IsType(t, clock.System{}, m.clock)
	})

	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty secret", Config{}},
		{"unknown alg", Config{SecretKey: "secret", Alg: "HS1024"}},
		{"asymmetric alg", Config{SecretKey: "secret", Alg: "RS256"}},
		{"none alg", Config{SecretKey: "secret", Alg: "none"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)

			require.ErrorIs(t, err, apperrors.ErrSigningMisconfigured)
		})
	}
}

func Test_TokenManager(t *testing.T) {
	now := mustParseTime("2024-01-01 10:00:00Z")
	family := uuid.New()

	t.Run("issue and decode access", func(t *testing.T) {
		m := newManager(t, clock.NewFake(now))

		access, err := m.IssueAccess("user-1")
		require.NoError(t, err)
		assert.Equal(t, now.Add(15*time.Minute), access.ExpiresAt)

		payload, err := m.Decode(access.Value)

		require.NoError(t, err)
		assert.Equal(t, "user-1", payload.Subject)
		assert.Equal(t, models.TokenTypeAccess, payload.Type)
		assert.Equal(t, uuid.Nil, payload.Family)
		assert.True(t, now.Equal(payload.IssuedAt))
		assert.True(t, access.ExpiresAt.Equal(payload.ExpiresAt))
		assert.NotEmpty(t, payload.ID)
	})

	t.Run("issue and decode refresh", func(t *testing.T) {
		m := newManager(t, clock.NewFake(now))

		refresh, err := m.IssueRefresh("user-1", family)
		require.NoError(t, err)
		assert.Equal(t, now.Add(24*time.Hour), refresh.ExpiresAt)

		payload, err := m.Decode(refresh.Value)

		require.NoError(t, err)
		assert.Equal(t, "user-1", payload.Subject)
		assert.Equal(t, models.TokenTypeRefresh, payload.Type)
		assert.Equal(t, family, payload.Family)
	})

	t.Run("refresh requires family", func(t *testing.T) {
		m := newManager(t, clock.NewFake(now))

		_, err := m.IssueRefresh("user-1", uuid.Nil)

		require.Error(t, err)
	})

	t.Run("tokens issued in same second differ", func(t *testing.T) {
		m := newManager(t, clock.NewFake(now))

		first, err := m.IssueRefresh("user-1", family)
		require.NoError(t, err)
		second, err := m.IssueRefresh("user-1", family)
		require.NoError(t, err)

		assert.NotEqual(t, first.Value, second.Value)
	})

	t.Run("expired token returns payload with error", func(t *testing.T) {
		c := clock.NewFake(now)
		m := newManager(t, c)
		refresh, err := m.IssueRefresh("user-1", family)
		require.NoError(t, err)

		c.Advance(24*time.Hour + time.Second)
		payload, err := m.Decode(refresh.Value)

		require.ErrorIs(t, err, apperrors.ErrExpiredToken)
		assert.Equal(t, "user-1", payload.Subject, "payload must be returned for expired token")
		assert.Equal(t, family, payload.Family)
	})

	t.Run("token signed with other key", func(t *testing.T) {
		m := newManager(t, clock.NewFake(now))
		other, err := New(Config{SecretKey: "other-key", Clock: clock.NewFake(now)})
		require.NoError(t, err)
		access, err := other.IssueAccess("user-1")
		require.NoError(t, err)

		_, err = m.Decode(access.Value)

		require.ErrorIs(t, err, apperrors.ErrMalformedToken)
	})

	t.Run("tampered token", func(t *testing.T) {
		m := newManager(t, clock.NewFake(now))
		access, err := m.IssueAccess("user-1")
		require.NoError(t, err)
		parts := strings.Split(access.Value, ".")
		parts[1] = parts[1] + "x"

		_, err = m.Decode(strings.Join(parts, "."))

		require.ErrorIs(t, err, apperrors.ErrMalformedToken)
	})

	t.Run("garbage", func(t *testing.T) {
		m := newManager(t, clock.NewFake(now))

		_, err := m.Decode("not-a-jwt")

		require.ErrorIs(t, err, apperrors.ErrMalformedToken)
	})

	t.Run("other algorithm rejected", func(t *testing.T) {
		m := newManager(t, clock.NewFake(now))
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
			Type:             models.TokenTypeAccess,
		})
		signed, err := token.SignedString([]byte("test-secret-key"))
		require.NoError(t, err)

		_, err = m.Decode(signed)

		require.ErrorIs(t, err, apperrors.ErrMalformedToken)
	})

	t.Run("claims shape", func(t *testing.T) {
		m := newManager(t, clock.NewFake(now))
		sign := func(c Claims) string {
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("test-secret-key"))
			require.NoError(t, err)
			return signed
		}
		exp := jwt.NewNumericDate(now.Add(time.Hour))

		tests := []struct {
			name   string
			claims Claims
		}{
			{"no subject", Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}, Type: models.TokenTypeAccess}},
			{"unknown type", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u", ExpiresAt: exp}, Type: "id"}},
			{"refresh without family", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u", ExpiresAt: exp}, Type: models.TokenTypeRefresh}},
			{"refresh with bad family", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u", ExpiresAt: exp}, Type: models.TokenTypeRefresh, Family: "xyz"}},
			{"no expiration", Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u"}, Type: models.TokenTypeAccess}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := m.Decode(sign(tt.claims))

				require.ErrorIs(t, err, apperrors.ErrMalformedToken)
			})
		}
	})

	t.Run("remaining lifetime", func(t *testing.T) {
		c := clock.NewFake(now)
		m := newManager(t, c)
		access, err := m.IssueAccess("user-1")
		require.NoError(t, err)

		assert.Equal(t, 15*time.Minute, m.RemainingLifetime(access.Value))

		c.Advance(10 * time.Minute)
		assert.Equal(t, 5*time.Minute, m.RemainingLifetime(access.Value))

		c.Advance(time.Hour)
		assert.Zero(t, m.RemainingLifetime(access.Value), "expired token has no lifetime left")

		assert.Zero(t, m.RemainingLifetime("garbage"))
	})
}
