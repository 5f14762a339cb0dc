// Package metrics exposes prometheus collectors for the auth core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clearance"

// Login outcomes
const (
	LoginSucceeded       = "succeeded"
	LoginProvisioned     = "provisioned"
	LoginInvalid         = "invalid_credentials"
	LoginRateLimited     = "rate_limited"
	LoginPasswordExpired = "password_expired"
	LoginPasswordMissing = "password_required"
)

// Refresh outcomes
const (
	RefreshRotated = "rotated"
	RefreshInvalid = "invalid"
	RefreshReuse   = "reuse_detected"
	RefreshFailed  = "failed"
)

type Metrics struct {
	logins         *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	revokedTokens  prometheus.Counter
	sweptTokens    prometheus.Counter
	limiterWindows prometheus.Gauge
}

// New creates collectors and registers them in reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Refresh token exchanges by outcome.",
		}, []string{"outcome"}),
		revokedTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_tokens_revoked_total",
			Help:      "Refresh token records revoked by logout, rotation or reuse detection.",
		}),
		sweptTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_tokens_swept_total",
			Help:      "Expired or revoked refresh token records deleted by the janitor.",
		}),
		limiterWindows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "login_limiter_windows",
			Help:      "Client identifiers currently tracked by the login rate limiter.",
		}),
	}

	reg.MustRegister(m.logins, m.refreshes, m.revokedTokens, m.sweptTokens, m.limiterWindows)

	return m
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Revoked(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.revokedTokens.Add(float64(count))
}

func (m *Metrics) Swept(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.sweptTokens.Add(float64(count))
}

func (m *Metrics) LimiterWindows(n int) {
	if m == nil {
		return
	}
	m.limiterWindows.Set(float64(n))
}
