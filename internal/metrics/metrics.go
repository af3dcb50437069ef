// Package metrics holds the Prometheus collectors of the auth server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	ResultOK          = "ok"
	ResultDenied      = "denied"
	ResultForbidden   = "forbidden"
	ResultRateLimited = "rate_limited"
	ResultError       = "error"
)

// Metrics groups the counters and histograms; a nil *Metrics records nothing.
type Metrics struct {
	LoginAttempts   *prometheus.CounterVec
	Registrations   *prometheus.CounterVec
	TokenRefreshes  *prometheus.CounterVec
	Logouts         *prometheus.CounterVec
	GuardDecisions  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_auth_login_attempts_total",
			Help: "The total number of login attempts",
		}, []string{"status"}),
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_auth_registration_attempts_total",
			Help: "The total number of registration attempts",
		}, []string{"status"}),
		TokenRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_auth_token_refresh_total",
			Help: "The total number of token refreshes",
		}, []string{"status"}),
		Logouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_auth_logout_steps_total",
			Help: "Logout steps by kind (access, refresh) and status",
		}, []string{"step", "status"}),
		GuardDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_auth_guard_decisions_total",
			Help: "Bearer guard decisions by status",
		}, []string{"status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "panel_auth_request_duration_seconds",
			Help:    "The request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
}

// Login counts a login outcome.
func (m *Metrics) Login(status string) {
	if m != nil {
		m.LoginAttempts.WithLabelValues(status).Inc()
	}
}

// Register counts a registration outcome.
func (m *Metrics) Register(status string) {
	if m != nil {
		m.Registrations.WithLabelValues(status).Inc()
	}
}

// Refresh counts a refresh outcome.
func (m *Metrics) Refresh(status string) {
	if m != nil {
		m.TokenRefreshes.WithLabelValues(status).Inc()
	}
}

// Logout counts one logout step.
func (m *Metrics) Logout(step, status string) {
	if m != nil {
		m.Logouts.WithLabelValues(step, status).Inc()
	}
}

// Guard counts a guard decision.
func (m *Metrics) Guard(status string) {
	if m != nil {
		m.GuardDecisions.WithLabelValues(status).Inc()
	}
}

// ObserveRequest records an HTTP request duration.
func (m *Metrics) ObserveRequest(method, route, code string, seconds float64) {
	if m != nil {
		m.RequestDuration.WithLabelValues(method, route, code).Observe(seconds)
	}
}
