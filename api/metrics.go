package api

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mortasa/storefront/access"
)

// Login outcomes.
const (
	loginSuccess     = "success"
	loginInvalid     = "invalid_code"
	loginMissing     = "missing_code"
	loginRateLimited = "rate_limited"
	loginError       = "error"
)

// Revocation causes.
const (
	revocationCascade      = "cascade"
	revocationRevalidation = "revalidation"
	revocationLogout       = "logout"
)

// Metrics holds the prometheus collectors for admin access.
type Metrics struct {
	reg         prometheus.Registerer
	logins      *prometheus.CounterVec
	revocations *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. Collectors
// already registered with reg are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{reg: reg}
	m.logins = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "admin",
		Name:      "logins_total",
		Help:      "Admin login attempts by outcome.",
	}, []string{"outcome"}))
	m.revocations = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "admin",
		Name:      "session_revocations_total",
		Help:      "Admin sessions revoked, by cause.",
	}, []string{"cause"}))
	return m
}

// observeSessions exports the registry size as a gauge.
func (m *Metrics) observeSessions(sessions *access.SessionRegistry) {
	registerOrReuse(m.reg, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "storefront",
		Subsystem: "admin",
		Name:      "sessions",
		Help:      "Admin sessions currently held in memory.",
	}, func() float64 { return float64(sessions.Len()) }))
}

func (m *Metrics) recordLogin(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordRevocation(cause string, n int) {
	if n <= 0 {
		return
	}
	m.revocations.WithLabelValues(cause).Add(float64(n))
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
