package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Auth holds the session-lifecycle counters. Result labels are error kinds or "ok".
type Auth struct {
	Logins        *prometheus.CounterVec
	Refreshes     *prometheus.CounterVec
	ReuseDetected prometheus.Counter
}

func NewAuth(reg prometheus.Registerer) *Auth {
	m := &Auth{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erms",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erms",
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Refresh attempts by result.",
		}, []string{"result"}),
		ReuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "erms",
			Subsystem: "auth",
			Name:      "reuse_detected_total",
			Help:      "Refresh tokens presented after rotation or revocation.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Logins, m.Refreshes, m.ReuseDetected)
	}
	return m
}

// HTTP holds request metrics recorded by the gin middleware.
type HTTP struct {
	Duration *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "erms",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.Duration)
	}
	return m
}
