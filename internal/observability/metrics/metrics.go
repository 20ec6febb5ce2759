package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	SignInsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_signins_total",
			Help: "Total number of sign-in attempts.",
		},
		[]string{"service", "result"},
	)

	SessionsIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_sessions_issued_total",
			Help: "Total number of sessions created or renewed.",
		},
		[]string{"service", "flow", "result"},
	)

	SessionsPrunedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_sessions_pruned_total",
			Help: "Sessions disabled by the concurrency cap or deleted by history retention.",
		},
		[]string{"service", "pass"},
	)

	ProxyAuthTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_proxy_auth_total",
			Help: "Proxy authentication outcomes.",
		},
		[]string{"service", "endpoint", "result"},
	)

	TokenVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_token_verifications_total",
			Help: "Sealed and signed token verification outcomes.",
		},
		[]string{"service", "kind", "result"},
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": serviceName}).(*prometheus.HistogramVec)
	SignInsTotal = SignInsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	SessionsIssuedTotal = SessionsIssuedTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	SessionsPrunedTotal = SessionsPrunedTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	ProxyAuthTotal = ProxyAuthTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	TokenVerificationsTotal = TokenVerificationsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		SignInsTotal,
		SessionsIssuedTotal,
		SessionsPrunedTotal,
		ProxyAuthTotal,
		TokenVerificationsTotal,
	)
}
