// Package metrics defines the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_ws_connections",
		Help: "Current number of active websocket connections",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_online_users",
		Help: "Current number of users with at least one open connection",
	})
	MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_messages_delivered_total",
		Help: "Total number of chat messages persisted and fanned out",
	})
	MessageFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_message_failures_total",
		Help: "Total number of rejected or failed message submissions",
	})
	PresenceTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_presence_transitions_total",
		Help: "Total presence transitions broadcast, by resulting status",
	}, []string{"status"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		OnlineUsers,
		MessagesDelivered,
		MessageFailures,
		PresenceTransitions,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// Middleware records basic request metrics for every route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"status": strconv.Itoa(ww.Status()),
		}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}
