package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "hr_intake"
	metricsSubsystem = "http"
)

// Series are keyed by the registered route, never the raw URL, so card ids
// and unmatched paths cannot blow up cardinality.
var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_total",
		Help:      "HTTP requests by surface, route and status.",
	}, []string{"surface", "method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		// webhook handling includes Bitrix round trips
		Buckets: []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 20},
	}, []string{"surface", "route"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_inflight",
		Help:      "HTTP requests being served.",
	})

	httpResponseBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "response_size_bytes",
		Help:      "HTTP response body size.",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 9),
	}, []string{"surface", "route"})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, httpInflight, httpResponseBytes)
}

// unmatchedRoute labels requests that hit no route.
const unmatchedRoute = "unmatched"

// Metrics instruments every request. Mount /metrics next to it with
// promhttp.Handler().
func Metrics(webhookPath, opsPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		s := surface(route, webhookPath, opsPrefix)
		httpRequests.WithLabelValues(s, c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(s, route).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n >= 0 {
			httpResponseBytes.WithLabelValues(s, route).Observe(float64(n))
		}
	}
}

// surface groups routes into webhook, ops and system (health, metrics,
// unmatched).
func surface(route, webhookPath, opsPrefix string) string {
	switch {
	case webhookPath != "" && route == webhookPath:
		return "webhook"
	case opsPrefix != "" && opsPrefix != "/" && strings.HasPrefix(route, opsPrefix+"/"):
		return "ops"
	}
	return "system"
}
