package bitrix

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// bitrixCalls counts REST calls by method and outcome (ok|error).
	bitrixCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitrix_calls_total",
			Help: "Total number of Bitrix24 REST calls.",
		},
		[]string{"method", "outcome"},
	)

	// bitrixLat records call duration including throttling.
	bitrixLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bitrix_call_duration_seconds",
			Help:    "Duration of Bitrix24 REST calls in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(bitrixCalls, bitrixLat)
}

func observeCall(method string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	bitrixCalls.WithLabelValues(method, outcome).Inc()
	bitrixLat.WithLabelValues(method).Observe(d.Seconds())
}
