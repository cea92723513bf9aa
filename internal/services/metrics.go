package services

import "github.com/prometheus/client_golang/prometheus"

var (
	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_submissions_total",
			Help: "Finalized submissions by outcome (ok|no_case|failed).",
		},
		[]string{"outcome"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_status_transitions_total",
			Help: "Operator status actions applied to cards.",
		},
		[]string{"action"},
	)

	attachmentFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "intake_attachment_send_failures_total",
			Help: "Attachments that could not be forwarded to the staff chat.",
		},
	)
)

func init() {
	prometheus.MustRegister(submissions, transitions, attachmentFailures)
}
