package bot

import "github.com/prometheus/client_golang/prometheus"

var (
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_total",
			Help: "Inbound Telegram updates by kind.",
		},
		[]string{"kind"},
	)
	duplicateUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_updates_duplicate_total",
			Help: "Re-delivered updates dropped by the update log.",
		},
	)
	adminCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_admin_commands_total",
			Help: "Staff commands by name and outcome.",
		},
		[]string{"command", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(updatesTotal, duplicateUpdates, adminCommands)
}
