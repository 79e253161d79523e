package blast

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// sendsTotal - messages handed to the server
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailblast_sends_total",
			Help: "Number of messages sent, by result",
		},
		[]string{"result"},
	)

	// sendDuration - time of one MAIL/RCPT/DATA transaction
	sendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailblast_send_duration_seconds",
			Help:    "Duration of one SMTP send",
			Buckets: prometheus.DefBuckets,
		},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailblast_active_sessions",
			Help: "Number of open SMTP sessions",
		},
	)

	reconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailblast_reconnects_total",
			Help: "Number of SMTP reconnects, by reason",
		},
		[]string{"reason"},
	)

	workersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailblast_workers_total",
			Help: "Number of finished workers, by outcome",
		},
		[]string{"outcome"},
	)
)

const (
	reasonPolicy     = "policy"
	reasonDisconnect = "disconnect"

	outcomeDone    = "done"
	outcomeAborted = "aborted"
	outcomeFailed  = "failed"
)

func init() {
	prometheus.MustRegister(sendsTotal)
	prometheus.MustRegister(sendDuration)
	prometheus.MustRegister(activeSessions)
	prometheus.MustRegister(reconnectsTotal)
	prometheus.MustRegister(workersTotal)
}
