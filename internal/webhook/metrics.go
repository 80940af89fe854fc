package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitguard_webhook_deliveries_total",
			Help: "Final webhook delivery outcomes by status.",
		},
		[]string{"status"},
	)
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitguard_webhook_attempts_total",
			Help: "Webhook HTTP attempts by outcome.",
		},
		[]string{"outcome"},
	)
	attemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visitguard_webhook_attempt_duration_seconds",
			Help:    "Duration of webhook HTTP attempts.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)
	signatureChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitguard_webhook_signature_checks_total",
			Help: "Inbound signature validations by result.",
		},
		[]string{"result"},
	)
)
