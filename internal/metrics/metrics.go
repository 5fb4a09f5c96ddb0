package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larpledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "larpledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larpledger_gateway_webhooks_total",
			Help: "Gateway webhook deliveries by provider and outcome",
		},
		[]string{"provider", "result"},
	)

	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larpledger_settlements_total",
			Help: "Invoice settlements applied, by invoice type",
		},
		[]string{"type"},
	)

	InvoicesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larpledger_invoices_created_total",
			Help: "Payment invoices created, by method",
		},
		[]string{"method"},
	)

	TokenCreditAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larpledger_token_credit_applied_total",
			Help: "Token/credit ledger applications by kind and direction",
		},
		[]string{"kind", "direction"},
	)

	AccountingRecomputesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "larpledger_accounting_recomputes_total",
			Help: "Registration accounting recomputations",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larpledger_notifications_total",
			Help: "Deferred notifications by type and status",
		},
		[]string{"type", "status"},
	)

	NotifyQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "larpledger_notify_queue_length",
			Help: "Current length of the deferred notification queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordWebhook(provider, result string) {
	WebhooksTotal.WithLabelValues(provider, result).Inc()
}

func RecordSettlement(invoiceType string) {
	SettlementsTotal.WithLabelValues(invoiceType).Inc()
}

func RecordInvoiceCreated(method string) {
	InvoicesCreatedTotal.WithLabelValues(method).Inc()
}

func RecordTokenCredit(kind, direction string) {
	TokenCreditAppliedTotal.WithLabelValues(kind, direction).Inc()
}

func RecordRecompute() {
	AccountingRecomputesTotal.Inc()
}

func RecordNotification(notifType, status string) {
	NotificationsTotal.WithLabelValues(notifType, status).Inc()
}
