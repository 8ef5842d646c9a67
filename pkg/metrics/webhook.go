package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts inbound vendor callbacks per source and outcome.
type WebhookMetrics struct {
	received *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

// NewWebhookMetrics registers webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_received_total",
		Help: "Inbound webhook deliveries by source.",
	}, []string{"source"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_rejected_total",
		Help: "Webhook deliveries rejected before processing.",
	}, []string{"source", "reason"})
	reg.MustRegister(received, rejected)
	return &WebhookMetrics{received: received, rejected: rejected}
}

// IncReceived counts one delivery from the named source.
func (w *WebhookMetrics) IncReceived(source string) {
	if w == nil || w.received == nil {
		return
	}
	w.received.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncRejected counts one rejected delivery with the given reason.
func (w *WebhookMetrics) IncRejected(source, reason string) {
	if w == nil || w.rejected == nil {
		return
	}
	w.rejected.WithLabelValues(normalizeLabel(source), normalizeLabel(reason)).Inc()
}
