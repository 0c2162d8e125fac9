package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for the conversation pipeline.
type BotMetrics struct {
	inboundTotal    *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	generationTotal *prometheus.CounterVec
	outreachTotal   *prometheus.CounterVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "layla",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp webhooks",
		}, []string{"message_type", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "layla",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"kind", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "layla",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of WhatsApp webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"message_type"}),
		generationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "layla",
			Subsystem: "conversation",
			Name:      "generation_total",
			Help:      "Total reply generations by outcome",
		}, []string{"outcome"}),
		outreachTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "layla",
			Subsystem: "outreach",
			Name:      "contacts_total",
			Help:      "Total outreach contacts by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency, m.generationTotal, m.outreachTotal)
	return m
}

func (m *BotMetrics) ObserveInbound(messageType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(messageType, status).Inc()
}

func (m *BotMetrics) ObserveOutbound(kind, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *BotMetrics) ObserveWebhookLatency(messageType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(messageType).Observe(seconds)
}

func (m *BotMetrics) ObserveGeneration(outcome string) {
	if m == nil {
		return
	}
	m.generationTotal.WithLabelValues(outcome).Inc()
}

func (m *BotMetrics) ObserveOutreach(result string) {
	if m == nil {
		return
	}
	m.outreachTotal.WithLabelValues(result).Inc()
}
