package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngressMetrics counts gateway events as they enter the pipeline.
type IngressMetrics struct {
	received *prometheus.CounterVec
	handled  *prometheus.CounterVec
	dropped  *prometheus.CounterVec
}

// NewIngressMetrics registers the ingress counters on the provided registerer.
func NewIngressMetrics(reg prometheus.Registerer) *IngressMetrics {
	if reg == nil {
		return &IngressMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_events_received",
		Help: "Gateway events pulled from the subscription.",
	}, []string{"event_type"})
	handled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_events_handled",
		Help: "Gateway events translated and buffered.",
	}, []string{"event_type"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_events_dropped",
		Help: "Gateway events discarded before buffering.",
	}, []string{"event_type", "reason"})
	reg.MustRegister(received, handled, dropped)
	return &IngressMetrics{
		received: received,
		handled:  handled,
		dropped:  dropped,
	}
}

// IncReceived counts an event pulled off the subscription.
func (i *IngressMetrics) IncReceived(eventType string) {
	if i == nil || i.received == nil {
		return
	}
	i.received.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncHandled counts an event that made it into the buffer.
func (i *IngressMetrics) IncHandled(eventType string) {
	if i == nil || i.handled == nil {
		return
	}
	i.handled.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDropped counts an event discarded before the buffer, with the reason.
func (i *IngressMetrics) IncDropped(eventType, reason string) {
	if i == nil || i.dropped == nil {
		return
	}
	i.dropped.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}
