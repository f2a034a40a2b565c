package receiving

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes Prometheus collectors for the receiving engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	receipts  *prometheus.CounterVec
	quantity  prometheus.Counter
	conflicts prometheus.Counter
	handoffs  *prometheus.CounterVec
}

// NewMetrics registers the receiving collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receiving_receipts_total",
			Help: "Receipt batches by outcome.",
		}, []string{"result"}),
		quantity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receiving_received_quantity_total",
			Help: "Units posted by accepted receipts.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receiving_conflicts_total",
			Help: "Optimistic concurrency conflicts seen by the engine.",
		}),
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receiving_quality_handoffs_total",
			Help: "Quality check hand-off events by outcome.",
		}, []string{"result"}),
	}
	registerer.MustRegister(m.receipts, m.quantity, m.conflicts, m.handoffs)
	return m
}

func (m *Metrics) receipt(result string, qty int64) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(result).Inc()
	if qty > 0 {
		m.quantity.Add(float64(qty))
	}
}

func (m *Metrics) conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *Metrics) handoff(result string) {
	if m == nil {
		return
	}
	m.handoffs.WithLabelValues(result).Inc()
}
