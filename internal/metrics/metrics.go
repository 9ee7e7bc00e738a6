package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ledger's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so tests can pass nil without stubbing.
type Metrics struct {
	Contributions *prometheus.CounterVec
	CASRetries    prometheus.Counter
	ItemsCreated  prometheus.Counter
	EventsDropped prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wishpool_contributions_total",
			Help: "Contribution attempts by item mode and outcome.",
		}, []string{"mode", "result"}),
		CASRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wishpool_cas_retries_total",
			Help: "Conditional writes retried after losing to a concurrent committer.",
		}),
		ItemsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wishpool_items_created_total",
			Help: "Wishlist items created.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wishpool_events_dropped_total",
			Help: "Change events dropped because a subscriber's buffer was full.",
		}),
	}
	reg.MustRegister(m.Contributions, m.CASRetries, m.ItemsCreated, m.EventsDropped)
	return m
}

// ObserveContribution records one contribution attempt outcome.
func (m *Metrics) ObserveContribution(mode, result string) {
	if m == nil {
		return
	}
	m.Contributions.WithLabelValues(mode, result).Inc()
}

// ObserveRetry records one CAS retry.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.CASRetries.Inc()
}

// ObserveItemCreated records one item creation.
func (m *Metrics) ObserveItemCreated() {
	if m == nil {
		return
	}
	m.ItemsCreated.Inc()
}

// ObserveEventDropped records one dropped change event.
func (m *Metrics) ObserveEventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}
