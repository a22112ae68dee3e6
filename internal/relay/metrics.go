package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	fetchedTotal           prometheus.Counter
	fetchErrorsTotal       prometheus.Counter
	deliveredTotal         prometheus.Counter
	deliveryFailuresTotal  prometheus.Counter
	ackedTotal             prometheus.Counter
	ackFailuresTotal       prometheus.Counter
	normalizeFailuresTotal prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_entries_fetched_total",
			Help: "Total number of entries handed to this consumer.",
		}),
		fetchErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_fetch_errors_total",
			Help: "Total number of failed log reads.",
		}),
		deliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_entries_delivered_total",
			Help: "Total number of entries accepted by the sink.",
		}),
		deliveryFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_delivery_failures_total",
			Help: "Total number of sink deliveries that were not accepted.",
		}),
		ackedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_entries_acked_total",
			Help: "Total number of entries acknowledged to the log.",
		}),
		ackFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_ack_failures_total",
			Help: "Total number of failed acknowledgments.",
		}),
		normalizeFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_normalize_failures_total",
			Help: "Total number of payloads delivered with the fallback error marker.",
		}),
	}

	reg.MustRegister(
		m.fetchedTotal,
		m.fetchErrorsTotal,
		m.deliveredTotal,
		m.deliveryFailuresTotal,
		m.ackedTotal,
		m.ackFailuresTotal,
		m.normalizeFailuresTotal,
	)

	return m
}
