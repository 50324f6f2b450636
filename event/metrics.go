package event

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors Stats as live prometheus counters, registered once per
// process and updated alongside the in-memory Stats struct every time the
// event loop folds an outcome in. Grounded on the teacher's stats package
// convention of one counter vector per daemon concern (stats/statsd.go),
// here reduced to the handful of counters this single client process
// exposes.
type Metrics struct {
	MessagesSent      prometheus.Counter
	MessagesReceived  prometheus.Counter
	FragmentsSent     prometheus.Counter
	FragmentsReceived prometheus.Counter
	AcksReceived      prometheus.Counter
	NacksReceived     prometheus.Counter
	FloodsOriginated  prometheus.Counter
}

// NewMetrics registers the client's counters against reg. Passing a fresh
// prometheus.NewRegistry() per test keeps repeated client construction in
// tests from colliding on the global default registry.
func NewMetrics(reg prometheus.Registerer, nodeID string) *Metrics {
	mk := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "overlay_client",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"node_id": nodeID},
		})
		reg.MustRegister(c)
		return c
	}
	return &Metrics{
		MessagesSent:      mk("messages_sent_total", "Host messages fully fragmented and queued for delivery."),
		MessagesReceived:  mk("messages_received_total", "Host messages fully reassembled from inbound sessions."),
		FragmentsSent:     mk("fragments_sent_total", "Fragments handed to an outbound channel."),
		FragmentsReceived: mk("fragments_received_total", "Fragments received from an inbound channel."),
		AcksReceived:      mk("acks_received_total", "Ack packets received."),
		NacksReceived:     mk("nacks_received_total", "Nack packets received."),
		FloodsOriginated:  mk("floods_originated_total", "Flood requests originated by this client."),
	}
}
