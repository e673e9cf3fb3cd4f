// Package metrics instruments the peer engine with Prometheus counters and
// gauges, grounded on the collector style used elsewhere in the retrieval
// pack (a small struct of pre-registered vectors, updated inline by the
// engine rather than scraped lazily).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the instrumentation surface of a single Peer.
type Metrics struct {
	MessagesSent        *prometheus.CounterVec // labels: mode
	MessagesReceived     *prometheus.CounterVec // labels: mode
	Retransmits          prometheus.Counter
	AcksSent             prometheus.Counter
	DedupDropped         prometheus.Counter
	BadPacketsDropped    prometheus.Counter
	UnknownAcksDropped   prometheus.Counter
	FileTransfersActive  prometheus.Gauge
	FileTransfersTotal   prometheus.Counter
	StreamPoolInUse       prometheus.Gauge
}

// New creates a Metrics bundle and registers it with reg. Passing a nil
// registerer is valid and simply skips registration, letting the peer
// engine run with instrumentation enabled but unexported (e.g. in tests).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p2pcore",
			Name:      "messages_sent_total",
			Help:      "Messages handed to the transport, by delivery mode.",
		}, []string{"mode"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p2pcore",
			Name:      "messages_received_total",
			Help:      "Messages delivered to upcalls, by delivery mode.",
		}, []string{"mode"}),
		Retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "p2pcore",
			Name:      "retransmits_total",
			Help:      "Reliable frames retransmitted because no ACK had been observed.",
		}),
		AcksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "p2pcore",
			Name:      "acks_sent_total",
			Help:      "ACK frames emitted in response to reliable frames.",
		}),
		DedupDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "p2pcore",
			Name:      "dedup_dropped_total",
			Help:      "Reliable frames whose message id had already been delivered.",
		}),
		BadPacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "p2pcore",
			Name:      "bad_packets_dropped_total",
			Help:      "Candidate packets dropped due to a bad barker, CRC, or truncation.",
		}),
		UnknownAcksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "p2pcore",
			Name:      "unknown_acks_dropped_total",
			Help:      "ACK frames referencing a message id this peer never sent.",
		}),
		FileTransfersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "p2pcore",
			Name:      "file_transfers_active",
			Help:      "File transfers currently in flight (send or receive).",
		}),
		FileTransfersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "p2pcore",
			Name:      "file_transfers_total",
			Help:      "File transfers completed.",
		}),
		StreamPoolInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "p2pcore",
			Name:      "file_stream_pool_in_use",
			Help:      "File-transfer stream ids currently allocated.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.MessagesSent,
			m.MessagesReceived,
			m.Retransmits,
			m.AcksSent,
			m.DedupDropped,
			m.BadPacketsDropped,
			m.UnknownAcksDropped,
			m.FileTransfersActive,
			m.FileTransfersTotal,
			m.StreamPoolInUse,
		)
	}

	return m
}

// Delivery mode labels used with MessagesSent/MessagesReceived.
const (
	ModeReliable         = "reliable"
	ModeUnreliable       = "unreliable"
	ModeReliableStream   = "reliable_stream"
	ModeUnreliableStream = "unreliable_stream"
)
