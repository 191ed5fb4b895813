package ngp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
)

// Metrics is a prometheus.Collector exposing the counters and gauges of
// SPEC_FULL.md section 4.11. It implements socket.Metrics so the socket
// table can report into it directly, and exposes two additional gauges
// (pool free count, socket table occupancy) that are sampled on Collect
// rather than pushed, since they are cheap snapshots of existing state.
//
// The engine never starts its own HTTP server or registers Metrics with
// any registry; the caller does that, matching the stance of the
// sockstats/conniver exporter package this is grounded on.
type Metrics struct {
	poolFree     func() int
	socketsActive func() int

	poolFreeDesc     *prometheus.Desc
	socketsActiveDesc *prometheus.Desc

	retransmit       *prometheus.CounterVec
	handshakeTimeout prometheus.Counter
	resetSent        prometheus.Counter
	resetReceived    prometheus.Counter
	fragSent         prometheus.Counter
	fragReassembled  prometheus.Counter
}

// newMetrics builds a Metrics collector. poolFree and socketsActive are
// sampled live on every Collect call.
func newMetrics(poolFree, socketsActive func() int) *Metrics {
	return &Metrics{
		poolFree:      poolFree,
		socketsActive: socketsActive,

		poolFreeDesc: prometheus.NewDesc(
			"ngp_pool_free_packets", "Number of free packet buffers in the pool.", nil, nil),
		socketsActiveDesc: prometheus.NewDesc(
			"ngp_sockets_active", "Number of sockets currently linked into the active list.", nil, nil),

		retransmit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ngp_arq_retransmit_total",
			Help: "Stream ARQ retransmissions, labeled by socket id.",
		}, []string{"socket"}),
		handshakeTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ngp_handshake_timeout_total",
			Help: "Stream connect handshakes that timed out.",
		}),
		resetSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ngp_reset_sent_total",
			Help: "RST frames emitted on Close.",
		}),
		resetReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ngp_reset_received_total",
			Help: "RST frames received from a peer.",
		}),
		fragSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ngp_fragments_sent_total",
			Help: "Messages for which the fragmentation sublayer transmitted at least one fragment.",
		}),
		fragReassembled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ngp_messages_reassembled_total",
			Help: "Messages fully reassembled by the fragmentation sublayer.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(descs chan<- *prometheus.Desc) {
	descs <- m.poolFreeDesc
	descs <- m.socketsActiveDesc
	m.retransmit.Describe(descs)
	m.handshakeTimeout.Describe(descs)
	m.resetSent.Describe(descs)
	m.resetReceived.Describe(descs)
	m.fragSent.Describe(descs)
	m.fragReassembled.Describe(descs)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(metrics chan<- prometheus.Metric) {
	metrics <- prometheus.MustNewConstMetric(m.poolFreeDesc, prometheus.GaugeValue, float64(m.poolFree()))
	metrics <- prometheus.MustNewConstMetric(m.socketsActiveDesc, prometheus.GaugeValue, float64(m.socketsActive()))
	m.retransmit.Collect(metrics)
	m.handshakeTimeout.Collect(metrics)
	m.resetSent.Collect(metrics)
	m.resetReceived.Collect(metrics)
	m.fragSent.Collect(metrics)
	m.fragReassembled.Collect(metrics)
}

// The following methods implement socket.Metrics.

func (m *Metrics) SocketsActive(int) {} // sampled live in Collect, not pushed

func (m *Metrics) Retransmit(id xid.ID) {
	m.retransmit.WithLabelValues(id.String()).Inc()
}

func (m *Metrics) HandshakeTimeout() { m.handshakeTimeout.Inc() }
func (m *Metrics) ResetSent()        { m.resetSent.Inc() }
func (m *Metrics) ResetReceived()    { m.resetReceived.Inc() }

// fragmentSent and messageReassembled are called by the engine around
// sfp.Send/sfp.Recv, since the sfp package has no metrics hook of its own.
func (m *Metrics) fragmentSent()      { m.fragSent.Inc() }
func (m *Metrics) messageReassembled() { m.fragReassembled.Inc() }
