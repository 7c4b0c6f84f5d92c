package nudgechat

import "github.com/prometheus/client_golang/prometheus"

// metricSet bundles the Prometheus collectors exposed by a Client. All
// methods are nil-safe so the client can run without a registerer.
type metricSet struct {
	reconnects prometheus.Counter
	frames     *prometheus.CounterVec
	connState  prometheus.Gauge
	queueDepth prometheus.GaugeFunc
}

func newMetricSet(reg prometheus.Registerer, queueDepth func() float64) *metricSet {
	if reg == nil {
		return nil
	}
	m := &metricSet{
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nudgechat_reconnects_total",
			Help: "Reconnection attempts scheduled after an unexpected close.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nudgechat_inbound_frames_total",
			Help: "Inbound frames dispatched, by frame type.",
		}, []string{"type"}),
		connState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nudgechat_connection_state",
			Help: "Connection state (0 disconnected, 1 connecting, 2 connected, 3 error).",
		}),
		queueDepth: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nudgechat_outbound_queue_depth",
			Help: "Frames waiting in the outbound queue.",
		}, queueDepth),
	}
	reg.MustRegister(m.reconnects, m.frames, m.connState, m.queueDepth)
	return m
}

func (m *metricSet) observeReconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *metricSet) observeFrame(frameType string) {
	if m != nil {
		m.frames.WithLabelValues(frameType).Inc()
	}
}

func (m *metricSet) observeState(s ConnectionState) {
	if m != nil {
		m.connState.Set(float64(s))
	}
}
