package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates the bridge's prometheus collectors. A nil *Metrics is
// valid everywhere and records nothing, which keeps tests quiet.
type Metrics struct {
	ActiveCalls    prometheus.Gauge
	CallsTotal     prometheus.Counter
	FramesRelayed  *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	BargeIns       prometheus.Counter
	ToolDispatches *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voxline_active_calls",
			Help: "Number of call sessions currently bridged.",
		}),
		CallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voxline_calls_total",
			Help: "Total call sessions admitted.",
		}),
		FramesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxline_frames_relayed_total",
			Help: "Audio frames relayed between the telephony and AI sockets.",
		}, []string{"direction"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxline_frames_dropped_total",
			Help: "Audio frames dropped because the destination was not ready.",
		}, []string{"reason"}),
		BargeIns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voxline_barge_ins_total",
			Help: "Caller barge-ins that triggered a playback buffer clear.",
		}),
		ToolDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxline_tool_dispatches_total",
			Help: "Tool invocations by name and outcome.",
		}, []string{"tool", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.ActiveCalls, m.CallsTotal, m.FramesRelayed, m.FramesDropped, m.BargeIns, m.ToolDispatches)
	}
	return m
}

func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.CallsTotal.Inc()
	m.ActiveCalls.Inc()
}

func (m *Metrics) CallEnded() {
	if m == nil {
		return
	}
	m.ActiveCalls.Dec()
}

func (m *Metrics) FrameRelayed(direction string) {
	if m == nil {
		return
	}
	m.FramesRelayed.WithLabelValues(direction).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) BargeIn() {
	if m == nil {
		return
	}
	m.BargeIns.Inc()
}

func (m *Metrics) ToolDispatched(tool string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.ToolDispatches.WithLabelValues(tool, outcome).Inc()
}
