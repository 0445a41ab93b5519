package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeonardoBeccarini/snowpeak_monitor/internal/topics"
)

// Metrics are the monitor's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	frames          *prometheus.CounterVec // decoded frames by channel
	decodeFailures  *prometheus.CounterVec // by class
	staleFrames     prometheus.Counter     // frames of a retired selection
	droppedFrames   *prometheus.CounterVec // subscriber buffer full, by channel
	commands        *prometheus.CounterVec // by kind
	commandFailures *prometheus.CounterVec
	subscriptions   prometheus.Gauge // live selection-scoped subscriptions
	brokerConnected prometheus.Gauge
	reconnects      prometheus.Counter
	metadataErrors  *prometheus.CounterVec // by operation
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	const ns, sub = "snowpeak", "monitor"
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "frames_total",
			Help: "Frames decoded, by channel",
		}, []string{"channel"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "decode_failures_total",
			Help: "Frames that could not be decoded, by failure class",
		}, []string{"class"}),
		staleFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "stale_frames_total",
			Help: "Frames received for a selection that was already retired",
		}),
		droppedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "dropped_frames_total",
			Help: "Frames dropped because the subscriber buffer was full, by channel",
		}, []string{"channel"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "commands_published_total",
			Help: "Commands handed to the transport, by kind",
		}, []string{"kind"}),
		commandFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "command_failures_total",
			Help: "Commands the transport refused, by kind",
		}, []string{"kind"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "selection_subscriptions",
			Help: "Live subscriptions scoped to the selected lift",
		}),
		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "broker_connected",
			Help: "1 while the broker connection is up",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "broker_connection_lost_total",
			Help: "Unexpected broker disconnects",
		}),
		metadataErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "metadata_errors_total",
			Help: "Failed metadata fetches, by operation",
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{
		m.frames, m.decodeFailures, m.staleFrames, m.droppedFrames, m.commands,
		m.commandFailures, m.subscriptions, m.brokerConnected, m.reconnects, m.metadataErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Frame(ch string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(ch).Inc()
}

func (m *Metrics) DecodeFailure(class DecodeClass) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(string(class)).Inc()
}

func (m *Metrics) StaleFrame() {
	if m == nil {
		return
	}
	m.staleFrames.Inc()
}

// DroppedFrame counts a frame lost on the subscription topic. The label is the channel,
// so it does not grow with the number of lifts.
func (m *Metrics) DroppedFrame(topic string) {
	if m == nil {
		return
	}
	ch := "unknown"
	if t, err := topics.Parse(topic); err == nil {
		ch = string(t.Channel)
	}
	m.droppedFrames.WithLabelValues(ch).Inc()
}

func (m *Metrics) CommandPublished(kind string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind).Inc()
}

func (m *Metrics) CommandFailed(kind string) {
	if m == nil {
		return
	}
	m.commandFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.subscriptions.Set(float64(n))
}

func (m *Metrics) Connected() {
	if m == nil {
		return
	}
	m.brokerConnected.Set(1)
}

func (m *Metrics) ConnectionLost() {
	if m == nil {
		return
	}
	m.brokerConnected.Set(0)
	m.reconnects.Inc()
}

func (m *Metrics) MetadataError(op string) {
	if m == nil {
		return
	}
	m.metadataErrors.WithLabelValues(op).Inc()
}
