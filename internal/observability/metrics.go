package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "mrcplink"
	subsystem = "client"
)

// Dispatch error kinds.
const (
	KindNonJSON      = "non_json"
	KindUnknownShape = "unknown_shape"
	KindHandlerError = "handler_error"
	KindHandlerPanic = "handler_panic"
)

// Metrics holds the protocol client collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	eventsSent        *prometheus.CounterVec
	sendErrors        *prometheus.CounterVec
	eventsReceived    *prometheus.CounterVec
	responses         *prometheus.CounterVec
	dispatchErrors    *prometheus.CounterVec
	framesDecoded     prometheus.Counter
	resyncs           prometheus.Counter
	resyncDiscarded   prometheus.Counter
	connectionsActive prometheus.Gauge
	connectionsLost   prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics returns collectors registered once on the default registry.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics registers a fresh collector set on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		eventsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_sent_total",
			Help:      "Events written to the EasyMrcp server.",
		}, []string{"event"}),
		sendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "send_errors_total",
			Help:      "Events that could not be written.",
		}, []string{"event"}),
		eventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_received_total",
			Help:      "Server events received, by handler presence.",
		}, []string{"event", "handled"}),
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "responses_total",
			Help:      "Server responses received, by code.",
		}, []string{"code"}),
		dispatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_errors_total",
			Help:      "Inbound payloads dropped or handlers that failed.",
		}, []string{"kind"}),
		framesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_decoded_total",
			Help:      "Complete frames decoded from the stream.",
		}),
		resyncs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resyncs_total",
			Help:      "Framing desynchronizations recovered by scanning for the magic.",
		}),
		resyncDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resync_discarded_bytes_total",
			Help:      "Bytes dropped while resynchronizing.",
		}),
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections_active",
			Help:      "Sessions currently connected.",
		}),
		connectionsLost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_lost_total",
			Help:      "Sessions dropped by the peer or transport while connected.",
		}),
	}
}

func (m *Metrics) RecordSent(event string) {
	if m == nil {
		return
	}
	m.eventsSent.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordSendError(event string) {
	if m == nil {
		return
	}
	m.sendErrors.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordReceived(event string, handled bool) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(event, strconv.FormatBool(handled)).Inc()
}

func (m *Metrics) RecordResponse(code int) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Metrics) RecordDispatchError(kind string) {
	if m == nil {
		return
	}
	m.dispatchErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordFrame() {
	if m == nil {
		return
	}
	m.framesDecoded.Inc()
}

func (m *Metrics) RecordResync(discarded int) {
	if m == nil {
		return
	}
	m.resyncs.Inc()
	m.resyncDiscarded.Add(float64(discarded))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
}

// ConnectionClosed decrements the active gauge; lost marks an abnormal drop.
func (m *Metrics) ConnectionClosed(lost bool) {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
	if lost {
		m.connectionsLost.Inc()
	}
}
