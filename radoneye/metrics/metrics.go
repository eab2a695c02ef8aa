// Package metrics exposes the pipeline and the last reading to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/rd200"
)

const namespace = "radoneye"

// Metrics implements the stream and publisher observers.
type Metrics struct {
	gatherer prometheus.Gatherer

	readings       prometheus.Counter
	decodeErrors   *prometheus.CounterVec
	reconnects     prometheus.Counter
	publishAttempt prometheus.Counter
	pointsWritten  prometheus.Counter
	pointsDropped  *prometheus.CounterVec

	radonCurrent    prometheus.Gauge
	radonDay        prometheus.Gauge
	radonMonth      prometheus.Gauge
	pulseCount      prometheus.Gauge
	pulseCount10Min prometheus.Gauge
}

func newGauge(name string, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

func newCounter(name string, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

// New registers every metric on a fresh registry, including the Go runtime,
// process and build info collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,

		readings:   newCounter("readings_total", "Readings decoded from the device."),
		reconnects: newCounter("reconnects_total", "Reconnect attempts after a lost or failed session."),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Frames skipped because they could not be decoded.",
		}, []string{"kind"}),
		publishAttempt: newCounter("publish_attempts_total", "Write attempts against InfluxDB, retries included."),
		pointsWritten:  newCounter("points_written_total", "Points written to InfluxDB."),
		pointsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_dropped_total",
			Help:      "Points given up on.",
		}, []string{"reason"}),

		radonCurrent:    newGauge("radon_current", "Last current radon value (units: as configured on the device)"),
		radonDay:        newGauge("radon_day", "Last 24 hour radon average (units: as configured on the device)"),
		radonMonth:      newGauge("radon_month", "Last long term radon average (units: as configured on the device)"),
		pulseCount:      newGauge("pulse_count", "Last detector pulse count"),
		pulseCount10Min: newGauge("pulse_count_10_min", "Last detector pulse count over 10 minutes"),
	}

	reg.MustRegister(
		m.readings,
		m.reconnects,
		m.decodeErrors,
		m.publishAttempt,
		m.pointsWritten,
		m.pointsDropped,
		m.radonCurrent,
		m.radonDay,
		m.radonMonth,
		m.pulseCount,
		m.pulseCount10Min,
	)

	// Add Go module build info.
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		version.NewCollector(namespace),
	)
	return m
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{
		// Opt into OpenMetrics to support exemplars.
		EnableOpenMetrics: true,
	})
}

// Gatherer returns the registry backing Handler.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

func (m *Metrics) ObserveReading(r radoneye.Reading) {
	m.readings.Inc()
	m.radonCurrent.Set(float64(r.CurrentValue))
	m.radonDay.Set(float64(r.DayValue))
	m.radonMonth.Set(float64(r.MonthValue))
	m.pulseCount.Set(float64(r.PulseCount))
	m.pulseCount10Min.Set(float64(r.PulseCount10Min))
}

func (m *Metrics) ObserveDecodeError(kind rd200.DecodeErrorKind) {
	m.decodeErrors.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) ObserveReconnect() { m.reconnects.Inc() }

func (m *Metrics) ObservePublishAttempt() { m.publishAttempt.Inc() }

func (m *Metrics) ObservePointWritten() { m.pointsWritten.Inc() }

func (m *Metrics) ObservePointDropped(reason string) {
	m.pointsDropped.WithLabelValues(reason).Inc()
}
