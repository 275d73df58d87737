package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metric collectors for the acquisition and
// processing pipeline
type Metrics struct {
	// Acquisition metrics
	samplesTotal      *prometheus.CounterVec // Decoded samples received (by channel)
	decodeErrorsTotal *prometheus.CounterVec // Malformed notification payloads (by channel)
	sensorConnects    prometheus.Counter     // Successful sensor subscriptions
	sensorConnected   prometheus.Gauge       // Current sensor connection status (1=connected, 0=disconnected)

	// Pipeline metrics
	queueDepth        prometheus.Gauge       // Samples awaiting the processing tick
	spikeRejectsTotal *prometheus.CounterVec // Readings held back by the spike filter (by channel)
	spikeShiftsTotal  *prometheus.CounterVec // Sustained shifts accepted after consecutive rejects (by channel)

	// Live telemetry gauges
	temperature *prometheus.GaugeVec // Latest filtered temperature (by channel)
	rateOfRise  prometheus.Gauge     // Latest rate of rise in degrees per minute
}

// NewMetrics creates and registers all metric collectors
func NewMetrics() *Metrics {
	return &Metrics{
		samplesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roastmon_samples_total",
				Help: "Total temperature samples decoded from sensor notifications",
			},
			[]string{"channel"},
		),
		decodeErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roastmon_decode_errors_total",
				Help: "Total malformed notification payloads",
			},
			[]string{"channel"},
		),
		sensorConnects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "roastmon_sensor_connects_total",
				Help: "Total successful sensor subscriptions",
			},
		),
		sensorConnected: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "roastmon_sensor_connected",
				Help: "Current sensor connection status (1=connected, 0=disconnected)",
			},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "roastmon_queue_depth",
				Help: "Samples awaiting the processing tick",
			},
		),
		spikeRejectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roastmon_spike_rejects_total",
				Help: "Readings held back by the spike filter",
			},
			[]string{"channel"},
		),
		spikeShiftsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roastmon_spike_shifts_total",
				Help: "Sustained temperature shifts accepted after consecutive rejects",
			},
			[]string{"channel"},
		),
		temperature: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "roastmon_temperature",
				Help: "Latest filtered temperature reading",
			},
			[]string{"channel"},
		),
		rateOfRise: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "roastmon_rate_of_rise",
				Help: "Latest rate of rise in degrees per minute",
			},
		),
	}
}

// RecordSample increments the decoded sample counter for a channel
func (m *Metrics) RecordSample(ch Channel) {
	m.samplesTotal.WithLabelValues(ch.String()).Inc()
}

// RecordDecodeError increments the malformed payload counter for a channel
func (m *Metrics) RecordDecodeError(ch Channel) {
	m.decodeErrorsTotal.WithLabelValues(ch.String()).Inc()
}

// RecordSensorConnect increments the successful subscription counter
func (m *Metrics) RecordSensorConnect() {
	m.sensorConnects.Inc()
}

// SetConnected updates the sensor connection status gauge
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.sensorConnected.Set(1)
	} else {
		m.sensorConnected.Set(0)
	}
}

// SetQueueDepth updates the pending-sample gauge
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// RecordSpikeReject increments the held-back reading counter for a channel
func (m *Metrics) RecordSpikeReject(ch Channel) {
	m.spikeRejectsTotal.WithLabelValues(ch.String()).Inc()
}

// RecordSpikeShift increments the sustained-shift counter for a channel
func (m *Metrics) RecordSpikeShift(ch Channel) {
	m.spikeShiftsTotal.WithLabelValues(ch.String()).Inc()
}

// SetTemperature updates the live temperature gauge for a channel
func (m *Metrics) SetTemperature(ch Channel, v float64) {
	m.temperature.WithLabelValues(ch.String()).Set(v)
}

// SetRateOfRise updates the live rate-of-rise gauge
func (m *Metrics) SetRateOfRise(v float64) {
	m.rateOfRise.Set(v)
}
