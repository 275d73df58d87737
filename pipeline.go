package main

import (
	"bytes"
	"encoding/json"
	"log"
	"math"
	"strconv"
	"sync"
	"time"
)

// FloatSeries is a []float64 that marshals NaN entries as null, since
// JSON has no NaN. Absent readings survive the trip to the client as
// nulls and come back as NaN.
type FloatSeries []float64

func (s FloatSeries) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('[')
	for i, v := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		if math.IsNaN(v) {
			b.WriteString("null")
		} else {
			b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	b.WriteByte(']')
	return b.Bytes(), nil
}

func (s *FloatSeries) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(FloatSeries, len(raw))
	for i, p := range raw {
		if p == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *p
		}
	}
	*s = out
	return nil
}

// TelemetryFrame is one JSON snapshot of the pipeline state, pushed to
// websocket clients after each processing tick that changed state and
// served whole on /api/history.
type TelemetryFrame struct {
	Type            string  `json:"type"` // Always "telemetry"
	Timestamp       string  `json:"timestamp"`
	SensorConnected bool    `json:"sensor_connected"`
	RoastActive     bool    `json:"roast_active"`
	RoastElapsed    float64 `json:"roast_elapsed"` // Seconds, 0 when idle
	SessionID       string  `json:"session_id,omitempty"`

	CurrentA   *float64 `json:"current_a,omitempty"`
	CurrentB   *float64 `json:"current_b,omitempty"`
	CurrentROR *float64 `json:"current_ror,omitempty"`

	Elapsed  FloatSeries `json:"elapsed"`
	ChannelA FloatSeries `json:"channel_a"`
	ChannelB FloatSeries `json:"channel_b"`

	// Smoothed series are right-aligned and shorter than the raw ones;
	// empty until enough samples exist for one full window
	SmoothedElapsed FloatSeries `json:"smoothed_elapsed,omitempty"`
	SmoothedA       FloatSeries `json:"smoothed_a,omitempty"`
	SmoothedB       FloatSeries `json:"smoothed_b,omitempty"`
	ROR             FloatSeries `json:"ror,omitempty"`

	TargetTemp         float64 `json:"target_temp"`
	TargetTimeSec      int     `json:"target_time_sec"`
	SmoothingWindowSec int     `json:"smoothing_window_sec"`
	RORWindowSec       int     `json:"ror_window_sec"`
}

// PipelineParams are the runtime-adjustable knobs exposed on /api/params
type PipelineParams struct {
	SmoothingWindowSec int     `json:"smoothing_window_sec"`
	RORWindowSec       int     `json:"ror_window_sec"`
	SpikeThreshold     float64 `json:"spike_threshold"`
	TargetTemp         float64 `json:"target_temp"`
	TargetTimeSec      int     `json:"target_time_sec"`
}

// Monitor is the pipeline consumer: a single goroutine that drains the
// sample queue on a fixed tick, runs each reading through its channel's
// spike filter, appends to the aligned history, and recomputes the
// derived series. It is the only writer of the history and filters;
// everything else reads through snapshot copies.
type Monitor struct {
	config  *Config
	queue   *SampleQueue
	sensor  *SensorClient
	session *RoastSession
	metrics *Metrics

	history *AlignedHistory
	filters map[Channel]*SpikeFilter

	mu     sync.RWMutex
	params PipelineParams
	latest TelemetryFrame
	unit   string

	onFrame func(TelemetryFrame)

	lastConnected bool

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	runMu    sync.Mutex
}

// NewMonitor creates the pipeline consumer. A nil metrics is allowed.
func NewMonitor(config *Config, queue *SampleQueue, sensor *SensorClient, metrics *Metrics) *Monitor {
	m := &Monitor{
		config:  config,
		queue:   queue,
		sensor:  sensor,
		session: NewRoastSession(),
		metrics: metrics,
		history: NewAlignedHistory(config.Pipeline.HistorySize),
		filters: map[Channel]*SpikeFilter{
			ChannelA: NewSpikeFilter(ChannelA, config.Pipeline.SpikeThreshold),
			ChannelB: NewSpikeFilter(ChannelB, config.Pipeline.SpikeThreshold),
		},
		params: PipelineParams{
			SmoothingWindowSec: config.Pipeline.SmoothingWindowSec,
			RORWindowSec:       config.Pipeline.RORWindowSec,
			SpikeThreshold:     config.Pipeline.SpikeThreshold,
			TargetTemp:         config.Roast.TargetTemp,
			TargetTimeSec:      config.Roast.TargetTimeSec,
		},
		unit: config.Sensor.Unit,
	}
	if metrics != nil {
		for _, f := range m.filters {
			f.SetMetrics(metrics)
		}
	}
	return m
}

// OnFrame registers the callback invoked with each new telemetry frame.
// Must be set before Start.
func (m *Monitor) OnFrame(fn func(TelemetryFrame)) {
	m.onFrame = fn
}

// Session returns the roast session for HTTP handlers
func (m *Monitor) Session() *RoastSession {
	return m.session
}

// Start spins up the processing tick goroutine
func (m *Monitor) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})

	log.Printf("Monitor: Starting pipeline (tick %dms, history %d rows)",
		m.config.Pipeline.TickMs, m.config.Pipeline.HistorySize)

	m.wg.Add(1)
	go m.run()
}

// Stop halts the tick goroutine and waits for it to exit
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.runMu.Unlock()

	m.wg.Wait()
	log.Println("Monitor: Pipeline stopped")
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Duration(m.config.Pipeline.TickMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.processTick()
		}
	}
}

// processTick drains the queue, filters and appends every sample in
// arrival order, and rebuilds the derived series when anything changed
func (m *Monitor) processTick() {
	if m.metrics != nil {
		m.metrics.SetQueueDepth(m.queue.Len())
	}

	batch := m.queue.Drain()

	connected := m.sensor != nil && m.sensor.Connected()
	if m.metrics != nil {
		m.metrics.SetConnected(connected)
	}

	if len(batch) == 0 && connected == m.lastConnected {
		return
	}
	m.lastConnected = connected

	m.mu.Lock()
	for _, s := range batch {
		if s.Temperature != nil {
			filtered := m.filters[s.Channel].Apply(*s.Temperature)
			s.Temperature = &filtered
		}
		m.history.Append(s)
	}
	frame := m.buildFrameLocked(connected)
	m.latest = frame
	m.mu.Unlock()

	if m.metrics != nil {
		if frame.CurrentA != nil {
			m.metrics.SetTemperature(ChannelA, *frame.CurrentA)
		}
		if frame.CurrentB != nil {
			m.metrics.SetTemperature(ChannelB, *frame.CurrentB)
		}
		if frame.CurrentROR != nil {
			m.metrics.SetRateOfRise(*frame.CurrentROR)
		}
	}

	if m.onFrame != nil {
		m.onFrame(frame)
	}
}

// buildFrameLocked recomputes the full derived view. Caller holds m.mu.
//
// The smoothing and rate-of-rise windows are configured in seconds and
// applied as sample counts; the sensor notifies once per second per
// channel, so the two coincide at nominal rate.
func (m *Monitor) buildFrameLocked(connected bool) TelemetryFrame {
	snap := m.history.Snapshot(m.session.StartTime())

	frame := TelemetryFrame{
		Type:               "telemetry",
		Timestamp:          time.Now().Format(time.RFC3339),
		SensorConnected:    connected,
		RoastActive:        m.session.Started(),
		SessionID:          m.session.ID(),
		Elapsed:            FloatSeries(snap.Elapsed),
		ChannelA:           FloatSeries(snap.ChannelA),
		ChannelB:           FloatSeries(snap.ChannelB),
		TargetTemp:         m.params.TargetTemp,
		TargetTimeSec:      m.params.TargetTimeSec,
		SmoothingWindowSec: m.params.SmoothingWindowSec,
		RORWindowSec:       m.params.RORWindowSec,
	}
	if frame.RoastActive {
		frame.RoastElapsed = time.Since(m.session.StartTime()).Seconds()
	}

	frame.CurrentA = lastReading(snap.ChannelA)
	frame.CurrentB = lastReading(snap.ChannelB)

	window := m.params.SmoothingWindowSec
	smoothedA, okA := MovingAverage(snap.ChannelA, window)
	smoothedB, okB := MovingAverage(snap.ChannelB, window)
	if okA && okB {
		smoothedTimes := SmoothedTimes(snap.Elapsed, window)
		frame.SmoothedElapsed = FloatSeries(smoothedTimes)
		frame.SmoothedA = FloatSeries(smoothedA)
		frame.SmoothedB = FloatSeries(smoothedB)
		frame.ROR = FloatSeries(RateOfRise(smoothedTimes, smoothedB, float64(m.params.RORWindowSec)))
	} else if len(snap.Elapsed) > 0 {
		// Not enough history for the smoothing window yet; derive the
		// rate of rise from the raw series so the display is never empty
		frame.ROR = FloatSeries(RateOfRise(snap.Elapsed, snap.ChannelB, float64(m.params.RORWindowSec)))
	}
	if n := len(frame.ROR); n > 0 && !math.IsNaN(frame.ROR[n-1]) {
		v := frame.ROR[n-1]
		frame.CurrentROR = &v
	}

	return frame
}

// lastReading returns a copy of the last non-absent value in series
func lastReading(series []float64) *float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			v := series[i]
			return &v
		}
	}
	return nil
}

// LatestFrame returns the most recent telemetry frame
func (m *Monitor) LatestFrame() TelemetryFrame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// CurrentFrame recomputes the derived view on demand, independent of
// the tick cadence
func (m *Monitor) CurrentFrame() TelemetryFrame {
	connected := m.sensor != nil && m.sensor.Connected()

	m.mu.Lock()
	frame := m.buildFrameLocked(connected)
	m.latest = frame
	m.mu.Unlock()

	return frame
}

// HistorySnapshot returns the aligned history for saving
func (m *Monitor) HistorySnapshot() HistorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.Snapshot(m.session.StartTime())
}

// Params returns the current runtime parameters
func (m *Monitor) Params() PipelineParams {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params
}

// SetParams applies new runtime parameters. They take effect on the
// next tick; history and filter state are preserved.
func (m *Monitor) SetParams(p PipelineParams) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.SpikeThreshold != m.params.SpikeThreshold {
		for _, f := range m.filters {
			f.SetThreshold(p.SpikeThreshold)
		}
	}
	m.params = p
	log.Printf("Monitor: Params updated (smoothing %ds, ror %ds, spike %.1f, target %.0f°%s / %s)",
		p.SmoothingWindowSec, p.RORWindowSec, p.SpikeThreshold, p.TargetTemp, m.unit,
		formatMMSS(float64(p.TargetTimeSec)))
}

// StartRoast begins a new roast session using the current targets
func (m *Monitor) StartRoast() string {
	m.mu.RLock()
	p := m.params
	m.mu.RUnlock()

	m.session.Start(p.TargetTemp, p.TargetTimeSec, p.SmoothingWindowSec, p.RORWindowSec, m.unit)
	log.Printf("Monitor: Roast started (session %s)", m.session.ID())
	return m.session.ID()
}

// StopRoast marks the roast stopped; history keeps accumulating
func (m *Monitor) StopRoast() {
	m.session.Stop()
	log.Println("Monitor: Roast stopped")
}

// ResetRoast clears the session, the aligned history, and the per
// channel filter state
func (m *Monitor) ResetRoast() {
	m.session.Reset()

	m.mu.Lock()
	m.history.Reset()
	for _, f := range m.filters {
		f.Reset()
	}
	m.latest = TelemetryFrame{}
	m.mu.Unlock()

	log.Println("Monitor: Roast data reset")
}
