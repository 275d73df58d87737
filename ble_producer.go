package main

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// SensorTransport discovers and connects to the wireless temperature
// sensor. The production implementation is the BLE central in
// bluetooth.go; tests substitute a fake.
type SensorTransport interface {
	// Connect scans for the peripheral by advertised name, opens a
	// session, and resolves the environmental-sensing service and both
	// temperature characteristics. Blocks for up to scanTimeout while
	// scanning, or until ctx is cancelled. Any missing service or
	// characteristic is an error.
	Connect(ctx context.Context, name string, scanTimeout time.Duration) (SensorConnection, error)
}

// SensorConnection is an open session with the sensor
type SensorConnection interface {
	// Subscribe registers a notification handler for one channel's
	// temperature characteristic
	Subscribe(ch Channel, handler func(data []byte)) error
	// Alive reports whether the connection is still up
	Alive() bool
	// Close tears the connection down
	Close() error
}

// SensorClient owns the physical sensor connection and the acquisition
// loop: scan, connect, subscribe, poll liveness, and on any failure back
// off and rescan. It runs until stopped and communicates outward only
// through the sample queue.
type SensorClient struct {
	config  *SensorConfig
	queue   *SampleQueue
	metrics *Metrics

	transport SensorTransport
	connected atomic.Bool

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewSensorClient creates a sensor client pushing into queue. A nil
// metrics is allowed.
func NewSensorClient(config *SensorConfig, transport SensorTransport, queue *SampleQueue, metrics *Metrics) *SensorClient {
	return &SensorClient{
		config:    config,
		queue:     queue,
		metrics:   metrics,
		transport: transport,
	}
}

// Start spins up the acquisition loop goroutine
func (sc *SensorClient) Start() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.running {
		return
	}
	sc.running = true
	sc.stopChan = make(chan struct{})

	log.Printf("Sensor: Starting acquisition for peripheral %q", sc.config.Name)

	sc.wg.Add(1)
	go sc.acquireLoop()
}

// Stop clears the running flag and blocks until the acquisition loop has
// fully exited. An in-flight scan is cancelled, so worst-case latency is
// one backoff window.
func (sc *SensorClient) Stop() {
	sc.mu.Lock()
	if !sc.running {
		sc.mu.Unlock()
		return
	}
	sc.running = false
	close(sc.stopChan)
	sc.mu.Unlock()

	sc.wg.Wait()
	log.Println("Sensor: Acquisition stopped")
}

// Connected reports whether a sensor session is currently subscribed
func (sc *SensorClient) Connected() bool {
	return sc.connected.Load()
}

// acquireLoop is the producer state machine: Scanning -> Connecting ->
// Subscribed -> (Disconnected|Error) -> Scanning, looping until stopped.
// Every failure is logged and retried after a fixed backoff; nothing
// here is fatal.
func (sc *SensorClient) acquireLoop() {
	defer sc.wg.Done()

	scanTimeout := time.Duration(sc.config.ScanTimeoutSec) * time.Second
	retryDelay := time.Duration(sc.config.RetryDelaySec) * time.Second
	livenessPoll := time.Duration(sc.config.LivenessPollSec) * time.Second

	// Bridge the stop channel into a context so a blocking scan is
	// cancelled when Stop is called
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sc.stopChan
		cancel()
	}()

	for {
		select {
		case <-sc.stopChan:
			return
		default:
		}

		conn, err := sc.transport.Connect(ctx, sc.config.Name, scanTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Sensor: %v", err)
			if !sc.sleep(retryDelay) {
				return
			}
			continue
		}

		if err := sc.subscribe(conn); err != nil {
			log.Printf("Sensor: Subscribe failed: %v", err)
			conn.Close()
			if !sc.sleep(retryDelay) {
				return
			}
			continue
		}

		sc.connected.Store(true)
		if sc.metrics != nil {
			sc.metrics.RecordSensorConnect()
		}
		log.Printf("Sensor: Subscribed to %q, both channels notifying", sc.config.Name)

		// Poll liveness until the connection drops or we are stopped
		for conn.Alive() {
			if !sc.sleep(livenessPoll) {
				sc.connected.Store(false)
				conn.Close()
				return
			}
		}

		sc.connected.Store(false)
		conn.Close()
		log.Println("Sensor: Connection lost, rescanning")
	}
}

// subscribe registers the notification handlers for both channels
func (sc *SensorClient) subscribe(conn SensorConnection) error {
	for _, ch := range []Channel{ChannelA, ChannelB} {
		ch := ch
		if err := conn.Subscribe(ch, func(data []byte) {
			sc.handleNotification(ch, data)
		}); err != nil {
			return err
		}
	}
	return nil
}

// handleNotification decodes one notification payload and enqueues the
// sample. A malformed payload becomes an absent reading for this tick,
// never an error the consumer has to care about.
func (sc *SensorClient) handleNotification(ch Channel, data []byte) {
	sample := RawSample{
		CaptureTime: time.Now(),
		Channel:     ch,
	}

	if temp, err := DecodeTemperature(data); err != nil {
		log.Printf("Sensor: %s decode failed: %v", ch, err)
		if sc.metrics != nil {
			sc.metrics.RecordDecodeError(ch)
		}
	} else {
		sample.Temperature = &temp
		if sc.metrics != nil {
			sc.metrics.RecordSample(ch)
		}
	}

	sc.queue.Push(sample)
}

// sleep waits for d unless a stop arrives first; returns false on stop
func (sc *SensorClient) sleep(d time.Duration) bool {
	select {
	case <-sc.stopChan:
		return false
	case <-time.After(d):
		return true
	}
}
