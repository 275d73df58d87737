package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"
)

// BluetoothTransport is the production SensorTransport backed by the
// host's BLE adapter. One transport owns the adapter; connections are
// created one at a time by the acquisition loop.
type BluetoothTransport struct {
	adapter *bluetooth.Adapter
	enabled bool
	mu      sync.Mutex

	// Current connection, for routing adapter-level disconnect events
	current atomic.Pointer[bleConnection]
}

// NewBluetoothTransport wraps the default BLE adapter
func NewBluetoothTransport() *BluetoothTransport {
	return &BluetoothTransport{adapter: bluetooth.DefaultAdapter}
}

// enable powers the adapter on once and registers the disconnect handler
func (t *BluetoothTransport) enable() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.enabled {
		return nil
	}
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		if conn := t.current.Load(); conn != nil {
			conn.alive.Store(false)
		}
	})

	t.enabled = true
	return nil
}

// Connect scans for the named peripheral, connects, and resolves the
// environmental-sensing temperature characteristics. Cancelling ctx
// aborts an in-flight scan.
func (t *BluetoothTransport) Connect(ctx context.Context, name string, scanTimeout time.Duration) (SensorConnection, error) {
	if err := t.enable(); err != nil {
		return nil, err
	}

	result, err := t.scanForName(ctx, name, scanTimeout)
	if err != nil {
		return nil, err
	}

	device, err := t.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %q: %w", name, err)
	}

	chars, err := resolveCharacteristics(device)
	if err != nil {
		device.Disconnect()
		return nil, err
	}

	conn := &bleConnection{device: device, chars: chars}
	conn.alive.Store(true)
	t.current.Store(conn)
	return conn, nil
}

// scanForName runs a scan until the named peripheral advertises, the
// timeout elapses, or ctx is cancelled. Scan blocks its caller, so both
// the timeout and the cancellation fire StopScan from the outside.
func (t *BluetoothTransport) scanForName(ctx context.Context, name string, timeout time.Duration) (bluetooth.ScanResult, error) {
	var (
		found bluetooth.ScanResult
		ok    bool
	)

	timer := time.AfterFunc(timeout, func() {
		t.adapter.StopScan()
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() {
		t.adapter.StopScan()
	})
	defer stop()

	err := t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if result.LocalName() != name {
			return
		}
		found = result
		ok = true
		adapter.StopScan()
	})
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("scan failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("scan aborted: %w", err)
	}
	if !ok {
		return bluetooth.ScanResult{}, fmt.Errorf("sensor %q not found within %s", name, timeout)
	}

	if DebugMode {
		log.Printf("Sensor: Found %q at %s (RSSI %d)", name, found.Address, found.RSSI)
	}
	return found, nil
}

// resolveCharacteristics discovers the environmental-sensing service and
// maps its two temperature characteristics to channels
func resolveCharacteristics(device bluetooth.Device) (map[Channel]bluetooth.DeviceCharacteristic, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{
		bluetooth.New16BitUUID(EnvSensingServiceID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover environmental sensing service: %w", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("environmental sensing service not found")
	}

	discovered, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		bluetooth.New16BitUUID(TempChannelAID),
		bluetooth.New16BitUUID(TempChannelBID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover temperature characteristics: %w", err)
	}

	chars := make(map[Channel]bluetooth.DeviceCharacteristic)
	for _, c := range discovered {
		switch c.UUID() {
		case bluetooth.New16BitUUID(TempChannelAID):
			chars[ChannelA] = c
		case bluetooth.New16BitUUID(TempChannelBID):
			chars[ChannelB] = c
		}
	}
	if len(chars) != 2 {
		return nil, fmt.Errorf("expected 2 temperature characteristics, found %d", len(chars))
	}
	return chars, nil
}

// bleConnection is one live session with the sensor
type bleConnection struct {
	device bluetooth.Device
	chars  map[Channel]bluetooth.DeviceCharacteristic
	alive  atomic.Bool
}

// Subscribe enables notifications on a channel's characteristic
func (c *bleConnection) Subscribe(ch Channel, handler func(data []byte)) error {
	char, ok := c.chars[ch]
	if !ok {
		return fmt.Errorf("no characteristic for %s", ch)
	}
	if err := char.EnableNotifications(handler); err != nil {
		return fmt.Errorf("failed to enable notifications for %s: %w", ch, err)
	}
	return nil
}

// Alive reports whether the peripheral is still connected
func (c *bleConnection) Alive() bool {
	return c.alive.Load()
}

// Close disconnects from the peripheral
func (c *bleConnection) Close() error {
	c.alive.Store(false)
	return c.device.Disconnect()
}
