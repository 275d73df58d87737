package main

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Channel identifies which temperature probe produced a reading
type Channel int

const (
	// ChannelA is the grill/heater probe (Environmental Sensing characteristic 0x2A6E)
	ChannelA Channel = iota
	// ChannelB is the ambient/drum probe (Environmental Sensing characteristic 0x2A1C)
	ChannelB
)

// String returns the channel name for logging and API payloads
func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "channel_a"
	case ChannelB:
		return "channel_b"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Standard Bluetooth SIG 16-bit UUIDs used by the sensor firmware
const (
	// EnvSensingServiceID is the Environmental Sensing service
	EnvSensingServiceID = 0x181A
	// TempChannelAID is the Temperature characteristic carrying channel A
	TempChannelAID = 0x2A6E
	// TempChannelBID is the Temperature Measurement characteristic carrying channel B
	TempChannelBID = 0x2A1C
)

// RawSample is a single timestamped reading as it came off the wire.
// Temperature is nil when the notification payload failed to decode;
// the aligner treats that as a gap, not an error.
type RawSample struct {
	CaptureTime time.Time
	Channel     Channel
	Temperature *float64
}

// DecodeError indicates a notification payload that is not a valid reading
type DecodeError struct {
	Length int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid temperature payload: got %d bytes, want 4", e.Length)
}

// DecodeTemperature decodes a sensor notification payload.
// The wire format is a 4-byte little-endian signed integer holding
// hundredths of a degree.
func DecodeTemperature(data []byte) (float64, error) {
	if len(data) != 4 {
		return 0, &DecodeError{Length: len(data)}
	}
	raw := int32(binary.LittleEndian.Uint32(data))
	return float64(raw) / 100, nil
}
