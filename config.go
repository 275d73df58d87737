package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Sensor     SensorConfig     `yaml:"sensor"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Roast      RoastConfig      `yaml:"roast"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Server     ServerConfig     `yaml:"server"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

// SensorConfig contains BLE temperature sensor settings
type SensorConfig struct {
	Name            string `yaml:"name"`              // Advertised peripheral name to scan for
	ScanTimeoutSec  int    `yaml:"scan_timeout_sec"`  // Seconds to wait for the sensor to appear in a scan
	RetryDelaySec   int    `yaml:"retry_delay_sec"`   // Backoff between connection attempts in seconds
	LivenessPollSec int    `yaml:"liveness_poll_sec"` // Connection liveness poll interval in seconds
	Unit            string `yaml:"unit"`              // Probe unit label ("F" or "C"), informational only
}

// PipelineConfig contains processing pipeline settings
type PipelineConfig struct {
	TickMs             int     `yaml:"tick_ms"`              // Processing tick period in milliseconds
	HistorySize        int     `yaml:"history_size"`         // Aligned history capacity in rows (sliding window)
	SmoothingWindowSec int     `yaml:"smoothing_window_sec"` // Moving-average window in seconds
	RORWindowSec       int     `yaml:"ror_window_sec"`       // Rate-of-rise look-back window in seconds
	SpikeThreshold     float64 `yaml:"spike_threshold"`      // Spike filter acceptance threshold in degrees
}

// RoastConfig contains default roast targets, adjustable at runtime
type RoastConfig struct {
	TargetTemp    float64 `yaml:"target_temp"`     // Target roast temperature in probe units
	TargetTimeSec int     `yaml:"target_time_sec"` // Target roast duration in seconds
}

// RecorderConfig contains session persistence settings
type RecorderConfig struct {
	ProfilesDir string `yaml:"profiles_dir"` // Directory for saved roast CSVs and notes (created if absent)
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Listen     string `yaml:"listen"`      // Listen address (e.g., ":8080")
	EnableCORS bool   `yaml:"enable_cors"` // Add permissive CORS headers to API responses
}

// PrometheusConfig contains Prometheus metrics settings
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"` // Enable/disable the /metrics endpoint
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Enabled         bool          `yaml:"enabled"`          // Enable/disable MQTT publishing
	Broker          string        `yaml:"broker"`           // MQTT broker URL (e.g., tcp://mqtt.example.com:1883)
	Username        string        `yaml:"username"`         // MQTT authentication username
	Password        string        `yaml:"password"`         // MQTT authentication password
	TopicPrefix     string        `yaml:"topic_prefix"`     // Topic prefix for all messages
	PublishInterval int           `yaml:"publish_interval"` // Metrics publishing interval in seconds
	QoS             byte          `yaml:"qos"`              // MQTT Quality of Service level (0, 1, or 2)
	Retain          bool          `yaml:"retain"`           // Retain flag for MQTT messages
	TLS             MQTTTLSConfig `yaml:"tls"`              // TLS/SSL settings
}

// MQTTTLSConfig contains MQTT TLS/SSL settings
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Enable/disable TLS
	CACert     string `yaml:"ca_cert"`     // Path to CA certificate file
	ClientCert string `yaml:"client_cert"` // Path to client certificate file (optional)
	ClientKey  string `yaml:"client_key"`  // Path to client key file (optional)
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if not specified
	if config.Sensor.Name == "" {
		config.Sensor.Name = "mpy-temp"
	}
	if config.Sensor.ScanTimeoutSec == 0 {
		config.Sensor.ScanTimeoutSec = 10
	}
	if config.Sensor.RetryDelaySec == 0 {
		config.Sensor.RetryDelaySec = 5
	}
	if config.Sensor.LivenessPollSec == 0 {
		config.Sensor.LivenessPollSec = 1
	}
	if config.Sensor.Unit == "" {
		config.Sensor.Unit = "F"
	}

	if config.Pipeline.TickMs == 0 {
		config.Pipeline.TickMs = 100 // 100ms default (10 Hz processing rate)
	}
	if config.Pipeline.HistorySize == 0 {
		config.Pipeline.HistorySize = 3600 // One hour at ~1 Hz
	}
	if config.Pipeline.SmoothingWindowSec == 0 {
		config.Pipeline.SmoothingWindowSec = 15
	}
	if config.Pipeline.RORWindowSec == 0 {
		config.Pipeline.RORWindowSec = 30
	}
	if config.Pipeline.SpikeThreshold == 0 {
		config.Pipeline.SpikeThreshold = 50.0 // Degrees, applied as an absolute band around the recent mean
	}

	if config.Roast.TargetTemp == 0 {
		config.Roast.TargetTemp = 640
	}
	if config.Roast.TargetTimeSec == 0 {
		config.Roast.TargetTimeSec = 960 // 16 minutes
	}

	if config.Recorder.ProfilesDir == "" {
		config.Recorder.ProfilesDir = "profiles"
	}

	if config.Server.Listen == "" {
		config.Server.Listen = ":8080"
	}

	// Set MQTT defaults if not specified
	if config.MQTT.TopicPrefix == "" {
		config.MQTT.TopicPrefix = "roastmon"
	}
	if config.MQTT.PublishInterval == 0 {
		config.MQTT.PublishInterval = 60 // 60 seconds default
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Sensor.Name == "" {
		return fmt.Errorf("sensor.name is required")
	}
	if c.Pipeline.TickMs < 10 {
		return fmt.Errorf("pipeline.tick_ms must be at least 10")
	}
	if c.Pipeline.HistorySize < 1 {
		return fmt.Errorf("pipeline.history_size must be at least 1")
	}
	if c.Pipeline.SmoothingWindowSec < 1 {
		return fmt.Errorf("pipeline.smoothing_window_sec must be at least 1")
	}
	if c.Pipeline.RORWindowSec < 1 {
		return fmt.Errorf("pipeline.ror_window_sec must be at least 1")
	}
	if c.Pipeline.SpikeThreshold <= 0 {
		return fmt.Errorf("pipeline.spike_threshold must be positive")
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}
