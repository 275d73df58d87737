package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// MQTTPublisher pushes telemetry frames and periodic metric snapshots to
// an MQTT broker
type MQTTPublisher struct {
	client mqtt.Client
	config *MQTTConfig
}

// MetricPayload represents a metric message for MQTT
type MetricPayload struct {
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// TelemetryPayload is the condensed per-frame message; full series stay
// on the WebSocket, MQTT carries the current values only
type TelemetryPayload struct {
	Timestamp       int64    `json:"timestamp"`
	SensorConnected bool     `json:"sensor_connected"`
	RoastActive     bool     `json:"roast_active"`
	RoastElapsed    float64  `json:"roast_elapsed"`
	SessionID       string   `json:"session_id,omitempty"`
	ChannelA        *float64 `json:"channel_a,omitempty"`
	ChannelB        *float64 `json:"channel_b,omitempty"`
	RateOfRise      *float64 `json:"rate_of_rise,omitempty"`
}

// generateClientID creates a random client ID for MQTT connection
func generateClientID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "roastmon_" + hex.EncodeToString(bytes)
}

// loadTLSConfig loads TLS configuration from files
func loadTLSConfig(tlsConfig MQTTTLSConfig) (*tls.Config, error) {
	if !tlsConfig.Enabled {
		return nil, nil
	}

	config := &tls.Config{}

	if tlsConfig.CACert != "" {
		caCert, err := os.ReadFile(tlsConfig.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	if tlsConfig.ClientCert != "" && tlsConfig.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.ClientCert, tlsConfig.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}

// NewMQTTPublisher connects to the broker and returns a publisher
func NewMQTTPublisher(config *MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(generateClientID())

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	if config.TLS.Enabled {
		tlsConfig, err := loadTLSConfig(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Println("MQTT: Connected to broker")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT: Connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Println("MQTT: Attempting to reconnect...")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Printf("MQTT: Successfully connected to broker: %s", config.Broker)

	return &MQTTPublisher{
		client: client,
		config: config,
	}, nil
}

// StartPublisher starts the periodic metrics snapshot goroutine
func (mp *MQTTPublisher) StartPublisher(ctx context.Context) {
	go mp.startMetricsPublisher(ctx)
}

// startMetricsPublisher publishes registry snapshots at the configured
// interval, immediately on start and then on each tick
func (mp *MQTTPublisher) startMetricsPublisher(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(mp.config.PublishInterval) * time.Second)
	defer ticker.Stop()

	log.Printf("MQTT: Metrics publisher started with %d second interval", mp.config.PublishInterval)

	mp.publishAllMetrics()

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT: Metrics publisher stopped")
			return
		case <-ticker.C:
			mp.publishAllMetrics()
		}
	}
}

// PublishTelemetry publishes the condensed live values for a frame
func (mp *MQTTPublisher) PublishTelemetry(frame TelemetryFrame) {
	payload := TelemetryPayload{
		Timestamp:       time.Now().Unix(),
		SensorConnected: frame.SensorConnected,
		RoastActive:     frame.RoastActive,
		RoastElapsed:    frame.RoastElapsed,
		SessionID:       frame.SessionID,
		ChannelA:        frame.CurrentA,
		ChannelB:        frame.CurrentB,
		RateOfRise:      frame.CurrentROR,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("MQTT ERROR: Failed to marshal telemetry: %v", err)
		return
	}

	topic := fmt.Sprintf("%s/telemetry", mp.config.TopicPrefix)
	token := mp.client.Publish(topic, mp.config.QoS, mp.config.Retain, data)
	if token.Wait() && token.Error() != nil {
		log.Printf("MQTT ERROR: Failed to publish to topic %s: %v", topic, token.Error())
	}
}

// publishAllMetrics gathers the Prometheus registry and publishes the
// values grouped by channel label: per-channel metrics go under
// metrics/<channel>, the rest under metrics.
func (mp *MQTTPublisher) publishAllMetrics() {
	timestamp := time.Now().Unix()

	metricFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		log.Printf("MQTT ERROR: Failed to gather Prometheus metrics: %v", err)
		return
	}

	serviceMetrics := make(map[string]float64)
	channelMetrics := make(map[string]map[string]float64)

	for _, mf := range metricFamilies {
		metricName := mf.GetName()
		for _, m := range mf.GetMetric() {
			value, ok := extractMetricValue(m)
			if !ok {
				continue
			}

			var channel string
			for _, label := range m.GetLabel() {
				if label.GetName() == "channel" {
					channel = label.GetValue()
				}
			}

			if channel != "" {
				if channelMetrics[channel] == nil {
					channelMetrics[channel] = make(map[string]float64)
				}
				channelMetrics[channel][metricName] = value
			} else {
				serviceMetrics[metricName] = value
			}
		}
	}

	mp.publish(fmt.Sprintf("%s/metrics", mp.config.TopicPrefix), MetricPayload{
		Timestamp: timestamp,
		Metrics:   serviceMetrics,
	})
	for channel, metrics := range channelMetrics {
		mp.publish(fmt.Sprintf("%s/metrics/%s", mp.config.TopicPrefix, channel), MetricPayload{
			Timestamp: timestamp,
			Metrics:   metrics,
		})
	}
}

// extractMetricValue pulls the numeric value out of a gathered metric
func extractMetricValue(m *dto.Metric) (float64, bool) {
	if m.GetGauge() != nil {
		return m.GetGauge().GetValue(), true
	}
	if m.GetCounter() != nil {
		return m.GetCounter().GetValue(), true
	}
	if m.GetHistogram() != nil {
		return m.GetHistogram().GetSampleSum(), true
	}
	if m.GetSummary() != nil {
		return m.GetSummary().GetSampleSum(), true
	}
	return 0, false
}

// publish sends a payload to an MQTT topic
func (mp *MQTTPublisher) publish(topic string, payload MetricPayload) {
	if len(payload.Metrics) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("MQTT ERROR: Failed to marshal payload for topic %s: %v", topic, err)
		return
	}

	token := mp.client.Publish(topic, mp.config.QoS, mp.config.Retain, data)
	if token.Wait() && token.Error() != nil {
		log.Printf("MQTT ERROR: Failed to publish to topic %s: %v", topic, token.Error())
	}
}

// Disconnect closes the MQTT connection
func (mp *MQTTPublisher) Disconnect() {
	if mp.client != nil && mp.client.IsConnected() {
		mp.client.Disconnect(250)
		log.Println("MQTT: Disconnected from broker")
	}
}
