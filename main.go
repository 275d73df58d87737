package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DebugMode enables verbose logging throughout the application
var DebugMode bool

// corsMiddleware adds CORS headers to all responses if enabled in config
func corsMiddleware(config *Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.Server.EnableCORS {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Set global debug mode - check environment variable first, then CLI flag
	DebugMode = *debug
	if debugEnv := os.Getenv("DEBUG"); debugEnv != "" {
		DebugMode = debugEnv == "true" || debugEnv == "1" || debugEnv == "yes"
	}
	if DebugMode {
		log.Println("Debug mode enabled")
	}

	config, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var metrics *Metrics
	if config.Prometheus.Enabled {
		metrics = NewMetrics()
	}

	queue := NewSampleQueue()
	sensor := NewSensorClient(&config.Sensor, NewBluetoothTransport(), queue, metrics)
	monitor := NewMonitor(config, queue, sensor, metrics)
	recorder := NewRecorder(config.Recorder.ProfilesDir)
	wsHandler := NewTelemetryWebSocketHandler(monitor)

	// MQTT publisher (optional)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mqttPublisher *MQTTPublisher
	if config.MQTT.Enabled {
		mqttPublisher, err = NewMQTTPublisher(&config.MQTT)
		if err != nil {
			log.Printf("Warning: Failed to initialize MQTT publisher: %v", err)
		} else {
			mqttPublisher.StartPublisher(ctx)
			defer mqttPublisher.Disconnect()
		}
	} else {
		log.Println("MQTT publishing disabled")
	}

	// Fan each new telemetry frame out to websocket clients and MQTT
	monitor.OnFrame(func(frame TelemetryFrame) {
		wsHandler.Broadcast(frame)
		if mqttPublisher != nil {
			mqttPublisher.PublishTelemetry(frame)
		}
	})

	monitor.Start()
	sensor.Start()

	mux := http.NewServeMux()
	apiServer := NewAPIServer(config, monitor, recorder, sensor, queue, wsHandler)
	apiServer.RegisterRoutes(mux)

	if config.Prometheus.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
		log.Println("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:    config.Server.Listen,
		Handler: corsMiddleware(config, mux),
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")

		sensor.Stop()
		monitor.Stop()

		if err := server.Close(); err != nil {
			log.Printf("Error closing server: %v", err)
		}
	}()

	log.Printf("Server listening on %s", config.Server.Listen)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
