package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/framecast/udp-video-service/internal/config"
	"github.com/framecast/udp-video-service/internal/frame"
	"github.com/framecast/udp-video-service/internal/metrics"
	"github.com/framecast/udp-video-service/internal/protocol"
	"github.com/framecast/udp-video-service/internal/publish"
	"github.com/framecast/udp-video-service/internal/server"
	"github.com/framecast/udp-video-service/internal/stream"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "udp-video-service"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	// Instance ID for correlating logs across restarts
	instanceID := uuid.New().String()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("instance_id", instanceID),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("chunk_payload_size", cfg.Stream.ChunkPayloadSize),
		slog.Int("max_frames", cfg.Stream.MaxFrames),
		slog.Int("max_frame_age_ms", cfg.Stream.MaxFrameAgeMs),
		slog.Bool("publish_enabled", cfg.Publish.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	codec := protocol.NewCodec()
	codec.ChunkPayloadSize = cfg.Stream.ChunkPayloadSize

	reassembler := stream.NewReassembler(stream.Config{
		ChunkPayloadSize: cfg.Stream.ChunkPayloadSize,
		MaxFrames:        cfg.Stream.MaxFrames,
		MaxFrameAge:      cfg.Stream.GetMaxFrameAge(),
	}, logger)
	logger.Info("Frame reassembler initialized",
		slog.Int("max_frames", cfg.Stream.MaxFrames),
		slog.Duration("max_frame_age", cfg.Stream.GetMaxFrameAge()),
	)

	// Optional Redis publisher for completed frames
	var publisher *publish.Publisher
	if cfg.Publish.Enabled {
		publisher, err = publish.NewPublisher(ctx, publish.Config{
			Address:  cfg.Publish.Address,
			Password: cfg.Publish.Password,
			DB:       cfg.Publish.DB,
			TTL:      cfg.Publish.GetTTL(),
		}, logger)
		if err != nil {
			logger.Error("Failed to create frame publisher", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Frame publisher initialized", slog.String("redis_address", cfg.Publish.Address))
	}

	handler := func(f *frame.Frame) {
		logger.Info("Frame completed",
			slog.Uint64("frame_id", uint64(f.FrameID)),
			slog.Int("size", len(f.Data)),
			slog.Int("width", int(f.Width)),
			slog.Int("height", int(f.Height)),
		)

		if publisher == nil {
			return
		}
		if err := publisher.PublishFrame(ctx, f); err != nil {
			appMetrics.PublishErrors.Inc()
			logger.Warn("Failed to publish frame",
				slog.Uint64("frame_id", uint64(f.FrameID)),
				slog.String("error", err.Error()),
			)
			return
		}
		appMetrics.FramesPublished.Inc()
	}

	udpServer := server.NewUDPServer(&cfg.Server, logger, codec, reassembler, appMetrics, handler)
	logger.Info("UDP server initialized")

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, reassembler, udpServer, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	if err := udpServer.Start(); err != nil {
		logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.UDPPort)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("Error closing frame publisher", slog.String("error", err.Error()))
		}
	}

	stats := udpServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("datagrams_received", stats.DatagramsReceived),
		slog.Uint64("datagrams_processed", stats.DatagramsProcessed),
		slog.Uint64("frames_completed", stats.Reassembly.FramesCompleted),
		slog.Uint64("frames_evicted", stats.Reassembly.FramesEvicted),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
