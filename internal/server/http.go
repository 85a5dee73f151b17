package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/framecast/udp-video-service/internal/config"
	"github.com/framecast/udp-video-service/internal/metrics"
	"github.com/framecast/udp-video-service/internal/stream"
)

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	config      *config.Config
	reassembler *stream.Reassembler
	udpServer   *UDPServer
	metrics     *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, reassembler *stream.Reassembler, udpServer *UDPServer, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:      logger,
		config:      appConfig,
		reassembler: reassembler,
		udpServer:   udpServer,
		metrics:     m,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/assemblies", h.withMetrics("/assemblies", h.handleAssemblies))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/frames/latest", h.withMetrics("/frames/latest", h.handleLatestFrame))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", h.handleRoot)
}

// withMetrics wraps a handler with request counting and duration tracking
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		handler(rw, r)

		h.metrics.HTTPRequests.WithLabelValues(endpoint, strconv.Itoa(rw.status)).Inc()
		h.metrics.HTTPRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

// responseWriter captures the status code for metrics
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start begins serving HTTP requests in a background goroutine
func (h *HTTPServer) Start() error {
	go func() {
		h.logger.Info("HTTP API server started", slog.String("address", h.server.Addr))
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")
	return h.server.Shutdown(ctx)
}

// handleHealth responds with service health and uptime
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":  "healthy",
		"uptime":  time.Since(h.startTime).String(),
		"version": "1.0.0",
	}

	h.writeJSON(w, response)
}

// handleAssemblies lists all in-flight frame assemblies
func (h *HTTPServer) handleAssemblies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	assemblies := h.reassembler.Assemblies()

	response := map[string]interface{}{
		"count":      len(assemblies),
		"assemblies": assemblies,
	}

	h.writeJSON(w, response)
}

// handleStats responds with UDP server and reassembly statistics
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, h.udpServer.GetStatistics())
}

// handleConfig responds with the active configuration, omitting secrets
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"server": map[string]interface{}{
			"udp_port":     h.config.Server.UDPPort,
			"bind_address": h.config.Server.BindAddress,
			"buffer_size":  h.config.Server.BufferSize,
		},
		"stream": map[string]interface{}{
			"chunk_payload_size": h.config.Stream.ChunkPayloadSize,
			"max_frames":         h.config.Stream.MaxFrames,
			"max_frame_age_ms":   h.config.Stream.MaxFrameAgeMs,
		},
		"publish": map[string]interface{}{
			"enabled": h.config.Publish.Enabled,
			"address": h.config.Publish.Address,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
		},
	}

	h.writeJSON(w, response)
}

// handleLatestFrame serves the raw bytes of the most recently completed
// frame. The bytes are served opaque; this service never decodes them.
func (h *HTTPServer) handleLatestFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f := h.udpServer.LatestFrame()
	if f == nil {
		http.Error(w, "No frame completed yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Frame-ID", strconv.FormatUint(uint64(f.FrameID), 10))
	w.Header().Set("X-Frame-Width", strconv.Itoa(int(f.Width)))
	w.Header().Set("X-Frame-Height", strconv.Itoa(int(f.Height)))

	if _, err := w.Write(f.Data); err != nil {
		h.logger.Warn("Failed to write frame response", slog.String("error", err.Error()))
	}
}

// handleRoot responds with a short API index
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	response := map[string]interface{}{
		"service": "udp-video-service",
		"endpoints": []string{
			"/health",
			"/assemblies",
			"/stats",
			"/config",
			"/frames/latest",
			"/metrics",
		},
	}

	h.writeJSON(w, response)
}

// writeJSON serializes a response as JSON
func (h *HTTPServer) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}
