package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/framecast/udp-video-service/internal/config"
	"github.com/framecast/udp-video-service/internal/frame"
	"github.com/framecast/udp-video-service/internal/metrics"
	"github.com/framecast/udp-video-service/internal/protocol"
	"github.com/framecast/udp-video-service/internal/stream"
)

// FrameHandler consumes completed frames. Ownership of the frame buffer
// transfers to the handler; the server does not retain it.
type FrameHandler func(*frame.Frame)

// UDPServer receives protocol datagrams and drives the reassembly core.
// Datagrams are processed inline in the receive loop: the reassembly table
// has exactly one writer, so each datagram is fully parsed, routed and
// possibly emitted before the next is read.
type UDPServer struct {
	conn        *net.UDPConn
	config      *config.ServerConfig
	logger      *slog.Logger
	codec       protocol.Codec
	reassembler *stream.Reassembler
	tracker     *stream.RateTracker
	metrics     *metrics.Metrics
	handler     FrameHandler

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats counters, guarded by mu for the HTTP API
	datagramsReceived  uint64
	datagramsProcessed uint64
	foreignDatagrams   uint64
	parseErrors        uint64
	currentRate        float64
	lastFrame          *frame.Frame
	lastStats          stream.Stats
	mu                 sync.RWMutex
}

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, codec protocol.Codec,
	reassembler *stream.Reassembler, m *metrics.Metrics, handler FrameHandler) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPServer{
		config:      cfg,
		logger:      logger,
		codec:       codec,
		reassembler: reassembler,
		tracker:     stream.NewRateTracker(),
		metrics:     m,
		handler:     handler,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins listening for UDP datagrams
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", addr.String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Stop gracefully stops the UDP server and discards all in-flight
// assemblies. Teardown is coarse: there is no partial async work to cancel.
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	s.cancel()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	s.wg.Wait()

	s.reassembler.Reset()

	s.mu.RLock()
	received := s.datagramsReceived
	processed := s.datagramsProcessed
	foreign := s.foreignDatagrams
	parseErrors := s.parseErrors
	s.mu.RUnlock()

	s.logger.Info("UDP server stopped",
		slog.Uint64("datagrams_received", received),
		slog.Uint64("datagrams_processed", processed),
		slog.Uint64("foreign_datagrams", foreign),
		slog.Uint64("parse_errors", parseErrors),
	)

	return nil
}

// receiveLoop reads one datagram at a time and processes it to completion
func (s *UDPServer) receiveLoop() {
	defer s.wg.Done()

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Receive loop stopping due to context cancellation")
			return
		default:
		}

		// Read deadline so context cancellation is noticed periodically
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP datagram", slog.String("error", err.Error()))
				continue
			}
		}

		s.handleDatagram(buffer[:n], remoteAddr)
	}
}

// handleDatagram parses, routes and possibly emits one datagram. The
// payload slice aliases the receive buffer; the assembler copies the bytes
// it keeps, so no allocation per datagram is needed.
func (s *UDPServer) handleDatagram(data []byte, remoteAddr *net.UDPAddr) {
	s.metrics.DatagramsReceived.Inc()
	s.mu.Lock()
	s.datagramsReceived++
	s.mu.Unlock()

	header, payload, err := s.codec.Parse(data)
	if err != nil {
		if errors.Is(err, protocol.ErrNotVideoPacket) {
			// Foreign traffic; the caller's fallback is to ignore it.
			s.metrics.ForeignDatagrams.Inc()
			s.mu.Lock()
			s.foreignDatagrams++
			s.mu.Unlock()

			s.logger.Debug("Ignoring foreign datagram",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("size", len(data)),
			)
			return
		}

		s.metrics.ParseErrors.Inc()
		s.mu.Lock()
		s.parseErrors++
		s.mu.Unlock()

		s.logger.Warn("Dropping datagram with invalid header",
			slog.String("remote_addr", remoteAddr.String()),
			slog.Int("size", len(data)),
			slog.String("error", err.Error()),
		)
		return
	}

	completed, ok := s.reassembler.Push(header, payload)

	s.metrics.DatagramsProcessed.Inc()
	s.mu.Lock()
	s.datagramsProcessed++
	s.mu.Unlock()

	s.syncReassemblyMetrics()

	if !ok {
		return
	}

	s.metrics.FrameSizeBytes.Observe(float64(len(completed.Data)))
	s.metrics.FrameAssemblySeconds.Observe(time.Since(completed.Created).Seconds())

	if rate, updated := s.tracker.Record(time.Now()); updated {
		s.metrics.FramesPerSecond.Set(rate)
		s.mu.Lock()
		s.currentRate = rate
		s.mu.Unlock()

		s.logger.Debug("Frame rate updated", slog.Float64("fps", rate))
	}

	s.mu.Lock()
	s.lastFrame = completed
	s.mu.Unlock()

	if s.handler != nil {
		s.handler(completed)
	}
}

// syncReassemblyMetrics mirrors the reassembler's counters into Prometheus.
// Safe because this runs on the single datagram-processing goroutine.
func (s *UDPServer) syncReassemblyMetrics() {
	stats := s.reassembler.GetStats()

	s.metrics.ActiveAssemblies.Set(float64(stats.ActiveAssemblies))
	s.metrics.FramesCompleted.Add(float64(stats.FramesCompleted - s.lastStats.FramesCompleted))
	s.metrics.FramesEvicted.Add(float64(stats.FramesEvicted - s.lastStats.FramesEvicted))
	s.metrics.ChunksRejected.Add(float64(stats.ChunksRejected - s.lastStats.ChunksRejected))
	s.metrics.ChunksDuplicate.Add(float64(stats.ChunksDuplicate - s.lastStats.ChunksDuplicate))

	s.lastStats = stats
}

// LatestFrame returns the most recently completed frame, if any.
func (s *UDPServer) LatestFrame() *frame.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFrame
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reassembly := s.reassembler.GetStats()

	return ServerStatistics{
		DatagramsReceived:  s.datagramsReceived,
		DatagramsProcessed: s.datagramsProcessed,
		ForeignDatagrams:   s.foreignDatagrams,
		ParseErrors:        s.parseErrors,
		FramesPerSecond:    s.currentRate,
		Reassembly:         reassembly,
	}
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	DatagramsReceived  uint64       `json:"datagrams_received"`
	DatagramsProcessed uint64       `json:"datagrams_processed"`
	ForeignDatagrams   uint64       `json:"foreign_datagrams"`
	ParseErrors        uint64       `json:"parse_errors"`
	FramesPerSecond    float64      `json:"frames_per_second"`
	Reassembly         stream.Stats `json:"reassembly"`
}
