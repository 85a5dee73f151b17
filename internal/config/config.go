package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	HTTP    HTTPConfig    `yaml:"http"`
	Stream  StreamConfig  `yaml:"stream"`
	Publish PublishConfig `yaml:"publish"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains UDP server configuration
type ServerConfig struct {
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// StreamConfig contains frame reassembly parameters
type StreamConfig struct {
	ChunkPayloadSize int `yaml:"chunk_payload_size"` // fixed per-chunk payload bytes
	MaxFrames        int `yaml:"max_frames"`         // table size above which GC scans
	MaxFrameAgeMs    int `yaml:"max_frame_age_ms"`   // staleness threshold for eviction
}

// PublishConfig contains the optional Redis frame publisher configuration
type PublishConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLSec   int    `yaml:"ttl_sec"` // how long published frames live
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs validation of the complete configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	if err := c.Publish.Validate(); err != nil {
		return fmt.Errorf("publish config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates frame reassembly configuration
func (s *StreamConfig) Validate() error {
	if s.ChunkPayloadSize < 1 {
		return fmt.Errorf("chunk_payload_size must be positive, got %d", s.ChunkPayloadSize)
	}

	if s.ChunkPayloadSize > 65507 {
		return fmt.Errorf("chunk_payload_size must fit one UDP datagram, got %d", s.ChunkPayloadSize)
	}

	if s.MaxFrames < 1 {
		return fmt.Errorf("max_frames must be at least 1, got %d", s.MaxFrames)
	}

	if s.MaxFrameAgeMs < 1 {
		return fmt.Errorf("max_frame_age_ms must be at least 1, got %d", s.MaxFrameAgeMs)
	}

	return nil
}

// Validate validates the frame publisher configuration
func (p *PublishConfig) Validate() error {
	if !p.Enabled {
		return nil
	}

	if p.Address == "" {
		return fmt.Errorf("address cannot be empty when publishing is enabled")
	}

	if p.DB < 0 {
		return fmt.Errorf("db cannot be negative, got %d", p.DB)
	}

	if p.TTLSec < 1 {
		return fmt.Errorf("ttl_sec must be at least 1 second, got %d", p.TTLSec)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetMaxFrameAge returns the staleness threshold as a time.Duration
func (s *StreamConfig) GetMaxFrameAge() time.Duration {
	return time.Duration(s.MaxFrameAgeMs) * time.Millisecond
}

// GetTTL returns the published-frame TTL as a time.Duration
func (p *PublishConfig) GetTTL() time.Duration {
	return time.Duration(p.TTLSec) * time.Second
}
