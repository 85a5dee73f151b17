package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/framecast/udp-video-service/internal/frame"
)

// Publisher pushes completed frames into Redis so downstream consumers
// (decoders, archivers) can pick them up. Frames are stored under
// "frame:<id>" with a TTL; stale frames simply expire.
type Publisher struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// Config contains Redis connection parameters for the publisher.
type Config struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(ctx context.Context, cfg Config, logger *slog.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	logger.Info("Connected to Redis",
		slog.String("address", cfg.Address),
		slog.Int("db", cfg.DB),
		slog.Duration("frame_ttl", cfg.TTL),
	)

	return &Publisher{
		client: client,
		logger: logger,
		ttl:    cfg.TTL,
	}, nil
}

// PublishFrame stores one completed frame as JSON under its frame id.
func (p *Publisher) PublishFrame(ctx context.Context, f *frame.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame %d: %w", f.FrameID, err)
	}

	key := fmt.Sprintf("frame:%d", f.FrameID)
	if err := p.client.Set(ctx, key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("publish frame %d: %w", f.FrameID, err)
	}

	p.logger.Debug("Published frame",
		slog.String("key", key),
		slog.Int("size", len(f.Data)),
	)

	return nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
