package statecache

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/evanz1215/binance-trading-bot/internal/config"
	"github.com/evanz1215/binance-trading-bot/internal/engine"
	"github.com/evanz1215/binance-trading-bot/internal/logger"
)

const (
	statusKey     = "trading:engine:status"
	positionsKey  = "trading:engine:positions"
	statusChannel = "trading:engine:events"

	// Entries expire shortly after two missed publishes so a dead engine
	// disappears from dashboards instead of showing stale numbers.
	entryTTL = 5 * time.Minute
)

// Publisher mirrors engine status into Redis for external dashboards. The
// engine itself never reads it back; Redis being down degrades to log noise.
type Publisher struct {
	client      *redis.Client
	coordinator *engine.Coordinator
	log         *logger.Logger
	interval    time.Duration

	stopChan chan struct{}
	done     chan struct{}
}

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(cfg *config.RedisConfig, coordinator *engine.Coordinator, interval time.Duration, log *logger.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Addr, err)
	}

	return &Publisher{
		client:      client,
		coordinator: coordinator,
		log:         log,
		interval:    interval,
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// Start publishes on a fixed interval until Stop.
func (p *Publisher) Start() {
	go func() {
		defer close(p.done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				if err := p.publishOnce(context.Background()); err != nil && p.log != nil {
					p.log.Warning("State publish failed: %v", err)
				}
			}
		}
	}()
}

// Stop halts publishing and closes the connection.
func (p *Publisher) Stop() error {
	close(p.stopChan)
	<-p.done
	return p.client.Close()
}

func (p *Publisher) publishOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := p.coordinator.GetStatus()
	statusJSON, err := jsoniter.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	positionsJSON, err := jsoniter.Marshal(p.coordinator.OpenPositions())
	if err != nil {
		return fmt.Errorf("failed to encode positions: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, statusKey, statusJSON, entryTTL)
	pipe.Set(ctx, positionsKey, positionsJSON, entryTTL)
	pipe.Publish(ctx, statusChannel, statusJSON)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write state to redis: %w", err)
	}
	return nil
}
