package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"collab-app/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const eventsChannel = "collab:events"

// RedisCoordinator relays events between server instances over a single
// Redis pub/sub channel. Every instance receives every event, including its
// own; filtering by SenderID happens in the subscriber.
type RedisCoordinator struct {
	client *redis.Client
	pubsub *redis.PubSub

	mu       sync.RWMutex
	handlers []func(Event)
}

func NewRedisCoordinator(ctx context.Context, redisURL string) (*RedisCoordinator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	c := &RedisCoordinator{
		client: client,
		pubsub: client.Subscribe(ctx, eventsChannel),
	}
	go c.receiveLoop()

	logger.Info("Connected to redis coordinator bus")
	return c, nil
}

func (c *RedisCoordinator) receiveLoop() {
	for msg := range c.pubsub.Channel() {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			logger.Error("Dropping malformed coordinator event: %v", err)
			continue
		}

		c.mu.RLock()
		handlers := make([]func(Event), len(c.handlers))
		copy(handlers, c.handlers)
		c.mu.RUnlock()

		for _, handler := range handlers {
			handler(event)
		}
	}
}

func (c *RedisCoordinator) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.client.Publish(ctx, eventsChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (c *RedisCoordinator) Subscribe(handler func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

func (c *RedisCoordinator) Close() error {
	if err := c.pubsub.Close(); err != nil {
		c.client.Close()
		return err
	}
	return c.client.Close()
}
