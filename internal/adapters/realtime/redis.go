package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
	"github.com/vncsmyrnk/poll-ledger/internal/logger"
	"go.uber.org/zap"
)

const EventsChannel = "polls:events"

// RedisPublisher sends poll events to every instance subscribed to EventsChannel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, channel: EventsChannel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev domain.PollEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	return nil
}

// RedisBridge feeds events received from redis into the local broker.
type RedisBridge struct {
	client  *redis.Client
	channel string
	local   ports.Publisher
	log     *logger.Logger
}

func NewRedisBridge(client *redis.Client, local ports.Publisher, log *logger.Logger) *RedisBridge {
	return &RedisBridge{client: client, channel: EventsChannel, local: local, log: log}
}

// Run blocks until ctx is done. The subscription is confirmed before Run
// starts relaying, so ready is closed only once events can be received.
func (b *RedisBridge) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev domain.PollEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.WithContext(ctx).Warn("dropping malformed event", zap.Error(err))
				continue
			}
			if err := b.local.Publish(ctx, ev); err != nil {
				b.log.WithContext(ctx).Error("failed to relay event", zap.Error(err))
			}
		}
	}
}
