package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Subscriber forwards GraphChangeEvents from Redis to in-process handlers.
type Subscriber struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewSubscriber creates a Subscriber on the given channel.
func NewSubscriber(client *redis.Client, channel string, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		client:  client,
		channel: channel,
		logger:  logger.Named("events"),
	}
}

// Forward subscribes to the channel and calls onEvent for every decoded
// event until ctx is cancelled. It returns once the subscription is active.
func (s *Subscriber) Forward(ctx context.Context, onEvent func(GraphChangeEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var event GraphChangeEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					s.logger.Warn("Dropping malformed graph change event", zap.Error(err))
					continue
				}
				onEvent(event)
			}
		}
	}()

	return nil
}
