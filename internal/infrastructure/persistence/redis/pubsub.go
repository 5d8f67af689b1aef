package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/messaging"
)

// PubSub adapts a go-redis client to messaging.RedisClient.
type PubSub struct {
	client *redis.Client
	subs   []*redis.PubSub
}

// NewPubSub creates the adapter. The client is shared with Cache and is not
// closed by the adapter.
func NewPubSub(client *redis.Client) *PubSub {
	return &PubSub{client: client}
}

// Publish sends message to channel.
func (p *PubSub) Publish(ctx context.Context, channel string, message string) error {
	if err := p.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of messages that closes when ctx is done.
func (p *PubSub) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	sub := p.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	p.subs = append(p.subs, sub)

	out := make(chan messaging.RedisMessage)
	go func() {
		defer close(out)
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- messaging.RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the subscriptions opened by this adapter.
func (p *PubSub) Close() error {
	var firstErr error
	for _, sub := range p.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.subs = nil
	return firstErr
}
