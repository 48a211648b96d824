package identity

import (
	"context"
	"encoding/json"
	"log"

	redis "github.com/redis/go-redis/v9"
)

// RedisEvents carries identity events over a Redis pub/sub channel so that
// every backend instance observes the same sign-in/sign-out stream.
type RedisEvents struct {
	client  *redis.Client
	channel string
}

func NewRedisEvents(client *redis.Client, channel string) *RedisEvents {
	if channel == "" {
		channel = "posadmin:identity"
	}
	return &RedisEvents{client: client, channel: channel}
}

func (r *RedisEvents) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *RedisEvents) Subscribe(ctx context.Context, fn func(Event)) (func(), error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	ch := pubsub.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("[identity] WARN: dropping malformed event payload: %v", err)
				continue
			}
			fn(event)
		}
	}()

	return func() {
		_ = pubsub.Close()
		<-done
	}, nil
}

var (
	_ Source    = (*RedisEvents)(nil)
	_ Publisher = (*RedisEvents)(nil)
)
