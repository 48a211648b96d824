package stream

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisSignals carries change announcements over Redis pub/sub, one channel
// per collection, so snapshot reloads fire on writes from any instance.
type RedisSignals struct {
	client *redis.Client
	prefix string
}

func NewRedisSignals(client *redis.Client, prefix string) *RedisSignals {
	if prefix == "" {
		prefix = "posadmin"
	}
	return &RedisSignals{client: client, prefix: prefix}
}

func (r *RedisSignals) channelFor(collection string) string {
	return fmt.Sprintf("%s:changed:%s", r.prefix, collection)
}

func (r *RedisSignals) Notify(ctx context.Context, collection string) error {
	return r.client.Publish(ctx, r.channelFor(collection), "changed").Err()
}

func (r *RedisSignals) Subscribe(ctx context.Context, collection string, fn func()) (func(), error) {
	pubsub := r.client.Subscribe(ctx, r.channelFor(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	ch := pubsub.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ch {
			fn()
		}
	}()

	return func() {
		_ = pubsub.Close()
		<-done
	}, nil
}

var _ Signals = (*RedisSignals)(nil)
