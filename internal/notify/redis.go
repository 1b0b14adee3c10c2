package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisRelay carries events over Redis pub/sub so every API instance sees them.
type RedisRelay struct {
	client *redis.Client
	prefix string
}

// NewRedisRelay builds a relay; channels are named prefix+group.
func NewRedisRelay(client *redis.Client, prefix string) *RedisRelay {
	if prefix == "" {
		prefix = "qrattend:"
	}
	return &RedisRelay{client: client, prefix: prefix}
}

func (r *RedisRelay) channel(group Group) string { return r.prefix + string(group) }

// Publish sends the JSON encoded event to the group channel.
func (r *RedisRelay) Publish(ctx context.Context, group Group, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel(group), payload).Err()
}

// Subscribe listens on the group channel until cancel is called or ctx is done.
func (r *RedisRelay) Subscribe(ctx context.Context, group Group) (<-chan Event, func(), error) {
	ps := r.client.Subscribe(ctx, r.channel(group))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan Event)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				select {
				case out <- evt:
				case <-done:
					return
				case <-ctx.Done():
					cancel()
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				cancel()
				return
			}
		}
	}()
	return out, cancel, nil
}
