package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "room:"

// RedisRelay maps rooms onto Redis pub/sub channels so participants on
// different processes share a room.
type RedisRelay struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisRelay wraps an existing client. The client is owned by the caller.
func NewRedisRelay(client *redis.Client, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, logger: logger}
}

// Channel returns the Redis channel backing room.
func Channel(room string) string {
	return channelPrefix + room
}

func (r *RedisRelay) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, Channel(msg.Room), body).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, room string, handler Handler) (func(), error) {
	sub := r.client.Subscribe(ctx, Channel(room))
	// Wait for the subscription confirmation so publishes that follow are
	// not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for raw := range sub.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				r.logger.Warn("relay dropped malformed message", zap.String("room", room), zap.Error(err))
				continue
			}
			msg.Room = room
			handler(msg)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := sub.Close(); err != nil {
				r.logger.Warn("relay unsubscribe failed", zap.String("room", room), zap.Error(err))
			}
			<-done
		})
	}, nil
}

// Close is a no-op; the shared client is closed by its owner.
func (r *RedisRelay) Close() error {
	return nil
}
