package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"socialsync/internal/logging"
)

// Publisher defines the interface for publishing events to a stream.
type Publisher interface {
	// Publish adds an event to the specified stream.
	// Returns the message ID assigned by Redis.
	Publish(ctx context.Context, stream string, event Event) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
}

// NewPublisher creates a new Publisher backed by Redis Streams.
func NewPublisher(client *redis.Client) Publisher {
	return &RedisPublisher{client: client}
}

// Publish adds an event to the stream using XADD with an auto-generated ID.
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event Event) (string, error) {
	log := logging.For("Publisher").WithFields(logrus.Fields{"stream": stream, "type": event.Type})
	startTime := time.Now()

	values, err := event.ToMap()
	if err != nil {
		log.WithError(err).Error("Publish FAILED")
		return "", fmt.Errorf("serialize event: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		log.WithError(err).Error("Publish FAILED")
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	log.WithFields(logrus.Fields{"msg_id": messageID, "duration": time.Since(startTime)}).Debug("Publish OK")
	return messageID, nil
}
