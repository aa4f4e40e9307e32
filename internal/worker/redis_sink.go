package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"studiobook/internal/models"

	"github.com/redis/go-redis/v9"
)

const defaultFeedLength = 1000

// RedisSink publishes notifications on a pub/sub channel and keeps the latest ones in
// a capped feed list for clients that were not listening.
type RedisSink struct {
	client    *redis.Client
	channel   string
	feedKey   string
	feedLimit int64
}

func NewRedisSink(client *redis.Client, channel, feedKey string) *RedisSink {
	return &RedisSink{client: client, channel: channel, feedKey: feedKey, feedLimit: defaultFeedLength}
}

func (s *RedisSink) Deliver(ctx context.Context, msg models.OutboxMessage) error {
	if s.client == nil {
		return errors.New("redis client is nil")
	}

	data, err := json.Marshal(Notification{
		ID:        msg.ID,
		Type:      msg.EventType,
		Payload:   json.RawMessage(msg.Payload),
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Publish(ctx, s.channel, data)
	if s.feedKey != "" {
		pipe.LPush(ctx, s.feedKey, data)
		pipe.LTrim(ctx, s.feedKey, 0, s.feedLimit-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deliver notification %d: %w", msg.ID, err)
	}
	return nil
}
