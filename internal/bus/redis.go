package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"conveyor/internal/config"
)

// RedisSubscription consumes transfer events from a Redis stream through a
// consumer group, so multiple orchestrator instances share one stream
// without duplicating work.
type RedisSubscription struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration

	claimCursor string
	lastClaim   time.Time
}

// NewRedisSubscription connects to Redis and ensures the consumer group
// exists on the configured stream.
func NewRedisSubscription(ctx context.Context, cfg config.Bus) (*RedisSubscription, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		_ = client.Close()
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	block := time.Duration(cfg.BlockSeconds) * time.Second
	if block <= 0 {
		block = 5 * time.Second
	}
	return &RedisSubscription{
		client:      client,
		stream:      cfg.Stream,
		group:       cfg.Group,
		consumer:    cfg.Consumer,
		block:       block,
		claimCursor: "0-0",
	}, nil
}

// Next blocks for the next event in the stream. Entries sitting in the
// group's pending list, whether rejected by this process or abandoned by a
// dead consumer, are reclaimed ahead of new entries once their idle time
// passes the block window.
func (s *RedisSubscription) Next(ctx context.Context) (Delivery, error) {
	for {
		if time.Since(s.lastClaim) >= s.block {
			msg, ok, err := s.reclaim(ctx)
			if err != nil {
				return nil, err
			}
			if ok {
				return &redisDelivery{sub: s, id: msg.ID, event: eventFromValues(msg.Values)}, nil
			}
		}
		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    1,
			Block:    s.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Block window elapsed with nothing to read.
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			return nil, fmt.Errorf("read stream: %w", err)
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				return &redisDelivery{sub: s, id: msg.ID, event: eventFromValues(msg.Values)}, nil
			}
		}
	}
}

// reclaim advances one step through the pending-entries list with
// XAUTOCLAIM, picking up at most one message idle for at least the block
// window. The cursor persists across calls; a full scan resets it and
// pauses claiming until the next window.
func (s *RedisSubscription) reclaim(ctx context.Context) (redis.XMessage, bool, error) {
	msgs, cursor, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.block,
		Start:    s.claimCursor,
		Count:    1,
	}).Result()
	if err != nil {
		return redis.XMessage{}, false, fmt.Errorf("claim pending entries: %w", err)
	}
	s.claimCursor = cursor
	if cursor == "0-0" {
		s.lastClaim = time.Now()
	}
	if len(msgs) == 0 {
		return redis.XMessage{}, false, nil
	}
	return msgs[0], true, nil
}

// Close releases the Redis connection.
func (s *RedisSubscription) Close() error {
	return s.client.Close()
}

func eventFromValues(values map[string]any) TransferEvent {
	str := func(key string) string {
		if v, ok := values[key].(string); ok {
			return v
		}
		return ""
	}
	return TransferEvent{
		UUID:     str("uuid"),
		Type:     str("type"),
		Source:   str("source"),
		Dest:     str("dest"),
		Owner:    str("owner"),
		TenantID: str("tenant_id"),
	}
}

type redisDelivery struct {
	sub   *RedisSubscription
	id    string
	event TransferEvent
}

func (d *redisDelivery) Event() TransferEvent { return d.event }

func (d *redisDelivery) Ack(ctx context.Context) error {
	return d.sub.client.XAck(ctx, d.sub.stream, d.sub.group, d.id).Err()
}

// Reject leaves the message unacknowledged in the group's pending list, so
// the reclaim pass in Next redelivers it after the idle window.
func (d *redisDelivery) Reject(ctx context.Context) error {
	return nil
}
