package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"conveyor/internal/bus"
	"conveyor/internal/config"
)

const testRedisAddr = "127.0.0.1:6379"

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available at %s: %v", testRedisAddr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisRejectedDeliveryIsReclaimed(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	stream := "conveyor-test-" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), stream) })

	sub, err := bus.NewRedisSubscription(ctx, config.Bus{
		RedisAddr:    testRedisAddr,
		Stream:       stream,
		Group:        "conveyor-test",
		Consumer:     "consumer-a",
		BlockSeconds: 1,
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	eventUUID := uuid.NewString()
	err = client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"uuid":      eventUUID,
			"type":      "transfertask.completed",
			"source":    "agave://storage/in.dat",
			"tenant_id": "agave.prod",
		},
	}).Err()
	if err != nil {
		t.Fatalf("xadd: %v", err)
	}

	firstCtx, cancelFirst := context.WithTimeout(ctx, 5*time.Second)
	defer cancelFirst()
	first, err := sub.Next(firstCtx)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if first.Event().UUID != eventUUID {
		t.Fatalf("unexpected event %+v", first.Event())
	}
	if err := first.Reject(ctx); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// Let the entry sit past the idle window so the reclaim pass picks it up.
	time.Sleep(1200 * time.Millisecond)

	secondCtx, cancelSecond := context.WithTimeout(ctx, 5*time.Second)
	defer cancelSecond()
	second, err := sub.Next(secondCtx)
	if err != nil {
		t.Fatalf("redelivery read: %v", err)
	}
	if second.Event().UUID != eventUUID {
		t.Fatalf("expected the rejected event back, got %+v", second.Event())
	}
	if err := second.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
}
