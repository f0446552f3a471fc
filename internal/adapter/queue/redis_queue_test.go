package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/mall-order/internal/core/domain"
)

func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func testQueue(t *testing.T, client *redis.Client) *RedisQueue {
	t.Helper()
	name := "test:queue:" + uuid.NewString()
	t.Cleanup(func() {
		client.Del(context.Background(),
			name+readySuffix, name+workingSuffix, name+delayedSuffix)
	})
	return NewRedisQueue(client, name)
}

func testRequest(tradeNo string) domain.MaterializationRequest {
	order := domain.Order{
		TradeNo:  tradeNo,
		Type:     domain.OrderTypeSeckill,
		MemberID: "m-1",
		Items:    []domain.OrderItem{{SkuID: "sku-1", Quantity: 1}},
	}
	order.Items[0].SetUnitPrice(decimal.NewFromInt(50))
	order.Recalc()
	return domain.MaterializationRequest{
		TradeNo:    tradeNo,
		Order:      order,
		EnqueuedAt: time.Now().Truncate(time.Millisecond),
	}
}

func TestRedisQueue_Roundtrip(t *testing.T) {
	client := testRedisClient(t)
	q := testQueue(t, client)
	ctx := context.Background()

	req := testRequest(uuid.NewString())
	if err := q.Enqueue(ctx, req, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got.TradeNo != req.TradeNo {
		t.Errorf("trade_no mismatch: %s != %s", got.TradeNo, req.TradeNo)
	}
	if !got.Order.PayAmount.Equal(req.Order.PayAmount) {
		t.Errorf("pay amount did not survive the roundtrip: %s", got.Order.PayAmount)
	}

	// The entry sits on the processing list until acked.
	working, _ := client.LLen(ctx, q.name+workingSuffix).Result()
	if working != 1 {
		t.Errorf("expected 1 processing entry, got %d", working)
	}
	if err := q.Ack(ctx, *got); err != nil {
		t.Fatalf("ack: %v", err)
	}
	working, _ = client.LLen(ctx, q.name+workingSuffix).Result()
	if working != 0 {
		t.Errorf("expected processing list drained after ack, got %d", working)
	}
}

func TestRedisQueue_FIFO(t *testing.T) {
	client := testRedisClient(t)
	q := testQueue(t, client)
	ctx := context.Background()

	first := testRequest(uuid.NewString())
	second := testRequest(uuid.NewString())
	if err := q.Enqueue(ctx, first, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, second, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got.TradeNo != first.TradeNo {
		t.Errorf("expected FIFO order, got %s first", got.TradeNo)
	}
}

func TestRedisQueue_DelayedEntryBecomesVisible(t *testing.T) {
	client := testRedisClient(t)
	q := testQueue(t, client)
	ctx := context.Background()

	req := testRequest(uuid.NewString())
	if err := q.Enqueue(ctx, req, 300*time.Millisecond); err != nil {
		t.Fatalf("enqueue delayed: %v", err)
	}

	// Not yet due: a short dequeue window must come up empty.
	shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	if _, err := q.Dequeue(shortCtx); err == nil {
		t.Fatal("expected no delivery before the delay elapsed")
	}
	cancel()

	time.Sleep(300 * time.Millisecond)

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue after delay: %v", err)
	}
	if got.TradeNo != req.TradeNo {
		t.Errorf("unexpected entry: %s", got.TradeNo)
	}
}

func TestRedisQueue_RecoverRequeuesUnacked(t *testing.T) {
	client := testRedisClient(t)
	q := testQueue(t, client)
	ctx := context.Background()

	req := testRequest(uuid.NewString())
	if err := q.Enqueue(ctx, req, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	// Consumer dies here without acking.

	moved, err := q.Recover(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if moved != 1 {
		t.Fatalf("expected 1 recovered entry, got %d", moved)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue after recover: %v", err)
	}
	if got.TradeNo != req.TradeNo {
		t.Errorf("recovered entry mismatch: %s", got.TradeNo)
	}
}
