package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/mall-order/internal/core/domain"
)

const (
	dequeueBlock  = time.Second
	promoteBatch  = 100
	readySuffix   = ":ready"
	workingSuffix = ":processing"
	delayedSuffix = ":delayed"
)

// promoteScript moves due delayed entries onto the ready list.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, payload in ipairs(due) do
	redis.call('LPUSH', KEYS[2], payload)
	redis.call('ZREM', KEYS[1], payload)
end
return #due
`)

// RedisQueue is the durable materialization queue: a ready list consumed with
// BLMOVE into a per-queue processing list (acknowledged with LREM), plus a
// delayed sorted set for deferred entries. Delivery is at-least-once;
// consumers must tolerate duplicates.
type RedisQueue struct {
	client *redis.Client
	name   string
}

func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name}
}

func (q *RedisQueue) Enqueue(ctx context.Context, req domain.MaterializationRequest, delay time.Duration) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal materialization request: %w", err)
	}
	if delay <= 0 {
		if err := q.client.LPush(ctx, q.name+readySuffix, payload).Err(); err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}
		return nil
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.name+delayedSuffix, redis.Z{Score: due, Member: payload}).Err(); err != nil {
		return fmt.Errorf("enqueue delayed: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*domain.MaterializationRequest, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := q.promoteDue(ctx); err != nil {
			return nil, err
		}

		payload, err := q.client.BLMove(ctx, q.name+readySuffix, q.name+workingSuffix,
			"RIGHT", "LEFT", dequeueBlock).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("dequeue: %w", err)
		}

		var req domain.MaterializationRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			// Undecodable payload would wedge the processing list; drop it.
			q.client.LRem(ctx, q.name+workingSuffix, 1, payload)
			return nil, fmt.Errorf("unmarshal materialization request: %w", err)
		}
		return &req, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, req domain.MaterializationRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal materialization request: %w", err)
	}
	if err := q.client.LRem(ctx, q.name+workingSuffix, 1, payload).Err(); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

// Recover pushes every unacked processing entry back onto the ready list.
// Called once at startup, before consumers start.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.name+workingSuffix, q.name+readySuffix,
			"RIGHT", "LEFT").Err()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover: %w", err)
		}
		moved++
	}
}

func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := time.Now().UnixMilli()
	err := promoteScript.Run(ctx, q.client,
		[]string{q.name + delayedSuffix, q.name + readySuffix},
		now, promoteBatch,
	).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("promote delayed: %w", err)
	}
	return nil
}
