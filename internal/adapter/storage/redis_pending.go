package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/mall-order/internal/core/domain"
)

const submissionKeyPrefix = "submission:"

// createSubmissionScript refuses to overwrite an existing record so a trade
// number can never be reused.
var createSubmissionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'created_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// terminalTransitionScript is the compare-and-set behind the
// processing -> {created|failed} state machine. Any other transition is a
// no-op reporting the current state.
var terminalTransitionScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state ~= 'processing' then
	return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], ARGV[2], ARGV[3])
return 1
`)

// RedisPendingStore keeps the pending submission records.
type RedisPendingStore struct {
	client *redis.Client
}

func NewRedisPendingStore(client *redis.Client) *RedisPendingStore {
	return &RedisPendingStore{client: client}
}

func (r *RedisPendingStore) Create(ctx context.Context, tradeNo string, ttl time.Duration) error {
	now := time.Now()
	created, err := createSubmissionScript.Run(ctx, r.client,
		[]string{submissionKey(tradeNo)},
		string(domain.SubmissionProcessing),
		now.Format(time.RFC3339Nano),
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("submission %s already exists", tradeNo)
	}
	return nil
}

func (r *RedisPendingStore) Get(ctx context.Context, tradeNo string) (*domain.PendingSubmission, error) {
	fields, err := r.client.HGetAll(ctx, submissionKey(tradeNo)).Result()
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrSubmissionNotFound
	}

	sub := &domain.PendingSubmission{
		TradeNo: tradeNo,
		State:   domain.SubmissionState(fields["state"]),
		OrderID: fields["order_id"],
		Reason:  fields["reason"],
	}
	if raw, ok := fields["created_at"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			sub.CreatedAt = ts
		}
	}
	return sub, nil
}

func (r *RedisPendingStore) MarkCreated(ctx context.Context, tradeNo, orderID string) (bool, error) {
	return r.transition(ctx, tradeNo, domain.SubmissionCreated, "order_id", orderID)
}

func (r *RedisPendingStore) MarkFailed(ctx context.Context, tradeNo, reason string) (bool, error) {
	return r.transition(ctx, tradeNo, domain.SubmissionFailed, "reason", reason)
}

func (r *RedisPendingStore) transition(ctx context.Context, tradeNo string, state domain.SubmissionState, field, value string) (bool, error) {
	applied, err := terminalTransitionScript.Run(ctx, r.client,
		[]string{submissionKey(tradeNo)},
		string(state), field, value,
	).Int()
	if err != nil {
		return false, fmt.Errorf("transition submission to %s: %w", state, err)
	}
	return applied == 1, nil
}

func submissionKey(tradeNo string) string {
	return submissionKeyPrefix + tradeNo
}
