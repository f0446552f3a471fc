package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/mall-order/internal/core/domain"
)

const (
	poolKeyPrefix = "pool:"
	capMarker     = "__cap__"
)

// reserveScript performs the all-or-nothing batch reservation. Every sku's
// remaining quantity and the per-member cap are checked and decremented in
// one atomic step, which is the only cross-request ordering guarantee the
// pipeline needs to prevent oversell.
//
// KEYS[1] = pool hash (sku -> remaining)
// KEYS[2] = member counter
// KEYS[3] = pool cap
// ARGV    = sku1, qty1, sku2, qty2, ...
//
// Returns {1} on success, or {0, failing sku...} ("__cap__" for the member
// cap) with nothing decremented.
var reserveScript = redis.NewScript(`
local failed = {}
local total = 0
for i = 1, #ARGV, 2 do
	local sku = ARGV[i]
	local qty = tonumber(ARGV[i+1])
	local remain = tonumber(redis.call('HGET', KEYS[1], sku) or '-1')
	if remain < qty then
		table.insert(failed, sku)
	end
	total = total + qty
end

local cap = tonumber(redis.call('GET', KEYS[3]) or '0')
if cap > 0 then
	local used = tonumber(redis.call('GET', KEYS[2]) or '0')
	if used + total > cap then
		table.insert(failed, '__cap__')
	end
end

if #failed > 0 then
	local result = {0}
	for _, sku in ipairs(failed) do
		table.insert(result, sku)
	end
	return result
end

for i = 1, #ARGV, 2 do
	redis.call('HINCRBY', KEYS[1], ARGV[i], -tonumber(ARGV[i+1]))
end
if cap > 0 then
	redis.call('INCRBY', KEYS[2], total)
end
return {1}
`)

// releaseScript restores the same quantities; compensation only.
var releaseScript = redis.NewScript(`
local total = 0
for i = 1, #ARGV, 2 do
	redis.call('HINCRBY', KEYS[1], ARGV[i], tonumber(ARGV[i+1]))
	total = total + tonumber(ARGV[i+1])
end
local used = tonumber(redis.call('GET', KEYS[2]) or '0')
if used > 0 then
	if used <= total then
		redis.call('DEL', KEYS[2])
	else
		redis.call('DECRBY', KEYS[2], total)
	end
end
return 1
`)

// RedisStockStore is the shared stock reservation store.
type RedisStockStore struct {
	client *redis.Client
}

func NewRedisStockStore(client *redis.Client) *RedisStockStore {
	return &RedisStockStore{client: client}
}

func (r *RedisStockStore) Reserve(ctx context.Context, pool domain.PoolKey, items []domain.StockItem, memberID string) error {
	keys := []string{poolKey(pool), memberKey(pool, memberID), capKey(pool)}
	argv := itemArgs(items)

	raw, err := reserveScript.Run(ctx, r.client, keys, argv...).Slice()
	if err != nil {
		return fmt.Errorf("reserve script: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("reserve script: empty reply")
	}
	if ok, _ := raw[0].(int64); ok == 1 {
		return nil
	}

	skus := make([]string, 0, len(raw)-1)
	for _, v := range raw[1:] {
		sku, _ := v.(string)
		if sku == capMarker {
			return domain.ErrPurchaseCapExceeded
		}
		skus = append(skus, sku)
	}
	return &domain.InsufficientStockError{Pool: pool, Skus: skus}
}

func (r *RedisStockStore) Release(ctx context.Context, pool domain.PoolKey, items []domain.StockItem, memberID string) error {
	keys := []string{poolKey(pool), memberKey(pool, memberID)}
	if err := releaseScript.Run(ctx, r.client, keys, itemArgs(items)...).Err(); err != nil {
		return fmt.Errorf("release script: %w", err)
	}
	return nil
}

// SeedPool loads the pool's sku quantities and per-member cap; used at
// session warm-up and by tests. cap 0 means unlimited.
func (r *RedisStockStore) SeedPool(ctx context.Context, pool domain.PoolKey, stocks map[string]int, memberCap int) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, poolKey(pool), capKey(pool))
	for sku, qty := range stocks {
		pipe.HSet(ctx, poolKey(pool), sku, qty)
	}
	if memberCap > 0 {
		pipe.Set(ctx, capKey(pool), memberCap, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seed pool %s: %w", pool, err)
	}
	return nil
}

// Remaining reads a sku's remaining quantity in the pool; -1 when absent.
func (r *RedisStockStore) Remaining(ctx context.Context, pool domain.PoolKey, skuID string) (int, error) {
	val, err := r.client.HGet(ctx, poolKey(pool), skuID).Int()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func poolKey(pool domain.PoolKey) string {
	return poolKeyPrefix + pool.String()
}

func memberKey(pool domain.PoolKey, memberID string) string {
	return poolKeyPrefix + pool.String() + ":member:" + memberID
}

func capKey(pool domain.PoolKey) string {
	return poolKeyPrefix + pool.String() + ":cap"
}

func itemArgs(items []domain.StockItem) []interface{} {
	argv := make([]interface{}, 0, len(items)*2)
	for _, item := range items {
		argv = append(argv, item.SkuID, item.Quantity)
	}
	return argv
}
