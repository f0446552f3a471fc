package port

import (
	"context"

	"github.com/rl1809/mall-order/internal/core/domain"
)

// StockReserver is the shared reservation store. Both operations execute as a
// single atomic step against the backing store, so no application-level lock
// is needed to prevent oversell.
type StockReserver interface {
	// Reserve atomically checks and decrements every item in the batch within
	// the pool. Either all items are decremented together or none are, in
	// which case it returns *domain.InsufficientStockError naming the skus
	// that fell short, or domain.ErrPurchaseCapExceeded when the member's
	// pool cap would be exceeded.
	Reserve(ctx context.Context, pool domain.PoolKey, items []domain.StockItem, memberID string) error

	// Release increments the quantities back by the same amounts. Used only
	// by the compensation path, never by the happy path.
	Release(ctx context.Context, pool domain.PoolKey, items []domain.StockItem, memberID string) error
}
