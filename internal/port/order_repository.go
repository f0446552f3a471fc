package port

import (
	"context"

	"github.com/rl1809/mall-order/internal/core/domain"
)

// OrderTx exposes the writes a strategy's post-create hook may perform inside
// the order's own transaction.
type OrderTx interface {
	// InsertActivityOrder records the order's membership in a promotional
	// activity.
	InsertActivityOrder(ctx context.Context, rec domain.ActivityOrder) error

	// AddActivitySales increments the sold-quantity counter for a sku within
	// an activity.
	AddActivitySales(ctx context.Context, activityID, skuID string, quantity int) error

	// SettleCoupon marks the coupon consumed by the order. Running on the
	// order's transaction keeps a failed commit from consuming the coupon,
	// so retried deliveries see it unused again. Returns
	// domain.ErrCouponNotUsable when the coupon was already consumed.
	SettleCoupon(ctx context.Context, couponUserID, orderID string) error
}

// OrderRepository persists orders. Orders are keyed by trade number with a
// uniqueness constraint, which makes duplicate queue delivery harmless.
type OrderRepository interface {
	// CreateOrder persists the order and its items, then runs postCreate on
	// the same transaction. Either everything commits or nothing is visible.
	// Returns domain.ErrDuplicateTradeNo when the trade number was already
	// persisted.
	CreateOrder(ctx context.Context, order *domain.Order, postCreate func(ctx context.Context, tx OrderTx, orderID string) error) (orderID string, err error)

	// GetOrderIDByTradeNo resolves an existing order id, or
	// domain.ErrSubmissionNotFound when no order carries the trade number.
	GetOrderIDByTradeNo(ctx context.Context, tradeNo string) (string, error)
}
