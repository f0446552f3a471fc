package port

import (
	"context"

	"github.com/rl1809/mall-order/internal/core/domain"
)

// CatalogService is the read-only catalog collaborator consulted while
// building a draft.
type CatalogService interface {
	// GetSkuSnapshot captures the sku's current price and availability, or
	// domain.ErrSkuNotFound.
	GetSkuSnapshot(ctx context.Context, skuID string) (*domain.SkuSnapshot, error)
}

// AddressService resolves delivery addresses.
type AddressService interface {
	// Resolve returns the member's address with the given id, or the
	// member's default address when addressID is empty. Returns
	// domain.ErrAddressNotFound when neither exists.
	Resolve(ctx context.Context, memberID, addressID string) (*domain.Address, error)
}

// CouponService is consulted only by strategies that support discounts.
// Settlement happens through OrderTx inside the order's transaction.
type CouponService interface {
	// FindUsable returns the member's coupon when it exists and is unused,
	// nil otherwise.
	FindUsable(ctx context.Context, memberID, couponID string) (*domain.Coupon, error)
}

// PromotionRepository serves the reference data the promotional strategies
// validate against and rehydrate from.
type PromotionRepository interface {
	// GetSeckillSession returns the session, or domain.ErrActivityNotFound.
	GetSeckillSession(ctx context.Context, sessionID string) (*domain.SeckillSession, error)

	// GetGroupBuyLot returns the lot, or domain.ErrActivityNotFound.
	GetGroupBuyLot(ctx context.Context, lotID string) (*domain.GroupBuyLot, error)

	// CountMemberActivityOrders counts a member's already-persisted orders
	// within an activity, used by the courtesy cap check during validation.
	CountMemberActivityOrders(ctx context.Context, activityID, memberID string) (int, error)
}

// EventPublisher delivers domain events to independent subscribers after
// materialization. Fire-and-forget from the worker's point of view.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.OrderCreatedEvent) error
}
