package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/mall-order/internal/core/domain"
	"github.com/rl1809/mall-order/internal/port"
)

// NormalStrategy prices orders from the catalog snapshot, charges a flat
// freight fee below a free-shipping threshold and supports coupons.
type NormalStrategy struct {
	catalog         port.CatalogService
	coupons         port.CouponService
	freightFee      decimal.Decimal
	freightFreeOver decimal.Decimal
}

func NewNormalStrategy(catalog port.CatalogService, coupons port.CouponService, freightFee, freightFreeOver decimal.Decimal) *NormalStrategy {
	return &NormalStrategy{
		catalog:         catalog,
		coupons:         coupons,
		freightFee:      freightFee,
		freightFreeOver: freightFreeOver,
	}
}

func (s *NormalStrategy) Type() domain.OrderType {
	return domain.OrderTypeNormal
}

func (s *NormalStrategy) Validate(ctx context.Context, order *domain.Order) error {
	if len(order.Items) == 0 {
		return domain.ErrNoItems
	}
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("sku %s: quantity must be positive", item.SkuID)
		}
	}
	return nil
}

func (s *NormalStrategy) BuildDraft(ctx context.Context, order *domain.Order) error {
	for i := range order.Items {
		snap, err := s.catalog.GetSkuSnapshot(ctx, order.Items[i].SkuID)
		if err != nil {
			return fmt.Errorf("snapshot sku %s: %w", order.Items[i].SkuID, err)
		}
		order.Items[i].Snapshot = *snap
		order.Items[i].SetUnitPrice(snap.Price)
	}
	order.Recalc()
	return nil
}

func (s *NormalStrategy) ApplyFreight(ctx context.Context, order *domain.Order) error {
	if order.TotalAmount.GreaterThanOrEqual(s.freightFreeOver) {
		order.FreightAmount = decimal.Zero
	} else {
		order.FreightAmount = s.freightFee
	}
	order.Recalc()
	return nil
}

func (s *NormalStrategy) ApplyDiscount(ctx context.Context, order *domain.Order, couponID string) error {
	if couponID == "" {
		return nil
	}
	coupon, err := s.coupons.FindUsable(ctx, order.MemberID, couponID)
	if err != nil {
		return fmt.Errorf("find coupon %s: %w", couponID, err)
	}
	if coupon == nil || !coupon.UsableFor(order.TotalAmount, time.Now()) {
		return domain.ErrCouponNotUsable
	}
	order.CouponID = coupon.ID
	order.CouponUserID = coupon.CouponUserID
	order.CouponAmount = coupon.Amount
	order.Recalc()
	return nil
}

// Rehydrate is a no-op: the catalog snapshot travels with the order.
func (s *NormalStrategy) Rehydrate(ctx context.Context, order *domain.Order) error {
	return nil
}

// PostCreate settles the coupon on the order's transaction, so a failed
// commit leaves the coupon unused for the next delivery.
func (s *NormalStrategy) PostCreate(ctx context.Context, tx port.OrderTx, order *domain.Order, orderID string) error {
	if order.CouponUserID == "" {
		return nil
	}
	if err := tx.SettleCoupon(ctx, order.CouponUserID, orderID); err != nil {
		return fmt.Errorf("settle coupon %s: %w", order.CouponUserID, err)
	}
	return nil
}
