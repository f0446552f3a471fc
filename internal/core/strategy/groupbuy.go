package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/mall-order/internal/core/domain"
	"github.com/rl1809/mall-order/internal/port"
)

// GroupBuyStrategy handles group-buy orders: lot-window and capacity
// validation, lot pricing, flat freight, no coupons.
type GroupBuyStrategy struct {
	catalog    port.CatalogService
	promotions port.PromotionRepository
	freightFee decimal.Decimal
}

func NewGroupBuyStrategy(catalog port.CatalogService, promotions port.PromotionRepository, freightFee decimal.Decimal) *GroupBuyStrategy {
	return &GroupBuyStrategy{catalog: catalog, promotions: promotions, freightFee: freightFee}
}

func (s *GroupBuyStrategy) Type() domain.OrderType {
	return domain.OrderTypeGroupBuy
}

func (s *GroupBuyStrategy) Validate(ctx context.Context, order *domain.Order) error {
	if len(order.Items) == 0 {
		return domain.ErrNoItems
	}
	lot, err := s.lot(ctx, order)
	if err != nil {
		return err
	}
	if !lot.Open(time.Now()) {
		return domain.ErrSessionClosed
	}

	requested := 0
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("sku %s: quantity must be positive", item.SkuID)
		}
		if _, ok := lot.Prices[item.SkuID]; !ok {
			return fmt.Errorf("%w: sku %s not in lot %s", domain.ErrSkuNotFound, item.SkuID, lot.ID)
		}
		requested += item.Quantity
	}

	if lot.PerMemberCap > 0 {
		confirmed, err := s.promotions.CountMemberActivityOrders(ctx, lot.ID, order.MemberID)
		if err != nil {
			return fmt.Errorf("count member orders: %w", err)
		}
		if confirmed+requested > lot.PerMemberCap {
			return domain.ErrPurchaseCapExceeded
		}
	}
	return nil
}

func (s *GroupBuyStrategy) BuildDraft(ctx context.Context, order *domain.Order) error {
	lot, err := s.lot(ctx, order)
	if err != nil {
		return err
	}
	return applyPromoPrices(ctx, s.catalog, order, lot.Prices)
}

func (s *GroupBuyStrategy) ApplyFreight(ctx context.Context, order *domain.Order) error {
	order.FreightAmount = s.freightFee
	order.Recalc()
	return nil
}

func (s *GroupBuyStrategy) ApplyDiscount(ctx context.Context, order *domain.Order, couponID string) error {
	if couponID != "" {
		return domain.ErrCouponNotAllowed
	}
	return nil
}

func (s *GroupBuyStrategy) Rehydrate(ctx context.Context, order *domain.Order) error {
	_, err := s.lot(ctx, order)
	return err
}

// PostCreate records the lot membership and the sold counters; the joined
// count is the number of activity order rows, so membership and aggregates
// stay consistent inside the transaction.
func (s *GroupBuyStrategy) PostCreate(ctx context.Context, tx port.OrderTx, order *domain.Order, orderID string) error {
	rec := domain.ActivityOrder{
		ActivityID: order.ActivityID(),
		OrderID:    orderID,
		TradeNo:    order.TradeNo,
		MemberID:   order.MemberID,
		OrderType:  order.Type,
	}
	if err := tx.InsertActivityOrder(ctx, rec); err != nil {
		return fmt.Errorf("insert group-buy membership: %w", err)
	}
	for _, item := range order.Items {
		if err := tx.AddActivitySales(ctx, rec.ActivityID, item.SkuID, item.Quantity); err != nil {
			return fmt.Errorf("increment lot sales for sku %s: %w", item.SkuID, err)
		}
	}
	return nil
}

func (s *GroupBuyStrategy) lot(ctx context.Context, order *domain.Order) (*domain.GroupBuyLot, error) {
	activityID := order.ActivityID()
	if activityID == "" {
		return nil, fmt.Errorf("%w: group-buy order carries no lot id", domain.ErrActivityNotFound)
	}
	lot, err := s.promotions.GetGroupBuyLot(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("load group-buy lot %s: %w", activityID, err)
	}
	return lot, nil
}
