package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/mall-order/internal/core/domain"
	"github.com/rl1809/mall-order/internal/port"
)

// SeckillStrategy handles flash-sale orders: session-window validation,
// promotional pricing, free freight, no coupons.
type SeckillStrategy struct {
	catalog    port.CatalogService
	promotions port.PromotionRepository
}

func NewSeckillStrategy(catalog port.CatalogService, promotions port.PromotionRepository) *SeckillStrategy {
	return &SeckillStrategy{catalog: catalog, promotions: promotions}
}

func (s *SeckillStrategy) Type() domain.OrderType {
	return domain.OrderTypeSeckill
}

func (s *SeckillStrategy) Validate(ctx context.Context, order *domain.Order) error {
	if len(order.Items) == 0 {
		return domain.ErrNoItems
	}
	session, err := s.session(ctx, order)
	if err != nil {
		return err
	}
	if !session.Open(time.Now()) {
		return domain.ErrSessionClosed
	}

	requested := 0
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("sku %s: quantity must be positive", item.SkuID)
		}
		if _, ok := session.Prices[item.SkuID]; !ok {
			return fmt.Errorf("%w: sku %s not in session %s", domain.ErrSkuNotFound, item.SkuID, session.ID)
		}
		requested += item.Quantity
	}

	// Courtesy check against already-persisted orders. The authoritative cap
	// is enforced atomically inside the reservation script.
	if session.PerMemberCap > 0 {
		confirmed, err := s.promotions.CountMemberActivityOrders(ctx, session.ID, order.MemberID)
		if err != nil {
			return fmt.Errorf("count member orders: %w", err)
		}
		if confirmed+requested > session.PerMemberCap {
			return domain.ErrPurchaseCapExceeded
		}
	}
	return nil
}

func (s *SeckillStrategy) BuildDraft(ctx context.Context, order *domain.Order) error {
	session, err := s.session(ctx, order)
	if err != nil {
		return err
	}
	return applyPromoPrices(ctx, s.catalog, order, session.Prices)
}

// ApplyFreight: flash-sale orders ship free.
func (s *SeckillStrategy) ApplyFreight(ctx context.Context, order *domain.Order) error {
	order.FreightAmount = decimal.Zero
	order.Recalc()
	return nil
}

func (s *SeckillStrategy) ApplyDiscount(ctx context.Context, order *domain.Order, couponID string) error {
	if couponID != "" {
		return domain.ErrCouponNotAllowed
	}
	return nil
}

// Rehydrate reloads the session record inside the worker; the snapshot only
// carries its id.
func (s *SeckillStrategy) Rehydrate(ctx context.Context, order *domain.Order) error {
	_, err := s.session(ctx, order)
	return err
}

func (s *SeckillStrategy) PostCreate(ctx context.Context, tx port.OrderTx, order *domain.Order, orderID string) error {
	rec := domain.ActivityOrder{
		ActivityID: order.ActivityID(),
		OrderID:    orderID,
		TradeNo:    order.TradeNo,
		MemberID:   order.MemberID,
		OrderType:  order.Type,
	}
	if err := tx.InsertActivityOrder(ctx, rec); err != nil {
		return fmt.Errorf("insert seckill order record: %w", err)
	}
	for _, item := range order.Items {
		if err := tx.AddActivitySales(ctx, rec.ActivityID, item.SkuID, item.Quantity); err != nil {
			return fmt.Errorf("increment sold quantity for sku %s: %w", item.SkuID, err)
		}
	}
	return nil
}

func (s *SeckillStrategy) session(ctx context.Context, order *domain.Order) (*domain.SeckillSession, error) {
	activityID := order.ActivityID()
	if activityID == "" {
		return nil, fmt.Errorf("%w: seckill order carries no session id", domain.ErrActivityNotFound)
	}
	session, err := s.promotions.GetSeckillSession(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("load seckill session %s: %w", activityID, err)
	}
	return session, nil
}

// applyPromoPrices snapshots each sku from the catalog, charges the
// promotional price and records the difference to the catalog price as the
// promotion discount. Shared by the seckill and group-buy strategies.
func applyPromoPrices(ctx context.Context, catalog port.CatalogService, order *domain.Order, prices map[string]decimal.Decimal) error {
	promotion := decimal.Zero
	for i := range order.Items {
		item := &order.Items[i]
		snap, err := catalog.GetSkuSnapshot(ctx, item.SkuID)
		if err != nil {
			return fmt.Errorf("snapshot sku %s: %w", item.SkuID, err)
		}
		item.Snapshot = *snap
		item.SetUnitPrice(snap.Price)

		promoPrice, ok := prices[item.SkuID]
		if !ok {
			return fmt.Errorf("%w: sku %s has no promotional price", domain.ErrSkuNotFound, item.SkuID)
		}
		perUnit := snap.Price.Sub(promoPrice)
		if perUnit.IsNegative() {
			perUnit = decimal.Zero
		}
		promotion = promotion.Add(perUnit.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	order.PromotionAmount = promotion
	order.Recalc()
	return nil
}
