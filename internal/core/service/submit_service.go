package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/mall-order/internal/core/domain"
	"github.com/rl1809/mall-order/internal/core/strategy"
	"github.com/rl1809/mall-order/internal/port"
)

// SubmitItem is one requested sku line.
type SubmitItem struct {
	SkuID    string
	Quantity int
}

// SubmitRequest is the synchronous submission input. Address resolution
// priority: explicit Address, then AddressID, then the member's default.
type SubmitRequest struct {
	MemberID      string
	Type          domain.OrderType
	Items         []SubmitItem
	Address       *domain.Address
	AddressID     string
	CouponID      string
	ActivityID    string
	ExpectedTotal *decimal.Decimal
}

// SubmitResult is returned as soon as the reservation is accepted; the order
// is not durable yet.
type SubmitResult struct {
	TradeNo string
	State   domain.SubmissionState
}

// SubmitService is the synchronous entry point: it builds the draft, runs the
// strategy, reserves stock and enqueues materialization. It never blocks on
// the database write.
type SubmitService struct {
	strategies *strategy.Registry
	stock      port.StockReserver
	pending    port.PendingStore
	queue      port.MaterializationQueue
	addresses  port.AddressService
	pendingTTL time.Duration
	logger     *zap.Logger
}

func NewSubmitService(
	strategies *strategy.Registry,
	stock port.StockReserver,
	pending port.PendingStore,
	queue port.MaterializationQueue,
	addresses port.AddressService,
	pendingTTL time.Duration,
	logger *zap.Logger,
) *SubmitService {
	return &SubmitService{
		strategies: strategies,
		stock:      stock,
		pending:    pending,
		queue:      queue,
		addresses:  addresses,
		pendingTTL: pendingTTL,
		logger:     logger,
	}
}

// Submit runs the synchronous half of the pipeline. Any error before the
// reservation leaves no side effects at all; an enqueue failure after the
// reservation releases it before returning.
func (s *SubmitService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	order, err := s.buildOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	strat, err := s.strategies.For(order.Type)
	if err != nil {
		return nil, err
	}

	if err := strat.Validate(ctx, order); err != nil {
		return nil, err
	}
	if err := strat.BuildDraft(ctx, order); err != nil {
		return nil, err
	}
	if err := strat.ApplyFreight(ctx, order); err != nil {
		return nil, err
	}
	if err := strat.ApplyDiscount(ctx, order, req.CouponID); err != nil {
		return nil, err
	}

	// Defends against stale client-side price caching.
	if req.ExpectedTotal != nil && !req.ExpectedTotal.Equal(order.PayAmount) {
		return nil, fmt.Errorf("%w: expected %s, computed %s",
			domain.ErrPriceMismatch, req.ExpectedTotal, order.PayAmount)
	}

	pool := order.PoolKey()
	items := order.StockItems()
	if err := s.stock.Reserve(ctx, pool, items, order.MemberID); err != nil {
		return nil, err
	}

	order.TradeNo = uuid.NewString()
	order.Status = domain.OrderStatusPendingPayment
	order.CreatedAt = time.Now()

	if err := s.pending.Create(ctx, order.TradeNo, s.pendingTTL); err != nil {
		s.compensate(ctx, pool, items, order.MemberID, order.TradeNo)
		return nil, fmt.Errorf("create pending record: %w", err)
	}

	matReq := domain.MaterializationRequest{
		TradeNo:    order.TradeNo,
		Order:      *order,
		EnqueuedAt: time.Now(),
	}
	if err := s.queue.Enqueue(ctx, matReq, 0); err != nil {
		s.compensate(ctx, pool, items, order.MemberID, order.TradeNo)
		if _, markErr := s.pending.MarkFailed(ctx, order.TradeNo, "enqueue failed"); markErr != nil {
			s.logger.Error("failed to mark aborted submission",
				zap.String("trade_no", order.TradeNo), zap.Error(markErr))
		}
		return nil, fmt.Errorf("enqueue materialization: %w", err)
	}

	s.logger.Info("submission accepted",
		zap.String("trade_no", order.TradeNo),
		zap.String("order_type", order.Type.String()),
		zap.String("member_id", order.MemberID),
		zap.String("pay_amount", order.PayAmount.String()),
	)

	return &SubmitResult{TradeNo: order.TradeNo, State: domain.SubmissionProcessing}, nil
}

// Status reads the submission record; safe to poll repeatedly, stable once
// terminal.
func (s *SubmitService) Status(ctx context.Context, tradeNo string) (*domain.PendingSubmission, error) {
	return s.pending.Get(ctx, tradeNo)
}

func (s *SubmitService) buildOrder(ctx context.Context, req SubmitRequest) (*domain.Order, error) {
	if !req.Type.IsValid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedOrderType, req.Type)
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrNoItems
	}

	address, err := s.resolveAddress(ctx, req)
	if err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.OrderItem{SkuID: item.SkuID, Quantity: item.Quantity})
	}

	order := &domain.Order{
		Type:     req.Type,
		MemberID: req.MemberID,
		Items:    items,
		Address:  *address,
	}
	if req.ActivityID != "" {
		order.Extras = map[string]string{domain.ExtraActivityID: req.ActivityID}
	}
	return order, nil
}

func (s *SubmitService) resolveAddress(ctx context.Context, req SubmitRequest) (*domain.Address, error) {
	if req.Address != nil {
		return req.Address, nil
	}
	address, err := s.addresses.Resolve(ctx, req.MemberID, req.AddressID)
	if err != nil {
		return nil, err
	}
	return address, nil
}

// compensate releases a reservation taken by a submission that could not be
// handed to the worker.
func (s *SubmitService) compensate(ctx context.Context, pool domain.PoolKey, items []domain.StockItem, memberID, tradeNo string) {
	if err := s.stock.Release(ctx, pool, items, memberID); err != nil {
		s.logger.Error("CRITICAL: failed to release reservation after aborted submit",
			zap.String("trade_no", tradeNo),
			zap.String("pool", pool.String()),
			zap.Error(err))
	}
}
