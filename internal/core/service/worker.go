package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/mall-order/internal/core/domain"
	"github.com/rl1809/mall-order/internal/core/strategy"
	"github.com/rl1809/mall-order/internal/port"
)

// WorkerConfig carries the environment-dependent policy a worker re-applies
// to every snapshot it consumes.
type WorkerConfig struct {
	// MaxAttempts is the per-request attempt budget before compensation.
	MaxAttempts int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
	// ExpiryWindow is the unpaid-order expiry applied at materialization
	// time, reflecting current settings rather than settings captured at
	// submission.
	ExpiryWindow time.Duration
	// RequeueDelay pushes a request back when compensation itself failed.
	RequeueDelay time.Duration
}

// Worker consumes materialization requests, persists orders and compensates
// reservations when persistence ultimately fails. Safe to run many instances
// concurrently: each trade number's snapshot is independent and persistence
// is idempotent per trade number.
type Worker struct {
	queue      port.MaterializationQueue
	orders     port.OrderRepository
	stock      port.StockReserver
	pending    port.PendingStore
	strategies *strategy.Registry
	events     port.EventPublisher
	cfg        WorkerConfig
	logger     *zap.Logger
}

func NewWorker(
	queue port.MaterializationQueue,
	orders port.OrderRepository,
	stock port.StockReserver,
	pending port.PendingStore,
	strategies *strategy.Registry,
	events port.EventPublisher,
	cfg WorkerConfig,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{
		queue:      queue,
		orders:     orders,
		stock:      stock,
		pending:    pending,
		strategies: strategies,
		events:     events,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run consumes the queue until ctx is cancelled. One goroutine per call.
func (w *Worker) Run(ctx context.Context, id int) {
	log := w.logger.With(zap.Int("worker", id))
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		w.Process(ctx, req, log)
	}
}

// Process drives one materialization request to a terminal outcome.
func (w *Worker) Process(ctx context.Context, req *domain.MaterializationRequest, log *zap.Logger) {
	// A redelivered request whose submission is already terminal has nothing
	// left but the ack: after a compensated failure the reservation is gone,
	// so materializing now would oversell the pool.
	sub, err := w.pending.Get(ctx, req.TradeNo)
	if err != nil && !errors.Is(err, domain.ErrSubmissionNotFound) {
		log.Error("failed to read submission record, leaving for redelivery",
			zap.String("trade_no", req.TradeNo), zap.Error(err))
		return
	}
	if sub != nil && sub.State.Terminal() {
		w.ack(ctx, req, log)
		return
	}

	// Rebuild from the snapshot only; the producing request is long gone.
	order := req.Order
	order.ExpireAt = time.Now().Add(w.cfg.ExpiryWindow)

	strat, err := w.strategies.For(order.Type)
	if err != nil {
		// No strategy can ever materialize this snapshot; compensate now.
		w.fail(ctx, req, &order, err, log)
		return
	}

	var orderID string
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		orderID, lastErr = w.materialize(ctx, strat, &order)
		if lastErr == nil {
			break
		}
		if errors.Is(lastErr, domain.ErrDuplicateTradeNo) {
			// A previous delivery already persisted this trade number.
			orderID, lastErr = w.orders.GetOrderIDByTradeNo(ctx, order.TradeNo)
			if lastErr == nil {
				break
			}
		}
		log.Warn("materialization attempt failed",
			zap.String("trade_no", order.TradeNo),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < w.cfg.MaxAttempts {
			select {
			case <-time.After(w.cfg.RetryDelay):
			case <-ctx.Done():
			}
		}
	}

	if lastErr != nil {
		w.fail(ctx, req, &order, lastErr, log)
		return
	}

	applied, err := w.pending.MarkCreated(ctx, order.TradeNo, orderID)
	if err != nil {
		log.Error("failed to mark submission created",
			zap.String("trade_no", order.TradeNo), zap.Error(err))
	}
	if applied {
		event := domain.OrderCreatedEvent{
			OrderID:    orderID,
			TradeNo:    order.TradeNo,
			MemberID:   order.MemberID,
			OrderType:  order.Type,
			ActivityID: order.ActivityID(),
			PayAmount:  order.PayAmount,
			OccurredAt: time.Now(),
		}
		if err := w.events.Publish(ctx, event); err != nil {
			log.Error("failed to publish order created event",
				zap.String("order_id", orderID), zap.Error(err))
		}
		log.Info("order materialized",
			zap.String("trade_no", order.TradeNo),
			zap.String("order_id", orderID))
	}
	// !applied means the record already reached a terminal state through an
	// earlier delivery; treat as a no-op.

	w.ack(ctx, req, log)
}

// materialize runs rehydration, persistence and the post-create hook; the
// latter two share one transaction.
func (w *Worker) materialize(ctx context.Context, strat strategy.Strategy, order *domain.Order) (string, error) {
	if err := strat.Rehydrate(ctx, order); err != nil {
		return "", err
	}
	return w.orders.CreateOrder(ctx, order, func(ctx context.Context, tx port.OrderTx, orderID string) error {
		return strat.PostCreate(ctx, tx, order, orderID)
	})
}

// fail is the compensation path: release the reservation, then mark the
// submission failed. The release must never be skipped, so when it errors the
// request is pushed back onto the queue for another compensation attempt
// instead of being marked failed.
func (w *Worker) fail(ctx context.Context, req *domain.MaterializationRequest, order *domain.Order, cause error, log *zap.Logger) {
	if err := w.stock.Release(ctx, order.PoolKey(), order.StockItems(), order.MemberID); err != nil {
		log.Error("CRITICAL: compensation release failed, requeueing",
			zap.String("trade_no", order.TradeNo),
			zap.Error(err))
		if reqErr := w.queue.Enqueue(ctx, *req, w.cfg.RequeueDelay); reqErr != nil {
			log.Error("CRITICAL: failed to requeue after compensation failure",
				zap.String("trade_no", order.TradeNo), zap.Error(reqErr))
			return // leave unacked so the queue redelivers
		}
		w.ack(ctx, req, log)
		return
	}

	applied, err := w.pending.MarkFailed(ctx, order.TradeNo, cause.Error())
	if err != nil {
		log.Error("failed to mark submission failed",
			zap.String("trade_no", order.TradeNo), zap.Error(err))
	}
	if applied {
		log.Info("submission failed, stock restored",
			zap.String("trade_no", order.TradeNo),
			zap.String("reason", cause.Error()))
	}
	w.ack(ctx, req, log)
}

func (w *Worker) ack(ctx context.Context, req *domain.MaterializationRequest, log *zap.Logger) {
	if err := w.queue.Ack(ctx, *req); err != nil {
		log.Error("failed to ack materialization request",
			zap.String("trade_no", req.TradeNo), zap.Error(err))
	}
}
