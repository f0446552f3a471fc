package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/mall-order/internal/core/domain"
	"github.com/rl1809/mall-order/internal/port"
)

// memOrders is an in-memory order repository with transaction semantics:
// failTimes makes the first N calls fail at commit, discarding everything the
// post-create hook wrote during that attempt.
type memOrders struct {
	mu        sync.Mutex
	byTradeNo map[string]string // trade_no -> order_id
	failTimes int
	attempts  int
	commits   int
	settles   []string
	lastOrder *domain.Order
}

func newMemOrders() *memOrders {
	return &memOrders{byTradeNo: make(map[string]string)}
}

func (o *memOrders) CreateOrder(ctx context.Context, order *domain.Order, postCreate func(ctx context.Context, tx port.OrderTx, orderID string) error) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
	if _, ok := o.byTradeNo[order.TradeNo]; ok {
		return "", domain.ErrDuplicateTradeNo
	}
	orderID := "order-" + order.TradeNo
	tx := &recordingTx{}
	if postCreate != nil {
		if err := postCreate(ctx, tx, orderID); err != nil {
			return "", err
		}
	}
	if o.attempts <= o.failTimes {
		// Commit failure; the tx's writes roll back with the order.
		return "", errors.New("connection reset")
	}
	o.commits++
	o.settles = append(o.settles, tx.settles...)
	copied := *order
	o.lastOrder = &copied
	o.byTradeNo[order.TradeNo] = orderID
	return orderID, nil
}

func (o *memOrders) GetOrderIDByTradeNo(ctx context.Context, tradeNo string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	orderID, ok := o.byTradeNo[tradeNo]
	if !ok {
		return "", domain.ErrSubmissionNotFound
	}
	return orderID, nil
}

type recordingTx struct {
	settles []string
}

func (t *recordingTx) InsertActivityOrder(ctx context.Context, rec domain.ActivityOrder) error {
	return nil
}

func (t *recordingTx) AddActivitySales(ctx context.Context, activityID, skuID string, quantity int) error {
	return nil
}

func (t *recordingTx) SettleCoupon(ctx context.Context, couponUserID, orderID string) error {
	t.settles = append(t.settles, couponUserID+":"+orderID)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderCreatedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// failingStock wraps memStock and fails the first N Release calls.
type failingStock struct {
	*memStock
	failReleases int
	releaseCalls int
}

func (s *failingStock) Release(ctx context.Context, pool domain.PoolKey, items []domain.StockItem, memberID string) error {
	s.releaseCalls++
	if s.releaseCalls <= s.failReleases {
		return errors.New("redis timeout")
	}
	return s.memStock.Release(ctx, pool, items, memberID)
}

var (
	_ port.OrderRepository = (*memOrders)(nil)
	_ port.EventPublisher  = (*recordingPublisher)(nil)
	_ port.StockReserver   = (*failingStock)(nil)
)

func workerFixture(orders *memOrders, stock port.StockReserver, pending *memPending, queue *memQueue) *Worker {
	return NewWorker(queue, orders, stock, pending, normalRegistry("50.00"), &recordingPublisher{},
		WorkerConfig{
			MaxAttempts:  3,
			RetryDelay:   time.Millisecond,
			ExpiryWindow: 30 * time.Minute,
			RequeueDelay: time.Millisecond,
		}, zap.NewNop())
}

func pendingWith(t *testing.T, tradeNo string) *memPending {
	t.Helper()
	pending := newMemPending()
	require.NoError(t, pending.Create(context.Background(), tradeNo, time.Minute))
	return pending
}

func normalSnapshot(tradeNo string) domain.MaterializationRequest {
	order := domain.Order{
		TradeNo:  tradeNo,
		Type:     domain.OrderTypeNormal,
		MemberID: "m-1",
		Status:   domain.OrderStatusPendingPayment,
		Items:    []domain.OrderItem{{SkuID: "sku-1", Quantity: 2}},
	}
	order.Items[0].SetUnitPrice(dec("50.00"))
	order.Recalc()
	return domain.MaterializationRequest{TradeNo: tradeNo, Order: order, EnqueuedAt: time.Now()}
}

func TestWorker_Process_Success(t *testing.T) {
	orders := newMemOrders()
	pending := pendingWith(t, "t-1")
	queue := &memQueue{}
	events := &recordingPublisher{}
	w := NewWorker(queue, orders, newMemStock(), pending, normalRegistry("50.00"), events,
		WorkerConfig{MaxAttempts: 3, ExpiryWindow: 30 * time.Minute}, zap.NewNop())

	req := normalSnapshot("t-1")
	w.Process(context.Background(), &req, zap.NewNop())

	rec, err := pending.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionCreated, rec.State)
	assert.Equal(t, "order-t-1", rec.OrderID)

	require.Len(t, events.events, 1)
	assert.Equal(t, "t-1", events.events[0].TradeNo)
	assert.Equal(t, "order-t-1", events.events[0].OrderID)
}

func TestWorker_Process_RetriesThenSucceeds(t *testing.T) {
	orders := newMemOrders()
	orders.failTimes = 2
	pending := pendingWith(t, "t-2")
	w := workerFixture(orders, newMemStock(), pending, &memQueue{})

	req := normalSnapshot("t-2")
	w.Process(context.Background(), &req, zap.NewNop())

	assert.Equal(t, 3, orders.attempts)
	rec, err := pending.Get(context.Background(), "t-2")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionCreated, rec.State)
}

func TestWorker_Process_ExhaustedAttempts_Compensates(t *testing.T) {
	orders := newMemOrders()
	orders.failTimes = 3 // all attempts fail
	stock := newMemStock()
	pending := pendingWith(t, "t-3")
	w := workerFixture(orders, stock, pending, &memQueue{})

	req := normalSnapshot("t-3")
	pool := req.Order.PoolKey()
	w.Process(context.Background(), &req, zap.NewNop())

	assert.Equal(t, 3, orders.attempts)
	assert.Equal(t, 1, stock.releases)
	assert.Equal(t, 2, stock.get(pool, "sku-1"), "released exactly the reserved quantity")

	rec, err := pending.Get(context.Background(), "t-3")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionFailed, rec.State)
	assert.NotEmpty(t, rec.Reason)
}

func TestWorker_Process_DuplicateDelivery_NoDoubleCharge(t *testing.T) {
	orders := newMemOrders()
	stock := newMemStock()
	pending := pendingWith(t, "t-4")
	w := workerFixture(orders, stock, pending, &memQueue{})

	req := normalSnapshot("t-4")
	w.Process(context.Background(), &req, zap.NewNop())
	// Second delivery of the same snapshot.
	again := normalSnapshot("t-4")
	w.Process(context.Background(), &again, zap.NewNop())

	assert.Equal(t, 1, orders.commits, "order committed exactly once")
	assert.Equal(t, 0, stock.releases, "duplicate delivery must not release stock")
	rec, err := pending.Get(context.Background(), "t-4")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionCreated, rec.State)
}

func TestWorker_Process_RedeliveryAfterFailed_DoesNotMaterialize(t *testing.T) {
	orders := newMemOrders()
	stock := newMemStock()
	pending := pendingWith(t, "t-8")
	queue := &memQueue{}
	w := workerFixture(orders, stock, pending, queue)

	// An earlier delivery already compensated this submission; the stock is
	// released and the record is terminal.
	applied, err := pending.MarkFailed(context.Background(), "t-8", "mysql gone away")
	require.NoError(t, err)
	require.True(t, applied)

	req := normalSnapshot("t-8")
	w.Process(context.Background(), &req, zap.NewNop())

	assert.Equal(t, 0, orders.attempts, "terminal submission must not be materialized")
	assert.Equal(t, 0, stock.releases)
	rec, err := pending.Get(context.Background(), "t-8")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionFailed, rec.State)
}

func TestWorker_Process_CouponSettleRollsBackWithFailedCommit(t *testing.T) {
	orders := newMemOrders()
	orders.failTimes = 1 // first attempt fails at commit after the settle ran
	pending := pendingWith(t, "t-9")
	w := workerFixture(orders, newMemStock(), pending, &memQueue{})

	req := normalSnapshot("t-9")
	req.Order.CouponUserID = "cu-1"
	w.Process(context.Background(), &req, zap.NewNop())

	assert.Equal(t, 2, orders.attempts)
	// The first attempt's settlement died with its transaction; only the
	// committed attempt consumed the coupon.
	assert.Equal(t, []string{"cu-1:order-t-9"}, orders.settles)
	rec, err := pending.Get(context.Background(), "t-9")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionCreated, rec.State)
}

func TestWorker_Process_ReleaseFailure_Requeues(t *testing.T) {
	orders := newMemOrders()
	orders.failTimes = 3
	stock := &failingStock{memStock: newMemStock(), failReleases: 1}
	pending := pendingWith(t, "t-5")
	queue := &memQueue{}
	w := workerFixture(orders, stock, pending, queue)

	req := normalSnapshot("t-5")
	w.Process(context.Background(), &req, zap.NewNop())

	// Stock was not restored, so the request goes back on the queue and the
	// record stays processing for the next compensation attempt.
	assert.Equal(t, 1, queue.size())
	rec, err := pending.Get(context.Background(), "t-5")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionProcessing, rec.State)
}

func TestWorker_Process_SetsExpiryFromCurrentPolicy(t *testing.T) {
	orders := newMemOrders()
	pending := pendingWith(t, "t-6")
	w := workerFixture(orders, newMemStock(), pending, &memQueue{})

	req := normalSnapshot("t-6")
	before := time.Now()
	w.Process(context.Background(), &req, zap.NewNop())

	orders.mu.Lock()
	defer orders.mu.Unlock()
	require.NotNil(t, orders.lastOrder)
	// The snapshot never carried an expiry; the worker stamps it at
	// materialization time from the current window.
	assert.False(t, orders.lastOrder.ExpireAt.Before(before.Add(30*time.Minute)))
	assert.True(t, req.Order.ExpireAt.IsZero(), "snapshot itself stays untouched")
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	w := workerFixture(newMemOrders(), newMemStock(), newMemPending(), &memQueue{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, 1)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
