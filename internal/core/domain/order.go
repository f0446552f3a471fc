package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	OrderTypeNormal   OrderType = "normal"
	OrderTypeSeckill  OrderType = "seckill"
	OrderTypeGroupBuy OrderType = "group_buy"
)

func (t OrderType) IsValid() bool {
	switch t {
	case OrderTypeNormal, OrderTypeSeckill, OrderTypeGroupBuy:
		return true
	}
	return false
}

func (t OrderType) String() string {
	return string(t)
}

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Extras keys used by the promotional strategies.
const (
	ExtraActivityID = "activity_id"
)

// catalogPool scopes normal-order reservations that have no activity behind them.
const catalogPool = "catalog"

// CatalogPoolKey is the shared reservation pool for normal orders. Seeded
// from sku stock at startup; activity pools are seeded when their sessions
// are warmed up.
func CatalogPoolKey() PoolKey {
	return PoolKey{OrderType: OrderTypeNormal, ActivityID: catalogPool}
}

// SkuSnapshot is the price/availability of a sku captured at validation time.
// It is attached to the line item so later catalog changes cannot alter an
// in-flight order.
type SkuSnapshot struct {
	SkuID      string          `json:"sku_id"`
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	CapturedAt time.Time       `json:"captured_at"`
}

type OrderItem struct {
	SkuID     string          `json:"sku_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	Snapshot  SkuSnapshot     `json:"snapshot"`
}

// SetUnitPrice updates the unit price and keeps the line total derived.
func (i *OrderItem) SetUnitPrice(price decimal.Decimal) {
	i.UnitPrice = price
	i.LineTotal = price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Address struct {
	ID       string `json:"id"`
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Province string `json:"province"`
	City     string `json:"city"`
	Detail   string `json:"detail"`
}

// Order is the aggregate built in memory by the orchestrator. It is never
// shared between requests and only becomes durable inside the worker's
// transaction. TotalAmount and PayAmount are always derived from the items
// and the discount/freight fields; call Recalc after any mutation.
type Order struct {
	TradeNo         string            `json:"trade_no"`
	Type            OrderType         `json:"type"`
	MemberID        string            `json:"member_id"`
	Items           []OrderItem       `json:"items"`
	Address         Address           `json:"address"`
	CouponID        string            `json:"coupon_id,omitempty"`
	CouponUserID    string            `json:"coupon_user_id,omitempty"`
	CouponAmount    decimal.Decimal   `json:"coupon_amount"`
	PromotionAmount decimal.Decimal   `json:"promotion_amount"`
	FreightAmount   decimal.Decimal   `json:"freight_amount"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	PayAmount       decimal.Decimal   `json:"pay_amount"`
	Status          OrderStatus       `json:"status"`
	ExpireAt        time.Time         `json:"expire_at"`
	Extras          map[string]string `json:"extras,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Recalc rederives the total and payable amounts from the line items and the
// discount/freight fields. PayAmount never goes below zero.
func (o *Order) Recalc() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal)
	}
	o.TotalAmount = total

	pay := total.Sub(o.PromotionAmount).Sub(o.CouponAmount).Add(o.FreightAmount)
	if pay.IsNegative() {
		pay = decimal.Zero
	}
	o.PayAmount = pay
}

// ActivityID returns the promotional session/activity this order belongs to,
// empty for plain catalog orders.
func (o *Order) ActivityID() string {
	return o.Extras[ExtraActivityID]
}

// PoolKey identifies the reservation pool all of this order's quantities are
// scoped under.
func (o *Order) PoolKey() PoolKey {
	activity := o.ActivityID()
	if activity == "" {
		activity = catalogPool
	}
	return PoolKey{OrderType: o.Type, ActivityID: activity}
}

// StockItems projects the line items into the quantities the reservation
// store operates on.
func (o *Order) StockItems() []StockItem {
	items := make([]StockItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, StockItem{SkuID: item.SkuID, Quantity: item.Quantity})
	}
	return items
}

// ActivityOrder is the promotion-specific order record written by the
// strategies' post-create hooks.
type ActivityOrder struct {
	ActivityID string
	OrderID    string
	TradeNo    string
	MemberID   string
	OrderType  OrderType
}
