package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const EventTypeOrderCreated = "order.created"

// OrderCreatedEvent is published after an order has been durably persisted.
// Delivery is fire-and-forget for external collaborators (notifications,
// growth points).
type OrderCreatedEvent struct {
	OrderID    string          `json:"order_id"`
	TradeNo    string          `json:"trade_no"`
	MemberID   string          `json:"member_id"`
	OrderType  OrderType       `json:"order_type"`
	ActivityID string          `json:"activity_id,omitempty"`
	PayAmount  decimal.Decimal `json:"pay_amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (e OrderCreatedEvent) EventType() string {
	return EventTypeOrderCreated
}
