package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeckillSession is a flash-sale session: a time window, a per-member cap and
// promotional prices for the skus on sale.
type SeckillSession struct {
	ID           string
	Title        string
	StartAt      time.Time
	EndAt        time.Time
	PerMemberCap int
	Prices       map[string]decimal.Decimal // sku id -> promotional price
}

// Open reports whether the session accepts orders at the given instant.
func (s *SeckillSession) Open(at time.Time) bool {
	return !at.Before(s.StartAt) && at.Before(s.EndAt)
}

// GroupBuyLot is a group-buy activity: members join a lot at a discounted
// price until the window closes or the lot fills up.
type GroupBuyLot struct {
	ID           string
	Title        string
	StartAt      time.Time
	EndAt        time.Time
	PerMemberCap int
	MaxMembers   int
	Joined       int
	Prices       map[string]decimal.Decimal // sku id -> lot price
}

// Open reports whether the lot still accepts members at the given instant.
func (l *GroupBuyLot) Open(at time.Time) bool {
	if at.Before(l.StartAt) || !at.Before(l.EndAt) {
		return false
	}
	return l.MaxMembers == 0 || l.Joined < l.MaxMembers
}

// Coupon is a member-held coupon usable against an order.
type Coupon struct {
	ID           string
	CouponUserID string
	MemberID     string
	Amount       decimal.Decimal
	MinSpend     decimal.Decimal
	ExpireAt     time.Time
}

// UsableFor reports whether the coupon can settle an order of the given total
// at the given instant.
func (c *Coupon) UsableFor(total decimal.Decimal, at time.Time) bool {
	return at.Before(c.ExpireAt) && total.GreaterThanOrEqual(c.MinSpend)
}
