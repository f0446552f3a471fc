package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/mall-order/internal/core/domain"
)

// MySQLCouponStore finds a member's usable coupons. Settlement runs on the
// order's own transaction through the OrderTx port.
type MySQLCouponStore struct {
	db *sql.DB
}

func NewMySQLCouponStore(db *sql.DB) *MySQLCouponStore {
	return &MySQLCouponStore{db: db}
}

func (m *MySQLCouponStore) FindUsable(ctx context.Context, memberID, couponID string) (*domain.Coupon, error) {
	var (
		coupon   domain.Coupon
		amount   string
		minSpend string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT cu.id, c.id, cu.member_id, c.amount, c.min_spend, cu.expire_at
		FROM coupon_users cu
		JOIN coupons c ON c.id = cu.coupon_id
		WHERE cu.member_id = ? AND cu.coupon_id = ? AND cu.used = 0`,
		memberID, couponID,
	).Scan(&coupon.CouponUserID, &coupon.ID, &coupon.MemberID, &amount, &minSpend, &coupon.ExpireAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query coupon: %w", err)
	}

	if coupon.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse coupon amount %q: %w", amount, err)
	}
	if coupon.MinSpend, err = decimal.NewFromString(minSpend); err != nil {
		return nil, fmt.Errorf("parse coupon min spend %q: %w", minSpend, err)
	}
	return &coupon, nil
}
