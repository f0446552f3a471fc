package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/rl1809/mall-order/internal/core/domain"
	"github.com/rl1809/mall-order/internal/port"
)

// MySQLOrderStore persists orders. The trade_no unique key makes duplicate
// queue delivery surface as domain.ErrDuplicateTradeNo instead of a second
// order.
type MySQLOrderStore struct {
	db *sql.DB
}

func NewMySQLOrderStore(db *sql.DB) *MySQLOrderStore {
	return &MySQLOrderStore{db: db}
}

func (m *MySQLOrderStore) CreateOrder(ctx context.Context, order *domain.Order, postCreate func(ctx context.Context, tx port.OrderTx, orderID string) error) (string, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	orderID := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, trade_no, member_id, order_type, status,
			total_amount, promotion_amount, coupon_amount, freight_amount, pay_amount,
			coupon_id, receiver_name, receiver_phone, receiver_province, receiver_city,
			receiver_detail, expire_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		orderID, order.TradeNo, order.MemberID, order.Type, order.Status,
		order.TotalAmount.String(), order.PromotionAmount.String(),
		order.CouponAmount.String(), order.FreightAmount.String(), order.PayAmount.String(),
		nullable(order.CouponID), order.Address.Name, order.Address.Phone,
		order.Address.Province, order.Address.City, order.Address.Detail,
		order.ExpireAt, order.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return "", domain.ErrDuplicateTradeNo
		}
		return "", fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, sku_id, quantity, unit_price, line_total,
				snapshot_price, snapshot_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			orderID, item.SkuID, item.Quantity, item.UnitPrice.String(),
			item.LineTotal.String(), item.Snapshot.Price.String(), item.Snapshot.CapturedAt,
		)
		if err != nil {
			return "", fmt.Errorf("insert order item %s: %w", item.SkuID, err)
		}
	}

	if postCreate != nil {
		if err := postCreate(ctx, &orderTx{tx: tx}, orderID); err != nil {
			return "", fmt.Errorf("post-create hook: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit order: %w", err)
	}
	return orderID, nil
}

func (m *MySQLOrderStore) GetOrderIDByTradeNo(ctx context.Context, tradeNo string) (string, error) {
	var orderID string
	err := m.db.QueryRowContext(ctx,
		`SELECT id FROM orders WHERE trade_no = ?`, tradeNo,
	).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrSubmissionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query order by trade_no: %w", err)
	}
	return orderID, nil
}

// orderTx exposes the post-create writes on the order's own transaction.
type orderTx struct {
	tx *sql.Tx
}

func (t *orderTx) InsertActivityOrder(ctx context.Context, rec domain.ActivityOrder) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO activity_orders (activity_id, order_id, trade_no, member_id, order_type, created_at)
		VALUES (?, ?, ?, ?, ?, NOW())`,
		rec.ActivityID, rec.OrderID, rec.TradeNo, rec.MemberID, rec.OrderType,
	)
	if err != nil {
		return fmt.Errorf("insert activity order: %w", err)
	}
	return nil
}

func (t *orderTx) SettleCoupon(ctx context.Context, couponUserID, orderID string) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE coupon_users
		SET used = 1, order_id = ?, used_at = NOW()
		WHERE id = ? AND used = 0`,
		orderID, couponUserID,
	)
	if err != nil {
		return fmt.Errorf("settle coupon: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrCouponNotUsable
	}
	return nil
}

func (t *orderTx) AddActivitySales(ctx context.Context, activityID, skuID string, quantity int) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO activity_sales (activity_id, sku_id, sold_quantity)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE sold_quantity = sold_quantity + VALUES(sold_quantity)`,
		activityID, skuID, quantity,
	)
	if err != nil {
		return fmt.Errorf("add activity sales: %w", err)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
