package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/mall-order/internal/core/domain"
)

// MySQLPromotionStore serves the seckill/group-buy reference data the
// strategies validate against and rehydrate from.
type MySQLPromotionStore struct {
	db *sql.DB
}

func NewMySQLPromotionStore(db *sql.DB) *MySQLPromotionStore {
	return &MySQLPromotionStore{db: db}
}

func (m *MySQLPromotionStore) GetSeckillSession(ctx context.Context, sessionID string) (*domain.SeckillSession, error) {
	var session domain.SeckillSession
	err := m.db.QueryRowContext(ctx, `
		SELECT id, title, start_at, end_at, per_member_cap
		FROM seckill_sessions WHERE id = ?`, sessionID,
	).Scan(&session.ID, &session.Title, &session.StartAt, &session.EndAt, &session.PerMemberCap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: seckill session %s", domain.ErrActivityNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("query seckill session: %w", err)
	}

	session.Prices, err = m.activityPrices(ctx,
		`SELECT sku_id, price FROM seckill_session_skus WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (m *MySQLPromotionStore) GetGroupBuyLot(ctx context.Context, lotID string) (*domain.GroupBuyLot, error) {
	var lot domain.GroupBuyLot
	err := m.db.QueryRowContext(ctx, `
		SELECT id, title, start_at, end_at, per_member_cap, max_members
		FROM group_buy_lots WHERE id = ?`, lotID,
	).Scan(&lot.ID, &lot.Title, &lot.StartAt, &lot.EndAt, &lot.PerMemberCap, &lot.MaxMembers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: group-buy lot %s", domain.ErrActivityNotFound, lotID)
	}
	if err != nil {
		return nil, fmt.Errorf("query group-buy lot: %w", err)
	}

	err = m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activity_orders WHERE activity_id = ?`, lotID,
	).Scan(&lot.Joined)
	if err != nil {
		return nil, fmt.Errorf("count lot members: %w", err)
	}

	lot.Prices, err = m.activityPrices(ctx,
		`SELECT sku_id, price FROM group_buy_lot_skus WHERE lot_id = ?`, lotID)
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

func (m *MySQLPromotionStore) CountMemberActivityOrders(ctx context.Context, activityID, memberID string) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activity_orders WHERE activity_id = ? AND member_id = ?`,
		activityID, memberID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count member activity orders: %w", err)
	}
	return count, nil
}

func (m *MySQLPromotionStore) activityPrices(ctx context.Context, query, id string) (map[string]decimal.Decimal, error) {
	rows, err := m.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query activity prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			skuID string
			raw   string
		)
		if err := rows.Scan(&skuID, &raw); err != nil {
			return nil, fmt.Errorf("scan activity price: %w", err)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse activity price %q: %w", raw, err)
		}
		prices[skuID] = price
	}
	return prices, rows.Err()
}
