package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/mall-order/internal/core/domain"
)

// MySQLCatalogStore serves read-only sku snapshots for draft building.
type MySQLCatalogStore struct {
	db *sql.DB
}

func NewMySQLCatalogStore(db *sql.DB) *MySQLCatalogStore {
	return &MySQLCatalogStore{db: db}
}

func (m *MySQLCatalogStore) GetSkuSnapshot(ctx context.Context, skuID string) (*domain.SkuSnapshot, error) {
	var (
		snap  domain.SkuSnapshot
		price string
	)
	err := m.db.QueryRowContext(ctx,
		`SELECT id, title, price, stock FROM skus WHERE id = ?`, skuID,
	).Scan(&snap.SkuID, &snap.Title, &price, &snap.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSkuNotFound, skuID)
	}
	if err != nil {
		return nil, fmt.Errorf("query sku: %w", err)
	}

	snap.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse sku price %q: %w", price, err)
	}
	snap.CapturedAt = time.Now()
	return &snap, nil
}

// ListSkuStocks returns every sku's current stock, used to seed the shared
// catalog reservation pool at startup.
func (m *MySQLCatalogStore) ListSkuStocks(ctx context.Context) (map[string]int, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id, stock FROM skus`)
	if err != nil {
		return nil, fmt.Errorf("query sku stocks: %w", err)
	}
	defer rows.Close()

	stocks := make(map[string]int)
	for rows.Next() {
		var (
			skuID string
			stock int
		)
		if err := rows.Scan(&skuID, &stock); err != nil {
			return nil, fmt.Errorf("scan sku stock: %w", err)
		}
		stocks[skuID] = stock
	}
	return stocks, rows.Err()
}

// MySQLAddressStore resolves member delivery addresses.
type MySQLAddressStore struct {
	db *sql.DB
}

func NewMySQLAddressStore(db *sql.DB) *MySQLAddressStore {
	return &MySQLAddressStore{db: db}
}

// Resolve returns the address with the given id, or the member's default
// address when addressID is empty.
func (m *MySQLAddressStore) Resolve(ctx context.Context, memberID, addressID string) (*domain.Address, error) {
	query := `
		SELECT id, member_id, name, phone, province, city, detail
		FROM member_addresses
		WHERE member_id = ? AND is_default = 1
		ORDER BY updated_at DESC LIMIT 1`
	args := []interface{}{memberID}
	if addressID != "" {
		query = `
			SELECT id, member_id, name, phone, province, city, detail
			FROM member_addresses
			WHERE member_id = ? AND id = ?`
		args = append(args, addressID)
	}

	var addr domain.Address
	err := m.db.QueryRowContext(ctx, query, args...).Scan(
		&addr.ID, &addr.MemberID, &addr.Name, &addr.Phone,
		&addr.Province, &addr.City, &addr.Detail,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query address: %w", err)
	}
	return &addr, nil
}
