package domain

import "fmt"

// PoolKey scopes a set of sku quantities that are reserved and released
// atomically together, one pool per promotional session/activity.
type PoolKey struct {
	OrderType  OrderType
	ActivityID string
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s:%s", k.OrderType, k.ActivityID)
}

// StockItem is a single sku quantity inside a batch reserve/release.
type StockItem struct {
	SkuID    string
	Quantity int
}
