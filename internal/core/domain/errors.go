package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedOrderType = errors.New("unsupported order type")
	ErrPriceMismatch        = errors.New("computed total does not match expected total")
	ErrSessionClosed        = errors.New("promotional session is not open")
	ErrPurchaseCapExceeded  = errors.New("per-member purchase cap exceeded")
	ErrCouponNotAllowed     = errors.New("coupons cannot be applied to this order type")
	ErrCouponNotUsable      = errors.New("coupon is not usable")
	ErrNoItems              = errors.New("order has no items")
	ErrSkuNotFound          = errors.New("sku not found")
	ErrAddressNotFound      = errors.New("no deliverable address")
	ErrActivityNotFound     = errors.New("promotional activity not found")
	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrDuplicateTradeNo     = errors.New("order with this trade number already exists")
)

// InsufficientStockError reports which sku(s) in a batch reservation could
// not be satisfied. The batch is all-or-nothing, so nothing was decremented.
type InsufficientStockError struct {
	Pool PoolKey
	Skus []string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock in pool %s for sku(s) %s",
		e.Pool, strings.Join(e.Skus, ", "))
}

// IsInsufficientStock reports whether err is a batch reservation shortfall.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}
