package strategy

import (
	"context"
	"fmt"

	"github.com/rl1809/mall-order/internal/core/domain"
	"github.com/rl1809/mall-order/internal/port"
)

// Strategy is the per-order-type behavior behind the submission pipeline.
// One implementation per order type, selected through the Registry.
type Strategy interface {
	Type() domain.OrderType

	// Validate checks type-specific preconditions (session window, per-user
	// cap against confirmed purchases). A failure aborts the submission
	// before any stock mutation.
	Validate(ctx context.Context, order *domain.Order) error

	// BuildDraft attaches line-item pricing and recomputes totals.
	BuildDraft(ctx context.Context, order *domain.Order) error

	// ApplyFreight applies the type's freight rule and recomputes totals.
	ApplyFreight(ctx context.Context, order *domain.Order) error

	// ApplyDiscount applies a coupon when the type allows it. couponID may
	// be empty, in which case nothing happens.
	ApplyDiscount(ctx context.Context, order *domain.Order, couponID string) error

	// Rehydrate reconstructs in-memory-only reference data from storage when
	// running inside the worker, which starts from a serialized snapshot.
	Rehydrate(ctx context.Context, order *domain.Order) error

	// PostCreate runs after durable persistence on the same transaction.
	PostCreate(ctx context.Context, tx port.OrderTx, order *domain.Order, orderID string) error
}

// Registry is the static factory lookup from order type to strategy.
type Registry struct {
	strategies map[domain.OrderType]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	m := make(map[domain.OrderType]Strategy, len(strategies))
	for _, s := range strategies {
		m[s.Type()] = s
	}
	return &Registry{strategies: m}
}

// For returns the strategy registered for the order type, or
// domain.ErrUnsupportedOrderType.
func (r *Registry) For(orderType domain.OrderType) (Strategy, error) {
	s, ok := r.strategies[orderType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedOrderType, orderType)
	}
	return s, nil
}
