package port

import (
	"context"
	"time"

	"github.com/rl1809/mall-order/internal/core/domain"
)

// PendingStore keeps the short-lived submission lifecycle records polled by
// clients while the worker materializes the order.
type PendingStore interface {
	// Create writes a new record in state processing with the given TTL.
	// Fails if a record for the trade number already exists.
	Create(ctx context.Context, tradeNo string, ttl time.Duration) error

	// Get returns the record, or domain.ErrSubmissionNotFound when the trade
	// number is unknown or the record has expired.
	Get(ctx context.Context, tradeNo string) (*domain.PendingSubmission, error)

	// MarkCreated transitions processing -> created with the order id.
	// Returns false without mutating when the record is already terminal.
	MarkCreated(ctx context.Context, tradeNo, orderID string) (bool, error)

	// MarkFailed transitions processing -> failed with a human-readable
	// reason. Returns false without mutating when already terminal.
	MarkFailed(ctx context.Context, tradeNo, reason string) (bool, error)
}
