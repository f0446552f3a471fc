package port

import (
	"context"
	"time"

	"github.com/rl1809/mall-order/internal/core/domain"
)

// MaterializationQueue is the durable, at-least-once queue between the
// orchestrator and the worker pool.
type MaterializationQueue interface {
	// Enqueue makes the request available to consumers after the optional
	// delay (0 means immediately).
	Enqueue(ctx context.Context, req domain.MaterializationRequest, delay time.Duration) error

	// Dequeue blocks until a request is available or ctx is done.
	Dequeue(ctx context.Context) (*domain.MaterializationRequest, error)

	// Ack removes a delivered request once it reached a terminal outcome.
	// Unacked requests are redelivered.
	Ack(ctx context.Context, req domain.MaterializationRequest) error
}
