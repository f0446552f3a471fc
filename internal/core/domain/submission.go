package domain

import "time"

type SubmissionState string

const (
	SubmissionProcessing SubmissionState = "processing"
	SubmissionCreated    SubmissionState = "created"
	SubmissionFailed     SubmissionState = "failed"
)

// Terminal reports whether the state can never change again.
func (s SubmissionState) Terminal() bool {
	return s == SubmissionCreated || s == SubmissionFailed
}

// PendingSubmission bridges the synchronous submit response and the
// asynchronous persistence step. It is the only externally observable state
// before durability. Created once in state processing, mutated exactly once
// to a terminal state, never reused across trade numbers.
type PendingSubmission struct {
	TradeNo   string
	State     SubmissionState
	OrderID   string
	Reason    string
	CreatedAt time.Time
}

// MaterializationRequest is the unit of work handed to the worker pool. It
// carries a full serialized snapshot of the order, never a live reference:
// the worker may run in a different process, after the original request's
// context is gone.
type MaterializationRequest struct {
	TradeNo    string    `json:"trade_no"`
	Order      Order     `json:"order"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
