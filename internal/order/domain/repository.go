package domain

import (
	"context"
	"errors"
)

var (
	ErrEmptyOrderCode = errors.New("empty_order_code")
	ErrNotFound       = errors.New("sync_record_not_found")
)

// ReservationStore is the claim protocol preventing duplicate lead creation.
// All mutations of sync_records go through it; cross-process safety relies on
// the store's conditional writes, not on in-process locking.
type ReservationStore interface {
	// Reserve claims an order code for processing. Of N concurrent callers
	// for the same unsynced code, exactly one observes Claimed=true.
	Reserve(ctx context.Context, orderCode string, kaspiOrderID, totalPrice int64) (Reservation, error)

	// Commit marks the order terminally synced and clears the claim.
	Commit(ctx context.Context, orderCode string, amoLeadID, totalPrice int64, kaspiStatus string) error

	// Release clears the claim only while the token still matches, making the
	// order retryable on a later cycle.
	Release(ctx context.Context, orderCode, token string) error

	// Get returns the record for an order code, or nil when none exists.
	Get(ctx context.Context, orderCode string) (*SyncRecord, error)

	// UpdateStatus persists the last-seen upstream state after a successful
	// downstream stage push.
	UpdateStatus(ctx context.Context, orderCode, kaspiStatus string) error

	// UpdatePrice persists the total price after a successful downstream
	// price push.
	UpdatePrice(ctx context.Context, orderCode string, totalPrice int64) error
}
