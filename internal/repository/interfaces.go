package repository

import (
	"context"
	"errors"
	"time"

	"atstore-api/internal/model"
)

var (
	// ErrNotFound is returned when the requested listing or order does not exist.
	ErrNotFound = errors.New("repository: not found")

	// ErrConflict is returned when a write lost to a concurrent writer after
	// all retries, or when a conditional status change no longer applies.
	ErrConflict = errors.New("repository: concurrent modification")

	// ErrDuplicate is returned when an insert collides with an existing key.
	ErrDuplicate = errors.New("repository: duplicate key")
)

// MutateFunc edits a private copy of a listing. Returning an error aborts the
// update without writing anything. It may run more than once when a backend
// retries after losing a compare-and-swap, so it must derive all of its
// results from the listing it is given.
type MutateFunc func(l *model.Listing) error

// ListingRepository stores listing aggregates. Every mutation replaces the
// whole aggregate atomically through Update.
type ListingRepository interface {
	// Create inserts a new listing.
	Create(ctx context.Context, l *model.Listing) error

	// Get loads a listing by id.
	Get(ctx context.Context, id string) (*model.Listing, error)

	// ListByGame returns listings for a game, newest first.
	ListByGame(ctx context.Context, game string) ([]*model.Listing, error)

	// ListByOwner returns listings owned by ownerID, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Listing, error)

	// Update applies fn to the current listing and persists the result as one
	// atomic replace. Concurrent updates of the same listing never overwrite
	// each other silently.
	Update(ctx context.Context, id string, fn MutateFunc) (*model.Listing, error)

	// Delete removes a listing.
	Delete(ctx context.Context, id string) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// OrderRepository stores orders.
type OrderRepository interface {
	// Create inserts a new order. Returns ErrDuplicate if the order id or
	// checkout code is already taken.
	Create(ctx context.Context, o *model.Order) error

	// Get loads an order by id.
	Get(ctx context.Context, orderID string) (*model.Order, error)

	// ExistsOrderID reports whether an order with this id exists.
	ExistsOrderID(ctx context.Context, orderID string) (bool, error)

	// ExistsCheckoutCode reports whether any order uses this checkout code.
	ExistsCheckoutCode(ctx context.Context, code string) (bool, error)

	// FindPendingByCheckoutCode returns the pending order carrying code.
	FindPendingByCheckoutCode(ctx context.Context, code string) (*model.Order, error)

	// ListByUser returns a user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]*model.Order, error)

	// ListByStatus returns orders with the given status created inside r, newest first.
	ListByStatus(ctx context.Context, status model.OrderStatus, r model.DateRange) ([]*model.Order, error)

	// TransitionStatus writes a status change. If change.From is set and the
	// stored status differs, nothing is written and ErrConflict is returned.
	TransitionStatus(ctx context.Context, orderID string, change model.StatusChange) error

	// ExpirePending moves every pending order with expiresAt <= now to expired.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)

	// PurgeExpired deletes expired orders last updated at or before cutoff,
	// at most batchSize per delete, and returns the total deleted.
	PurgeExpired(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
