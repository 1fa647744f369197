package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"atstore-api/internal/model"
)

// MemoryListingRepository keeps listings in process memory. Update holds the
// write lock across the mutation, so it never needs to retry.
type MemoryListingRepository struct {
	mu       sync.RWMutex
	listings map[string]*model.Listing
}

// NewMemoryListingRepository creates an empty in-memory listing store.
func NewMemoryListingRepository() *MemoryListingRepository {
	return &MemoryListingRepository{listings: make(map[string]*model.Listing)}
}

func (r *MemoryListingRepository) Create(ctx context.Context, l *model.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[l.ID]; ok {
		return ErrDuplicate
	}
	r.listings[l.ID] = l.Clone()
	return nil
}

func (r *MemoryListingRepository) Get(ctx context.Context, id string) (*model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return l.Clone(), nil
}

func (r *MemoryListingRepository) ListByGame(ctx context.Context, game string) ([]*model.Listing, error) {
	return r.filter(func(l *model.Listing) bool { return l.Game == game }), nil
}

func (r *MemoryListingRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.Listing, error) {
	return r.filter(func(l *model.Listing) bool { return l.OwnerID == ownerID }), nil
}

func (r *MemoryListingRepository) filter(keep func(*model.Listing) bool) []*model.Listing {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Listing, 0)
	for _, l := range r.listings {
		if keep(l) {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemoryListingRepository) Update(ctx context.Context, id string, fn MutateFunc) (*model.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := applyMutation(current, fn)
	if err != nil {
		return nil, err
	}
	r.listings[id] = next
	return next.Clone(), nil
}

func (r *MemoryListingRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[id]; !ok {
		return ErrNotFound
	}
	delete(r.listings, id)
	return nil
}

func (r *MemoryListingRepository) Ping(ctx context.Context) error { return nil }
func (r *MemoryListingRepository) Close() error                   { return nil }

// MemoryOrderRepository keeps orders in process memory.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*model.Order
}

// NewMemoryOrderRepository creates an empty in-memory order store.
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]*model.Order)}
}

func copyOrder(o *model.Order) *model.Order {
	out := *o
	if o.PaidAt != nil {
		at := *o.PaidAt
		out.PaidAt = &at
	}
	if o.PaidAmount != nil {
		amount := *o.PaidAmount
		out.PaidAmount = &amount
	}
	return &out
}

func (r *MemoryOrderRepository) Create(ctx context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[o.OrderID]; ok {
		return ErrDuplicate
	}
	for _, existing := range r.orders {
		if existing.CheckoutCode == o.CheckoutCode {
			return ErrDuplicate
		}
	}
	r.orders[o.OrderID] = copyOrder(o)
	return nil
}

func (r *MemoryOrderRepository) Get(ctx context.Context, orderID string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(o), nil
}

func (r *MemoryOrderRepository) ExistsOrderID(ctx context.Context, orderID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.orders[orderID]
	return ok, nil
}

func (r *MemoryOrderRepository) ExistsCheckoutCode(ctx context.Context, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.orders {
		if o.CheckoutCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryOrderRepository) FindPendingByCheckoutCode(ctx context.Context, code string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.orders {
		if o.CheckoutCode == code && o.Status == model.OrderPending {
			return copyOrder(o), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryOrderRepository) ListByUser(ctx context.Context, userID string) ([]*model.Order, error) {
	return r.filter(func(o *model.Order) bool { return o.UserID == userID }), nil
}

func (r *MemoryOrderRepository) ListByStatus(ctx context.Context, status model.OrderStatus, dr model.DateRange) ([]*model.Order, error) {
	return r.filter(func(o *model.Order) bool {
		return o.Status == status && dr.Contains(o.CreatedAt)
	}), nil
}

func (r *MemoryOrderRepository) filter(keep func(*model.Order) bool) []*model.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Order, 0)
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemoryOrderRepository) TransitionStatus(ctx context.Context, orderID string, change model.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if change.From != "" && o.Status != change.From {
		return ErrConflict
	}
	change.Apply(o)
	return nil
}

func (r *MemoryOrderRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, o := range r.orders {
		if o.Status == model.OrderPending && !o.ExpiresAt.After(now) {
			o.Status = model.OrderExpired
			o.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *MemoryOrderRepository) PurgeExpired(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, o := range r.orders {
		if o.Status == model.OrderExpired && !o.UpdatedAt.After(cutoff) {
			delete(r.orders, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryOrderRepository) Ping(ctx context.Context) error { return nil }
func (r *MemoryOrderRepository) Close() error                   { return nil }

var (
	_ ListingRepository = (*MemoryListingRepository)(nil)
	_ OrderRepository   = (*MemoryOrderRepository)(nil)
)
