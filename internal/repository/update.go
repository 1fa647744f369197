package repository

import (
	"context"
	"time"

	"atstore-api/internal/model"
)

// maxUpdateAttempts bounds compare-and-swap retries for one Update call.
const maxUpdateAttempts = 5

type loadFunc func(ctx context.Context, id string) (*model.Listing, error)

// swapFunc persists next only if the stored revision still equals expected.
type swapFunc func(ctx context.Context, next *model.Listing, expected int64) (bool, error)

// updateWithRetry runs the optimistic read-modify-write loop shared by the
// backends that only offer single-document compare-and-swap.
func updateWithRetry(ctx context.Context, id string, fn MutateFunc, load loadFunc, swap swapFunc) (*model.Listing, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := load(ctx, id)
		if err != nil {
			return nil, err
		}

		next, err := applyMutation(current, fn)
		if err != nil {
			return nil, err
		}

		ok, err := swap(ctx, next, current.Revision)
		if err != nil {
			return nil, err
		}
		if ok {
			return next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, ErrConflict
}

// applyMutation runs fn on a copy of current and stamps the new revision.
func applyMutation(current *model.Listing, fn MutateFunc) (*model.Listing, error) {
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Revision = current.Revision + 1
	next.UpdatedAt = time.Now().UTC()
	return next, nil
}
