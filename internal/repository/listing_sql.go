package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"atstore-api/internal/model"
)

// SQLListingRepository stores each listing as one JSON document row, with
// the columns it is queried by pulled out alongside.
type SQLListingRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLListingRepository creates a listing repository on an opened pool.
func NewSQLListingRepository(db *sql.DB, dialect Dialect) *SQLListingRepository {
	return &SQLListingRepository{db: db, dialect: dialect}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *SQLListingRepository) Create(ctx context.Context, l *model.Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to encode listing: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO listings (id, owner_id, game, revision, created_at, updated_at, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, nullable(l.OwnerID), l.Game, l.Revision, toMillis(l.CreatedAt), toMillis(l.UpdatedAt), string(data))
	if err != nil {
		if r.dialect.isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

func decodeListing(data string, revision int64) (*model.Listing, error) {
	var l model.Listing
	if err := json.Unmarshal([]byte(data), &l); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}
	l.Revision = revision
	return &l, nil
}

func (r *SQLListingRepository) Get(ctx context.Context, id string) (*model.Listing, error) {
	var (
		data     string
		revision int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT data, revision FROM listings WHERE id = ?`, id).Scan(&data, &revision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return decodeListing(data, revision)
}

func (r *SQLListingRepository) ListByGame(ctx context.Context, game string) ([]*model.Listing, error) {
	return r.list(ctx, `SELECT data, revision FROM listings WHERE game = ? ORDER BY created_at DESC`, game)
}

func (r *SQLListingRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.Listing, error) {
	return r.list(ctx, `SELECT data, revision FROM listings WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
}

func (r *SQLListingRepository) list(ctx context.Context, query string, args ...interface{}) ([]*model.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Listing, 0)
	for rows.Next() {
		var (
			data     string
			revision int64
		)
		if err := rows.Scan(&data, &revision); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		l, err := decodeListing(data, revision)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Update retries on a lost revision race and gives up with ErrConflict.
func (r *SQLListingRepository) Update(ctx context.Context, id string, fn MutateFunc) (*model.Listing, error) {
	return updateWithRetry(ctx, id, fn, r.Get, r.swap)
}

func (r *SQLListingRepository) swap(ctx context.Context, next *model.Listing, expected int64) (bool, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to encode listing: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE listings SET owner_id = ?, game = ?, revision = ?, updated_at = ?, data = ?
		 WHERE id = ? AND revision = ?`,
		nullable(next.OwnerID), next.Game, next.Revision, toMillis(next.UpdatedAt), string(data), next.ID, expected)
	if err != nil {
		return false, fmt.Errorf("failed to update listing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLListingRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLListingRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the shared pool. Safe to call from both repositories.
func (r *SQLListingRepository) Close() error {
	return r.db.Close()
}

var _ ListingRepository = (*SQLListingRepository)(nil)
