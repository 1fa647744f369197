package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atstore-api/internal/model"
)

// PostgresListingRepository stores listings as JSONB documents. Update locks
// the row for the duration of the mutation instead of retrying.
type PostgresListingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresListingRepository creates a listing repository on a pgx pool.
func NewPostgresListingRepository(pool *pgxpool.Pool) *PostgresListingRepository {
	return &PostgresListingRepository{pool: pool}
}

func (r *PostgresListingRepository) Create(ctx context.Context, l *model.Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to encode listing: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO listings (id, owner_id, game, revision, created_at, updated_at, data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, optionalText(l.OwnerID), l.Game, l.Revision, l.CreatedAt, l.UpdatedAt, data)
	if err != nil {
		if isPgDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

func (r *PostgresListingRepository) Get(ctx context.Context, id string) (*model.Listing, error) {
	return getPostgresListing(ctx, r.pool, `SELECT data, revision FROM listings WHERE id = $1`, id)
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getPostgresListing(ctx context.Context, q pgQuerier, query, id string) (*model.Listing, error) {
	var (
		data     []byte
		revision int64
	)
	if err := q.QueryRow(ctx, query, id).Scan(&data, &revision); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return decodeListing(string(data), revision)
}

func (r *PostgresListingRepository) ListByGame(ctx context.Context, game string) ([]*model.Listing, error) {
	return r.list(ctx, `SELECT data, revision FROM listings WHERE game = $1 ORDER BY created_at DESC`, game)
}

func (r *PostgresListingRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.Listing, error) {
	return r.list(ctx, `SELECT data, revision FROM listings WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

func (r *PostgresListingRepository) list(ctx context.Context, query string, arg string) ([]*model.Listing, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Listing, 0)
	for rows.Next() {
		var (
			data     []byte
			revision int64
		)
		if err := rows.Scan(&data, &revision); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		l, err := decodeListing(string(data), revision)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresListingRepository) Update(ctx context.Context, id string, fn MutateFunc) (*model.Listing, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := getPostgresListing(ctx, tx, `SELECT data, revision FROM listings WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}

	next, err := applyMutation(current, fn)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to encode listing: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE listings SET owner_id = $2, game = $3, revision = $4, updated_at = $5, data = $6 WHERE id = $1`,
		next.ID, optionalText(next.OwnerID), next.Game, next.Revision, next.UpdatedAt, data)
	if err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

func (r *PostgresListingRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresListingRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close is a no-op: the pool is shared with the order repository and closed by its owner.
func (r *PostgresListingRepository) Close() error {
	return nil
}

var _ ListingRepository = (*PostgresListingRepository)(nil)
