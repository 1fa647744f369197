package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atstore-api/internal/model"
)

// PostgresOrderRepository stores orders in PostgreSQL through pgx.
type PostgresOrderRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresOrderRepository creates an order repository on a pgx pool.
func NewPostgresOrderRepository(pool *pgxpool.Pool) *PostgresOrderRepository {
	return &PostgresOrderRepository{pool: pool}
}

func scanPostgresOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
		userID *string
	)
	err := row.Scan(&o.OrderID, &o.CheckoutCode, &o.AccountID, &o.AccountType, &o.CategoryName, &o.Quantity,
		&o.UnitPrice, &o.TotalPrice, &o.Email, &o.Game, &o.Server, &o.DisplayImage, &userID, &status, &o.QRCodeURL,
		&o.CreatedAt, &o.ExpiresAt, &o.PaidAt, &o.PaidAmount, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	if userID != nil {
		o.UserID = *userID
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.ExpiresAt = o.ExpiresAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func (r *PostgresOrderRepository) Create(ctx context.Context, o *model.Order) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		o.OrderID, o.CheckoutCode, o.AccountID, o.AccountType, o.CategoryName, o.Quantity,
		o.UnitPrice, o.TotalPrice, o.Email, o.Game, o.Server, o.DisplayImage, optionalText(o.UserID), string(o.Status), o.QRCodeURL,
		o.CreatedAt, o.ExpiresAt, o.PaidAt, o.PaidAmount, o.UpdatedAt)
	if err != nil {
		if isPgDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) Get(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := scanPostgresOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (r *PostgresOrderRepository) exists(ctx context.Context, query, arg string) (bool, error) {
	var found bool
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check order existence: %w", err)
	}
	return found, nil
}

func (r *PostgresOrderRepository) ExistsOrderID(ctx context.Context, orderID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1)`, orderID)
}

func (r *PostgresOrderRepository) ExistsCheckoutCode(ctx context.Context, code string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE checkout_code = $1)`, code)
}

func (r *PostgresOrderRepository) FindPendingByCheckoutCode(ctx context.Context, code string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE checkout_code = $1 AND status = $2 LIMIT 1`,
		code, string(model.OrderPending))
	o, err := scanPostgresOrder(row)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find pending order: %w", err)
	}
	return o, nil
}

func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID string) ([]*model.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *PostgresOrderRepository) ListByStatus(ctx context.Context, status model.OrderStatus, dr model.DateRange) ([]*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1`
	args := []any{string(status)}
	if dr.From != nil {
		args = append(args, *dr.From)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if dr.To != nil {
		args = append(args, *dr.To)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	return r.list(ctx, query, args...)
}

func (r *PostgresOrderRepository) list(ctx context.Context, query string, args ...any) ([]*model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Order, 0)
	for rows.Next() {
		o, err := scanPostgresOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PostgresOrderRepository) TransitionStatus(ctx context.Context, orderID string, change model.StatusChange) error {
	args := []any{orderID, string(change.To), change.At}
	sets := []string{"status = $2", "updated_at = $3"}
	if change.To == model.OrderPaid {
		sets = append(sets, "paid_at = $3")
		if change.PaidAmount != nil {
			args = append(args, *change.PaidAmount)
			sets = append(sets, "paid_amount = $"+strconv.Itoa(len(args)))
		}
	}

	query := `UPDATE orders SET ` + strings.Join(sets, ", ") + ` WHERE order_id = $1`
	if change.From != "" {
		args = append(args, string(change.From))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := r.ExistsOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *PostgresOrderRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE status = $3 AND expires_at <= $2`,
		string(model.OrderExpired), now, string(model.OrderPending))
	if err != nil {
		return 0, fmt.Errorf("failed to expire orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresOrderRepository) PurgeExpired(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	var total int64
	for {
		tag, err := r.pool.Exec(ctx,
			`DELETE FROM orders WHERE order_id IN (
				SELECT order_id FROM orders WHERE status = $1 AND updated_at <= $2 LIMIT $3
			)`,
			string(model.OrderExpired), cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to delete expired orders: %w", err)
		}
		n := tag.RowsAffected()
		total += n
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

func (r *PostgresOrderRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the shared pool.
func (r *PostgresOrderRepository) Close() error {
	r.pool.Close()
	return nil
}

var _ OrderRepository = (*PostgresOrderRepository)(nil)
