package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"atstore-api/internal/model"
)

const orderColumns = `order_id, checkout_code, account_id, account_type, category_name, quantity,
	unit_price, total_price, email, game, server, display_image, user_id, status, qr_code_url,
	created_at, expires_at, paid_at, paid_amount, updated_at`

// SQLOrderRepository stores orders in a relational table.
type SQLOrderRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLOrderRepository creates an order repository on an opened pool.
func NewSQLOrderRepository(db *sql.DB, dialect Dialect) *SQLOrderRepository {
	return &SQLOrderRepository{db: db, dialect: dialect}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLOrder(s rowScanner) (*model.Order, error) {
	var (
		o                             model.Order
		status                        string
		userID                        sql.NullString
		createdAt, expiresAt, updated int64
		paidAt, paidAmount            sql.NullInt64
	)
	err := s.Scan(&o.OrderID, &o.CheckoutCode, &o.AccountID, &o.AccountType, &o.CategoryName, &o.Quantity,
		&o.UnitPrice, &o.TotalPrice, &o.Email, &o.Game, &o.Server, &o.DisplayImage, &userID, &status, &o.QRCodeURL,
		&createdAt, &expiresAt, &paidAt, &paidAmount, &updated)
	if err != nil {
		return nil, err
	}

	o.Status = model.OrderStatus(status)
	o.UserID = userID.String
	o.CreatedAt = fromMillis(createdAt)
	o.ExpiresAt = fromMillis(expiresAt)
	o.UpdatedAt = fromMillis(updated)
	if paidAt.Valid {
		t := fromMillis(paidAt.Int64)
		o.PaidAt = &t
	}
	if paidAmount.Valid {
		amount := paidAmount.Int64
		o.PaidAmount = &amount
	}
	return &o, nil
}

func (r *SQLOrderRepository) Create(ctx context.Context, o *model.Order) error {
	var paidAt, paidAmount sql.NullInt64
	if o.PaidAt != nil {
		paidAt = sql.NullInt64{Int64: toMillis(*o.PaidAt), Valid: true}
	}
	if o.PaidAmount != nil {
		paidAmount = sql.NullInt64{Int64: *o.PaidAmount, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (`+placeholders(20)+`)`,
		o.OrderID, o.CheckoutCode, o.AccountID, o.AccountType, o.CategoryName, o.Quantity,
		o.UnitPrice, o.TotalPrice, o.Email, o.Game, o.Server, o.DisplayImage, nullable(o.UserID), string(o.Status), o.QRCodeURL,
		toMillis(o.CreatedAt), toMillis(o.ExpiresAt), paidAt, paidAmount, toMillis(o.UpdatedAt))
	if err != nil {
		if r.dialect.isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *SQLOrderRepository) Get(ctx context.Context, orderID string) (*model.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderID)
	o, err := scanSQLOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (r *SQLOrderRepository) exists(ctx context.Context, query string, arg interface{}) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check order existence: %w", err)
	}
	return true, nil
}

func (r *SQLOrderRepository) ExistsOrderID(ctx context.Context, orderID string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM orders WHERE order_id = ? LIMIT 1`, orderID)
}

func (r *SQLOrderRepository) ExistsCheckoutCode(ctx context.Context, code string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM orders WHERE checkout_code = ? LIMIT 1`, code)
}

func (r *SQLOrderRepository) FindPendingByCheckoutCode(ctx context.Context, code string) (*model.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE checkout_code = ? AND status = ? LIMIT 1`,
		code, string(model.OrderPending))
	o, err := scanSQLOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find pending order: %w", err)
	}
	return o, nil
}

func (r *SQLOrderRepository) ListByUser(ctx context.Context, userID string) ([]*model.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

func (r *SQLOrderRepository) ListByStatus(ctx context.Context, status model.OrderStatus, dr model.DateRange) ([]*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = ?`
	args := []interface{}{string(status)}
	if dr.From != nil {
		query += ` AND created_at >= ?`
		args = append(args, toMillis(*dr.From))
	}
	if dr.To != nil {
		query += ` AND created_at <= ?`
		args = append(args, toMillis(*dr.To))
	}
	query += ` ORDER BY created_at DESC`
	return r.list(ctx, query, args...)
}

func (r *SQLOrderRepository) list(ctx context.Context, query string, args ...interface{}) ([]*model.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Order, 0)
	for rows.Next() {
		o, err := scanSQLOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *SQLOrderRepository) TransitionStatus(ctx context.Context, orderID string, change model.StatusChange) error {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{string(change.To), toMillis(change.At)}
	if change.To == model.OrderPaid {
		sets = append(sets, "paid_at = ?")
		args = append(args, toMillis(change.At))
		if change.PaidAmount != nil {
			sets = append(sets, "paid_amount = ?")
			args = append(args, *change.PaidAmount)
		}
	}

	query := `UPDATE orders SET ` + strings.Join(sets, ", ") + ` WHERE order_id = ?`
	args = append(args, orderID)
	if change.From != "" {
		query += ` AND status = ?`
		args = append(args, string(change.From))
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	exists, err := r.ExistsOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	switch {
	case !exists:
		return ErrNotFound
	case change.From != "":
		return ErrConflict
	default:
		// MySQL reports zero rows when the values did not change.
		return nil
	}
}

func (r *SQLOrderRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE status = ? AND expires_at <= ?`,
		string(model.OrderExpired), toMillis(now), string(model.OrderPending), toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to expire orders: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLOrderRepository) PurgeExpired(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	var total int64
	for {
		ids, err := r.expiredBatch(ctx, cutoff, batchSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		args := make([]interface{}, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE order_id IN (`+placeholders(len(ids))+`)`, args...)
		if err != nil {
			return total, fmt.Errorf("failed to delete expired orders: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n

		if len(ids) < batchSize {
			return total, nil
		}
	}
}

func (r *SQLOrderRepository) expiredBatch(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT order_id FROM orders WHERE status = ? AND updated_at <= ? LIMIT ?`,
		string(model.OrderExpired), toMillis(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLOrderRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLOrderRepository) Close() error {
	return r.db.Close()
}

var _ OrderRepository = (*SQLOrderRepository)(nil)
