package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tuanna1601/solibook/internal/domain"
	"github.com/tuanna1601/solibook/internal/storage"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const orderColumns = `id, limit_price, original_volume, current_volume, side, pass_status, owner, created_at`

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := r.scanOrder(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) OrdersByOwner(ctx context.Context, owner string) ([]domain.Order, error) {
	const query = `
SELECT ` + orderColumns + `
FROM orders
WHERE owner = $1
ORDER BY created_at ASC`

	rows, err := r.query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("orders by owner: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate orders: %w", rows.Err())
	}
	return orders, nil
}

// OldestPending returns the next order awaiting a matching pass, or nil when
// the queue is drained.
func (r *OrderRepository) OldestPending(ctx context.Context) (*domain.Order, error) {
	const query = `
SELECT ` + orderColumns + `
FROM orders
WHERE pass_status = 'pending'
ORDER BY created_at ASC
LIMIT 1`

	o, err := r.scanOrder(r.queryRow(ctx, query))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("oldest pending: %w", err)
	}
	return &o, nil
}

// BestCounterparty returns the resting order the incoming order should match
// next: opposite side, not canceled, non-zero volume, crossing price, ranked
// by best price for the incoming side then earliest created_at. Returns nil
// when nothing crosses.
func (r *OrderRepository) BestCounterparty(ctx context.Context, incoming domain.Order) (*domain.Order, error) {
	var query string
	if incoming.Side == domain.SideSell {
		query = `
SELECT ` + orderColumns + `
FROM orders
WHERE side = 'buy'
  AND pass_status <> 'canceled'
  AND current_volume <> 0
  AND limit_price >= $1
ORDER BY limit_price DESC, created_at ASC
LIMIT 1`
	} else {
		query = `
SELECT ` + orderColumns + `
FROM orders
WHERE side = 'sell'
  AND pass_status <> 'canceled'
  AND current_volume <> 0
  AND limit_price <= $1
ORDER BY limit_price ASC, created_at ASC
LIMIT 1`
	}

	o, err := r.scanOrder(r.queryRow(ctx, query, incoming.LimitPrice))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("best counterparty: %w", err)
	}
	return &o, nil
}

// BookTop reports the best resting price for a side and the total resting
// volume at that price. ok is false when the side of the book is empty.
func (r *OrderRepository) BookTop(ctx context.Context, side domain.Side) (volume, price decimal.Decimal, ok bool, err error) {
	order := `ASC`
	if side == domain.SideBuy {
		order = `DESC`
	}
	query := `
SELECT limit_price, SUM(current_volume)
FROM orders
WHERE side = $1
  AND pass_status <> 'canceled'
  AND current_volume <> 0
GROUP BY limit_price
ORDER BY limit_price ` + order + `
LIMIT 1`

	err = r.queryRow(ctx, query, side).Scan(&price, &volume)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Decimal{}, decimal.Decimal{}, false, nil
		}
		return decimal.Decimal{}, decimal.Decimal{}, false, fmt.Errorf("book top: %w", err)
	}
	return volume, price, true, nil
}

// CreateOrderOp stages the insert of a new order.
func (r *OrderRepository) CreateOrderOp(o domain.Order) storage.Op {
	return storage.Op{
		Name: "create_order",
		Do: func(ctx context.Context) (bool, error) {
			const stmt = `
INSERT INTO orders (id, limit_price, original_volume, current_volume, side, pass_status, owner, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
			tag, err := r.exec(ctx, stmt,
				o.ID,
				o.LimitPrice,
				o.OriginalVolume,
				o.CurrentVolume,
				o.Side,
				o.PassStatus,
				o.Owner,
				o.CreatedAt,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return false, nil
				}
				return false, err
			}
			return tag.RowsAffected() == 1, nil
		},
	}
}

// DecrementVolumeOp stages a conditional decrement: it applies only if the
// order's current volume still equals expected, which is the optimistic
// check that prevents double-applying a fill after a stale read.
func (r *OrderRepository) DecrementVolumeOp(id string, expected, delta decimal.Decimal) storage.Op {
	return storage.Op{
		Name: "decrement_volume",
		Do: func(ctx context.Context) (bool, error) {
			const stmt = `
UPDATE orders
SET current_volume = current_volume - $3
WHERE id = $1 AND current_volume = $2`
			tag, err := r.exec(ctx, stmt, id, expected, delta)
			if err != nil {
				return false, err
			}
			return tag.RowsAffected() == 1, nil
		},
	}
}

// MarkPassedOp stages the pending -> passed transition. It is optional in
// the commit: a cancel landing mid-pass leaves the order canceled, which
// must not be overwritten.
func (r *OrderRepository) MarkPassedOp(id string) storage.Op {
	return storage.Op{
		Name:     "mark_passed",
		Optional: true,
		Do: func(ctx context.Context) (bool, error) {
			const stmt = `
UPDATE orders
SET pass_status = 'passed'
WHERE id = $1 AND pass_status = 'pending'`
			tag, err := r.exec(ctx, stmt, id)
			if err != nil {
				return false, err
			}
			return tag.RowsAffected() == 1, nil
		},
	}
}

// CancelOp stages the transition to canceled. It applies zero rows when the
// order is already canceled, so a repeated cancel rolls back any staged
// hook refund instead of applying it twice.
func (r *OrderRepository) CancelOp(id string) storage.Op {
	return storage.Op{
		Name: "cancel_order",
		Do: func(ctx context.Context) (bool, error) {
			const stmt = `
UPDATE orders
SET pass_status = 'canceled'
WHERE id = $1 AND pass_status <> 'canceled'`
			tag, err := r.exec(ctx, stmt, id)
			if err != nil {
				return false, err
			}
			return tag.RowsAffected() == 1, nil
		},
	}
}

func (r *OrderRepository) scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID,
		&o.LimitPrice,
		&o.OriginalVolume,
		&o.CurrentVolume,
		&o.Side,
		&o.PassStatus,
		&o.Owner,
		&o.CreatedAt,
	)
	return o, err
}

func (r *OrderRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OrderRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
