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

// AccountRepository persists per-owner asset balances and the fills journal.
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) Get(ctx context.Context, owner string, asset domain.Asset) (domain.Account, error) {
	const query = `SELECT owner, asset, available, held FROM accounts WHERE owner = $1 AND asset = $2`

	var a domain.Account
	err := r.queryRow(ctx, query, owner, asset).Scan(&a.Owner, &a.Asset, &a.Available, &a.Held)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) ListByOwner(ctx context.Context, owner string) ([]domain.Account, error) {
	const query = `SELECT owner, asset, available, held FROM accounts WHERE owner = $1 ORDER BY asset ASC`

	rows, err := r.query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.Owner, &a.Asset, &a.Available, &a.Held); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate accounts: %w", rows.Err())
	}
	return accounts, nil
}

// CreditOp stages adding amount to an owner's available balance, creating
// the account row if needed.
func (r *AccountRepository) CreditOp(owner string, asset domain.Asset, amount decimal.Decimal) storage.Op {
	return storage.Op{
		Name: "credit_" + string(asset),
		Do: func(ctx context.Context) (bool, error) {
			const stmt = `
INSERT INTO accounts (owner, asset, available, held)
VALUES ($1, $2, $3, 0)
ON CONFLICT (owner, asset) DO UPDATE SET available = accounts.available + EXCLUDED.available`
			tag, err := r.exec(ctx, stmt, owner, asset, amount)
			if err != nil {
				return false, err
			}
			return tag.RowsAffected() == 1, nil
		},
	}
}

// HoldOp stages moving amount from available to held. It applies only when
// the owner has sufficient available funds.
func (r *AccountRepository) HoldOp(owner string, asset domain.Asset, amount decimal.Decimal) storage.Op {
	return storage.Op{
		Name: "hold_" + string(asset),
		Do: func(ctx context.Context) (bool, error) {
			const stmt = `
UPDATE accounts
SET available = available - $3, held = held + $3
WHERE owner = $1 AND asset = $2 AND available >= $3`
			tag, err := r.exec(ctx, stmt, owner, asset, amount)
			if err != nil {
				return false, err
			}
			return tag.RowsAffected() == 1, nil
		},
	}
}

// ReleaseOp stages moving amount from held back to available.
func (r *AccountRepository) ReleaseOp(owner string, asset domain.Asset, amount decimal.Decimal) storage.Op {
	return storage.Op{
		Name: "release_" + string(asset),
		Do: func(ctx context.Context) (bool, error) {
			const stmt = `
UPDATE accounts
SET held = held - $3, available = available + $3
WHERE owner = $1 AND asset = $2 AND held >= $3`
			tag, err := r.exec(ctx, stmt, owner, asset, amount)
			if err != nil {
				return false, err
			}
			return tag.RowsAffected() == 1, nil
		},
	}
}

// SpendOp stages consuming amount from held funds (settlement debit).
func (r *AccountRepository) SpendOp(owner string, asset domain.Asset, amount decimal.Decimal) storage.Op {
	return storage.Op{
		Name: "spend_" + string(asset),
		Do: func(ctx context.Context) (bool, error) {
			const stmt = `
UPDATE accounts
SET held = held - $3
WHERE owner = $1 AND asset = $2 AND held >= $3`
			tag, err := r.exec(ctx, stmt, owner, asset, amount)
			if err != nil {
				return false, err
			}
			return tag.RowsAffected() == 1, nil
		},
	}
}

// RecordFillOp stages the append of one fill journal row.
func (r *AccountRepository) RecordFillOp(f domain.Fill) storage.Op {
	return storage.Op{
		Name: "record_fill",
		Do: func(ctx context.Context) (bool, error) {
			const stmt = `
INSERT INTO fills (id, taker_order_id, maker_order_id, volume, price, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
			tag, err := r.exec(ctx, stmt, f.ID, f.TakerOrderID, f.MakerOrderID, f.Volume, f.Price, f.CreatedAt)
			if err != nil {
				return false, err
			}
			return tag.RowsAffected() == 1, nil
		},
	}
}

// FillsByOrder returns journaled fills an order took part in, oldest first.
func (r *AccountRepository) FillsByOrder(ctx context.Context, orderID string) ([]domain.Fill, error) {
	const query = `
SELECT id, taker_order_id, maker_order_id, volume, price, created_at
FROM fills
WHERE taker_order_id = $1 OR maker_order_id = $1
ORDER BY created_at ASC`

	rows, err := r.query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("fills by order: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		if err := rows.Scan(&f.ID, &f.TakerOrderID, &f.MakerOrderID, &f.Volume, &f.Price, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate fills: %w", rows.Err())
	}
	return fills, nil
}

func (r *AccountRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *AccountRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func (r *AccountRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
