package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuanna1601/solibook/internal/storage"
)

type txKey struct{}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

// errStaleRead aborts the pgx transaction when a required conditional op
// modified zero rows; Commit swallows it so callers inspect the results
// instead.
var errStaleRead = errors.New("stale read")

// Store commits accumulated txn ops inside a single pgx transaction.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Commit(ctx context.Context, txn *storage.Txn) (storage.Results, error) {
	var results storage.Results
	err := withTx(ctx, s.pool, func(txCtx context.Context) error {
		for _, op := range txn.Ops() {
			applied, err := op.Do(txCtx)
			if err != nil {
				return fmt.Errorf("%s: %w", op.Name, err)
			}
			results = append(results, storage.Result{Name: op.Name, Applied: applied})
			if !applied && !op.Optional {
				return errStaleRead
			}
		}
		return nil
	})
	if errors.Is(err, errStaleRead) {
		return results, nil
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}
