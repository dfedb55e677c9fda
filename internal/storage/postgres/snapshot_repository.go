package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuanna1601/solibook/internal/domain"
	"github.com/tuanna1601/solibook/internal/storage"
)

// SnapshotRepository persists the append-only market snapshot log.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Latest returns the most recently appended snapshot, or nil when the log is
// empty.
func (r *SnapshotRepository) Latest(ctx context.Context) (*domain.MarketSnapshot, error) {
	const query = `
SELECT sell_volume, sell_price, buy_volume, buy_price, match_volume, match_price, created_at
FROM market_snapshots
ORDER BY created_at DESC, id DESC
LIMIT 1`

	var s domain.MarketSnapshot
	err := r.queryRow(ctx, query).Scan(
		&s.SellVolume,
		&s.SellPrice,
		&s.BuyVolume,
		&s.BuyPrice,
		&s.MatchVolume,
		&s.MatchPrice,
		&s.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &s, nil
}

// AppendOp stages the append of a new snapshot record.
func (r *SnapshotRepository) AppendOp(s domain.MarketSnapshot) storage.Op {
	return storage.Op{
		Name: "append_snapshot",
		Do: func(ctx context.Context) (bool, error) {
			const stmt = `
INSERT INTO market_snapshots (sell_volume, sell_price, buy_volume, buy_price, match_volume, match_price, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
			tag, err := r.exec(ctx, stmt,
				s.SellVolume,
				s.SellPrice,
				s.BuyVolume,
				s.BuyPrice,
				s.MatchVolume,
				s.MatchPrice,
				s.CreatedAt,
			)
			if err != nil {
				return false, err
			}
			return tag.RowsAffected() == 1, nil
		},
	}
}

func (r *SnapshotRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *SnapshotRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
