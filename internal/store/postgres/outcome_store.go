package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// OutcomeStore implements domain.OutcomeStore using PostgreSQL. The
// trade_id primary key makes Insert a durable idempotency token: the first
// report for a trade wins and every replay surfaces domain.ErrAlreadyExists.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates a new OutcomeStore backed by the given connection pool.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

// Insert records one settled-trade report. A report for an already recorded
// trade is not written and returns domain.ErrAlreadyExists.
func (s *OutcomeStore) Insert(ctx context.Context, o domain.OutcomeReport) error {
	const query = `
		INSERT INTO outcomes (
			trade_id, asset, result, pnl, entry_price, exit_price, settled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		) ON CONFLICT (trade_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		o.TradeID, o.Asset, string(o.Result), o.PnL,
		o.EntryPrice, o.ExitPrice, o.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert outcome %s: %w", o.TradeID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// Exists reports whether an outcome has already been recorded for the trade.
func (s *OutcomeStore) Exists(ctx context.Context, tradeID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM outcomes WHERE trade_id = $1)`,
		tradeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check outcome %s: %w", tradeID, err)
	}
	return exists, nil
}

func scanOutcomeRows(rows pgx.Rows) ([]domain.OutcomeReport, error) {
	var outcomes []domain.OutcomeReport
	for rows.Next() {
		var o domain.OutcomeReport
		var result string
		if err := rows.Scan(
			&o.TradeID, &o.Asset, &result, &o.PnL,
			&o.EntryPrice, &o.ExitPrice, &o.SettledAt,
		); err != nil {
			return nil, err
		}
		o.Result = domain.OutcomeResult(result)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// ListBefore returns outcome reports settled strictly before the cutoff,
// oldest first.
func (s *OutcomeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.OutcomeReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT trade_id, asset, result, pnl, entry_price, exit_price, settled_at
		 FROM outcomes
		 WHERE settled_at < $1
		 ORDER BY settled_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	outcomes, err := scanOutcomeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan outcomes before cutoff: %w", err)
	}
	return outcomes, nil
}

// List returns outcome reports with pagination and optional time filtering
// on the settlement timestamp, newest first.
func (s *OutcomeStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.OutcomeReport, error) {
	query := `SELECT trade_id, asset, result, pnl, entry_price, exit_price, settled_at
		FROM outcomes WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND settled_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND settled_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY settled_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes: %w", err)
	}
	defer rows.Close()

	outcomes, err := scanOutcomeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan outcomes: %w", err)
	}
	return outcomes, nil
}
