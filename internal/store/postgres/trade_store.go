package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, decision_id, signal_id, asset, strategy, direction,
	size, entry_price, shares, open_spot, close_spot,
	window_start, window_end, status, result, pnl, opened_at, settled_at`

func scanTradeFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Trade, error) {
	var t domain.Trade
	var direction, status, result string

	err := scanner.Scan(
		&t.ID, &t.DecisionID, &t.SignalID, &t.Asset, &t.Strategy, &direction,
		&t.Size, &t.EntryPrice, &t.Shares, &t.OpenSpot, &t.CloseSpot,
		&t.WindowStart, &t.WindowEnd, &status, &result, &t.PnL,
		&t.OpenedAt, &t.SettledAt,
	)
	if err != nil {
		return domain.Trade{}, err
	}

	t.Direction = domain.Direction(direction)
	t.Status = domain.TradeStatus(status)
	t.Result = domain.OutcomeResult(result)
	return t, nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTradeFromRow(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert records a newly opened trade.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, decision_id, signal_id, asset, strategy, direction,
			size, entry_price, shares, open_spot, close_spot,
			window_start, window_end, status, result, pnl,
			opened_at, settled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18
		)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.DecisionID, t.SignalID, t.Asset, t.Strategy, string(t.Direction),
		t.Size, t.EntryPrice, t.Shares, t.OpenSpot, t.CloseSpot,
		t.WindowStart, t.WindowEnd, string(t.Status), string(t.Result), t.PnL,
		t.OpenedAt, t.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// Settle marks a trade as settled with its result, realized PnL, and the
// closing spot price. Re-settling an already settled trade overwrites the
// same values, so replays are harmless.
func (s *TradeStore) Settle(ctx context.Context, id string, result domain.OutcomeResult, pnl, closeSpot float64, settledAt time.Time) error {
	const query = `
		UPDATE trades SET
			status = $2, result = $3, pnl = $4, close_spot = $5, settled_at = $6
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		id, string(domain.TradeStatusSettled), string(result), pnl, closeSpot, settledAt)
	if err != nil {
		return fmt.Errorf("postgres: settle trade %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single trade by ID.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE id = $1`, id)

	t, err := scanTradeFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trade{}, domain.ErrNotFound
		}
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return t, nil
}

// ListOpen returns all unsettled trades ordered by window end, soonest first.
func (s *TradeStore) ListOpen(ctx context.Context) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE status = $1
		 ORDER BY window_end ASC`, string(domain.TradeStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("postgres: list open trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns settled trades whose settlement timestamp is strictly
// before the cutoff, oldest first. Open trades are never included: a row
// still awaiting its outcome must stay in the primary store.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE status = $1 AND settled_at < $2
		 ORDER BY settled_at ASC`, string(domain.TradeStatusSettled), before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before cutoff: %w", err)
	}
	return trades, nil
}

// List returns trades with pagination and optional time filtering on the
// open timestamp, newest first.
func (s *TradeStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at DESC"

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
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}
