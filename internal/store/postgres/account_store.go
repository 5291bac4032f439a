package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountSelectCols = `id, capital, initial_capital, day_start_capital,
	trading_day, trades_today, daily_pnl, wins, losses,
	win_streak, loss_streak, peak_capital,
	last_trade_at, halted, halt_reason, updated_at`

// Get retrieves the account state for the given ID.
func (s *AccountStore) Get(ctx context.Context, id string) (domain.AccountState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountSelectCols+` FROM accounts WHERE id = $1`, id)

	var a domain.AccountState
	err := row.Scan(
		&a.ID, &a.Capital, &a.InitialCapital, &a.DayStartCapital,
		&a.TradingDay, &a.TradesToday, &a.DailyPnL, &a.Wins, &a.Losses,
		&a.WinStreak, &a.LossStreak, &a.PeakCapital,
		&a.LastTradeAt, &a.Halted, &a.HaltReason, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AccountState{}, domain.ErrNotFound
		}
		return domain.AccountState{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// Save upserts the full account row. The account service is the single
// writer, so a whole-row write never races another mutation.
func (s *AccountStore) Save(ctx context.Context, state domain.AccountState) error {
	const query = `
		INSERT INTO accounts (
			id, capital, initial_capital, day_start_capital,
			trading_day, trades_today, daily_pnl, wins, losses,
			win_streak, loss_streak, peak_capital,
			last_trade_at, halted, halt_reason, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16
		) ON CONFLICT (id) DO UPDATE SET
			capital = EXCLUDED.capital,
			initial_capital = EXCLUDED.initial_capital,
			day_start_capital = EXCLUDED.day_start_capital,
			trading_day = EXCLUDED.trading_day,
			trades_today = EXCLUDED.trades_today,
			daily_pnl = EXCLUDED.daily_pnl,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			win_streak = EXCLUDED.win_streak,
			loss_streak = EXCLUDED.loss_streak,
			peak_capital = EXCLUDED.peak_capital,
			last_trade_at = EXCLUDED.last_trade_at,
			halted = EXCLUDED.halted,
			halt_reason = EXCLUDED.halt_reason,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		state.ID, state.Capital, state.InitialCapital, state.DayStartCapital,
		state.TradingDay, state.TradesToday, state.DailyPnL, state.Wins, state.Losses,
		state.WinStreak, state.LossStreak, state.PeakCapital,
		state.LastTradeAt, state.Halted, state.HaltReason, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save account %s: %w", state.ID, err)
	}
	return nil
}
