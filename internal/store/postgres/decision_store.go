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

// DecisionStore implements domain.DecisionStore using PostgreSQL.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a new DecisionStore backed by the given connection pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

const decisionSelectCols = `id, signal_id, asset, strategy, direction,
	approved, reason, size, size_pct, multiplier, confidence, capital, created_at`

func scanDecisionFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.TradeDecision, error) {
	var d domain.TradeDecision
	var direction, reason string

	err := scanner.Scan(
		&d.ID, &d.SignalID, &d.Asset, &d.Strategy, &direction,
		&d.Approved, &reason, &d.Size, &d.SizePct, &d.Multiplier,
		&d.Confidence, &d.Capital, &d.CreatedAt,
	)
	if err != nil {
		return domain.TradeDecision{}, err
	}

	d.Direction = domain.Direction(direction)
	d.Reason = domain.RejectionReason(reason)
	return d, nil
}

func scanDecisionRows(rows pgx.Rows) ([]domain.TradeDecision, error) {
	var decisions []domain.TradeDecision
	for rows.Next() {
		d, err := scanDecisionFromRow(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// Insert records one risk verdict, approved or rejected.
func (s *DecisionStore) Insert(ctx context.Context, d domain.TradeDecision) error {
	const query = `
		INSERT INTO decisions (
			id, signal_id, asset, strategy, direction,
			approved, reason, size, size_pct, multiplier,
			confidence, capital, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.SignalID, d.Asset, d.Strategy, string(d.Direction),
		d.Approved, string(d.Reason), d.Size, d.SizePct, d.Multiplier,
		d.Confidence, d.Capital, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert decision %s: %w", d.ID, err)
	}
	return nil
}

// GetByID retrieves a single decision by ID.
func (s *DecisionStore) GetByID(ctx context.Context, id string) (domain.TradeDecision, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+decisionSelectCols+` FROM decisions WHERE id = $1`, id)

	d, err := scanDecisionFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TradeDecision{}, domain.ErrNotFound
		}
		return domain.TradeDecision{}, fmt.Errorf("postgres: get decision %s: %w", id, err)
	}
	return d, nil
}

// ListBefore returns decisions created strictly before the cutoff, oldest
// first.
func (s *DecisionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeDecision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+decisionSelectCols+` FROM decisions
		 WHERE created_at < $1
		 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	decisions, err := scanDecisionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan decisions before cutoff: %w", err)
	}
	return decisions, nil
}

// List returns decisions with pagination and optional time filtering,
// newest first.
func (s *DecisionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeDecision, error) {
	query := `SELECT ` + decisionSelectCols + ` FROM decisions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list decisions: %w", err)
	}
	defer rows.Close()

	decisions, err := scanDecisionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan decisions: %w", err)
	}
	return decisions, nil
}

// CountRejections returns the number of rejected decisions per reason since
// the given time.
func (s *DecisionStore) CountRejections(ctx context.Context, since time.Time) (map[domain.RejectionReason]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT reason, COUNT(*) FROM decisions
		 WHERE approved = FALSE AND created_at >= $1
		 GROUP BY reason`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: count rejections: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RejectionReason]int64)
	for rows.Next() {
		var reason string
		var n int64
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan rejection count: %w", err)
		}
		counts[domain.RejectionReason(reason)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: count rejections rows: %w", err)
	}
	return counts, nil
}
