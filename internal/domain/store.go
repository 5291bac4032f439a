package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AccountStore persists the risk account state.
type AccountStore interface {
	Get(ctx context.Context, id string) (AccountState, error)
	Save(ctx context.Context, state AccountState) error
}

// DecisionStore persists every risk verdict, approved or rejected.
type DecisionStore interface {
	Insert(ctx context.Context, d TradeDecision) error
	GetByID(ctx context.Context, id string) (TradeDecision, error)
	List(ctx context.Context, opts ListOpts) ([]TradeDecision, error)
	CountRejections(ctx context.Context, since time.Time) (map[RejectionReason]int64, error)
}

// TradeStore persists executed binary trades.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	Settle(ctx context.Context, id string, result OutcomeResult, pnl, closeSpot float64, settledAt time.Time) error
	GetByID(ctx context.Context, id string) (Trade, error)
	ListOpen(ctx context.Context) ([]Trade, error)
	List(ctx context.Context, opts ListOpts) ([]Trade, error)
}

// OutcomeStore persists settled-trade reports. Insert must be idempotent per
// TradeID so duplicate webhook deliveries cannot double-count.
type OutcomeStore interface {
	Insert(ctx context.Context, o OutcomeReport) error
	Exists(ctx context.Context, tradeID string) (bool, error)
	List(ctx context.Context, opts ListOpts) ([]OutcomeReport, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
