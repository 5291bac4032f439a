// Package executor turns signals into positions. The Coordinator polls the
// latest signal per asset on its own ticker, gates each one through window
// phase and staleness checks, asks the account service for a risk verdict,
// and hands approved decisions to a TradeExecutor. Paper mode opens and
// settles synthetic binary trades in-process; live mode publishes decisions
// to a durable stream for an external executor and ingests its outcome
// reports back.
package executor

import (
	"context"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// Redis surfaces the execution loop publishes to and consumes from.
const (
	ChannelDecision = "ch:decision"
	StreamDecisions = "stream:decisions"
	StreamOutcomes  = "stream:outcomes"
)

// SignalSource yields the most recent signal per asset. Implemented by the
// signal snapshot.
type SignalSource interface {
	Assets() []string
	Latest(asset string) (domain.Signal, bool)
}

// Decider produces risk verdicts for signals and exposes the account they
// are judged against. Implemented by the account service.
type Decider interface {
	Decide(ctx context.Context, sig domain.Signal, now time.Time) (domain.TradeDecision, error)
	State() domain.AccountState
}

// OutcomeSink folds settled trades back into the account. Implemented by the
// account service; applications must be idempotent per trade ID.
type OutcomeSink interface {
	ApplyOutcome(ctx context.Context, rep domain.OutcomeReport) (domain.AccountState, error)
}

// TradeExecutor acts on one approved decision. sig is the signal the
// decision was made on and now anchors the binary window the position
// belongs to.
type TradeExecutor interface {
	Execute(ctx context.Context, d domain.TradeDecision, sig domain.Signal, now time.Time) error
	Name() string
}

// Settler resolves positions whose window has ended. The paper executor
// implements it; in live mode settlement happens on the external side.
type Settler interface {
	SettleDue(ctx context.Context, now time.Time) error
}

// windowBounds returns the binary window enclosing now. Windows tile the
// clock from a fixed origin, so a 15-minute window opens on each quarter
// hour.
func windowBounds(now time.Time, window time.Duration) (start, end time.Time) {
	start = now.Truncate(window)
	return start, start.Add(window)
}
