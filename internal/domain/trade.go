package domain

import "time"

// TradeStatus tracks the binary-trade lifecycle.
type TradeStatus string

const (
	TradeStatusOpen    TradeStatus = "open"
	TradeStatusSettled TradeStatus = "settled"
)

// Trade is an executed position in one 15-minute binary window. Shares are
// contract shares at EntryPrice; a WIN pays (1 - EntryPrice) per share and a
// LOSS costs EntryPrice per share.
type Trade struct {
	ID          string
	DecisionID  string
	SignalID    string
	Asset       string
	Strategy    string
	Direction   Direction
	Size        float64 // dollars committed
	EntryPrice  float64 // binary contract price paid per share
	Shares      float64
	OpenSpot    float64 // underlying spot at entry
	CloseSpot   float64 // underlying spot at settlement, 0 while open
	WindowStart time.Time
	WindowEnd   time.Time
	Status      TradeStatus
	Result      OutcomeResult // empty while open
	PnL         float64
	OpenedAt    time.Time
	SettledAt   *time.Time
}

// Payout returns the realized PnL for the given result at this trade's
// entry terms.
func (t Trade) Payout(result OutcomeResult) float64 {
	if result == OutcomeWin {
		return (1 - t.EntryPrice) * t.Shares
	}
	return -t.EntryPrice * t.Shares
}
