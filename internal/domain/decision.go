package domain

import "time"

// RejectionReason is the machine-readable code attached to a vetoed trade.
type RejectionReason string

const (
	RejectNone                RejectionReason = ""
	RejectNoSignal            RejectionReason = "no_signal"
	RejectStaleSignal         RejectionReason = "stale_signal"
	RejectLowConfidence       RejectionReason = "low_confidence"
	RejectCooldown            RejectionReason = "cooldown"
	RejectDailyTradeLimit     RejectionReason = "daily_trade_limit"
	RejectDailyLossLimit      RejectionReason = "daily_loss_limit"
	RejectCapitalPreservation RejectionReason = "capital_preservation"
	RejectHalted              RejectionReason = "halted"
	RejectBelowMinSize        RejectionReason = "below_min_size"
	RejectWindowBlackout      RejectionReason = "window_blackout"
)

// TradeDecision is the risk manager's verdict on one signal: either an
// approved, fully sized trade or a rejection with a reason code.
type TradeDecision struct {
	ID         string
	SignalID   string
	Asset      string
	Strategy   string
	Direction  Direction
	Approved   bool
	Reason     RejectionReason // RejectNone when approved
	Size       float64         // dollars, rounded to cents
	SizePct    float64         // Size as a fraction of capital at decision time
	Multiplier float64         // streak and drawdown multiplier that shaped Size
	Confidence int
	Capital    float64 // capital at decision time
	CreatedAt  time.Time
}

// OutcomeResult is the settled result of a binary-market trade.
type OutcomeResult string

const (
	OutcomeWin  OutcomeResult = "WIN"
	OutcomeLoss OutcomeResult = "LOSS"
)

// OutcomeReport carries one settled trade's result back into the risk
// manager. Reports are idempotent per TradeID.
type OutcomeReport struct {
	TradeID    string
	Asset      string
	Result     OutcomeResult
	PnL        float64
	EntryPrice float64
	ExitPrice  float64
	SettledAt  time.Time
}
