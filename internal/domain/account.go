package domain

import "time"

// AccountState is the single capital pool the risk manager sizes trades
// against. One row per account; the default deployment uses one account.
type AccountState struct {
	ID              string
	Capital         float64
	InitialCapital  float64
	DayStartCapital float64
	TradingDay      string // UTC date "2006-01-02" the daily counters belong to
	TradesToday     int
	DailyPnL        float64
	Wins            int
	Losses          int
	WinStreak       int
	LossStreak      int
	PeakCapital     float64
	LastTradeAt     *time.Time
	Halted          bool
	HaltReason      string
	UpdatedAt       time.Time
}

// Drawdown returns the fractional decline from peak capital, 0 when at or
// above the peak.
func (a AccountState) Drawdown() float64 {
	if a.PeakCapital <= 0 || a.Capital >= a.PeakCapital {
		return 0
	}
	return (a.PeakCapital - a.Capital) / a.PeakCapital
}

// DailyLoss returns today's loss as a positive fraction of the day-start
// capital, 0 when the day is flat or positive.
func (a AccountState) DailyLoss() float64 {
	if a.DayStartCapital <= 0 || a.DailyPnL >= 0 {
		return 0
	}
	return -a.DailyPnL / a.DayStartCapital
}

// WinRate returns the lifetime win fraction, 0 before any settled trade.
func (a AccountState) WinRate() float64 {
	total := a.Wins + a.Losses
	if total == 0 {
		return 0
	}
	return float64(a.Wins) / float64(total)
}
