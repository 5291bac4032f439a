package domain

import "time"

// Direction is the side of a 15-minute binary market a signal points at.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
	DirectionNone Direction = "NO_TRADE"
)

// Actionable reports whether the direction names a tradeable side.
func (d Direction) Actionable() bool {
	return d == DirectionUp || d == DirectionDown
}

// Signal is a scored directional call for one asset, produced by a strategy
// profile from a FeatureSet.
type Signal struct {
	ID         string // UUID for dedup
	Asset      string
	Strategy   string // profile that produced it: "momentum", "quant", "institutional"
	Direction  Direction
	Score      float64 // clamped to [-1, 1]
	Confidence int     // 0-100, 0 for NO_TRADE
	Price      float64 // spot at evaluation time
	Components map[string]float64
	Reasons    []string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the signal is past its freshness bound.
func (s Signal) Expired(at time.Time) bool {
	return !s.ExpiresAt.IsZero() && at.After(s.ExpiresAt)
}

// BotStatus is a summary of the bot's current operational state.
type BotStatus struct {
	Mode          string
	FeedConnected bool
	UptimeSeconds int64
	Assets        []string
	Strategy      string
	Halted        bool
}
