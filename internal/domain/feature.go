package domain

import "time"

// TrendBias is the five-level directional read of recent price action.
type TrendBias string

const (
	BiasStrongUp   TrendBias = "strong_up"
	BiasUp         TrendBias = "up"
	BiasNeutral    TrendBias = "neutral"
	BiasDown       TrendBias = "down"
	BiasStrongDown TrendBias = "strong_down"
)

// Sign maps the bias onto a directional score in [-1, 1].
func (b TrendBias) Sign() float64 {
	switch b {
	case BiasStrongUp:
		return 1.0
	case BiasUp:
		return 0.5
	case BiasStrongDown:
		return -1.0
	case BiasDown:
		return -0.5
	default:
		return 0
	}
}

// FeatureSet is the full set of short-horizon features extracted from one
// asset's sample window at a single evaluation instant. Momentum values are
// percentage returns over the named lookback.
type FeatureSet struct {
	Asset     string
	Timestamp time.Time
	Price     float64

	Momentum15s  float64
	Momentum30s  float64
	Momentum60s  float64
	Momentum120s float64
	Slope        float64 // short-horizon momentum minus long-horizon momentum

	RecentVol    float64 // stddev of pct returns over the recent window
	BaselineVol  float64 // stddev of pct returns over the baseline window
	VolRatio     float64 // RecentVol / BaselineVol, 0 when baseline is flat
	VolExpanding bool

	Bias TrendBias

	VWAP          float64
	VWAPProxied   bool    // true when VWAP fell back to a time-weighted mean (no volume data)
	VWAPDeviation float64 // pct deviation of Price from VWAP
	ZScore        float64
	RangePosition float64 // position of Price in the observed range, [0, 1]

	SampleCount int
}
