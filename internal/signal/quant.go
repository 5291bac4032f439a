package signal

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// quantMinBars is the close count the indicator stack needs: a 20-bar
// Bollinger band plus one bar of headroom for the oscillators.
const quantMinBars = 21

// QuantScorer scores the six-factor indicator set over a resampled bar
// series: RSI, rate of change, SMA trend alignment, short momentum,
// Bollinger-band mean reversion and the volatility regime. Factor
// contributions follow step functions rather than linear scales; each is
// clamped to [-1, 1] before weighting.
type QuantScorer struct {
	profile   Profile
	rsiPeriod int
}

var _ Scorer = (*QuantScorer)(nil)

// NewQuantScorer creates a QuantScorer with the standard 14-period RSI.
func NewQuantScorer() *QuantScorer {
	return &QuantScorer{profile: QuantProfile(), rsiPeriod: 14}
}

func (s *QuantScorer) Name() string { return s.profile.Name }

func (s *QuantScorer) Bars() int { return quantMinBars }

// Score evaluates the indicator set against the close series. While the
// series is shorter than the indicator lookback it holds with NO_TRADE.
func (s *QuantScorer) Score(fs domain.FeatureSet, closes []float64) domain.Signal {
	if len(closes) < quantMinBars {
		return holdSignal(fs, s.profile.Name,
			fmt.Sprintf("warming up: %d of %d bars", len(closes), quantMinBars))
	}

	price := closes[len(closes)-1]

	contrib := map[Factor]float64{
		FactorRSI:           rsiContribution(lastOf(talib.Rsi(closes, s.rsiPeriod))),
		FactorROC:           rocContribution(lastOf(talib.Roc(closes, 1)), lastOf(talib.Roc(closes, 3))),
		FactorTrend:         smaTrendContribution(price, lastOf(talib.Sma(closes, 5)), lastOf(talib.Sma(closes, 15))),
		FactorMomentum:      diffMomentumContribution(closes),
		FactorMeanReversion: bollingerContribution(price, closes),
		FactorVolatility:    volRegimeContribution(fs.VolRatio),
	}

	var score float64
	components := make(map[string]float64, len(s.profile.Weights))
	for factor, weight := range s.profile.Weights {
		part := clamp(contrib[factor], -1, 1) * weight
		components[string(factor)] = part
		score += part
	}
	score = clamp(score, -1, 1)

	var dir domain.Direction
	var reason string
	switch {
	case score > s.profile.Threshold:
		dir, reason = domain.DirectionUp, fmt.Sprintf("score %.3f above +%.2f", score, s.profile.Threshold)
	case score < -s.profile.Threshold:
		dir, reason = domain.DirectionDown, fmt.Sprintf("score %.3f below -%.2f", score, s.profile.Threshold)
	default:
		dir, reason = domain.DirectionNone, fmt.Sprintf("score %.3f inside neutral band", score)
	}

	return domain.Signal{
		Asset:      fs.Asset,
		Strategy:   s.profile.Name,
		Direction:  dir,
		Score:      score,
		Confidence: confidence(dir, score, s.profile),
		Price:      fs.Price,
		Components: components,
		Reasons:    []string{reason},
		CreatedAt:  fs.Timestamp,
	}
}

// rsiContribution leans against oversold (<35) and overbought (>65)
// readings, scaling linearly to ±1 at the scale ends.
func rsiContribution(rsi float64) float64 {
	switch {
	case rsi < 35:
		return (35 - rsi) / 35
	case rsi > 65:
		return -(rsi - 65) / 35
	}
	return 0
}

// rocContribution sums step contributions from the 1-bar and 3-bar rate of
// change: ±0.5 each once past ±0.5% and ±1.0% respectively.
func rocContribution(roc1, roc3 float64) float64 {
	var c float64
	switch {
	case roc1 > 0.5:
		c += 0.5
	case roc1 < -0.5:
		c -= 0.5
	}
	switch {
	case roc3 > 1.0:
		c += 0.5
	case roc3 < -1.0:
		c -= 0.5
	}
	return clamp(c, -1, 1)
}

// smaTrendContribution grades the price/SMA5/SMA15 alignment: full stack
// alignment scores ±1, price on one side of SMA5 alone scores ±0.5.
func smaTrendContribution(price, sma5, sma15 float64) float64 {
	switch {
	case price > sma5 && sma5 > sma15:
		return 1.0
	case price < sma5 && sma5 < sma15:
		return -1.0
	case price > sma5:
		return 0.5
	case price < sma5:
		return -0.5
	}
	return 0
}

// diffMomentumContribution nets the signs of the last three bar-to-bar
// moves onto [-1, 1].
func diffMomentumContribution(closes []float64) float64 {
	if len(closes) < 4 {
		return 0
	}
	var net int
	for i := len(closes) - 3; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			net++
		case closes[i] < closes[i-1]:
			net--
		}
	}
	return float64(net) / 3
}

// bollingerContribution fades band extremes: past 80% of the way to the
// upper band it leans DOWN 0.7, past 80% toward the lower band it leans UP.
func bollingerContribution(price float64, closes []float64) float64 {
	upper, middle, _ := talib.BBands(closes, 20, 2, 2, talib.SMA)
	u, m := lastOf(upper), lastOf(middle)
	if u <= m {
		return 0
	}
	pos := (price - m) / (u - m)
	switch {
	case pos > 0.8:
		return -0.7
	case pos < -0.8:
		return 0.7
	}
	return 0
}

// volRegimeContribution nudges toward action in a strongly expanded regime
// and against it when volatility has collapsed.
func volRegimeContribution(volRatio float64) float64 {
	switch {
	case volRatio > 2.0:
		return 0.3
	case volRatio > 0 && volRatio < 0.5:
		return -0.5
	}
	return 0
}

func lastOf(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
