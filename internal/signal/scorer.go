package signal

import (
	"fmt"
	"math"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// Scorer turns one evaluation instant into a scored directional signal.
// Implementations are stateless: identical inputs must produce identical
// output. The closes slice is the fixed-spacing bar series from
// Sampler.Resample; scorers that work from the FeatureSet alone receive it
// but may ignore it.
type Scorer interface {
	Name() string
	// Bars is the minimum close count the scorer needs before it can do
	// better than NO_TRADE. Zero means the FeatureSet alone suffices.
	Bars() int
	Score(fs domain.FeatureSet, closes []float64) domain.Signal
}

// WeightedScorer combines clamped feature contributions under a Profile.
// Contribution normalization: 30s momentum saturates at ±momScalePct,
// acceleration at ±accelScalePct, trend maps the five-level bias onto
// {-1, -0.5, 0, 0.5, 1}, volatility contributes the expansion magnitude
// signed by the momentum direction, and mean reversion fades the outer
// quintiles of the rolling range.
type WeightedScorer struct {
	profile       Profile
	momScalePct   float64
	accelScalePct float64
}

var _ Scorer = (*WeightedScorer)(nil)

// NewWeightedScorer creates a WeightedScorer for the given profile with the
// standard normalization scales.
func NewWeightedScorer(profile Profile) *WeightedScorer {
	return &WeightedScorer{
		profile:       profile,
		momScalePct:   0.3,
		accelScalePct: 0.15,
	}
}

func (s *WeightedScorer) Name() string { return s.profile.Name }

func (s *WeightedScorer) Bars() int { return 0 }

// Score computes the weighted score, direction and confidence for one
// FeatureSet. The closes series is unused.
func (s *WeightedScorer) Score(fs domain.FeatureSet, _ []float64) domain.Signal {
	contrib := s.contributions(fs)

	var score float64
	components := make(map[string]float64, len(s.profile.Weights))
	for factor, weight := range s.profile.Weights {
		part := clamp(contrib[factor], -1, 1) * weight
		components[string(factor)] = part
		score += part
	}
	score = clamp(score, -1, 1)

	dir, reason := s.direction(score, fs)
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

func (s *WeightedScorer) contributions(fs domain.FeatureSet) map[Factor]float64 {
	return map[Factor]float64{
		FactorMomentum:      clamp(fs.Momentum30s/s.momScalePct, -1, 1),
		FactorAcceleration:  clamp(fs.Slope/s.accelScalePct, -1, 1),
		FactorTrend:         fs.Bias.Sign(),
		FactorVolatility:    volatilityContribution(fs),
		FactorMeanReversion: meanReversionContribution(fs.RangePosition),
	}
}

// direction applies the neutral band, then the bias-to-action fallback when
// the profile runs in aggressive mode.
func (s *WeightedScorer) direction(score float64, fs domain.FeatureSet) (domain.Direction, string) {
	switch {
	case score > s.profile.Threshold:
		return domain.DirectionUp, fmt.Sprintf("score %.3f above +%.2f", score, s.profile.Threshold)
	case score < -s.profile.Threshold:
		return domain.DirectionDown, fmt.Sprintf("score %.3f below -%.2f", score, s.profile.Threshold)
	}
	if !s.profile.BiasToAction {
		return domain.DirectionNone, fmt.Sprintf("score %.3f inside neutral band", score)
	}
	switch {
	case fs.Momentum30s > s.profile.DeadZonePct:
		return domain.DirectionUp, fmt.Sprintf("fallback on 30s momentum %+.3f%%", fs.Momentum30s)
	case fs.Momentum30s < -s.profile.DeadZonePct:
		return domain.DirectionDown, fmt.Sprintf("fallback on 30s momentum %+.3f%%", fs.Momentum30s)
	}
	return domain.DirectionNone, fmt.Sprintf("30s momentum %+.3f%% inside dead zone", fs.Momentum30s)
}

// volatilityContribution rewards an expanding regime in the direction the
// short-horizon momentum already points; contracting regimes contribute
// nothing.
func volatilityContribution(fs domain.FeatureSet) float64 {
	if !fs.VolExpanding {
		return 0
	}
	mag := clamp(fs.VolRatio-1, 0, 1)
	switch {
	case fs.Momentum30s > 0:
		return mag
	case fs.Momentum30s < 0:
		return -mag
	}
	return 0
}

// meanReversionContribution fades range extremes: it leans DOWN as price
// enters the top quintile of the rolling range and UP in the bottom
// quintile, scaling linearly to ±1 at the range edges.
func meanReversionContribution(rangePos float64) float64 {
	switch {
	case rangePos >= 0.8:
		return -clamp((rangePos-0.8)/0.2, 0, 1)
	case rangePos <= 0.2:
		return clamp((0.2-rangePos)/0.2, 0, 1)
	}
	return 0
}

// confidence maps an actionable direction to floor + |score|*100, capped.
// NO_TRADE always reports 0.
func confidence(dir domain.Direction, score float64, p Profile) int {
	if !dir.Actionable() {
		return 0
	}
	conf := p.ConfFloor + int(math.Round(math.Abs(score)*100))
	if conf > p.ConfCap {
		conf = p.ConfCap
	}
	return conf
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// holdSignal is the NO_TRADE signal scorers emit while their input series is
// still warming up.
func holdSignal(fs domain.FeatureSet, strategy, reason string) domain.Signal {
	return domain.Signal{
		Asset:      fs.Asset,
		Strategy:   strategy,
		Direction:  domain.DirectionNone,
		Score:      0,
		Confidence: 0,
		Price:      fs.Price,
		Reasons:    []string{reason},
		CreatedAt:  fs.Timestamp,
	}
}
