package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// featureFixture returns a neutral FeatureSet; tests tweak individual fields.
func featureFixture() domain.FeatureSet {
	return domain.FeatureSet{
		Asset:         "BTC",
		Timestamp:     t0,
		Price:         50000,
		Bias:          domain.BiasNeutral,
		VolRatio:      1.0,
		RangePosition: 0.5,
	}
}

func TestBuiltinProfilesAreConsistent(t *testing.T) {
	require.NoError(t, MomentumProfile().Validate())
	require.NoError(t, QuantProfile().Validate())
}

func TestProfileValidateRejectsBadWeights(t *testing.T) {
	p := MomentumProfile()
	p.Weights[FactorMomentum] = 0.5 // sum is now 1.1
	assert.Error(t, p.Validate())
}

func TestWeightedScorerFullAlignment(t *testing.T) {
	s := NewWeightedScorer(MomentumProfile())
	fs := featureFixture()
	fs.Momentum30s = 0.3 // saturates the momentum factor
	fs.Momentum120s = 0.1
	fs.Slope = 0.15 // saturates acceleration
	fs.Bias = domain.BiasStrongUp
	fs.VolRatio = 2.0
	fs.VolExpanding = true

	sig := s.Score(fs, nil)
	// momentum 0.40 + accel 0.20 + trend 0.20 + vol 0.10 + mr 0.
	assert.InDelta(t, 0.9, sig.Score, 1e-9)
	assert.Equal(t, domain.DirectionUp, sig.Direction)
	assert.Equal(t, 95, sig.Confidence, "50 + 90 caps at 95")
	assert.InDelta(t, 0.40, sig.Components[string(FactorMomentum)], 1e-9)
	assert.InDelta(t, 0.10, sig.Components[string(FactorVolatility)], 1e-9)
}

func TestWeightedScorerAggressiveDownScenario(t *testing.T) {
	s := NewWeightedScorer(MomentumProfile())
	fs := featureFixture()
	fs.Momentum30s = -0.45
	fs.Momentum60s = -0.32
	fs.Momentum120s = -0.185
	fs.Slope = fs.Momentum30s - fs.Momentum120s
	fs.Bias = domain.BiasStrongDown

	sig := s.Score(fs, nil)
	assert.Equal(t, domain.DirectionDown, sig.Direction)
	// momentum -0.40, accel -0.20, trend -0.20.
	assert.InDelta(t, -0.8, sig.Score, 1e-9)
	assert.Equal(t, 95, sig.Confidence, "min(95, 50+|score|*100)")
}

func TestWeightedScorerNoFactorExceedsItsWeight(t *testing.T) {
	s := NewWeightedScorer(MomentumProfile())
	fs := featureFixture()
	fs.Momentum30s = 25.0 // absurd spike
	fs.Slope = 10.0
	fs.Bias = domain.BiasStrongUp
	fs.VolRatio = 9.0
	fs.VolExpanding = true
	fs.RangePosition = 1.0

	sig := s.Score(fs, nil)
	p := MomentumProfile()
	for factor, weight := range p.Weights {
		assert.LessOrEqual(t, sig.Components[string(factor)], weight,
			"factor %s must stay clamped", factor)
	}
	assert.LessOrEqual(t, sig.Score, 1.0)
}

func TestWeightedScorerBiasToActionFallback(t *testing.T) {
	s := NewWeightedScorer(MomentumProfile())
	fs := featureFixture()
	fs.Momentum30s = 0.1 // weighted score stays inside the neutral band

	sig := s.Score(fs, nil)
	assert.Equal(t, domain.DirectionUp, sig.Direction, "aggressive mode follows 30s momentum inside the band")
	assert.Less(t, sig.Score, MomentumProfile().Threshold)
	assert.Equal(t, 63, sig.Confidence, "50 + round(13.3)")
}

func TestWeightedScorerDeadZoneHolds(t *testing.T) {
	s := NewWeightedScorer(MomentumProfile())
	fs := featureFixture()
	fs.Momentum30s = 0.02 // inside the 0.05% dead zone

	sig := s.Score(fs, nil)
	assert.Equal(t, domain.DirectionNone, sig.Direction)
	assert.Zero(t, sig.Confidence, "NO_TRADE always reports confidence 0")
}

func TestWeightedScorerNeutralWithoutBiasToAction(t *testing.T) {
	p := MomentumProfile()
	p.Name = "momentum_conservative"
	p.BiasToAction = false
	s := NewWeightedScorer(p)

	fs := featureFixture()
	fs.Momentum30s = 0.1

	sig := s.Score(fs, nil)
	assert.Equal(t, domain.DirectionNone, sig.Direction)
	assert.Zero(t, sig.Confidence)
}

func TestWeightedScorerDeterministic(t *testing.T) {
	s := NewWeightedScorer(MomentumProfile())
	fs := featureFixture()
	fs.Momentum30s = -0.22
	fs.Slope = -0.04
	fs.Bias = domain.BiasDown
	fs.RangePosition = 0.12

	a := s.Score(fs, nil)
	b := s.Score(fs, nil)
	assert.Equal(t, a, b, "scoring must be a pure function of the feature set")
}

func TestConfidenceFormula(t *testing.T) {
	p := MomentumProfile()
	cases := []struct {
		dir   domain.Direction
		score float64
		want  int
	}{
		{domain.DirectionUp, 0.20, 70},
		{domain.DirectionUp, 0.35, 85},
		{domain.DirectionDown, -0.35, 85},
		{domain.DirectionUp, 0.65, 95},
		{domain.DirectionNone, 0.90, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, confidence(tc.dir, tc.score, p),
			"dir %s score %.2f", tc.dir, tc.score)
	}
}

func TestMeanReversionFadesExtremes(t *testing.T) {
	assert.Zero(t, meanReversionContribution(0.5))
	assert.InDelta(t, -0.5, meanReversionContribution(0.9), 1e-9)
	assert.InDelta(t, -1.0, meanReversionContribution(1.0), 1e-9)
	assert.InDelta(t, 0.5, meanReversionContribution(0.1), 1e-9)
	assert.InDelta(t, 1.0, meanReversionContribution(0.0), 1e-9)
}

func TestVolatilityContributionNeedsExpansionAndDirection(t *testing.T) {
	fs := featureFixture()
	fs.VolRatio = 2.0
	fs.VolExpanding = false
	fs.Momentum30s = 0.2
	assert.Zero(t, volatilityContribution(fs), "contracting regimes contribute nothing")

	fs.VolExpanding = true
	assert.InDelta(t, 1.0, volatilityContribution(fs), 1e-9)

	fs.Momentum30s = -0.2
	assert.InDelta(t, -1.0, volatilityContribution(fs), 1e-9)

	fs.Momentum30s = 0
	assert.Zero(t, volatilityContribution(fs), "no momentum direction, no volatility lean")
}
